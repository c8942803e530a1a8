package controllers

import (
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/takutakahashi/chatgpt-mirror/pkg/utils"
)

// checkRequestHeaders make the account check look like a browser navigation
var checkRequestHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Cache-Control":   "max-age=0",
	"Sec-Fetch-Dest":  "document",
	"Sec-Fetch-Mode":  "navigate",
	"Sec-Fetch-Site":  "none",
	"Sec-Fetch-User":  "?1",
}

// AccountController handles account endpoints answered by the mirror itself
type AccountController struct {
	client   *http.Client
	checkURL string
}

// NewAccountController creates a new AccountController instance
func NewAccountController(client *http.Client, checkURL string) *AccountController {
	return &AccountController{
		client:   client,
		checkURL: checkURL,
	}
}

// GetName returns the name of this controller for logging
func (c *AccountController) GetName() string {
	return "AccountController"
}

// CheckAccount handles GET /api/check. The m_token query parameter is sent
// to the upstream account check as the Authorization header and the
// upstream's answer is returned as is.
func (c *AccountController) CheckAccount(ctx echo.Context) error {
	token := ctx.QueryParam("m_token")
	if token == "" {
		return ctx.NoContent(http.StatusUnauthorized)
	}

	req, err := http.NewRequestWithContext(ctx.Request().Context(), http.MethodGet, c.checkURL, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	for name, value := range checkRequestHeaders {
		req.Header.Set(name, value)
	}
	req.Header.Set("Authorization", token)
	if ua := ctx.Request().UserAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("[ACCOUNT] Account check failed: %v", err)
		return ctx.String(http.StatusInternalServerError, err.Error())
	}
	defer utils.SafeCloseResponse(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to read account check response: %v", err)
		return ctx.String(http.StatusInternalServerError, err.Error())
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return ctx.Blob(resp.StatusCode, contentType, body)
}

// LogoutAll handles POST /backend-api/accounts/logout_all. Share users must
// never end the sessions of the shared account.
func (c *AccountController) LogoutAll(ctx echo.Context) error {
	return ctx.NoContent(http.StatusForbidden)
}
