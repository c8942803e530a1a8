package controllers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
)

const (
	// clearanceMaxAge is how long a harvested cookie set is trusted before a refresh is requested
	clearanceMaxAge = 30 * time.Minute
	// defaultHarvestUserAgent is offered to the harvester when no user agent is known yet
	defaultHarvestUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// UpstreamCookieService stores the upstream clearance cookies
type UpstreamCookieService interface {
	RegisterUpstreamCookies(ctx context.Context, cookies *entities.UpstreamCookies) error
	UpstreamCookies(ctx context.Context) (*entities.UpstreamCookies, error)
}

// UpstreamCookieController handles the clearance cookie exchange with an
// external cookie harvester
type UpstreamCookieController struct {
	cookies   UpstreamCookieService
	targetURL string
	proxyURL  string
	now       func() time.Time
}

// NewUpstreamCookieController creates a new UpstreamCookieController instance.
// targetURL is the page the harvester solves the challenge on and proxyURL
// the egress proxy the mirror uses.
func NewUpstreamCookieController(cookies UpstreamCookieService, targetURL, proxyURL string) *UpstreamCookieController {
	return &UpstreamCookieController{
		cookies:   cookies,
		targetURL: targetURL,
		proxyURL:  proxyURL,
		now:       time.Now,
	}
}

// GetName returns the name of this controller for logging
func (c *UpstreamCookieController) GetName() string {
	return "UpstreamCookieController"
}

// SetCookiesRequest is the JSON body for POST /api/set-cf-cookie
type SetCookiesRequest struct {
	Cookies   []entities.UpstreamCookie `json:"cookies"`
	UserAgent string                    `json:"user_agent"`
	ProxyURL  string                    `json:"proxy_url"`
}

// CookieSet is one harvested cookie set in the harvester exchange format
type CookieSet struct {
	Cookies   []entities.UpstreamCookie `json:"cookies"`
	UserAgent string                    `json:"user_agent"`
	ProxyURL  string                    `json:"proxy_url"`
	UpdatedAt *time.Time                `json:"updated_at,omitempty"`
}

// NeedUpdate tells the harvester which proxies and user agents to refresh
type NeedUpdate struct {
	ProxyURLPool  []string `json:"proxy_url_pool"`
	UserAgentList []string `json:"user_agent_list"`
}

// CookieListResponse is the response of GET /api/get-cf-list
type CookieListResponse struct {
	ExistDataList []CookieSet `json:"exist_data_list"`
	NeedUpdate    NeedUpdate  `json:"need_update"`
	URL           string      `json:"url"`
}

// SetCookies handles POST /api/set-cf-cookie
func (c *UpstreamCookieController) SetCookies(ctx echo.Context) error {
	var req SetCookiesRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Cookies == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cookies is required")
	}

	err := c.cookies.RegisterUpstreamCookies(ctx.Request().Context(), &entities.UpstreamCookies{
		Cookies:   req.Cookies,
		UserAgent: req.UserAgent,
		ProxyURL:  req.ProxyURL,
	})
	if err != nil {
		log.Printf("[COOKIE] Failed to register upstream cookies: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to store cookies")
	}
	return ctx.NoContent(http.StatusOK)
}

// ListCookies handles GET /api/get-cf-list. It reports the stored cookie
// set and asks for a refresh when none is stored, the stored one is stale,
// or it was harvested through a different egress proxy.
func (c *UpstreamCookieController) ListCookies(ctx echo.Context) error {
	stored, err := c.cookies.UpstreamCookies(ctx.Request().Context())
	if err != nil {
		log.Printf("[COOKIE] Failed to load upstream cookies: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load cookies")
	}

	resp := CookieListResponse{
		ExistDataList: []CookieSet{},
		NeedUpdate: NeedUpdate{
			ProxyURLPool:  []string{},
			UserAgentList: []string{},
		},
		URL: c.targetURL,
	}

	userAgent := defaultHarvestUserAgent
	if stored != nil {
		updatedAt := stored.UpdatedAt
		resp.ExistDataList = append(resp.ExistDataList, CookieSet{
			Cookies:   stored.Cookies,
			UserAgent: stored.UserAgent,
			ProxyURL:  stored.ProxyURL,
			UpdatedAt: &updatedAt,
		})
		if stored.UserAgent != "" {
			userAgent = stored.UserAgent
		}
	}

	if stored == nil || stored.ProxyURL != c.proxyURL || stored.Age(c.now()) > clearanceMaxAge {
		if c.proxyURL != "" {
			resp.NeedUpdate.ProxyURLPool = append(resp.NeedUpdate.ProxyURLPool, c.proxyURL)
		}
		resp.NeedUpdate.UserAgentList = append(resp.NeedUpdate.UserAgentList, userAgent)
	}

	return ctx.JSON(http.StatusOK, resp)
}
