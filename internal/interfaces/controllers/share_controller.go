package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
	"github.com/takutakahashi/chatgpt-mirror/internal/usecases/ports/repositories"
)

const shareTokenCookie = "share_token"

// ShareService issues and resolves shares
type ShareService interface {
	IssueShare(ctx context.Context, share *entities.Share) (string, error)
	ResolveShare(ctx context.Context, token string) (*entities.Share, error)
}

// ShareController handles share issuance and the share login flow
type ShareController struct {
	shares      ShareService
	redirectURI string
}

// NewShareController creates a new ShareController instance
func NewShareController(shares ShareService, redirectURI string) *ShareController {
	return &ShareController{
		shares:      shares,
		redirectURI: redirectURI,
	}
}

// GetName returns the name of this controller for logging
func (c *ShareController) GetName() string {
	return "ShareController"
}

// ShareRequest is the JSON body for POST /api/share. Omitted limits and
// expiry are unlimited.
type ShareRequest struct {
	UserName               string `json:"user_name"`
	AccessToken            string `json:"access_token"`
	GPT4Limit              *int64 `json:"gpt_4_limit,omitempty"`
	GPT4oLimit             *int64 `json:"gpt_4o_limit,omitempty"`
	GPT4oMiniLimit         *int64 `json:"gpt_4o_mini_limit,omitempty"`
	GPTo1MiniLimit         *int64 `json:"gpt_o1_mini_limit,omitempty"`
	GPTo1PreviewLimit      *int64 `json:"gpto1_preview_limit,omitempty"`
	ExpireAt               *int64 `json:"expire_at,omitempty"`
	GPTLimitEnable         bool   `json:"gpt_limit_enable"`
	TempConversationEnable bool   `json:"temp_conversation_enable"`
}

// ShareResponse is the envelope returned by POST /api/share
type ShareResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// toEntity converts the request into a share, applying defaults
func (r *ShareRequest) toEntity() (*entities.Share, error) {
	share, err := entities.NewShare(r.UserName, r.AccessToken)
	if err != nil {
		return nil, err
	}

	limits := entities.DefaultShareLimits()
	for _, l := range []struct {
		dst *int64
		src *int64
	}{
		{&limits.GPT4, r.GPT4Limit},
		{&limits.GPT4o, r.GPT4oLimit},
		{&limits.GPT4oMini, r.GPT4oMiniLimit},
		{&limits.GPTo1Mini, r.GPTo1MiniLimit},
		{&limits.GPTo1Preview, r.GPTo1PreviewLimit},
	} {
		if l.src != nil {
			*l.dst = *l.src
		}
	}
	share.SetLimits(limits)
	share.SetFlags(entities.ShareFlags{
		LimitEnabled:            r.GPTLimitEnable,
		TempConversationEnabled: r.TempConversationEnable,
	})
	if r.ExpireAt != nil {
		share.SetExpireAt(*r.ExpireAt)
	}
	return share, nil
}

// CreateShare handles POST /api/share
func (c *ShareController) CreateShare(ctx echo.Context) error {
	var req ShareRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	share, err := req.toEntity()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	token, err := c.shares.IssueShare(ctx.Request().Context(), share)
	if err != nil {
		if errors.Is(err, repositories.ErrTokenCollision) {
			return echo.NewHTTPError(http.StatusConflict, "Share token already belongs to another user")
		}
		log.Printf("[SHARE] Failed to issue share for %s: %v", req.UserName, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to issue share")
	}

	return ctx.JSON(http.StatusOK, ShareResponse{
		Status:  true,
		Message: "Success",
		Data:    token,
	})
}

// FreeLogin handles GET /api/free-login. A live share token is stored in
// the share_token cookie and the caller is sent to the application; any
// other caller is sent to the configured redirect URI.
func (c *ShareController) FreeLogin(ctx echo.Context) error {
	token := ctx.QueryParam(shareTokenCookie)
	if token == "" {
		return ctx.Redirect(http.StatusFound, c.redirectURI)
	}

	if _, err := c.shares.ResolveShare(ctx.Request().Context(), token); err != nil {
		if !errors.Is(err, repositories.ErrShareNotFound) {
			log.Printf("[SHARE] Failed to resolve share %s: %v", token, err)
		}
		return ctx.Redirect(http.StatusFound, c.redirectURI)
	}

	ctx.SetCookie(&http.Cookie{
		Name:     shareTokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   ctx.Scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})
	return ctx.Redirect(http.StatusFound, "/")
}
