package repositories

import (
	"context"

	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
)

// UpstreamCookieRepository persists the cookie set used to reach the upstream
type UpstreamCookieRepository interface {
	// SaveCookies replaces the stored cookie set
	SaveCookies(ctx context.Context, cookies *entities.UpstreamCookies) error

	// FindCookies returns the stored cookie set, or nil when none was registered
	FindCookies(ctx context.Context) (*entities.UpstreamCookies, error)
}
