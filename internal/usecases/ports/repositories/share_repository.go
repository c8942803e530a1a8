package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
)

var (
	// ErrShareNotFound is returned when no live share exists for a token
	ErrShareNotFound = errors.New("share not found")
	// ErrTokenCollision is returned when a derived token is already held by another user
	ErrTokenCollision = errors.New("share token already issued to another user")
)

// ShareRepository defines the interface for share storage
type ShareRepository interface {
	// Replace stores share as the only live share of its user. Any share
	// previously issued to the same user is deleted in the same step.
	// It returns the superseded token, or "" when there was none.
	Replace(ctx context.Context, share *entities.Share) (string, error)

	// FindByToken retrieves a share by its token
	FindByToken(ctx context.Context, token string) (*entities.Share, error)

	// FindTokenByUser returns the live token of a user, or "" when none exists
	FindTokenByUser(ctx context.Context, userName string) (string, error)

	// DeleteByToken removes a share and its user index entry
	DeleteByToken(ctx context.Context, token string) error

	// CleanupExpired removes shares expired at now and user index entries
	// pointing at shares that no longer exist. It returns how many users
	// lost their share.
	CleanupExpired(ctx context.Context, now time.Time) (int, error)
}
