package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
	"github.com/takutakahashi/chatgpt-mirror/internal/usecases/ports/repositories"
)

// MemoryShareRepository implements ShareRepository using in-memory storage
type MemoryShareRepository struct {
	mu     sync.RWMutex
	shares map[string]*entities.Share
	users  map[string]string
}

// NewMemoryShareRepository creates a new MemoryShareRepository
func NewMemoryShareRepository() *MemoryShareRepository {
	return &MemoryShareRepository{
		shares: make(map[string]*entities.Share),
		users:  make(map[string]string),
	}
}

// Replace stores share as the user's only live share
func (r *MemoryShareRepository) Replace(ctx context.Context, share *entities.Share) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.shares[share.Token()]; ok && existing.UserName() != share.UserName() {
		return "", repositories.ErrTokenCollision
	}

	previous := r.users[share.UserName()]
	if previous != "" && previous != share.Token() {
		delete(r.shares, previous)
	}
	r.shares[share.Token()] = r.cloneShare(share)
	r.users[share.UserName()] = share.Token()

	return previous, nil
}

// FindByToken retrieves a share by its token
func (r *MemoryShareRepository) FindByToken(ctx context.Context, token string) (*entities.Share, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	share, ok := r.shares[token]
	if !ok {
		return nil, repositories.ErrShareNotFound
	}
	return r.cloneShare(share), nil
}

// FindTokenByUser returns the live token of a user
func (r *MemoryShareRepository) FindTokenByUser(ctx context.Context, userName string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.users[userName], nil
}

// DeleteByToken removes a share and its user index entry
func (r *MemoryShareRepository) DeleteByToken(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	share, ok := r.shares[token]
	if !ok {
		return nil
	}
	delete(r.shares, token)
	if r.users[share.UserName()] == token {
		delete(r.users, share.UserName())
	}
	return nil
}

// CleanupExpired removes shares expired at now
func (r *MemoryShareRepository) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for token, share := range r.shares {
		if !share.IsExpired(now) {
			continue
		}
		delete(r.shares, token)
		if r.users[share.UserName()] == token {
			delete(r.users, share.UserName())
		}
		count++
	}
	return count, nil
}

// cloneShare creates a copy to avoid external modifications
func (r *MemoryShareRepository) cloneShare(share *entities.Share) *entities.Share {
	return entities.NewShareWithToken(
		share.Token(),
		share.UserName(),
		share.AccessToken(),
		share.Limits(),
		share.Flags(),
		share.ExpireAt(),
	)
}
