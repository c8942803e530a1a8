package repositories

import (
	"context"
	"sync"

	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
)

// MemoryUpstreamCookieRepository keeps the upstream cookie set in memory
type MemoryUpstreamCookieRepository struct {
	mu      sync.RWMutex
	cookies *entities.UpstreamCookies
}

// NewMemoryUpstreamCookieRepository creates a new MemoryUpstreamCookieRepository
func NewMemoryUpstreamCookieRepository() *MemoryUpstreamCookieRepository {
	return &MemoryUpstreamCookieRepository{}
}

// SaveCookies replaces the stored cookie set
func (r *MemoryUpstreamCookieRepository) SaveCookies(ctx context.Context, cookies *entities.UpstreamCookies) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cloned := *cookies
	cloned.Cookies = append([]entities.UpstreamCookie(nil), cookies.Cookies...)
	r.cookies = &cloned
	return nil
}

// FindCookies returns the stored cookie set, or nil when none was registered
func (r *MemoryUpstreamCookieRepository) FindCookies(ctx context.Context) (*entities.UpstreamCookies, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.cookies == nil {
		return nil, nil
	}
	cloned := *r.cookies
	cloned.Cookies = append([]entities.UpstreamCookie(nil), r.cookies.Cookies...)
	return &cloned, nil
}
