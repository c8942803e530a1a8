package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
)

// RedisUpstreamCookieRepository stores the upstream cookie set as a JSON string
type RedisUpstreamCookieRepository struct {
	client redis.UniversalClient
}

// NewRedisUpstreamCookieRepository creates a new RedisUpstreamCookieRepository
func NewRedisUpstreamCookieRepository(client redis.UniversalClient) *RedisUpstreamCookieRepository {
	return &RedisUpstreamCookieRepository{client: client}
}

// SaveCookies replaces the stored cookie set
func (r *RedisUpstreamCookieRepository) SaveCookies(ctx context.Context, cookies *entities.UpstreamCookies) error {
	data, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("failed to marshal upstream cookies: %w", err)
	}
	if err := r.client.Set(ctx, upstreamCookiesKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save upstream cookies: %w", err)
	}
	return nil
}

// FindCookies returns the stored cookie set, or nil when none was registered
func (r *RedisUpstreamCookieRepository) FindCookies(ctx context.Context) (*entities.UpstreamCookies, error) {
	data, err := r.client.Get(ctx, upstreamCookiesKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load upstream cookies: %w", err)
	}

	var cookies entities.UpstreamCookies
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal upstream cookies: %w", err)
	}
	return &cookies, nil
}
