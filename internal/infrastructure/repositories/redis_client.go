package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout compatible with existing mirror deployments
const (
	shareTokenKeyPrefix        = "share_token_info:"
	userInfoKeyPrefix          = "user_info:"
	userConversationsKeyPrefix = "user_conversations:"
	upstreamCookiesKey         = "upstream_cookies"
)

func shareTokenKey(token string) string {
	return shareTokenKeyPrefix + token
}

func userInfoKey(userName string) string {
	return userInfoKeyPrefix + userName
}

func userConversationsKey(userName string) string {
	return userConversationsKeyPrefix + userName
}

// NewRedisClient connects to redis and verifies the connection with a PING
func NewRedisClient(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}
