package repositories

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConversationRepository implements ConversationRepository on redis sets
type RedisConversationRepository struct {
	client redis.UniversalClient
}

// NewRedisConversationRepository creates a new RedisConversationRepository
func NewRedisConversationRepository(client redis.UniversalClient) *RedisConversationRepository {
	return &RedisConversationRepository{client: client}
}

// Add records a conversation as owned by a user
func (r *RedisConversationRepository) Add(ctx context.Context, userName, conversationID string) error {
	if err := r.client.SAdd(ctx, userConversationsKey(userName), conversationID).Err(); err != nil {
		return fmt.Errorf("failed to record conversation %s for %s: %w", conversationID, userName, err)
	}
	return nil
}

// Contains reports whether a user owns a conversation
func (r *RedisConversationRepository) Contains(ctx context.Context, userName, conversationID string) (bool, error) {
	owned, err := r.client.SIsMember(ctx, userConversationsKey(userName), conversationID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check conversation %s for %s: %w", conversationID, userName, err)
	}
	return owned, nil
}

// List returns every conversation owned by a user
func (r *RedisConversationRepository) List(ctx context.Context, userName string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, userConversationsKey(userName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for %s: %w", userName, err)
	}
	return ids, nil
}
