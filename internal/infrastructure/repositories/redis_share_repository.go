package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
	"github.com/takutakahashi/chatgpt-mirror/internal/usecases/ports/repositories"
)

// Hash fields of a share_token_info:<token> record
const (
	fieldUserName               = "user_name"
	fieldAccessToken            = "access_token"
	fieldGPT4Limit              = "gpt_4_limit"
	fieldGPT4oLimit             = "gpt_4o_limit"
	fieldGPT4oMiniLimit         = "gpt_4o_mini_limit"
	fieldGPTo1MiniLimit         = "gpt_o1_mini_limit"
	fieldGPTo1PreviewLimit      = "gpto1_preview_limit"
	fieldExpireAt               = "expire_at"
	fieldLimitEnable            = "gpt_limit_enable"
	fieldTempConversationEnable = "temp_conversation_enable"
)

// RedisShareRepository implements ShareRepository on redis hashes
type RedisShareRepository struct {
	client redis.UniversalClient
}

// NewRedisShareRepository creates a new RedisShareRepository
func NewRedisShareRepository(client redis.UniversalClient) *RedisShareRepository {
	return &RedisShareRepository{client: client}
}

// Replace stores share and drops the user's previous share inside one
// WATCH/MULTI transaction, so concurrent issuers never leave two live tokens.
func (r *RedisShareRepository) Replace(ctx context.Context, share *entities.Share) (string, error) {
	userKey := userInfoKey(share.UserName())
	tokenKey := shareTokenKey(share.Token())

	var previous string
	txf := func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, userKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		owner, err := tx.HGet(ctx, tokenKey, fieldUserName).Result()
		switch {
		case err == nil && owner != share.UserName():
			return repositories.ErrTokenCollision
		case err != nil && !errors.Is(err, redis.Nil):
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if prev != "" && prev != share.Token() {
				pipe.Del(ctx, shareTokenKey(prev))
			}
			pipe.Del(ctx, tokenKey)
			pipe.HSet(ctx, tokenKey, shareToHash(share))
			if share.ExpireAt() > 0 {
				pipe.ExpireAt(ctx, tokenKey, time.Unix(share.ExpireAt(), 0))
			}
			pipe.Set(ctx, userKey, share.Token(), 0)
			return nil
		})
		if err != nil {
			return err
		}
		previous = prev
		return nil
	}

	if err := r.client.Watch(ctx, txf, userKey, tokenKey); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return "", fmt.Errorf("share for user %s was modified concurrently: %w", share.UserName(), err)
		}
		return "", err
	}
	return previous, nil
}

// FindByToken retrieves a share by its token
func (r *RedisShareRepository) FindByToken(ctx context.Context, token string) (*entities.Share, error) {
	fields, err := r.client.HGetAll(ctx, shareTokenKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load share: %w", err)
	}
	if len(fields) == 0 || fields[fieldAccessToken] == "" {
		return nil, repositories.ErrShareNotFound
	}
	return shareFromHash(token, fields), nil
}

// FindTokenByUser returns the live token of a user
func (r *RedisShareRepository) FindTokenByUser(ctx context.Context, userName string) (string, error) {
	token, err := r.client.Get(ctx, userInfoKey(userName)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user index: %w", err)
	}
	return token, nil
}

// DeleteByToken removes a share and, if it is still the user's live share,
// the user index. Both keys are watched, so a share rewritten concurrently
// is left alone and redis.TxFailedErr is returned.
func (r *RedisShareRepository) DeleteByToken(ctx context.Context, token string) error {
	tokenKey := shareTokenKey(token)

	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		userName, err := tx.HGet(ctx, tokenKey, fieldUserName).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load share: %w", err)
		}

		userKey := userInfoKey(userName)
		if err := tx.Watch(ctx, userKey).Err(); err != nil {
			return err
		}
		current, err := tx.Get(ctx, userKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, tokenKey)
			if current == token {
				pipe.Del(ctx, userKey)
			}
			return nil
		})
		return err
	}, tokenKey)
}

// CleanupExpired walks the user index and drops entries whose share has
// expired or already vanished through its redis expiry
func (r *RedisShareRepository) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	count := 0
	iter := r.client.Scan(ctx, 0, userInfoKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		removed, err := r.cleanupUser(ctx, iter.Val(), now)
		if err != nil {
			return count, err
		}
		if removed {
			count++
		}
	}
	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("failed to scan user index: %w", err)
	}
	return count, nil
}

func (r *RedisShareRepository) cleanupUser(ctx context.Context, userKey string, now time.Time) (bool, error) {
	removed := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		token, err := tx.Get(ctx, userKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		tokenKey := shareTokenKey(token)
		fields, err := tx.HGetAll(ctx, tokenKey).Result()
		if err != nil {
			return err
		}
		if len(fields) > 0 && !shareFromHash(token, fields).IsExpired(now) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, tokenKey, userKey)
			return nil
		})
		removed = err == nil
		return err
	}, userKey)
	if errors.Is(err, redis.TxFailedErr) {
		// re-issued while we looked; the new share is live
		return false, nil
	}
	return removed, err
}

func shareToHash(share *entities.Share) map[string]interface{} {
	limits := share.Limits()
	flags := share.Flags()
	return map[string]interface{}{
		fieldUserName:               share.UserName(),
		fieldAccessToken:            share.AccessToken(),
		fieldGPT4Limit:              limits.GPT4,
		fieldGPT4oLimit:             limits.GPT4o,
		fieldGPT4oMiniLimit:         limits.GPT4oMini,
		fieldGPTo1MiniLimit:         limits.GPTo1Mini,
		fieldGPTo1PreviewLimit:      limits.GPTo1Preview,
		fieldExpireAt:               share.ExpireAt(),
		fieldLimitEnable:            strconv.FormatBool(flags.LimitEnabled),
		fieldTempConversationEnable: strconv.FormatBool(flags.TempConversationEnabled),
	}
}

func shareFromHash(token string, fields map[string]string) *entities.Share {
	limits := entities.ShareLimits{
		GPT4:         parseInt(fields[fieldGPT4Limit]),
		GPT4o:        parseInt(fields[fieldGPT4oLimit]),
		GPT4oMini:    parseInt(fields[fieldGPT4oMiniLimit]),
		GPTo1Mini:    parseInt(fields[fieldGPTo1MiniLimit]),
		GPTo1Preview: parseInt(fields[fieldGPTo1PreviewLimit]),
	}
	flags := entities.ShareFlags{
		LimitEnabled:            parseBool(fields[fieldLimitEnable]),
		TempConversationEnabled: parseBool(fields[fieldTempConversationEnable]),
	}
	return entities.NewShareWithToken(
		token,
		fields[fieldUserName],
		fields[fieldAccessToken],
		limits,
		flags,
		parseInt(fields[fieldExpireAt]),
	)
}

// parseInt reads a numeric hash field; missing or malformed values mean unlimited
func parseInt(value string) int64 {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return entities.Unlimited
	}
	return n
}

// parseBool accepts both Go ("true") and Python ("True") renderings
func parseBool(value string) bool {
	b, err := strconv.ParseBool(value)
	return err == nil && b
}
