package share

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
	infra "github.com/takutakahashi/chatgpt-mirror/internal/infrastructure/repositories"
	"github.com/takutakahashi/chatgpt-mirror/internal/usecases/ports/repositories"
)

func newMemoryRegistry() *Registry {
	return NewRegistry(
		infra.NewMemoryShareRepository(),
		infra.NewMemoryConversationRepository(),
		infra.NewMemoryUpstreamCookieRepository(),
	)
}

func newRedisRegistry(t *testing.T) *Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRegistry(
		infra.NewRedisShareRepository(client),
		infra.NewRedisConversationRepository(client),
		infra.NewRedisUpstreamCookieRepository(client),
	)
}

func registries(t *testing.T) map[string]*Registry {
	return map[string]*Registry{
		"memory": newMemoryRegistry(),
		"redis":  newRedisRegistry(t),
	}
}

func newShare(t *testing.T, userName, accessToken string) *entities.Share {
	t.Helper()
	share, err := entities.NewShare(userName, accessToken)
	require.NoError(t, err)
	return share
}

func TestRegistry_IssueIsDeterministic(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := registry.IssueShare(ctx, newShare(t, "alice", "eyJ.access"))
			require.NoError(t, err)
			second, err := registry.IssueShare(ctx, newShare(t, "alice", "eyJ.access"))
			require.NoError(t, err)

			assert.Equal(t, first, second)
			assert.Equal(t, entities.GenerateShareToken("eyJ.access", "alice"), first)

			share, err := registry.ResolveShare(ctx, first)
			require.NoError(t, err)
			assert.Equal(t, "eyJ.access", share.AccessToken())
		})
	}
}

func TestRegistry_IssueSupersedesPreviousToken(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			old, err := registry.IssueShare(ctx, newShare(t, "alice", "eyJ.old"))
			require.NoError(t, err)
			current, err := registry.IssueShare(ctx, newShare(t, "alice", "eyJ.new"))
			require.NoError(t, err)
			assert.NotEqual(t, old, current)

			_, err = registry.ResolveShare(ctx, old)
			assert.ErrorIs(t, err, repositories.ErrShareNotFound)

			share, err := registry.ResolveShare(ctx, current)
			require.NoError(t, err)
			assert.Equal(t, "eyJ.new", share.AccessToken())
		})
	}
}

func TestRegistry_ConcurrentIssueLeavesOneLiveToken(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const issuers = 16

			tokens := make([]string, issuers)
			var wg sync.WaitGroup
			for i := 0; i < issuers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					token, err := registry.IssueShare(ctx, newShare(t, "alice", fmt.Sprintf("eyJ.%d", i)))
					assert.NoError(t, err)
					tokens[i] = token
				}(i)
			}
			wg.Wait()

			live := 0
			for _, token := range tokens {
				if _, err := registry.ResolveShare(ctx, token); err == nil {
					live++
				}
			}
			assert.Equal(t, 1, live)
		})
	}
}

func TestRegistry_ResolveExpired(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			registry.now = func() time.Time { return now }

			share := newShare(t, "alice", "eyJ.access")
			share.SetExpireAt(now.Add(time.Hour).Unix())
			token, err := registry.IssueShare(ctx, share)
			require.NoError(t, err)

			_, err = registry.ResolveShare(ctx, token)
			require.NoError(t, err)

			now = now.Add(2 * time.Hour)
			_, err = registry.ResolveShare(ctx, token)
			assert.ErrorIs(t, err, repositories.ErrShareNotFound)

			// the expired share was removed along with the user index
			current, err := registry.shares.FindTokenByUser(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, current)
		})
	}
}

func TestRegistry_ResolveEmptyToken(t *testing.T) {
	_, err := newMemoryRegistry().ResolveShare(context.Background(), "")
	assert.ErrorIs(t, err, repositories.ErrShareNotFound)
}

func TestRegistry_RevokeShare(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			token, err := registry.IssueShare(ctx, newShare(t, "alice", "eyJ.access"))
			require.NoError(t, err)

			require.NoError(t, registry.RevokeShare(ctx, "alice"))
			_, err = registry.ResolveShare(ctx, token)
			assert.ErrorIs(t, err, repositories.ErrShareNotFound)

			assert.NoError(t, registry.RevokeShare(ctx, "nobody"))
		})
	}
}

func TestRegistry_CleanupExpiredShares(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			registry.now = func() time.Time { return now }

			expiring := newShare(t, "alice", "eyJ.alice")
			expiring.SetExpireAt(now.Add(time.Minute).Unix())
			_, err := registry.IssueShare(ctx, expiring)
			require.NoError(t, err)
			bob, err := registry.IssueShare(ctx, newShare(t, "bob", "eyJ.bob"))
			require.NoError(t, err)

			now = now.Add(time.Hour)
			count, err := registry.CleanupExpiredShares(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			_, err = registry.ResolveShare(ctx, bob)
			assert.NoError(t, err)
		})
	}
}

func TestRegistry_Conversations(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, registry.RecordConversation(ctx, "alice", " 6F9619FF-8B86-D011-B42D-00C04FC964FF "))
			require.NoError(t, registry.RecordConversation(ctx, "alice", "6f9619ff-8b86-d011-b42d-00c04fc964ff"))

			owned, err := registry.UserOwns(ctx, "alice", "6F9619FF-8B86-D011-B42D-00C04FC964FF")
			require.NoError(t, err)
			assert.True(t, owned)

			owned, err = registry.UserOwns(ctx, "bob", "6f9619ff-8b86-d011-b42d-00c04fc964ff")
			require.NoError(t, err)
			assert.False(t, owned)

			ids, err := registry.Conversations(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, []string{"6f9619ff-8b86-d011-b42d-00c04fc964ff"}, ids)
		})
	}
}

func TestRegistry_ConversationEdgeCases(t *testing.T) {
	registry := newMemoryRegistry()
	ctx := context.Background()

	assert.Error(t, registry.RecordConversation(ctx, "", "conv-1"))
	assert.Error(t, registry.RecordConversation(ctx, "alice", "  "))

	owned, err := registry.UserOwns(ctx, "", "conv-1")
	require.NoError(t, err)
	assert.False(t, owned)

	ids, err := registry.Conversations(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRegistry_UpstreamCookies(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			registry.now = func() time.Time { return now }

			cookies, err := registry.UpstreamCookies(ctx)
			require.NoError(t, err)
			assert.Nil(t, cookies)

			require.NoError(t, registry.RegisterUpstreamCookies(ctx, &entities.UpstreamCookies{
				Cookies:  []entities.UpstreamCookie{{Name: "cf_clearance", Value: "abc"}},
				ProxyURL: "http://egress:3128",
			}))

			cookies, err = registry.UpstreamCookies(ctx)
			require.NoError(t, err)
			require.NotNil(t, cookies)
			assert.Equal(t, "abc", cookies.Cookies[0].Value)
			assert.True(t, now.Equal(cookies.UpdatedAt))
		})
	}
}

func TestUserLocks_ReleasesEntries(t *testing.T) {
	locks := newUserLocks()

	unlock := locks.lock("alice")
	assert.Len(t, locks.locks, 1)
	unlock()
	assert.Empty(t, locks.locks)
}

func TestRegistry_ConcurrentRecordConversation(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const conversations = 32

			var wg sync.WaitGroup
			for i := 0; i < conversations; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, registry.RecordConversation(ctx, "alice", fmt.Sprintf("conv-%d", i)))
				}(i)
			}
			wg.Wait()

			for i := 0; i < conversations; i++ {
				owned, err := registry.UserOwns(ctx, "alice", fmt.Sprintf("conv-%d", i))
				require.NoError(t, err)
				assert.True(t, owned, "conv-%d", i)
			}
			ids, err := registry.Conversations(ctx, "alice")
			require.NoError(t, err)
			assert.Len(t, ids, conversations)
		})
	}
}

// reissuingShareRepository re-issues a fresh share right after the first
// lookup, as a concurrent IssueShare would
type reissuingShareRepository struct {
	*infra.MemoryShareRepository
	fresh *entities.Share
	once  sync.Once
}

func (r *reissuingShareRepository) FindByToken(ctx context.Context, token string) (*entities.Share, error) {
	share, err := r.MemoryShareRepository.FindByToken(ctx, token)
	r.once.Do(func() {
		_, _ = r.MemoryShareRepository.Replace(ctx, r.fresh)
	})
	return share, err
}

func TestRegistry_ResolveExpiredKeepsReissuedShare(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	expired := newShare(t, "alice", "eyJ.access")
	expired.SetExpireAt(now.Add(-time.Minute).Unix())
	fresh := newShare(t, "alice", "eyJ.access")
	fresh.SetExpireAt(now.Add(time.Hour).Unix())

	repo := &reissuingShareRepository{MemoryShareRepository: infra.NewMemoryShareRepository(), fresh: fresh}
	_, err := repo.Replace(ctx, expired)
	require.NoError(t, err)

	registry := NewRegistry(repo, infra.NewMemoryConversationRepository(), infra.NewMemoryUpstreamCookieRepository())
	registry.now = func() time.Time { return now }

	_, err = registry.ResolveShare(ctx, expired.Token())
	assert.ErrorIs(t, err, repositories.ErrShareNotFound)

	share, err := registry.ResolveShare(ctx, fresh.Token())
	require.NoError(t, err)
	assert.Equal(t, fresh.ExpireAt(), share.ExpireAt())
}
