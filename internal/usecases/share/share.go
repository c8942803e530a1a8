package share

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
	"github.com/takutakahashi/chatgpt-mirror/internal/usecases/ports/repositories"
)

// Registry is the session and conversation registry. It owns share issuance
// and resolution, conversation ownership, and the upstream cookie set.
type Registry struct {
	shares        repositories.ShareRepository
	conversations repositories.ConversationRepository
	cookies       repositories.UpstreamCookieRepository
	locks         *userLocks
	now           func() time.Time
}

// NewRegistry creates a new Registry
func NewRegistry(
	shares repositories.ShareRepository,
	conversations repositories.ConversationRepository,
	cookies repositories.UpstreamCookieRepository,
) *Registry {
	return &Registry{
		shares:        shares,
		conversations: conversations,
		cookies:       cookies,
		locks:         newUserLocks(),
		now:           time.Now,
	}
}

// IssueShare stores share as the only live share of its user and returns its
// token. A token previously issued to the user stops resolving.
func (r *Registry) IssueShare(ctx context.Context, share *entities.Share) (string, error) {
	unlock := r.locks.lock(share.UserName())
	defer unlock()

	previous, err := r.shares.Replace(ctx, share)
	if err != nil {
		return "", fmt.Errorf("failed to issue share for %s: %w", share.UserName(), err)
	}

	if previous != "" && previous != share.Token() {
		log.Printf("[SHARE] Superseded share %s of user %s", previous, share.UserName())
	}
	log.Printf("[SHARE] Issued share %s to user %s", share.Token(), share.UserName())
	return share.Token(), nil
}

// ResolveShare returns the live share for token. Expired shares are deleted
// and reported as not found.
func (r *Registry) ResolveShare(ctx context.Context, token string) (*entities.Share, error) {
	if token == "" {
		return nil, repositories.ErrShareNotFound
	}

	share, err := r.shares.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if share.IsExpired(r.now()) {
		r.deleteExpired(ctx, share)
		return nil, repositories.ErrShareNotFound
	}
	return share, nil
}

// deleteExpired removes share unless it was re-issued after it was read
func (r *Registry) deleteExpired(ctx context.Context, share *entities.Share) {
	unlock := r.locks.lock(share.UserName())
	defer unlock()

	current, err := r.shares.FindByToken(ctx, share.Token())
	if err != nil || current.UserName() != share.UserName() || !current.IsExpired(r.now()) {
		return
	}
	if err := r.shares.DeleteByToken(ctx, share.Token()); err != nil {
		log.Printf("[SHARE] Failed to delete expired share %s: %v", share.Token(), err)
	}
}

// RevokeShare deletes the live share of a user, if any
func (r *Registry) RevokeShare(ctx context.Context, userName string) error {
	unlock := r.locks.lock(userName)
	defer unlock()

	token, err := r.shares.FindTokenByUser(ctx, userName)
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	return r.shares.DeleteByToken(ctx, token)
}

// CleanupExpiredShares removes expired shares from the store and returns how many were removed
func (r *Registry) CleanupExpiredShares(ctx context.Context) (int, error) {
	return r.shares.CleanupExpired(ctx, r.now())
}

// RecordConversation marks conversationID as owned by userName
func (r *Registry) RecordConversation(ctx context.Context, userName, conversationID string) error {
	conversationID = entities.NormalizeConversationID(conversationID)
	if userName == "" || conversationID == "" {
		return errors.New("user name and conversation ID are required")
	}
	return r.conversations.Add(ctx, userName, conversationID)
}

// UserOwns reports whether userName started conversationID through the mirror
func (r *Registry) UserOwns(ctx context.Context, userName, conversationID string) (bool, error) {
	conversationID = entities.NormalizeConversationID(conversationID)
	if userName == "" || conversationID == "" {
		return false, nil
	}
	return r.conversations.Contains(ctx, userName, conversationID)
}

// Conversations returns every conversation owned by userName
func (r *Registry) Conversations(ctx context.Context, userName string) ([]string, error) {
	if userName == "" {
		return nil, nil
	}
	return r.conversations.List(ctx, userName)
}

// RegisterUpstreamCookies replaces the upstream cookie set and stamps its freshness
func (r *Registry) RegisterUpstreamCookies(ctx context.Context, cookies *entities.UpstreamCookies) error {
	cookies.UpdatedAt = r.now()
	if err := r.cookies.SaveCookies(ctx, cookies); err != nil {
		return err
	}
	log.Printf("[SHARE] Registered %d upstream cookies (proxy=%q)", len(cookies.Cookies), cookies.ProxyURL)
	return nil
}

// UpstreamCookies returns the registered upstream cookie set, or nil
func (r *Registry) UpstreamCookies(ctx context.Context) (*entities.UpstreamCookies, error) {
	return r.cookies.FindCookies(ctx)
}

// userLocks serializes issuance per user name
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (l *userLocks) lock(userName string) func() {
	l.mu.Lock()
	entry, ok := l.locks[userName]
	if !ok {
		entry = &userLock{}
		l.locks[userName] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, userName)
		}
		l.mu.Unlock()
	}
}
