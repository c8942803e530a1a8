package repositories

import (
	"context"
	"sort"
	"sync"
)

// MemoryConversationRepository implements ConversationRepository using in-memory storage
type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]map[string]struct{}
}

// NewMemoryConversationRepository creates a new MemoryConversationRepository
func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[string]map[string]struct{}),
	}
}

// Add records a conversation as owned by a user
func (r *MemoryConversationRepository) Add(ctx context.Context, userName, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned, ok := r.conversations[userName]
	if !ok {
		owned = make(map[string]struct{})
		r.conversations[userName] = owned
	}
	owned[conversationID] = struct{}{}
	return nil
}

// Contains reports whether a user owns a conversation
func (r *MemoryConversationRepository) Contains(ctx context.Context, userName, conversationID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.conversations[userName][conversationID]
	return ok, nil
}

// List returns every conversation owned by a user, sorted
func (r *MemoryConversationRepository) List(ctx context.Context, userName string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conversations[userName]))
	for id := range r.conversations[userName] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
