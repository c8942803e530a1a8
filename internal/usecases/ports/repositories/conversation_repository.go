package repositories

import "context"

// ConversationRepository stores the conversation IDs each user started through the mirror
type ConversationRepository interface {
	// Add records conversationID as owned by userName. Adding an existing ID is a no-op.
	Add(ctx context.Context, userName, conversationID string) error

	// Contains reports whether userName owns conversationID. A user without
	// any recorded conversation owns nothing.
	Contains(ctx context.Context, userName, conversationID string) (bool, error)

	// List returns every conversation ID owned by userName
	List(ctx context.Context, userName string) ([]string, error)
}
