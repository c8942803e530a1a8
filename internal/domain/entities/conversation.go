package entities

import (
	"strings"

	"github.com/google/uuid"
)

// NormalizeConversationID returns the canonical form used to store and compare
// conversation IDs. UUIDs are rendered lowercase and hyphenated; anything else
// is only trimmed.
func NormalizeConversationID(id string) string {
	id = strings.TrimSpace(id)
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return id
}
