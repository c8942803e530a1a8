package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginRouter_Resolve(t *testing.T) {
	router := OriginRouter{
		PrimaryHost: "chatgpt.com",
		ABHost:      "ab.chatgpt.com",
		AssetHost:   "cdn.oaistatic.com",
	}

	tests := []struct {
		path     string
		expected Target
	}{
		{"/assets/x.png", Target{Host: "cdn.oaistatic.com", Path: "/assets/x.png"}},
		{"/assets", Target{Host: "cdn.oaistatic.com", Path: "/assets"}},
		{"/ab/y", Target{Host: "ab.chatgpt.com", Path: "/y"}},
		{"/ab", Target{Host: "ab.chatgpt.com", Path: "/"}},
		{"/z", Target{Host: "chatgpt.com", Path: "/z"}},
		{"/about", Target{Host: "chatgpt.com", Path: "/about"}},
		{"/assetsmanifest.json", Target{Host: "chatgpt.com", Path: "/assetsmanifest.json"}},
		{"/", Target{Host: "chatgpt.com", Path: "/"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, router.Resolve(tt.path))
		})
	}
}

func TestTarget_URL(t *testing.T) {
	target := Target{Host: "chatgpt.com", Path: "/backend-api/models"}

	assert.Equal(t, "https://chatgpt.com/backend-api/models", target.URL(""))
	assert.Equal(t, "https://chatgpt.com/backend-api/models?history_and_training_disabled=false", target.URL("history_and_training_disabled=false"))
	assert.Equal(t, "https://chatgpt.com", target.Origin())
}

func TestConversationResourceID(t *testing.T) {
	tests := []struct {
		path   string
		id     string
		isConv bool
	}{
		{"/backend-api/conversation/abc", "abc", true},
		{"/backend-api/conversation/abc/textdocs", "abc", true},
		{"/backend-api/conversation/", "", true},
		{"/backend-api/conversation", "", false},
		{"/backend-api/conversation/init", "", false},
		{"/backend-api/conversations", "", false},
		{"/backend-api/me", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			id, ok := conversationResourceID(tt.path)
			assert.Equal(t, tt.isConv, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}
