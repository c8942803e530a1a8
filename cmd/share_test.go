package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
	"github.com/takutakahashi/chatgpt-mirror/internal/infrastructure/repositories"
	"github.com/takutakahashi/chatgpt-mirror/internal/usecases/share"
)

func newRegistry() *share.Registry {
	return share.NewRegistry(
		repositories.NewMemoryShareRepository(),
		repositories.NewMemoryConversationRepository(),
		repositories.NewMemoryUpstreamCookieRepository(),
	)
}

func TestExecuteShare_Issue(t *testing.T) {
	registry := newRegistry()
	now := time.Now()
	var out bytes.Buffer

	err := executeShare(context.Background(), registry, shareOptions{
		userName:    "alice",
		accessToken: "eyJ.access",
		expiresIn:   time.Hour,
	}, now, &out)
	require.NoError(t, err)

	token := strings.TrimSpace(out.String())
	assert.Equal(t, entities.GenerateShareToken("eyJ.access", "alice"), token)

	resolved, err := registry.ResolveShare(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", resolved.UserName())
	assert.Equal(t, now.Add(time.Hour).Unix(), resolved.ExpireAt())
}

func TestExecuteShare_MissingAccessToken(t *testing.T) {
	var out bytes.Buffer
	err := executeShare(context.Background(), newRegistry(), shareOptions{userName: "alice"}, time.Now(), &out)
	assert.Error(t, err)
	assert.Empty(t, out.String())
}

func TestExecuteShare_Revoke(t *testing.T) {
	registry := newRegistry()
	var out bytes.Buffer
	require.NoError(t, executeShare(context.Background(), registry, shareOptions{
		userName:    "alice",
		accessToken: "eyJ.access",
	}, time.Now(), &out))
	token := strings.TrimSpace(out.String())

	out.Reset()
	require.NoError(t, executeShare(context.Background(), registry, shareOptions{
		userName: "alice",
		revoke:   true,
	}, time.Now(), &out))
	assert.Equal(t, "Revoked share of alice\n", out.String())

	_, err := registry.ResolveShare(context.Background(), token)
	assert.Error(t, err)
}
