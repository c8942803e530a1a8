package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	assert.Equal(t, 8080, config.Mirror.Port)
	assert.Equal(t, "chatgpt.com", config.Upstream.PrimaryHost)
	assert.Equal(t, "ab.chatgpt.com", config.Upstream.ABHost)
	assert.Equal(t, "cdn.oaistatic.com", config.Upstream.AssetHost)
	assert.Equal(t, []string{"/backend-api/conversation"}, config.Upstream.StreamPaths)
	assert.Equal(t, []string{".js", ".css", ".webp"}, config.Upstream.PublicExtensions)
	assert.Equal(t, []string{".map", ".woff2"}, config.Upstream.BlockedExtensions)
	assert.Equal(t, 2*time.Minute, config.Upstream.ResponseHeaderTimeout)
	assert.Empty(t, config.Redis.Host)
	assert.Equal(t, "🔒", config.Redaction.LockedTitle)
	assert.NoError(t, config.Validate())
}

func TestLoadConfig(t *testing.T) {
	content := `
mirror:
  port: 9443
  redirect_uri: https://portal.example/login
  tls:
    enabled: true
    cert: /etc/mirror/tls.crt
    key: /etc/mirror/tls.key
upstream:
  stream_paths:
    - /backend-api/conversation
    - /backend-api/f/conversation
redis:
  host: redis.internal
  port: 6380
redaction:
  email: nobody@example.com
`
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9443, config.Mirror.Port)
	assert.Equal(t, "https://portal.example/login", config.Mirror.RedirectURI)
	assert.True(t, config.Mirror.TLS.Enabled)
	assert.Equal(t, "/etc/mirror/tls.key", config.Mirror.TLS.Key)
	assert.Equal(t, []string{"/backend-api/conversation", "/backend-api/f/conversation"}, config.Upstream.StreamPaths)
	assert.Equal(t, "redis.internal:6380", config.Redis.Addr())
	assert.Equal(t, "nobody@example.com", config.Redaction.Email)
	// untouched keys keep their defaults
	assert.Equal(t, "Sam Altman", config.Redaction.Name)
	assert.Equal(t, "chatgpt.com", config.Upstream.PrimaryHost)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("MIRROR_MIRROR_PORT", "7000")
	t.Setenv("REDIS_HOST", "legacy-redis")
	t.Setenv("REDIS_PORT", "6390")
	t.Setenv("PROXY", "http://egress:3128")

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 7000, config.Mirror.Port)
	assert.Equal(t, "legacy-redis:6390", config.Redis.Addr())
	assert.Equal(t, "http://egress:3128", config.Mirror.Proxy)
}

func TestValidate(t *testing.T) {
	config := DefaultConfig()
	config.Mirror.Port = 0
	config.Upstream.AssetHost = ""
	config.Mirror.TLS.Enabled = true

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror.port")
	assert.Contains(t, err.Error(), "upstream hosts")
	assert.Contains(t, err.Error(), "cert and key")
}
