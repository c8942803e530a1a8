package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/takutakahashi/chatgpt-mirror/internal/domain/entities"
	"github.com/takutakahashi/chatgpt-mirror/pkg/config"
)

func TestNewContainer_Memory(t *testing.T) {
	container, err := NewContainer(context.Background(), config.DefaultConfig(), false)
	require.NoError(t, err)
	defer func() { _ = container.Close() }()

	assert.Equal(t, BackendMemory, container.Backend)
	assert.Nil(t, container.RedisClient)
	assert.NotNil(t, container.ShareRepo)
	assert.NotNil(t, container.ConversationRepo)
	assert.NotNil(t, container.UpstreamCookieRepo)
	assert.NotNil(t, container.Registry)
	assert.NotNil(t, container.UpstreamClient)
	assert.NotNil(t, container.CheckClient)
	assert.NotNil(t, container.Metrics)
	assert.NotNil(t, container.Proxy)
	assert.NotNil(t, container.MainController)

	e := echo.New()
	container.MainController.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"memory"`)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewContainer_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = port

	container, err := NewContainer(context.Background(), cfg, false)
	require.NoError(t, err)
	defer func() { _ = container.Close() }()

	assert.Equal(t, BackendRedis, container.Backend)
	require.NotNil(t, container.RedisClient)

	share, err := entities.NewShare("alice", "eyJ.access")
	require.NoError(t, err)
	share.SetExpireAt(time.Now().Add(time.Hour).Unix())
	token, err := container.Registry.IssueShare(context.Background(), share)
	require.NoError(t, err)

	resolved, err := container.Registry.ResolveShare(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", resolved.UserName())
}

func TestNewContainer_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	cfg := config.DefaultConfig()
	cfg.Redis.Host = "127.0.0.1"
	cfg.Redis.Port = port

	_, err = NewContainer(context.Background(), cfg, false)
	assert.Error(t, err)
}

func TestNewContainer_InvalidProxy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mirror.Proxy = "://bad"

	_, err := NewContainer(context.Background(), cfg, false)
	assert.Error(t, err)
}
