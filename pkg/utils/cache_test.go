package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCache_SetAndGet(t *testing.T) {
	cache := NewTTLCache[string](time.Hour)

	cache.Set("key", "value")

	value, found := cache.Get("key")
	assert.True(t, found)
	assert.Equal(t, "value", value)
	assert.Equal(t, 1, cache.Size())
}

func TestTTLCache_Expiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cache := NewTTLCache[int](5 * time.Second)
	cache.now = func() time.Time { return now }

	cache.Set("key", 42)

	now = now.Add(4 * time.Second)
	value, found := cache.Get("key")
	assert.True(t, found)
	assert.Equal(t, 42, value)

	now = now.Add(time.Second)
	value, found = cache.Get("key")
	assert.False(t, found)
	assert.Zero(t, value)
	assert.Equal(t, 0, cache.Size(), "expired items are dropped on read")
}

func TestTTLCache_Delete(t *testing.T) {
	cache := NewTTLCache[*struct{}](time.Hour)
	cache.Set("key", &struct{}{})

	cache.Delete("key")

	_, found := cache.Get("key")
	assert.False(t, found)
}

func TestTTLCache_MissingKey(t *testing.T) {
	cache := NewTTLCache[string](time.Hour)

	value, found := cache.Get("missing")
	assert.False(t, found)
	assert.Empty(t, value)
}
