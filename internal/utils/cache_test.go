package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiry(t *testing.T) {
	c, err := NewTTLCache(8)
	require.NoError(t, err)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("k", 42, time.Minute)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestTTLCacheDeletePrefix(t *testing.T) {
	c, err := NewTTLCache(8)
	require.NoError(t, err)

	c.Set("blogs:latest:1", 1, time.Minute)
	c.Set("blogs:trending", 2, time.Minute)
	c.Set("blacklist:token", true, time.Minute)

	c.DeletePrefix("blogs:")
	_, ok := c.Get("blogs:latest:1")
	assert.False(t, ok)
	_, ok = c.Get("blogs:trending")
	assert.False(t, ok)
	_, ok = c.Get("blacklist:token")
	assert.True(t, ok)

	c.Delete("blacklist:token")
	_, ok = c.Get("blacklist:token")
	assert.False(t, ok)
}
