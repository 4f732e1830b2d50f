package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("one"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("two"), 0))

	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "one", string(v))

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = c.Get(ctx, "b")
	assert.True(t, ok, "entries without ttl never expire")
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheCopiesValues(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	v, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(v))
	v[1] = 'y'
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestRedisCacheDefaultsPrefix(t *testing.T) {
	c := NewRedisCache(RedisOptions{Addr: "127.0.0.1:0", DefaultTTL: time.Hour})
	defer c.Close()
	assert.Equal(t, DefaultPrefix, c.prefix)
	assert.Equal(t, time.Hour, c.ttl)
}
