package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*MemoryStorage
	stats int
}

func (c *countingStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	c.stats++
	return c.MemoryStorage.Stat(ctx, key)
}

func TestStatCacheServesHits(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemoryStorage: NewMemoryStorage()}
	require.NoError(t, inner.Upload(ctx, "posts/a.webp", strings.NewReader("abc"), 3, "image/webp"))

	c, err := NewStatCache(inner, 8, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		info, err := c.Stat(ctx, "posts/a.webp")
		require.NoError(t, err)
		assert.Equal(t, int64(3), info.Size)
	}
	assert.Equal(t, 1, inner.stats)
	assert.Equal(t, 1, c.Len())
}

func TestStatCacheDoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemoryStorage: NewMemoryStorage()}
	c, err := NewStatCache(inner, 8, time.Minute)
	require.NoError(t, err)

	_, err = c.Stat(ctx, "posts/missing.webp")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Upload(ctx, "posts/missing.webp", strings.NewReader("now here"), 8, "image/webp"))
	info, err := c.Stat(ctx, "posts/missing.webp")
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, 2, inner.stats)
}

func TestStatCacheExpiresAndInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemoryStorage: NewMemoryStorage()}
	require.NoError(t, inner.Upload(ctx, "k/a", strings.NewReader("a"), 1, "text/plain"))

	c, err := NewStatCache(inner, 8, time.Minute)
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err = c.Stat(ctx, "k/a")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = c.Stat(ctx, "k/a")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.stats)

	require.NoError(t, c.Upload(ctx, "k/a", strings.NewReader("bb"), 2, "text/plain"))
	info, err := c.Stat(ctx, "k/a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size)
	assert.Equal(t, 3, inner.stats)
}

func TestStatCacheOpenPassesThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStorage()
	require.NoError(t, inner.Upload(ctx, "k/a", strings.NewReader("0123456789"), 10, "text/plain"))
	c, err := NewStatCache(inner, 0, 0)
	require.NoError(t, err)

	obj, err := c.Open(ctx, "k/a", "bytes=2-4")
	require.NoError(t, err)
	defer obj.Body.Close()
	assert.Equal(t, "bytes 2-4/10", obj.ContentRange)
	assert.Equal(t, defaultStatCacheTTL, c.ttl)
}
