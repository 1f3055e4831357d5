package storage

import (
	"context"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultStatCacheSize = 1024
	defaultStatCacheTTL  = 5 * time.Minute
)

var _ Storage = (*StatCache)(nil)

type statEntry struct {
	info     ObjectInfo
	storedAt time.Time
}

// StatCache wraps a Storage with an LRU of Stat results. Only hits are
// cached; a missing key is asked again every time. Reads go straight to the
// wrapped store.
type StatCache struct {
	Storage
	cache *lru.Cache[string, statEntry]
	ttl   time.Duration
	now   func() time.Time
}

// NewStatCache wraps store. Zero size or ttl fall back to defaults.
func NewStatCache(store Storage, size int, ttl time.Duration) (*StatCache, error) {
	if size <= 0 {
		size = defaultStatCacheSize
	}
	if ttl <= 0 {
		ttl = defaultStatCacheTTL
	}
	cache, err := lru.New[string, statEntry](size)
	if err != nil {
		return nil, err
	}
	return &StatCache{Storage: store, cache: cache, ttl: ttl, now: time.Now}, nil
}

// Upload writes through and drops any cached metadata for key.
func (c *StatCache) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	c.cache.Remove(key)
	err := c.Storage.Upload(ctx, key, reader, size, contentType)
	c.cache.Remove(key)
	return err
}

// Stat serves key's metadata from the cache while it is fresh.
func (c *StatCache) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if e, ok := c.cache.Get(key); ok {
		if c.now().Sub(e.storedAt) < c.ttl {
			return e.info, nil
		}
		c.cache.Remove(key)
	}
	info, err := c.Storage.Stat(ctx, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	c.cache.Add(key, statEntry{info: info, storedAt: c.now()})
	return info, nil
}

// Len reports how many entries are cached.
func (c *StatCache) Len() int {
	return c.cache.Len()
}
