package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of conversation tracks kept playable.
const DefaultCacheSize = 10

// Cache maps conversation ids to playable handles. When an entry leaves the
// cache, by eviction, replacement or Clear, its handle is released first.
type Cache struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, string]
	release   func(handle string)
	group     singleflight.Group
	evictions atomic.Int64
}

// NewCache creates a cache holding at most size entries. release is called
// exactly once for every handle that leaves the cache.
func NewCache(size int, release func(handle string)) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if release == nil {
		release = func(string) {}
	}
	c := &Cache{release: release}
	entries, err := lru.NewWithEvict(size, func(id, handle string) {
		c.evictions.Add(1)
		log.Debug().Str("conversation_id", id).Str("handle", handle).Msg("Evicting cached conversation audio")
		c.release(handle)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audio cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

// Get returns the handle for id and marks it recently used.
func (c *Cache) Get(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Get(id)
}

// Set stores handle under id. Re-setting the same handle only refreshes
// recency; a different handle replaces the old one, which is released.
func (c *Cache) Set(id, handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(id, handle)
}

func (c *Cache) setLocked(id, handle string) {
	if old, ok := c.entries.Get(id); ok {
		if old == handle {
			return
		}
		c.entries.Add(id, handle)
		c.release(old)
		return
	}
	c.entries.Add(id, handle)
}

// GetOrCompute returns the cached handle for id, computing it at most once
// across concurrent callers when it is missing.
func (c *Cache) GetOrCompute(ctx context.Context, id string, compute func(context.Context) (string, error)) (string, error) {
	if handle, ok := c.Get(id); ok {
		return handle, nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		if handle, ok := c.Get(id); ok {
			return handle, nil
		}
		handle, err := compute(ctx)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		// another writer may have filled the slot while compute ran
		if existing, ok := c.entries.Get(id); ok {
			if existing != handle {
				c.release(handle)
			}
			return existing, nil
		}
		c.setLocked(id, handle)
		return handle, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Remove drops id, releasing its handle.
func (c *Cache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Remove(id)
}

// Clear releases every handle and empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Evictions returns how many entries have left the cache so far.
func (c *Cache) Evictions() int64 {
	return c.evictions.Load()
}
