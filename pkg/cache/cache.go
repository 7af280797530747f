package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"
)

// Cache is a bounded, TTL-aware in-process cache. Every entry costs 1, so
// size is the maximum number of entries.
type Cache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewCache(size int64, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * size,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("init ristretto cache: %w", err)
	}
	log.Info().Int64("size", size).Dur("ttl", ttl).Msg("Ristretto cache initialized")
	return &Cache{cache: c, ttl: ttl}, nil
}

// Set stores value with the cache TTL. Writes are applied asynchronously;
// call Wait to observe them immediately.
func (c *Cache) Set(key string, value interface{}) bool {
	if c.ttl > 0 {
		return c.cache.SetWithTTL(key, value, 1, c.ttl)
	}
	return c.cache.Set(key, value, 1)
}

func (c *Cache) Get(key string) (interface{}, bool) {
	return c.cache.Get(key)
}

func (c *Cache) Del(key string) {
	c.cache.Del(key)
}

func (c *Cache) Wait() {
	c.cache.Wait()
}

func (c *Cache) Close() {
	c.cache.Close()
}
