package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-tweet-bot/internal/models"
)

// Cache stores geocoded coordinates between runs. Get returns cached data if
// present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.Coordinates, bool, error)
	Set(ctx context.Context, key string, value models.Coordinates, ttl time.Duration) error
}

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	value     models.Coordinates
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves cached coordinates for the key if present and not expired.
// Returns (data, true, nil) on hit, (zero, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Coordinates, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return models.Coordinates{}, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.Coordinates{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores coordinates in cache with the specified TTL duration.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Coordinates, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
