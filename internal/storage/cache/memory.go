package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

var _ discount.Cache = (*Memory)(nil)

// Memory is a process-local candidate cache.
type Memory struct {
	store *gocache.Cache
}

// NewMemory creates a Memory cache.
// defaultTTL applies when Set is called with a non-positive ttl;
// cleanupInterval controls how often expired items are purged.
func NewMemory(defaultTTL, cleanupInterval time.Duration) *Memory {
	return &Memory{store: gocache.New(defaultTTL, cleanupInterval)}
}

func (c *Memory) Get(_ context.Context, key string) ([]discount.Discount, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	discounts, ok := v.([]discount.Discount)
	return discounts, ok
}

func (c *Memory) Set(_ context.Context, key string, discounts []discount.Discount, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.store.Set(key, discounts, ttl)
}

// Flush drops every cached candidate set.
func (c *Memory) Flush() {
	c.store.Flush()
}
