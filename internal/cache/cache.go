package cache

import (
	"sync"
	"time"

	"github.com/CrazyCha/service-quota-monitor/internal/clock"
)

type Item struct {
	Value     interface{}
	ExpiresAt time.Time
}

// Cache is an in-process TTL cache. Expired entries are treated as absent on
// read and evicted lazily; a background sweep reclaims the rest.
type Cache struct {
	items map[string]Item
	mu    sync.RWMutex
	clock clock.Clock
}

func New() *Cache {
	c := &Cache{
		items: make(map[string]Item),
		clock: clock.RealClock{},
	}
	go c.cleanup()
	return c
}

// NewWithClock builds a cache without the background sweep, for tests.
func NewWithClock(clk clock.Clock) *Cache {
	return &Cache{
		items: make(map[string]Item),
		clock: clk,
	}
}

func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = Item{
		Value:     value,
		ExpiresAt: c.clock.Now().Add(ttl),
	}
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, exists := c.items[key]
	if !exists {
		return nil, false
	}
	if !c.clock.Now().Before(item.ExpiresAt) {
		delete(c.items, key)
		return nil, false
	}
	return item.Value, true
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]Item)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	for range ticker.C {
		c.mu.Lock()
		now := c.clock.Now()
		for key, item := range c.items {
			if now.After(item.ExpiresAt) {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}
