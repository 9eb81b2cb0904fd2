package news

import (
	"sync"
	"time"
)

type cacheEntry struct {
	headlines []Headline
	storedAt  time.Time
}

// headlineCache keeps per-symbol headlines for the configured TTL so the
// sentiment agent does not hammer the sources every cycle.
type headlineCache struct {
	mu   sync.RWMutex
	ttl  time.Duration
	data map[string]cacheEntry
}

func newHeadlineCache(ttl time.Duration) *headlineCache {
	return &headlineCache{
		ttl:  ttl,
		data: make(map[string]cacheEntry),
	}
}

func (c *headlineCache) get(symbol string) ([]Headline, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[symbol]
	if !ok || time.Since(entry.storedAt) > c.ttl {
		return nil, false
	}
	return entry.headlines, true
}

func (c *headlineCache) set(symbol string, headlines []Headline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[symbol] = cacheEntry{headlines: headlines, storedAt: time.Now()}
}

func (c *headlineCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for symbol, entry := range c.data {
		if time.Since(entry.storedAt) > c.ttl {
			delete(c.data, symbol)
		}
	}
}
