package marketdata

import (
	"sync"

	"quant-council/internal/types"
)

// LookbackCache keeps a bounded ring of recent snapshot closes per
// (symbol, timeframe) for multi-cycle indicator smoothing. It is the only
// mutable state shared across cycles: the synchronizer appends after each
// successful snapshot, agents of the same cycle read concurrently.
type LookbackCache struct {
	mu    sync.RWMutex
	depth int
	data  map[string][]float64
}

func NewLookbackCache(depth int) *LookbackCache {
	if depth <= 0 {
		depth = 64
	}
	return &LookbackCache{
		depth: depth,
		data:  make(map[string][]float64),
	}
}

func key(symbol string, tf types.Timeframe) string {
	return symbol + "|" + string(tf)
}

// Append records the latest close for a (symbol, timeframe), evicting the
// oldest entry once the ring is full.
func (c *LookbackCache) Append(symbol string, tf types.Timeframe, close float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(symbol, tf)
	ring := append(c.data[k], close)
	if len(ring) > c.depth {
		ring = ring[len(ring)-c.depth:]
	}
	c.data[k] = ring
}

// Closes returns a copy of the recorded closes, oldest first.
func (c *LookbackCache) Closes(symbol string, tf types.Timeframe) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ring := c.data[key(symbol, tf)]
	out := make([]float64, len(ring))
	copy(out, ring)
	return out
}

// Len reports how many closes are recorded for a (symbol, timeframe).
func (c *LookbackCache) Len(symbol string, tf types.Timeframe) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data[key(symbol, tf)])
}
