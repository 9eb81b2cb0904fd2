package risk

import (
	"sync"
	"time"

	"quant-council/internal/types"
)

// LossBook is an in-memory tally of losing setups keyed by
// (symbol, direction, regime). Snapshot returns an immutable copy so the
// auditor reads a consistent view while cycles record new losses.
type LossBook struct {
	mu       sync.RWMutex
	blockAt  int
	patterns map[lossKey]*types.LossPattern
}

type lossKey struct {
	symbol string
	dir    types.Action
	regime types.RegimeState
}

// NewLossBook creates a book that marks a pattern blocked once it reaches
// blockAt hits. blockAt <= 0 disables blocking.
func NewLossBook(blockAt int) *LossBook {
	return &LossBook{
		blockAt:  blockAt,
		patterns: make(map[lossKey]*types.LossPattern),
	}
}

// RecordLoss tallies one losing trade for the setup.
func (b *LossBook) RecordLoss(symbol string, dir types.Action, regime types.RegimeState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := lossKey{symbol: symbol, dir: dir, regime: regime}
	p, ok := b.patterns[key]
	if !ok {
		p = &types.LossPattern{Symbol: symbol, Direction: dir, Regime: regime}
		b.patterns[key] = p
	}
	p.Hits++
	if b.blockAt > 0 && p.Hits >= b.blockAt {
		p.Blocked = true
	}
}

// RecordWin resets the tally for the setup. A winning trade clears the streak.
func (b *LossBook) RecordWin(symbol string, dir types.Action, regime types.RegimeState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.patterns, lossKey{symbol: symbol, dir: dir, regime: regime})
}

func (b *LossBook) Snapshot() types.LossHistorySnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := types.LossHistorySnapshot{TakenAt: time.Now()}
	for _, p := range b.patterns {
		snap.Patterns = append(snap.Patterns, *p)
	}
	return snap
}
