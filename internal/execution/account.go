package execution

import (
	"context"
	"sync"

	"quant-council/internal/interfaces"
	"quant-council/internal/types"
)

// PaperAccount is the account collaborator for dry-run mode: fixed starting
// equity plus whatever positions the paper executor reports open.
type PaperAccount struct {
	mu        sync.RWMutex
	equity    float64
	leverage  int
	positions []types.OpenPosition
}

var (
	_ interfaces.AccountSource = (*PaperAccount)(nil)
	_ interfaces.PositionBook  = (*PaperAccount)(nil)
)

func NewPaperAccount(equity float64, leverage int) *PaperAccount {
	return &PaperAccount{equity: equity, leverage: leverage}
}

func (a *PaperAccount) AccountState(ctx context.Context) (types.AccountState, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	positions := make([]types.OpenPosition, len(a.positions))
	copy(positions, a.positions)
	return types.AccountState{
		Equity:        a.equity,
		Leverage:      a.leverage,
		OpenPositions: positions,
	}, nil
}

// Open records a simulated position so the exposure preview sees it.
func (a *PaperAccount) Open(symbol string, side types.Action, notional float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions = append(a.positions, types.OpenPosition{Symbol: symbol, Side: side, Notional: notional})
}

// Fill opens a position sized off current equity the same way the exposure
// preview projects it, carrying the stop and target so MarkPrice can settle
// it on a later cycle.
func (a *PaperAccount) Fill(plan types.TradePlan, side types.Action, regime types.RegimeState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions = append(a.positions, types.OpenPosition{
		Symbol:     plan.Symbol,
		Side:       side,
		Notional:   a.equity * plan.SizeFraction * float64(plan.Leverage),
		Entry:      plan.Entry,
		Stop:       plan.Stop,
		TakeProfit: plan.TakeProfit,
		Regime:     regime,
	})
}

// MarkPrice settles the symbol's positions against price: a position at or
// beyond its stop comes back stopped, one at or beyond its target comes back
// won, anything else stays open. Positions without a stop never settle here.
func (a *PaperAccount) MarkPrice(symbol string, price float64) (stopped, won []types.OpenPosition) {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.positions[:0]
	for _, p := range a.positions {
		if p.Symbol != symbol || p.Stop == 0 {
			kept = append(kept, p)
			continue
		}
		switch {
		case p.Side == types.ActionLong && price <= p.Stop,
			p.Side == types.ActionShort && price >= p.Stop:
			stopped = append(stopped, p)
		case p.TakeProfit > 0 &&
			(p.Side == types.ActionLong && price >= p.TakeProfit ||
				p.Side == types.ActionShort && price <= p.TakeProfit):
			won = append(won, p)
		default:
			kept = append(kept, p)
		}
	}
	a.positions = kept
	return stopped, won
}

// Close drops every simulated position for the symbol.
func (a *PaperAccount) Close(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.positions[:0]
	for _, p := range a.positions {
		if p.Symbol != symbol {
			kept = append(kept, p)
		}
	}
	a.positions = kept
}
