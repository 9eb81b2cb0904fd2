package interfaces

import (
	"context"

	"quant-council/internal/types"
)

// BarSource is the market-data collaborator. Implementations may fail with
// rate-limit or availability errors; the synchronizer owns retry policy.
type BarSource interface {
	FetchBars(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error)
}

// Synchronizer builds one aligned, immutable snapshot per cycle.
type Synchronizer interface {
	Snapshot(ctx context.Context, symbol string) (*types.MarketSnapshot, error)
}
