package syncobs

import (
	"context"
	"time"

	"quant-council/internal/interfaces"
	"quant-council/internal/logger"
	"quant-council/internal/trace"
	"quant-council/internal/types"
)

type observableSynchronizer struct {
	sync interfaces.Synchronizer
}

var _ interfaces.Synchronizer = (*observableSynchronizer)(nil)

func Wrap(sync interfaces.Synchronizer) interfaces.Synchronizer {
	return &observableSynchronizer{
		sync: sync,
	}
}

func (os *observableSynchronizer) Snapshot(ctx context.Context, symbol string) (*types.MarketSnapshot, error) {
	ctx, span := trace.StartSpan(ctx, "marketdata.Snapshot")
	defer span.End()

	start := time.Now()

	snap, err := os.sync.Snapshot(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Snapshot construction failed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Snapshot constructed",
		"symbol", symbol,
		"snapshot_id", snap.ID,
		"timeframes", len(snap.Series),
		"has_derivs", snap.HasDerivs,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return snap, nil
}
