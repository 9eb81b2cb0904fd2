package engineobs

import (
	"context"
	"time"

	"quant-council/internal/interfaces"
	"quant-council/internal/logger"
	"quant-council/internal/trace"
	"quant-council/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Cycle(ctx context.Context, symbol string) (*types.CycleResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Cycle")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting decision cycle",
		"symbol", symbol,
	)

	result, err := oe.engine.Cycle(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Decision cycle failed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Decision cycle completed",
		"symbol", symbol,
		"snapshot_id", result.SnapshotID,
		"action", result.Audit.FinalAction,
		"confidence", result.Audit.FinalConfidence,
		"vetoed", result.Audit.Vetoed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
