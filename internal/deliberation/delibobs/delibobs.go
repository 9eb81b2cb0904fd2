package delibobs

import (
	"context"

	"quant-council/internal/interfaces"
	"quant-council/internal/logger"
	"quant-council/internal/trace"
	"quant-council/internal/types"
)

// observableDeliberator wraps a Deliberator with observability (logging & tracing)
type observableDeliberator struct {
	deliberator interfaces.Deliberator
}

// Compile-time interface check
var _ interfaces.Deliberator = (*observableDeliberator)(nil)

// Wrap wraps a deliberator with observability middleware
func Wrap(deliberator interfaces.Deliberator) interfaces.Deliberator {
	return &observableDeliberator{
		deliberator: deliberator,
	}
}

func (od *observableDeliberator) Deliberate(ctx context.Context, dc types.DeliberationContext) (types.Opinion, error) {
	ctx, span := trace.StartSpan(ctx, "deliberation.Deliberate")
	defer span.End()

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting deliberation",
		"symbol", dc.Symbol,
		"snapshot_id", dc.SnapshotID,
	)

	opinion, err := od.deliberator.Deliberate(ctx, dc)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Deliberation failed", err,
			"symbol", dc.Symbol,
			"snapshot_id", dc.SnapshotID,
		)
		return types.Opinion{}, err
	}

	logger.InfoSkip(ctx, 1, "Deliberation received",
		"symbol", dc.Symbol,
		"snapshot_id", dc.SnapshotID,
		"direction", opinion.Direction,
		"confidence", opinion.Confidence,
		"no_opinion", opinion.NoOpinion,
	)

	return opinion, nil
}
