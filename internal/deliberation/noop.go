package deliberation

import (
	"context"

	"quant-council/internal/logger"
	"quant-council/internal/types"
)

// NoopDeliberator is the fallback when no external provider is configured.
// It always reports NoOpinion, which passes the AI filter layer and is
// excluded from vote weighting.
type NoopDeliberator struct{}

func NewNoopDeliberator() *NoopDeliberator {
	return &NoopDeliberator{}
}

func (d *NoopDeliberator) Deliberate(ctx context.Context, dc types.DeliberationContext) (types.Opinion, error) {
	logger.Debug(ctx, "Noop deliberator called - always reports no opinion", "symbol", dc.Symbol)
	return types.Opinion{NoOpinion: true, Rationale: "noop_deliberator_fallback"}, nil
}
