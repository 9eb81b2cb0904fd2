package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quant-council/internal/logger"
	"quant-council/internal/marketdata"
	"quant-council/internal/types"
)

// Agent is the uniform analysis capability: a stateless transform of one
// snapshot (plus the shared read-only lookback) into a bounded score.
type Agent interface {
	ID() string
	Compute(ctx context.Context, snap *types.MarketSnapshot, lookback *marketdata.LookbackCache) (types.AgentScore, error)
}

// Degraded builds the neutral fallback score for an agent that could not
// produce a real one. Degraded scores are excluded from vote weighting.
func Degraded(id string, tf types.Timeframe, note string) types.AgentScore {
	return types.AgentScore{
		AgentID:    id,
		Score:      0,
		Label:      "degraded",
		Timeframe:  tf,
		ComputedAt: time.Now(),
		Degraded:   true,
		Note:       note,
	}
}

// RunAll executes every agent in parallel and joins on all of them: the
// decision core never starts before each agent has returned, successful or
// degraded. One agent failing (error or panic) never aborts the others.
// Scores come back in registration order, so the result is deterministic.
func RunAll(ctx context.Context, list []Agent, snap *types.MarketSnapshot, lookback *marketdata.LookbackCache) types.QuantAnalysis {
	scores := make([]types.AgentScore, len(list))

	var wg sync.WaitGroup
	for i, ag := range list {
		wg.Add(1)
		go func(i int, ag Agent) {
			defer wg.Done()
			scores[i] = computeSafe(ctx, ag, snap, lookback)
		}(i, ag)
	}
	wg.Wait()

	return types.QuantAnalysis{
		SnapshotID: snap.ID,
		Symbol:     snap.Symbol,
		Scores:     scores,
	}
}

func computeSafe(ctx context.Context, ag Agent, snap *types.MarketSnapshot, lookback *marketdata.LookbackCache) (score types.AgentScore) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Agent panicked", "agent", ag.ID(), "panic", fmt.Sprint(r))
			score = Degraded(ag.ID(), "", fmt.Sprintf("panic: %v", r))
		}
	}()

	s, err := ag.Compute(ctx, snap, lookback)
	if err != nil {
		logger.Warn(ctx, "Agent degraded", "agent", ag.ID(), "symbol", snap.Symbol, "reason", err.Error())
		return Degraded(ag.ID(), s.Timeframe, err.Error())
	}
	return s
}
