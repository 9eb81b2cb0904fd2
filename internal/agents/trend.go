package agents

import (
	"context"
	"fmt"
	"math"
	"time"

	"quant-council/internal/marketdata"
	"quant-council/internal/ta"
	"quant-council/internal/types"
)

const TrendAgentID = "trend"

// saturationSep is the fast/slow EMA separation (as a fraction of price)
// at which the trend score saturates to ±1.
const saturationSep = 0.01

// TrendAgent scores the higher-timeframe trend in [-1, +1] from EMA
// separation, with the MACD histogram as a direction check. Prior-cycle
// closes from the lookback cache damp one-snapshot flips.
type TrendAgent struct {
	tf         types.Timeframe
	fast, slow int
	macdSignal int
}

func NewTrendAgent(tf types.Timeframe) *TrendAgent {
	return &TrendAgent{tf: tf, fast: 12, slow: 26, macdSignal: 9}
}

func (a *TrendAgent) ID() string { return TrendAgentID }

func (a *TrendAgent) Compute(_ context.Context, snap *types.MarketSnapshot, lookback *marketdata.LookbackCache) (types.AgentScore, error) {
	bars := snap.Bars(a.tf)
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	emaFast := ta.EMA(closes, a.fast)
	emaSlow := ta.EMA(closes, a.slow)
	if math.IsNaN(emaFast) || math.IsNaN(emaSlow) || emaSlow == 0 {
		return types.AgentScore{Timeframe: a.tf}, fmt.Errorf("insufficient history: %d bars on %s", len(bars), a.tf)
	}

	sep := (emaFast - emaSlow) / emaSlow
	score := ta.Clamp(sep/saturationSep, -1, 1)

	// Momentum disagreement halves conviction rather than flipping it.
	if macd, sig := ta.MACD(closes, a.fast, a.slow, a.macdSignal); !math.IsNaN(macd) {
		if hist := macd - sig; hist*score < 0 {
			score *= 0.5
		}
	}

	// Cross-cycle smoothing: drift of prior snapshot closes tempers a score
	// that the current snapshot alone would overstate.
	if lookback != nil {
		if prior := lookback.Closes(snap.Symbol, a.tf); len(prior) >= 3 {
			drift := (prior[len(prior)-1] - prior[0]) / prior[0]
			score = ta.Clamp(0.8*score+0.2*ta.Clamp(drift/saturationSep, -1, 1), -1, 1)
		}
	}

	return types.AgentScore{
		AgentID:    a.ID(),
		Score:      score,
		Label:      trendLabel(score),
		Timeframe:  a.tf,
		ComputedAt: time.Now(),
	}, nil
}

func trendLabel(score float64) string {
	switch {
	case score >= 0.5:
		return "bullish"
	case score <= -0.5:
		return "bearish"
	case score > 0:
		return "lean_bullish"
	case score < 0:
		return "lean_bearish"
	default:
		return "neutral"
	}
}
