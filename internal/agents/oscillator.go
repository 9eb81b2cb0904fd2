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

const OscillatorAgentID = "oscillator"

// OscillatorAgent maps the mid-timeframe RSI to [-1, +1]: +1 deeply oversold
// (long-friendly pullback), -1 deeply overbought. 50 is neutral.
type OscillatorAgent struct {
	tf     types.Timeframe
	period int
}

func NewOscillatorAgent(tf types.Timeframe) *OscillatorAgent {
	return &OscillatorAgent{tf: tf, period: 14}
}

func (a *OscillatorAgent) ID() string { return OscillatorAgentID }

func (a *OscillatorAgent) Compute(_ context.Context, snap *types.MarketSnapshot, _ *marketdata.LookbackCache) (types.AgentScore, error) {
	bars := snap.Bars(a.tf)
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	rsi := ta.RSI(closes, a.period)
	if math.IsNaN(rsi) {
		return types.AgentScore{Timeframe: a.tf}, fmt.Errorf("insufficient history: %d bars on %s", len(bars), a.tf)
	}

	score := (50.0 - rsi) / 50.0
	return types.AgentScore{
		AgentID:    a.ID(),
		Score:      ta.Clamp(score, -1, 1),
		Label:      oscillatorLabel(rsi),
		Timeframe:  a.tf,
		ComputedAt: time.Now(),
		Note:       fmt.Sprintf("rsi=%.1f", rsi),
	}, nil
}

func oscillatorLabel(rsi float64) string {
	switch {
	case rsi <= 30:
		return "oversold"
	case rsi >= 70:
		return "overbought"
	default:
		return "neutral"
	}
}
