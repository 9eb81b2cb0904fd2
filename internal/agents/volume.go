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

const VolumeAgentID = "volume"

// VolumeAgent scores short-timeframe participation with the direction of the
// bar it confirms: relative volume sets magnitude, the last close vs open
// sets sign. Heavy volume on a down bar is a short-leaning score.
type VolumeAgent struct {
	tf     types.Timeframe
	period int
}

func NewVolumeAgent(tf types.Timeframe) *VolumeAgent {
	return &VolumeAgent{tf: tf, period: 20}
}

func (a *VolumeAgent) ID() string { return VolumeAgentID }

func (a *VolumeAgent) Compute(_ context.Context, snap *types.MarketSnapshot, _ *marketdata.LookbackCache) (types.AgentScore, error) {
	bars := snap.Bars(a.tf)
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
	}

	rvol := ta.RelVolume(volumes, a.period)
	if math.IsNaN(rvol) {
		return types.AgentScore{Timeframe: a.tf}, fmt.Errorf("insufficient history: %d bars on %s", len(bars), a.tf)
	}

	last := bars[len(bars)-1]
	sign := 1.0
	if last.Close < last.Open {
		sign = -1.0
	}
	score := sign * ta.Clamp(rvol/2.0, 0, 1)

	return types.AgentScore{
		AgentID:    a.ID(),
		Score:      score,
		Label:      volumeLabel(rvol),
		Timeframe:  a.tf,
		ComputedAt: time.Now(),
		Note:       fmt.Sprintf("rvol=%.2f", rvol),
	}, nil
}

func volumeLabel(rvol float64) string {
	switch {
	case rvol >= 1.5:
		return "expanding"
	case rvol <= 0.5:
		return "drying"
	default:
		return "average"
	}
}
