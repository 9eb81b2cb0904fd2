package decision

import (
	"fmt"
	"math"

	"quant-council/internal/agents"
	"quant-council/internal/store"
	"quant-council/internal/ta"
	"quant-council/internal/types"
)

// Core is the four-layer gated decision state machine plus the weighted vote.
// It is pure: identical inputs always produce an identical VoteResult, and
// the result is reconstructable from its layer trace and reasons alone.
type Core struct {
	cfg *store.Config
}

func New(cfg *store.Config) *Core {
	return &Core{cfg: cfg}
}

// Decide threads the snapshot through L1..L4 and, only after a CONFIRMED
// trigger, runs the weighted vote with regime-aware confidence calibration.
func (c *Core) Decide(snap *types.MarketSnapshot, analysis types.QuantAnalysis, reg types.RegimeReading, rng types.RangeReading, opinion types.Opinion) types.VoteResult {
	res := types.VoteResult{
		SnapshotID: snap.ID,
		Symbol:     snap.Symbol,
		Action:     types.ActionFlat,
	}

	l1, dir := c.layerTrendFuel(snap, analysis)
	res.LayerTrace = append(res.LayerTrace, l1)
	if !l1.Verdict.Advances() {
		res.Reasons = append(res.Reasons, l1.Detail)
		return res
	}
	res.Aligned = true

	l2 := c.layerAIFilter(dir, opinion)
	res.LayerTrace = append(res.LayerTrace, l2)
	if !l2.Verdict.Advances() {
		res.Reasons = append(res.Reasons, l2.Detail)
		return res
	}

	l3 := c.layerSetup(dir, analysis, rng)
	res.LayerTrace = append(res.LayerTrace, l3)
	if !l3.Verdict.Advances() {
		res.Reasons = append(res.Reasons, l3.Detail)
		return res
	}

	l4 := c.layerTrigger(dir, snap)
	res.LayerTrace = append(res.LayerTrace, l4)
	if !l4.Verdict.Advances() {
		res.Reasons = append(res.Reasons, l4.Detail)
		return res
	}

	return c.vote(res, analysis, reg, rng, opinion)
}

// layerTrendFuel gates on the higher-timeframe trend score and a
// volume-participation proxy. It fixes the cycle's working direction.
func (c *Core) layerTrendFuel(snap *types.MarketSnapshot, analysis types.QuantAnalysis) (types.LayerOutcome, types.Action) {
	l1 := c.cfg.Layers.L1

	trend, ok := analysis.Score(agents.TrendAgentID)
	if !ok || trend.Degraded {
		return outcome(types.LayerTrendFuel, types.VerdictFail, "trend agent degraded, no directional basis"), types.ActionFlat
	}
	if math.Abs(trend.Score) < l1.TrendThreshold {
		return outcome(types.LayerTrendFuel, types.VerdictFail,
			fmt.Sprintf("trend %.2f below threshold %.2f", trend.Score, l1.TrendThreshold)), types.ActionFlat
	}

	rvol := fuelRelVolume(snap, l1.FuelTimeframe)
	if math.IsNaN(rvol) || rvol < l1.FuelMinRelVol {
		return outcome(types.LayerTrendFuel, types.VerdictFail,
			fmt.Sprintf("fuel rvol %.2f below minimum %.2f", rvol, l1.FuelMinRelVol)), types.ActionFlat
	}

	dir := types.ActionLong
	if trend.Score < 0 {
		dir = types.ActionShort
	}
	return outcome(types.LayerTrendFuel, types.VerdictPass,
		fmt.Sprintf("dir=%s trend=%.2f rvol=%.2f", dir, trend.Score, rvol)), dir
}

// layerAIFilter vetoes when the external opinion contradicts L1's direction
// with enough conviction. A degraded opinion never blocks the pipeline.
func (c *Core) layerAIFilter(dir types.Action, opinion types.Opinion) types.LayerOutcome {
	if opinion.NoOpinion {
		return outcome(types.LayerAIFilter, types.VerdictPass, "no opinion (deliberation degraded)")
	}
	if opinion.Direction.Opposes(dir) && opinion.Confidence >= c.cfg.Layers.L2.DisagreementThreshold {
		return outcome(types.LayerAIFilter, types.VerdictVeto,
			fmt.Sprintf("opinion %s conf=%.2f contradicts %s beyond threshold %.2f",
				opinion.Direction, opinion.Confidence, dir, c.cfg.Layers.L2.DisagreementThreshold))
	}
	return outcome(types.LayerAIFilter, types.VerdictPass,
		fmt.Sprintf("opinion %s conf=%.2f compatible with %s", opinion.Direction, opinion.Confidence, dir))
}

// layerSetup requires price in the qualifying pullback zone of the recent
// range, without the mid-timeframe oscillator being overextended against the
// entry. WAIT state never persists across cycles.
func (c *Core) layerSetup(dir types.Action, analysis types.QuantAnalysis, rng types.RangeReading) types.LayerOutcome {
	l3 := c.cfg.Layers.L3

	osc, ok := analysis.Score(agents.OscillatorAgentID)
	if !ok || osc.Degraded {
		return outcome(types.LayerSetup, types.VerdictWait, "oscillator degraded, setup unreadable")
	}

	switch dir {
	case types.ActionLong:
		if rng.PositionPct > l3.LongMaxPositionPct {
			return outcome(types.LayerSetup, types.VerdictWait,
				fmt.Sprintf("price at %.0f%% of range, above long entry zone %.0f%%", rng.PositionPct, l3.LongMaxPositionPct))
		}
		if osc.Score < -l3.MaxOverextension {
			return outcome(types.LayerSetup, types.VerdictWait,
				fmt.Sprintf("oscillator %.2f overbought beyond %.2f", osc.Score, l3.MaxOverextension))
		}
	case types.ActionShort:
		if rng.PositionPct < l3.ShortMinPositionPct {
			return outcome(types.LayerSetup, types.VerdictWait,
				fmt.Sprintf("price at %.0f%% of range, below short entry zone %.0f%%", rng.PositionPct, l3.ShortMinPositionPct))
		}
		if osc.Score > l3.MaxOverextension {
			return outcome(types.LayerSetup, types.VerdictWait,
				fmt.Sprintf("oscillator %.2f oversold beyond %.2f", osc.Score, l3.MaxOverextension))
		}
	}
	return outcome(types.LayerSetup, types.VerdictReady,
		fmt.Sprintf("pos=%.0f%% osc=%.2f in %s zone", rng.PositionPct, osc.Score, dir))
}

// layerTrigger confirms with a short-timeframe bar in the trade direction on
// elevated relative volume, all within the same cycle.
func (c *Core) layerTrigger(dir types.Action, snap *types.MarketSnapshot) types.LayerOutcome {
	l4 := c.cfg.Layers.L4

	bars := snap.Bars(l4.TriggerTimeframe)
	if len(bars) == 0 {
		return outcome(types.LayerTrigger, types.VerdictWaiting, "no trigger timeframe bars")
	}
	last := bars[len(bars)-1]
	bullish := last.Close > last.Open
	if (dir == types.ActionLong && !bullish) || (dir == types.ActionShort && bullish) {
		return outcome(types.LayerTrigger, types.VerdictWaiting,
			fmt.Sprintf("last %s bar against %s entry", l4.TriggerTimeframe, dir))
	}

	rvol := fuelRelVolume(snap, l4.TriggerTimeframe)
	if math.IsNaN(rvol) || rvol < l4.MinRelVol {
		return outcome(types.LayerTrigger, types.VerdictWaiting,
			fmt.Sprintf("trigger rvol %.2f below minimum %.2f", rvol, l4.MinRelVol))
	}
	return outcome(types.LayerTrigger, types.VerdictConfirmed,
		fmt.Sprintf("%s bar with rvol %.2f confirms %s", l4.TriggerTimeframe, rvol, dir))
}

func fuelRelVolume(snap *types.MarketSnapshot, tf types.Timeframe) float64 {
	bars := snap.Bars(tf)
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
	}
	return ta.RelVolume(volumes, 20)
}

func outcome(layer types.Layer, verdict types.Verdict, detail string) types.LayerOutcome {
	return types.LayerOutcome{Layer: layer, Verdict: verdict, Detail: detail}
}
