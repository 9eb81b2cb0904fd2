package regime

import (
	"fmt"
	"math"

	"quant-council/internal/ta"
	"quant-council/internal/types"
)

// Detector classifies the market as trending or ranging with a strength in
// [0,1]. The measure is the fast/slow EMA gap normalized by ATR: a gap wider
// than one ATR is directional movement, a narrower one is chop. A Bollinger
// band squeeze forces a ranging read regardless of the gap.
type Detector struct {
	tf           types.Timeframe
	fast         int
	slow         int
	atrPeriod    int
	bandPeriod   int
	threshold    float64
	squeezeWidth float64
}

func NewDetector(tf types.Timeframe) *Detector {
	return &Detector{
		tf:           tf,
		fast:         12,
		slow:         26,
		atrPeriod:    14,
		bandPeriod:   20,
		threshold:    1.0,
		squeezeWidth: 0.02,
	}
}

// Detect is deterministic for a given snapshot. It fails only on
// insufficient history; callers should treat that as a weak ranging read.
func (d *Detector) Detect(snap *types.MarketSnapshot) (types.RegimeReading, error) {
	bars := snap.Bars(d.tf)
	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	emaFast := ta.EMA(closes, d.fast)
	emaSlow := ta.EMA(closes, d.slow)
	atr := ta.ATR(highs, lows, closes, d.atrPeriod)
	if math.IsNaN(emaFast) || math.IsNaN(emaSlow) || math.IsNaN(atr) || atr == 0 {
		return types.RegimeReading{}, fmt.Errorf("insufficient history: %d bars on %s", len(bars), d.tf)
	}

	// A Bollinger squeeze overrides the separation read: a band narrower than
	// squeezeWidth of price is compression, not trend, whatever the EMAs say.
	if mid, up, low := ta.Bollinger(closes, d.bandPeriod, 2); !math.IsNaN(mid) && mid != 0 {
		if width := (up - low) / mid; width < d.squeezeWidth {
			return types.RegimeReading{
				State:    types.RegimeRanging,
				Strength: ta.Clamp(1.0-width/d.squeezeWidth, 0, 1),
			}, nil
		}
	}

	normSep := math.Abs(emaFast-emaSlow) / atr
	if normSep >= d.threshold {
		return types.RegimeReading{
			State:    types.RegimeTrending,
			Strength: ta.Clamp(normSep/(2*d.threshold), 0, 1),
		}, nil
	}
	return types.RegimeReading{
		State:    types.RegimeRanging,
		Strength: ta.Clamp(1.0-normSep/d.threshold, 0, 1),
	}, nil
}

// PositionAnalyzer locates the last price within the recent trading range on
// the setup timeframe.
type PositionAnalyzer struct {
	tf     types.Timeframe
	window int
}

func NewPositionAnalyzer(tf types.Timeframe) *PositionAnalyzer {
	return &PositionAnalyzer{tf: tf, window: 48}
}

func (p *PositionAnalyzer) Analyze(snap *types.MarketSnapshot) (types.RangeReading, error) {
	bars := snap.Bars(p.tf)
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}

	window := p.window
	if len(bars) < window {
		window = len(bars)
	}
	pos, high, low := ta.RangePosition(highs, lows, closes, window)
	if math.IsNaN(pos) {
		return types.RangeReading{}, fmt.Errorf("insufficient history: %d bars on %s", len(bars), p.tf)
	}
	return types.RangeReading{PositionPct: pos, High: high, Low: low}, nil
}
