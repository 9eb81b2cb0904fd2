package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"quant-council/internal/types"
)

// StaticSource produces deterministic synthetic bars for DRY_RUN mode and
// tests. Prices follow a seeded sine walk so indicators have real structure,
// and the newest bar always closes on the current interval boundary.
type StaticSource struct {
	now func() time.Time
}

func NewStaticSource() *StaticSource {
	return &StaticSource{now: time.Now}
}

// TFDuration maps a timeframe to its bar interval.
func TFDuration(tf types.Timeframe) time.Duration {
	switch tf {
	case types.TF5m:
		return 5 * time.Minute
	case types.TF15m:
		return 15 * time.Minute
	case types.TF1h:
		return time.Hour
	case types.TF4h:
		return 4 * time.Hour
	default:
		return time.Minute
	}
}

func (s *StaticSource) FetchBars(_ context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
	interval := TFDuration(tf)
	end := s.now().Truncate(interval)
	seed := float64(symbolSeed(symbol)%1000) + 100.0

	bars := make([]types.Bar, count)
	for i := 0; i < count; i++ {
		// Oldest bar first; phase drives a slow trend plus a faster wobble.
		idx := count - 1 - i
		ts := end.Add(-time.Duration(idx) * interval)
		phase := float64(ts.Unix()) / interval.Seconds()

		base := seed * (1.0 + 0.10*math.Sin(phase/40.0) + 0.02*math.Sin(phase/7.0))
		spread := seed * 0.004
		open := base - spread/2
		cls := base + spread/2
		bars[i] = types.Bar{
			Ts:     ts.UnixMilli(),
			Open:   open,
			High:   math.Max(open, cls) + spread,
			Low:    math.Min(open, cls) - spread,
			Close:  cls,
			Volume: 1000 + 500*math.Abs(math.Sin(phase/5.0)),
		}
	}
	return bars, nil
}

func (s *StaticSource) FundingRate(_ context.Context, symbol string) (float64, error) {
	return 0.0001 * math.Sin(float64(symbolSeed(symbol))), nil
}

func (s *StaticSource) OpenInterest(_ context.Context, symbol string) (float64, error) {
	return float64(symbolSeed(symbol)%100000) + 50000, nil
}

func symbolSeed(symbol string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return h.Sum32()
}
