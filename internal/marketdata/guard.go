package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"quant-council/internal/interfaces"
	"quant-council/internal/types"
)

// GuardConfig tunes the client-side protections around a bar source.
type GuardConfig struct {
	RPS                 float64
	Burst               int
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// guardedSource wraps a BarSource with a token-bucket rate limiter and a
// circuit breaker so a failing venue is not hammered during an outage.
type guardedSource struct {
	src     interfaces.BarSource
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// Guard wraps src with rate limiting and a circuit breaker.
func Guard(src interfaces.BarSource, cfg GuardConfig) interfaces.BarSource {
	st := gobreaker.Settings{Name: "bar-source"}
	st.Timeout = cfg.OpenTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
	}
	return &guardedSource{
		src:     src,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

func (g *guardedSource) FetchBars(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := g.breaker.Execute(func() (any, error) {
		return g.src.FetchBars(ctx, symbol, tf, count)
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.Bar), nil
}

// FundingRate forwards to the underlying source so guarding a derivatives
// venue does not strip its DerivsSource upgrade.
func (g *guardedSource) FundingRate(ctx context.Context, symbol string) (float64, error) {
	ds, ok := g.src.(DerivsSource)
	if !ok {
		return 0, fmt.Errorf("source does not expose funding rates")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return ds.FundingRate(ctx, symbol)
}

func (g *guardedSource) OpenInterest(ctx context.Context, symbol string) (float64, error) {
	ds, ok := g.src.(DerivsSource)
	if !ok {
		return 0, fmt.Errorf("source does not expose open interest")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return ds.OpenInterest(ctx, symbol)
}
