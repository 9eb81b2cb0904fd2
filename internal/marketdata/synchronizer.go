package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"quant-council/internal/interfaces"
	"quant-council/internal/store"
	"quant-council/internal/types"
)

// DerivsSource is implemented by bar sources that also expose perpetual
// derivatives state. The synchronizer upgrades to it when available.
type DerivsSource interface {
	FundingRate(ctx context.Context, symbol string) (float64, error)
	OpenInterest(ctx context.Context, symbol string) (float64, error)
}

// TimeframeSynchronizer fetches every configured timeframe concurrently and
// aligns the results into one immutable snapshot. Construction is
// all-or-nothing: a timeframe that stays unavailable after the retry budget
// fails the whole cycle and no partial snapshot is ever returned.
type TimeframeSynchronizer struct {
	src      interfaces.BarSource
	specs    []store.TimeframeSpec
	lookback *LookbackCache

	fetchTimeout   time.Duration
	recencyTol     time.Duration
	skewTol        time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	nextID atomic.Int64
	now    func() time.Time
}

var _ interfaces.Synchronizer = (*TimeframeSynchronizer)(nil)

// NewSynchronizer builds a synchronizer from config. Snapshot ids are seeded
// from the wall clock so restarts never reuse an id.
func NewSynchronizer(src interfaces.BarSource, cfg *store.Config, lookback *LookbackCache) *TimeframeSynchronizer {
	s := &TimeframeSynchronizer{
		src:            src,
		specs:          cfg.Data.Timeframes,
		lookback:       lookback,
		fetchTimeout:   time.Duration(cfg.Data.FetchTimeoutMS) * time.Millisecond,
		recencyTol:     time.Duration(cfg.Data.RecencyToleranceMS) * time.Millisecond,
		skewTol:        time.Duration(cfg.Data.SkewToleranceMS) * time.Millisecond,
		maxAttempts:    cfg.Data.Retry.MaxAttempts,
		initialBackoff: time.Duration(cfg.Data.Retry.InitialBackoffMS) * time.Millisecond,
		maxBackoff:     time.Duration(cfg.Data.Retry.MaxBackoffMS) * time.Millisecond,
		now:            time.Now,
	}
	s.nextID.Store(time.Now().UnixNano())
	return s
}

// Snapshot fetches all configured timeframes in parallel, validates recency
// and cross-timeframe skew, and returns a new immutable MarketSnapshot.
func (s *TimeframeSynchronizer) Snapshot(ctx context.Context, symbol string) (*types.MarketSnapshot, error) {
	series := make(map[types.Timeframe][]types.Bar, len(s.specs))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		fetches []error
	)
	for _, spec := range s.specs {
		wg.Add(1)
		go func(spec store.TimeframeSpec) {
			defer wg.Done()

			bars, err := s.fetchWithRetry(ctx, symbol, spec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fetches = append(fetches, fmt.Errorf("%s %s: %w", symbol, spec.Interval, err))
				return
			}
			series[spec.Interval] = bars
		}(spec)
	}
	wg.Wait()

	if len(fetches) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrDataUnavailable, errors.Join(fetches...))
	}

	capturedAt := s.now()
	if err := s.validate(series, capturedAt); err != nil {
		return nil, err
	}

	snap := &types.MarketSnapshot{
		ID:         s.nextID.Add(1),
		Symbol:     symbol,
		CapturedAt: capturedAt,
		Series:     series,
	}
	s.attachDerivs(ctx, snap)

	// Smooth across cycles: record each timeframe's latest close.
	if s.lookback != nil {
		for tf, bars := range series {
			s.lookback.Append(symbol, tf, bars[len(bars)-1].Close)
		}
	}
	return snap, nil
}

// fetchWithRetry fetches one timeframe with bounded exponential backoff.
// Only this timeframe retries; successful siblings are never re-fetched.
func (s *TimeframeSynchronizer) fetchWithRetry(ctx context.Context, symbol string, spec store.TimeframeSpec) ([]types.Bar, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialBackoff
	bo.MaxInterval = s.maxBackoff

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxAttempts-1)), ctx)

	return backoff.RetryWithData(func() ([]types.Bar, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()

		bars, err := s.src.FetchBars(fetchCtx, symbol, spec.Interval, spec.Bars)
		if err != nil {
			// An open breaker means the venue is already known to be down;
			// retrying burns the budget without touching the source.
			if errors.Is(err, gobreaker.ErrOpenState) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if len(bars) < spec.Bars {
			return nil, fmt.Errorf("short series: got %d of %d bars", len(bars), spec.Bars)
		}
		out := make([]types.Bar, len(bars))
		copy(out, bars)
		return out, nil
	}, policy)
}

// validate enforces the per-timeframe recency tolerance and the
// cross-timeframe skew invariant of the newest bars.
func (s *TimeframeSynchronizer) validate(series map[types.Timeframe][]types.Bar, capturedAt time.Time) error {
	var newest []int64
	for tf, bars := range series {
		last := bars[len(bars)-1].Ts
		age := capturedAt.UnixMilli() - last
		if age > s.recencyTol.Milliseconds() {
			return fmt.Errorf("%w: %s newest bar is %dms old (tolerance %dms)",
				ErrStaleData, tf, age, s.recencyTol.Milliseconds())
		}
		newest = append(newest, last)
	}

	minTs, maxTs := newest[0], newest[0]
	for _, ts := range newest[1:] {
		if ts < minTs {
			minTs = ts
		}
		if ts > maxTs {
			maxTs = ts
		}
	}
	if skew := maxTs - minTs; skew > s.skewTol.Milliseconds() {
		return fmt.Errorf("%w: cross-timeframe skew %dms exceeds tolerance %dms",
			ErrStaleData, skew, s.skewTol.Milliseconds())
	}
	return nil
}

func (s *TimeframeSynchronizer) attachDerivs(ctx context.Context, snap *types.MarketSnapshot) {
	ds, ok := s.src.(DerivsSource)
	if !ok {
		return
	}
	fr, err1 := ds.FundingRate(ctx, snap.Symbol)
	oi, err2 := ds.OpenInterest(ctx, snap.Symbol)
	if err1 != nil || err2 != nil {
		return
	}
	snap.FundingRate = fr
	snap.OpenInterest = oi
	snap.HasDerivs = true
}
