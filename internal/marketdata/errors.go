package marketdata

import "errors"

var (
	// ErrDataUnavailable aborts the cycle after the retry budget is spent.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrStaleData aborts the cycle without retry: bars are too old or the
	// cross-timeframe skew exceeds tolerance.
	ErrStaleData = errors.New("market data stale")
	// ErrRateLimited is returned by sources when the venue throttles us.
	// It is retryable at the fetch layer.
	ErrRateLimited = errors.New("rate limited by data source")
)
