package ta

import "math"

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

func EMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	k := 2.0 / float64(n+1)
	ema := SMA(closes[:n], n)
	for i := n; i < len(closes); i++ {
		ema = closes[i]*k + ema*(1.0-k)
	}
	return ema
}

func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	up = mid + k*sd
	low = mid - k*sd
	return
}

func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	n := period
	if len(closes) < n+1 {
		return math.NaN()
	}
	trs := make([]float64, 0, n)
	for i := len(closes) - n; i < len(closes); i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		tr := math.Max(tr1, math.Max(tr2, tr3))
		trs = append(trs, tr)
	}
	sum := 0.0
	for _, v := range trs {
		sum += v
	}
	return sum / float64(n)
}

// MACD returns the MACD line and its signal line for the given fast/slow/signal
// periods.
func MACD(closes []float64, fast, slow, signal int) (macd, sig float64) {
	if len(closes) < slow+signal || fast >= slow {
		return math.NaN(), math.NaN()
	}
	macdSeries := make([]float64, 0, signal)
	for i := signal; i > 0; i-- {
		window := closes[:len(closes)-i+1]
		macdSeries = append(macdSeries, EMA(window, fast)-EMA(window, slow))
	}
	macd = macdSeries[len(macdSeries)-1]
	sig = SMA(macdSeries, signal)
	return
}

// RelVolume compares the latest volume against its n-period average.
// 1.0 means average participation, 2.0 means double.
func RelVolume(volumes []float64, n int) float64 {
	if len(volumes) < n+1 || n <= 0 {
		return math.NaN()
	}
	avg := SMA(volumes[:len(volumes)-1], n)
	if avg == 0 || math.IsNaN(avg) {
		return math.NaN()
	}
	return volumes[len(volumes)-1] / avg
}

// RangePosition locates the last close within the high/low range of the last
// n bars: 0 at the range low, 100 at the range high.
func RangePosition(highs, lows, closes []float64, n int) (posPct, high, low float64) {
	if len(highs) < n || len(lows) < n || len(closes) == 0 || n <= 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	high = highs[len(highs)-n]
	low = lows[len(lows)-n]
	for i := len(highs) - n; i < len(highs); i++ {
		high = math.Max(high, highs[i])
		low = math.Min(low, lows[i])
	}
	last := closes[len(closes)-1]
	if high == low {
		return 50.0, high, low
	}
	pos := (last - low) / (high - low) * 100.0
	return math.Max(0, math.Min(100, pos)), high, low
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
