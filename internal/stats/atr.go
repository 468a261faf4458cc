package stats

import "math"

// ATRPeriod is the default window for the spread range average
const ATRPeriod = 14

// SpreadATR computes an Average True Range analogue for a spread series:
// the trailing range (rolling max minus rolling min over period) smoothed
// by a rolling mean over the same period. Entries before a full window are
// NaN, mirroring positions where the value is undefined.
func SpreadATR(spread []float64, period int) []float64 {
	if period <= 0 {
		period = ATRPeriod
	}

	n := len(spread)
	ranges := make([]float64, n)
	atr := make([]float64, n)
	for i := range ranges {
		ranges[i] = math.NaN()
		atr[i] = math.NaN()
	}

	for i := period - 1; i < n; i++ {
		hi, lo := spread[i-period+1], spread[i-period+1]
		for _, v := range spread[i-period+1 : i+1] {
			if v > hi {
				hi = v
			}
			if v < lo {
				lo = v
			}
		}
		ranges[i] = hi - lo
	}

	for i := 2*period - 2; i < n; i++ {
		sum := 0.0
		for _, r := range ranges[i-period+1 : i+1] {
			sum += r
		}
		atr[i] = sum / float64(period)
	}

	return atr
}
