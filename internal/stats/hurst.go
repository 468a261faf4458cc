package stats

import "math"

// GeneralizedHurst estimates the generalized Hurst exponent of a series
// from the scaling of q-th order moments of its increments:
//
//	K_q(tau) = mean(|x_{t+tau} - x_t|^q) / mean(|x_{t+1} - x_t|^q)
//
// regressed as log K against log tau; H = slope/q. H below 0.5 indicates
// mean reversion, above 0.5 trending, near 0.5 a random walk.
//
// Returns (0, false) when the series is too short (fewer than 2*maxLags
// points) or fewer than 5 valid (tau, K) pairs survive for the regression.
func GeneralizedHurst(series []float64, maxLags int, q float64) (float64, bool) {
	if maxLags <= 0 {
		maxLags = 50
	}
	if len(series) < maxLags*2 {
		return 0, false
	}

	increments := make([]float64, len(series)-1)
	for i := 1; i < len(series); i++ {
		increments[i-1] = series[i] - series[i-1]
	}
	if len(increments) < maxLags {
		return 0, false
	}

	var denom float64
	for _, d := range increments {
		denom += math.Pow(math.Abs(d), q)
	}
	denom /= float64(len(increments))
	if denom == 0 {
		return 0, false
	}

	limit := maxLags
	if half := len(increments) / 2; half < limit {
		limit = half
	}

	var logTau, logK []float64
	for tau := 1; tau < limit; tau++ {
		var num float64
		count := 0
		for i := tau; i < len(increments); i++ {
			num += math.Pow(math.Abs(increments[i]-increments[i-tau]), q)
			count++
		}
		if count == 0 {
			break
		}
		k := (num / float64(count)) / denom
		logTau = append(logTau, math.Log(float64(tau)))
		logK = append(logK, math.Log(k+1e-10))
	}

	if len(logK) < 5 {
		return 0, false
	}

	_, slope, err := LinearFit(logK, logTau)
	if err != nil {
		return 0, false
	}
	return slope / q, true
}
