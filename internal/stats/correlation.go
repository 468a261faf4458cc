package stats

import "math"

// CorrelationMinPoints is the minimum aligned return observations required
const CorrelationMinPoints = 30

// Correlation computes the Pearson correlation of daily returns between two
// pre-aligned price series. With a positive window it returns the
// mean/min/max of the rolling correlation over that window, falling back to
// the whole-period value when the window yields no valid points.
//
// Fewer than CorrelationMinPoints aligned returns, or a zero-variance
// return series, yields (0, 0, 0). NaN never escapes.
func Correlation(priceA, priceB []float64, window int) (corr, minCorr, maxCorr float64) {
	n := len(priceA)
	if len(priceB) < n {
		n = len(priceB)
	}
	if n < CorrelationMinPoints+1 {
		return 0, 0, 0
	}

	returnsA := dailyReturns(priceA[:n])
	returnsB := dailyReturns(priceB[:n])
	if len(returnsA) < CorrelationMinPoints {
		return 0, 0, 0
	}

	if stdDev(returnsA) == 0 || stdDev(returnsB) == 0 {
		return 0, 0, 0
	}

	if window <= 0 {
		c := pearson(returnsA, returnsB)
		if math.IsNaN(c) {
			return 0, 0, 0
		}
		return c, c, c
	}

	var rolling []float64
	for end := window; end <= len(returnsA); end++ {
		c := pearson(returnsA[end-window:end], returnsB[end-window:end])
		if !math.IsNaN(c) {
			rolling = append(rolling, c)
		}
	}

	if len(rolling) == 0 {
		c := pearson(returnsA, returnsB)
		if math.IsNaN(c) {
			return 0, 0, 0
		}
		return c, c, c
	}

	minCorr, maxCorr = rolling[0], rolling[0]
	sum := 0.0
	for _, c := range rolling {
		sum += c
		if c < minCorr {
			minCorr = c
		}
		if c > maxCorr {
			maxCorr = c
		}
	}
	return sum / float64(len(rolling)), minCorr, maxCorr
}

// dailyReturns computes simple percentage changes, skipping zero prices
func dailyReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	return returns
}

// pearson returns the sample correlation coefficient, NaN on zero variance
func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return math.NaN()
	}

	ma, mb := mean(a[:n]), mean(b[:n])
	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - ma
		db := b[i] - mb
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varA*varB)
}
