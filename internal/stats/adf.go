package stats

import (
	"fmt"
	"math"
)

// ADFResult holds the outcome of an augmented Dickey-Fuller test
type ADFResult struct {
	Statistic float64
	PValue    float64
	UsedLag   int
	NObs      int
}

// MacKinnon (1994) approximate asymptotic p-value surface for the
// constant-only Dickey-Fuller regression.
var (
	adfTauStar   = -1.61
	adfTauMin    = -18.83
	adfTauMax    = 2.74
	adfTauSmallP = []float64{2.1659, 1.4412, 0.038269}
	adfTauLargeP = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// ADFTest runs an augmented Dickey-Fuller stationarity test with a constant
// term and automatic lag selection by AIC. The regression is
//
//	dy_t = c + gamma*y_{t-1} + sum_i b_i*dy_{t-i} + eps_t
//
// and the statistic is the t-ratio of gamma. The null hypothesis is a unit
// root; a small p-value indicates a stationary (mean-reverting) series.
func ADFTest(series []float64) (*ADFResult, error) {
	n := len(series)
	if n < 10 {
		return nil, fmt.Errorf("adf: need at least 10 observations, got %d", n)
	}

	diffs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diffs[i-1] = series[i] - series[i-1]
	}

	// Schwert rule of thumb, capped so every candidate regression keeps
	// enough degrees of freedom.
	maxLag := int(math.Floor(12.0 * math.Pow(float64(n)/100.0, 0.25)))
	if limit := len(diffs)/2 - 3; maxLag > limit {
		maxLag = limit
	}
	if maxLag < 0 {
		maxLag = 0
	}

	// Select the lag count by AIC over a common sample, so candidate fits
	// are comparable.
	bestLag := 0
	bestAIC := math.Inf(1)
	for lag := 0; lag <= maxLag; lag++ {
		res, err := adfFit(series, diffs, lag, maxLag)
		if err != nil {
			continue
		}
		nobs := float64(res.NObs)
		if res.SSR <= 0 {
			continue
		}
		k := float64(len(res.Coefficients))
		aic := nobs*math.Log(res.SSR/nobs) + 2*k
		if aic < bestAIC {
			bestAIC = aic
			bestLag = lag
		}
	}

	// Refit with the chosen lag using the full usable sample.
	res, err := adfFit(series, diffs, bestLag, bestLag)
	if err != nil {
		return nil, err
	}
	if res.StdErrors[1] == 0 {
		return nil, fmt.Errorf("adf: zero standard error on level coefficient")
	}

	tStat := res.Coefficients[1] / res.StdErrors[1]
	return &ADFResult{
		Statistic: tStat,
		PValue:    mackinnonPValue(tStat),
		UsedLag:   bestLag,
		NObs:      res.NObs,
	}, nil
}

// adfFit runs the Dickey-Fuller regression with the given lag count,
// dropping the first trimLag observations so different lag choices can
// share a sample. Regressor order: [const, y_{t-1}, dy_{t-1}..dy_{t-lag}].
func adfFit(series, diffs []float64, lag, trimLag int) (*OLSResult, error) {
	start := trimLag // index into diffs; diffs[t] = series[t+1]-series[t]
	nobs := len(diffs) - start
	if nobs < lag+4 {
		return nil, fmt.Errorf("adf: insufficient observations for lag %d", lag)
	}

	y := make([]float64, 0, nobs)
	X := make([][]float64, 0, nobs)
	for t := start; t < len(diffs); t++ {
		row := make([]float64, 2+lag)
		row[0] = 1.0
		row[1] = series[t] // y_{t-1} for the dependent diff at t
		ok := true
		for i := 1; i <= lag; i++ {
			if t-i < 0 {
				ok = false
				break
			}
			row[1+i] = diffs[t-i]
		}
		if !ok {
			continue
		}
		y = append(y, diffs[t])
		X = append(X, row)
	}

	return MultipleOLS(y, X)
}

// mackinnonPValue converts an ADF t-statistic into an approximate p-value
// using the MacKinnon (1994) response-surface polynomials for the
// constant-only case.
func mackinnonPValue(tStat float64) float64 {
	if tStat > adfTauMax {
		return 1.0
	}
	if tStat < adfTauMin {
		return 0.0
	}
	coeffs := adfTauLargeP
	if tStat <= adfTauStar {
		coeffs = adfTauSmallP
	}
	return normCDF(polyval(coeffs, tStat))
}
