package stats

import (
	"fmt"
	"math"
)

// OLSResult holds the output of a least-squares fit
type OLSResult struct {
	Coefficients []float64 // one per regressor column
	StdErrors    []float64
	SSR          float64 // sum of squared residuals
	NObs         int
}

// LinearFit regresses y on [1, x] and returns (alpha, beta).
// This is the hedge-ratio regression: y = alpha + beta*x + eps.
func LinearFit(y, x []float64) (alpha, beta float64, err error) {
	if len(y) != len(x) || len(y) < 2 {
		return 0, 0, fmt.Errorf("linear fit requires two equal-length series with at least 2 points, got %d and %d", len(y), len(x))
	}

	n := float64(len(x))
	var sumX, sumY, sumXY, sumXX float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0, fmt.Errorf("degenerate regressor: zero variance")
	}

	beta = (n*sumXY - sumX*sumY) / denom
	alpha = (sumY - beta*sumX) / n
	return alpha, beta, nil
}

// MultipleOLS fits y = X*b + eps by ordinary least squares, where X is
// row-major with one row per observation. Standard errors come from the
// diagonal of sigma2*(X'X)^-1.
func MultipleOLS(y []float64, X [][]float64) (*OLSResult, error) {
	n := len(y)
	if n == 0 || len(X) != n {
		return nil, fmt.Errorf("ols: mismatched dimensions")
	}
	k := len(X[0])
	if n <= k {
		return nil, fmt.Errorf("ols: need more observations (%d) than regressors (%d)", n, k)
	}

	// Build X'X and X'y
	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for i := 0; i < k; i++ {
		xtx[i] = make([]float64, k)
	}
	for r := 0; r < n; r++ {
		row := X[r]
		for i := 0; i < k; i++ {
			xty[i] += row[i] * y[r]
			for j := i; j < k; j++ {
				xtx[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < k; i++ {
		for j := 0; j < i; j++ {
			xtx[i][j] = xtx[j][i]
		}
	}

	inv, err := invertMatrix(xtx)
	if err != nil {
		return nil, err
	}

	coef := make([]float64, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			coef[i] += inv[i][j] * xty[j]
		}
	}

	var ssr float64
	for r := 0; r < n; r++ {
		pred := 0.0
		for i := 0; i < k; i++ {
			pred += coef[i] * X[r][i]
		}
		resid := y[r] - pred
		ssr += resid * resid
	}

	sigma2 := ssr / float64(n-k)
	stderrs := make([]float64, k)
	for i := 0; i < k; i++ {
		stderrs[i] = math.Sqrt(sigma2 * inv[i][i])
	}

	return &OLSResult{
		Coefficients: coef,
		StdErrors:    stderrs,
		SSR:          ssr,
		NObs:         n,
	}, nil
}

// invertMatrix inverts a square matrix by Gauss-Jordan elimination with
// partial pivoting. The input is not modified.
func invertMatrix(m [][]float64) ([][]float64, error) {
	k := len(m)
	aug := make([][]float64, k)
	for i := 0; i < k; i++ {
		aug[i] = make([]float64, 2*k)
		copy(aug[i], m[i])
		aug[i][k+i] = 1.0
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular design matrix")
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pv := aug[col][col]
		for j := 0; j < 2*k; j++ {
			aug[col][j] /= pv
		}
		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for j := 0; j < 2*k; j++ {
				aug[r][j] -= factor * aug[col][j]
			}
		}
	}

	inv := make([][]float64, k)
	for i := 0; i < k; i++ {
		inv[i] = aug[i][k:]
	}
	return inv, nil
}

// polyval evaluates c0 + c1*x + c2*x^2 + ... (ascending coefficients)
func polyval(coeffs []float64, x float64) float64 {
	result := 0.0
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = result*x + coeffs[i]
	}
	return result
}

// normCDF is the standard normal cumulative distribution function
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// stdDev is the sample standard deviation (n-1 denominator)
func stdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, v := range xs {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(n-1))
}
