package stats

// CointegrationResult holds the outcome of an Engle-Granger test
type CointegrationResult struct {
	IsCointegrated bool
	Beta           float64
	Alpha          float64
	ADFStatistic   float64
	ADFPValue      float64
	// SpreadStd is the residual standard deviation expressed as a
	// percentage of the mean price of asset A, so pairs at different
	// price scales stay comparable.
	SpreadStd float64
}

// EngleGrangerMinPoints is the minimum aligned observations for a valid test
const EngleGrangerMinPoints = 50

// EngleGranger runs a two-step Engle-Granger cointegration test on two
// pre-aligned price series: OLS of priceA on [1, priceB] for the hedge
// ratio, then an ADF stationarity test on the residual spread. The pair is
// cointegrated when the ADF p-value is below 0.10.
//
// Fewer than EngleGrangerMinPoints aligned observations yields the
// non-cointegrated sentinel (p-value 1.0), never an error.
func EngleGranger(priceA, priceB []float64) CointegrationResult {
	notCointegrated := CointegrationResult{ADFPValue: 1.0}

	if len(priceA) != len(priceB) || len(priceA) < EngleGrangerMinPoints {
		return notCointegrated
	}

	alpha, beta, err := LinearFit(priceA, priceB)
	if err != nil {
		return notCointegrated
	}

	residuals := make([]float64, len(priceA))
	for i := range priceA {
		residuals[i] = priceA[i] - (alpha + beta*priceB[i])
	}

	avgPriceA := mean(priceA)
	spreadStd := stdDev(residuals)
	if avgPriceA > 0 {
		spreadStd = spreadStd / avgPriceA * 100
	}

	adf, err := ADFTest(residuals)
	if err != nil {
		return notCointegrated
	}

	return CointegrationResult{
		IsCointegrated: adf.PValue < 0.10,
		Beta:           beta,
		Alpha:          alpha,
		ADFStatistic:   adf.Statistic,
		ADFPValue:      adf.PValue,
		SpreadStd:      spreadStd,
	}
}

// Spread computes priceA - (alpha + beta*priceB) element-wise over two
// pre-aligned series.
func Spread(priceA, priceB []float64, beta, alpha float64) []float64 {
	n := len(priceA)
	if len(priceB) < n {
		n = len(priceB)
	}
	spread := make([]float64, n)
	for i := 0; i < n; i++ {
		spread[i] = priceA[i] - (alpha + beta*priceB[i])
	}
	return spread
}

// ZScore normalizes a spread series against its own full-window mean and
// standard deviation. A zero-variance spread yields an all-zero series.
func ZScore(spread []float64) []float64 {
	out := make([]float64, len(spread))
	if len(spread) == 0 {
		return out
	}

	m := mean(spread)
	sd := stdDev(spread)
	if sd == 0 {
		return out
	}

	for i, v := range spread {
		out[i] = (v - m) / sd
	}
	return out
}
