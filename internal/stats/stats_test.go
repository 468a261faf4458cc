package stats

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearFit(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{3, 5, 7, 9, 11}

	alpha, beta, err := LinearFit(y, x)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, alpha, 1e-9)
	assert.InDelta(t, 2.0, beta, 1e-9)
}

func TestLinearFitDegenerate(t *testing.T) {
	_, _, err := LinearFit([]float64{1}, []float64{1})
	assert.Error(t, err)

	// Constant regressor has zero variance.
	_, _, err = LinearFit([]float64{1, 2, 3}, []float64{5, 5, 5})
	assert.Error(t, err)
}

func TestMultipleOLS(t *testing.T) {
	// y = 2 + 3*x with no noise.
	n := 20
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x := float64(i)
		X[i] = []float64{1, x}
		y[i] = 2 + 3*x
	}

	res, err := MultipleOLS(y, X)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.Coefficients[0], 1e-8)
	assert.InDelta(t, 3.0, res.Coefficients[1], 1e-8)
	assert.InDelta(t, 0.0, res.SSR, 1e-8)
}

func TestEngleGrangerShortSeries(t *testing.T) {
	a := make([]float64, 40)
	b := make([]float64, 40)
	for i := range a {
		a[i] = float64(i) + 100
		b[i] = float64(i) + 50
	}

	res := EngleGranger(a, b)
	assert.False(t, res.IsCointegrated, "Expected not cointegrated for short series")
	assert.Equal(t, 1.0, res.ADFPValue, "Expected p-value sentinel 1.0, got %v", res.ADFPValue)
}

func TestEngleGrangerCointegratedPair(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	n := 400
	b := make([]float64, n)
	a := make([]float64, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += rng.NormFloat64()
		b[i] = price
		a[i] = 2*price + 10 + rng.NormFloat64()*0.5
	}

	res := EngleGranger(a, b)
	assert.True(t, res.IsCointegrated, "Expected cointegration, got p=%v", res.ADFPValue)
	assert.InDelta(t, 2.0, res.Beta, 0.2)
	assert.Less(t, res.ADFPValue, 0.10)
}

func TestEngleGrangerIndependentWalks(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	n := 400
	a := make([]float64, n)
	b := make([]float64, n)
	pa, pb := 100.0, 100.0
	for i := 0; i < n; i++ {
		pa += rng.NormFloat64()
		pb += rng.NormFloat64()
		a[i] = pa
		b[i] = pb
	}

	res := EngleGranger(a, b)
	assert.False(t, res.IsCointegrated, "Independent walks should not cointegrate, p=%v", res.ADFPValue)
}

func TestZScoreZeroStd(t *testing.T) {
	spread := []float64{5, 5, 5, 5, 5}
	z := ZScore(spread)
	require.Len(t, z, len(spread))
	for i, v := range z {
		assert.Equal(t, 0.0, v, "Expected 0 at index %d, got %v", i, v)
	}
}

func TestZScore(t *testing.T) {
	spread := []float64{1, 2, 3, 4, 5}
	z := ZScore(spread)
	require.Len(t, z, 5)
	assert.InDelta(t, 0.0, z[2], 1e-9)
	assert.InDelta(t, -z[0], z[4], 1e-9)
}

func TestSpread(t *testing.T) {
	a := []float64{10, 12, 14}
	b := []float64{4, 5, 6}
	s := Spread(a, b, 2.0, 1.0)
	expected := []float64{1, 1, 1}
	for i := range expected {
		assert.InDelta(t, expected[i], s[i], 1e-9)
	}
}

func TestCorrelationZeroVariance(t *testing.T) {
	a := make([]float64, 100)
	b := make([]float64, 100)
	for i := range a {
		a[i] = 50.0
		b[i] = float64(i) + 1
	}

	corr, minC, maxC := Correlation(a, b, 0)
	assert.Equal(t, 0.0, corr)
	assert.Equal(t, 0.0, minC)
	assert.Equal(t, 0.0, maxC)
}

func TestCorrelationPerfect(t *testing.T) {
	n := 120
	a := make([]float64, n)
	b := make([]float64, n)
	price := 100.0
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < n; i++ {
		price *= 1 + rng.NormFloat64()*0.01
		a[i] = price
		b[i] = price * 3
	}

	corr, minC, maxC := Correlation(a, b, 0)
	assert.InDelta(t, 1.0, corr, 1e-9)
	assert.Equal(t, corr, minC)
	assert.Equal(t, corr, maxC)
}

func TestCorrelationTooFewPoints(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{2, 4, 6}
	corr, minC, maxC := Correlation(a, b, 0)
	assert.Equal(t, 0.0, corr)
	assert.Equal(t, 0.0, minC)
	assert.Equal(t, 0.0, maxC)
}

func TestCorrelationRollingBounds(t *testing.T) {
	n := 200
	a := make([]float64, n)
	b := make([]float64, n)
	rng := rand.New(rand.NewSource(11))
	pa, pb := 100.0, 100.0
	for i := 0; i < n; i++ {
		shock := rng.NormFloat64() * 0.01
		pa *= 1 + shock
		pb *= 1 + shock + rng.NormFloat64()*0.002
		a[i] = pa
		b[i] = pb
	}

	mean, minC, maxC := Correlation(a, b, 30)
	assert.LessOrEqual(t, minC, mean)
	assert.LessOrEqual(t, mean, maxC)
	assert.Greater(t, mean, 0.5)
}

func TestGeneralizedHurstGuards(t *testing.T) {
	short := []float64{1, 2, 3, 4, 5}
	_, ok := GeneralizedHurst(short, 50, 1)
	assert.False(t, ok, "Expected failure on short series")

	flat := make([]float64, 200)
	for i := range flat {
		flat[i] = 10.0
	}
	_, ok = GeneralizedHurst(flat, 50, 1)
	assert.False(t, ok, "Expected failure on constant series")
}

func TestGeneralizedHurstRandomWalk(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	n := 2000
	series := make([]float64, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += rng.NormFloat64()
		series[i] = price
	}

	h, ok := GeneralizedHurst(series, 50, 1)
	require.True(t, ok)
	assert.InDelta(t, 0.5, h, 0.15, "Random walk Hurst should be near 0.5, got %v", h)
}

func TestGeneralizedHurstTrending(t *testing.T) {
	n := 1000
	series := make([]float64, n)
	for i := 0; i < n; i++ {
		series[i] = float64(i) * 0.5
	}

	h, ok := GeneralizedHurst(series, 50, 1)
	require.True(t, ok)
	assert.Greater(t, h, 0.8, "Strong trend should yield high Hurst, got %v", h)
}

func TestSpreadATRWarmup(t *testing.T) {
	spread := make([]float64, 60)
	for i := range spread {
		spread[i] = math.Sin(float64(i) / 5)
	}

	atr := SpreadATR(spread, 14)
	require.Len(t, atr, 60)
	for i := 0; i < 2*14-2; i++ {
		assert.True(t, math.IsNaN(atr[i]), "Expected NaN at warmup index %d", i)
	}
	for i := 2*14 - 2; i < 60; i++ {
		assert.False(t, math.IsNaN(atr[i]), "Expected value at index %d", i)
		assert.Greater(t, atr[i], 0.0)
	}
}

func TestSpreadATRConstant(t *testing.T) {
	spread := make([]float64, 40)
	for i := range spread {
		spread[i] = 7.5
	}

	atr := SpreadATR(spread, 14)
	assert.Equal(t, 0.0, atr[len(atr)-1], "Constant spread should have zero range")
}

func TestMacKinnonPValueClamps(t *testing.T) {
	assert.Equal(t, 0.0, mackinnonPValue(-25.0), "Below tau_min should clamp to 0")
	assert.Equal(t, 1.0, mackinnonPValue(5.0), "Above tau_max should clamp to 1")

	p := mackinnonPValue(-3.5)
	assert.Greater(t, p, 0.0)
	assert.Less(t, p, 0.05)
}

func TestADFTestStationary(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	n := 300
	series := make([]float64, n)
	v := 0.0
	for i := 0; i < n; i++ {
		v = 0.2*v + rng.NormFloat64()
		series[i] = v
	}

	res, err := ADFTest(series)
	require.NoError(t, err)
	assert.Less(t, res.PValue, 0.05, "AR(0.2) process should reject unit root, p=%v", res.PValue)
}

func TestADFTestRandomWalk(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	n := 300
	series := make([]float64, n)
	price := 0.0
	for i := 0; i < n; i++ {
		price += rng.NormFloat64()
		series[i] = price
	}

	res, err := ADFTest(series)
	require.NoError(t, err)
	assert.Greater(t, res.PValue, 0.10, "Random walk should not reject unit root, p=%v", res.PValue)
}

func TestADFTestTooShort(t *testing.T) {
	_, err := ADFTest([]float64{1, 2, 3})
	assert.Error(t, err)
}
