package screener

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pairtrader/statarb-cli/internal/models"
)

type stubPrices struct {
	series        map[string]models.PriceSeries
	universe      []string
	universeCalls int
}

func (s *stubPrices) Prices(ctx context.Context, asset string, days int) (models.PriceSeries, error) {
	return s.series[asset].Clone(), nil
}

func (s *stubPrices) Universe(ctx context.Context, limit int, minVolumeUSD float64) ([]string, error) {
	s.universeCalls++
	return s.universe, nil
}

func toSeries(closes []float64) models.PriceSeries {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(models.PriceSeries, len(closes))
	for i, c := range closes {
		out[i] = models.PricePoint{Date: base.AddDate(0, 0, i), Close: c}
	}
	return out
}

// threeAssetUniverse builds AAA/BBB as a cointegrated pair and CCC as an
// unrelated oscillator that fails the correlation gate.
func threeAssetUniverse(n int) map[string]models.PriceSeries {
	rng := rand.New(rand.NewSource(42))

	a := make([]float64, n)
	b := make([]float64, n)
	c := make([]float64, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += rng.NormFloat64()
		a[i] = price
		b[i] = 2*price + 10 + rng.NormFloat64()*0.5
		c[i] = 50 + 5*math.Sin(float64(i)/5)
	}

	return map[string]models.PriceSeries{
		"AAA": toSeries(a),
		"BBB": toSeries(b),
		"CCC": toSeries(c),
	}
}

func testConfig() models.ScreeningConfig {
	return models.ScreeningConfig{
		Assets:         []string{"AAA", "BBB", "CCC"},
		LookbackDays:   400,
		MinCorrelation: 0.80,
		MaxADFPValue:   0.10,
	}
}

func TestScreenFindsCointegatedPair(t *testing.T) {
	src := &stubPrices{series: threeAssetUniverse(400)}
	s := New(src, zap.NewNop())

	run, err := s.Screen(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Screen failed: %v", err)
	}

	if run.SessionID == "" {
		t.Error("Expected a session ID")
	}
	if run.Stats.AssetsConsidered != 3 {
		t.Errorf("Expected 3 assets considered, got %d", run.Stats.AssetsConsidered)
	}
	if run.Stats.ValidAssets != 3 {
		t.Errorf("Expected 3 valid assets, got %d", run.Stats.ValidAssets)
	}
	if run.Stats.PairsGenerated != 3 {
		t.Errorf("Expected 3 pairs generated, got %d", run.Stats.PairsGenerated)
	}
	if run.Stats.PairsProcessed != 3 {
		t.Errorf("Expected 3 pairs processed, got %d", run.Stats.PairsProcessed)
	}

	if len(run.Results) != 1 {
		t.Fatalf("Expected exactly 1 pair found, got %d", len(run.Results))
	}
	found := run.Results[0]
	if found.AssetA != "AAA" || found.AssetB != "BBB" {
		t.Errorf("Expected AAA/BBB, got %s/%s", found.AssetA, found.AssetB)
	}
	if math.Abs(found.Beta-2.0) > 0.2 {
		t.Errorf("Expected beta near 2.0, got %v", found.Beta)
	}
	if found.ADFPValue > 0.10 {
		t.Errorf("Expected adf_pvalue <= 0.10, got %v", found.ADFPValue)
	}
	if found.Correlation < 0.80 {
		t.Errorf("Expected correlation >= 0.80, got %v", found.Correlation)
	}
	if found.CompositeScore <= 0 || found.CompositeScore > 100 {
		t.Errorf("Expected composite score in (0,100], got %v", found.CompositeScore)
	}
}

func TestScreenIncludeHurst(t *testing.T) {
	src := &stubPrices{series: threeAssetUniverse(400)}
	s := New(src, zap.NewNop())

	cfg := testConfig()
	cfg.IncludeHurst = true
	run, err := s.Screen(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Screen failed: %v", err)
	}
	if len(run.Results) != 1 {
		t.Fatalf("Expected 1 pair, got %d", len(run.Results))
	}
	if run.Results[0].HurstExponent == nil {
		t.Error("Expected Hurst exponent when requested")
	}
}

func TestScreenTooFewValidAssets(t *testing.T) {
	series := threeAssetUniverse(400)
	src := &stubPrices{series: map[string]models.PriceSeries{"AAA": series["AAA"]}}
	s := New(src, zap.NewNop())

	cfg := testConfig()
	cfg.Assets = []string{"AAA"}
	run, err := s.Screen(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Expected empty run, not error: %v", err)
	}
	if len(run.Results) != 0 {
		t.Errorf("Expected no results, got %d", len(run.Results))
	}
	if run.Stats.PairsGenerated != 0 {
		t.Errorf("Expected 0 pairs generated, got %d", run.Stats.PairsGenerated)
	}
}

func TestScreenAvailabilityFilter(t *testing.T) {
	series := threeAssetUniverse(400)
	// CCC has only a quarter of the requested lookback.
	series["CCC"] = series["CCC"][:100]
	src := &stubPrices{series: series}
	s := New(src, zap.NewNop())

	run, err := s.Screen(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Screen failed: %v", err)
	}
	if run.Stats.ValidAssets != 2 {
		t.Errorf("Expected 2 valid assets after availability filter, got %d", run.Stats.ValidAssets)
	}
	if run.Stats.PairsGenerated != 1 {
		t.Errorf("Expected 1 pair from 2 valid assets, got %d", run.Stats.PairsGenerated)
	}
	if len(run.Results) != 1 {
		t.Errorf("Expected the surviving pair to pass, got %d results", len(run.Results))
	}
}

func TestScreenResolvesUniverse(t *testing.T) {
	src := &stubPrices{
		series:   threeAssetUniverse(400),
		universe: []string{"AAA", "BBB", "CCC"},
	}
	s := New(src, zap.NewNop())

	cfg := testConfig()
	cfg.Assets = nil
	run, err := s.Screen(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Screen failed: %v", err)
	}
	if src.universeCalls != 1 {
		t.Errorf("Expected 1 universe lookup, got %d", src.universeCalls)
	}
	if run.Stats.AssetsConsidered != 3 {
		t.Errorf("Expected 3 assets from universe, got %d", run.Stats.AssetsConsidered)
	}
}

func TestLiveRunOnce(t *testing.T) {
	src := &stubPrices{series: threeAssetUniverse(400)}
	live := NewLive(New(src, zap.NewNop()), testConfig(), time.Hour, zap.NewNop())

	if err := live.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	results := live.Results()
	if len(results) != 1 {
		t.Fatalf("Expected 1 stored result, got %d", len(results))
	}

	session := live.LastSession()
	if session == nil {
		t.Fatal("Expected a session summary")
	}
	if session.PairsFound != 1 {
		t.Errorf("Expected 1 pair found, got %d", session.PairsFound)
	}
	if session.Status != "completed" {
		t.Errorf("Expected status completed, got %s", session.Status)
	}

	st := live.Status()
	if st.Running {
		t.Error("Expected running flag cleared after completion")
	}
	if st.LastScreeningAt == nil {
		t.Error("Expected last screening timestamp")
	}
}

func TestLiveRejectsConcurrentRun(t *testing.T) {
	src := &stubPrices{series: threeAssetUniverse(400)}
	live := NewLive(New(src, zap.NewNop()), testConfig(), time.Hour, zap.NewNop())

	live.mu.Lock()
	live.running = true
	live.mu.Unlock()

	if err := live.RunOnce(context.Background()); err != ErrScreeningInProgress {
		t.Errorf("Expected ErrScreeningInProgress, got %v", err)
	}
}

func TestLiveHistory(t *testing.T) {
	src := &stubPrices{series: threeAssetUniverse(400)}
	live := NewLive(New(src, zap.NewNop()), testConfig(), time.Hour, zap.NewNop())

	if err := live.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(live.History()) != 0 {
		t.Errorf("Expected empty history after first run, got %d entries", len(live.History()))
	}

	if err := live.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	history := live.History()
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry after second run, got %d", len(history))
	}
	if len(history[0].Results) != 1 {
		t.Errorf("Expected archived results, got %d", len(history[0].Results))
	}
}
