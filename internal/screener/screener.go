package screener

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pairtrader/statarb-cli/internal/models"
	"github.com/pairtrader/statarb-cli/internal/stats"
)

const (
	maxWorkers       = 4
	preloadTimeout   = 60 * time.Second
	pairTimeout      = 30 * time.Second
	minAlignedPoints = 50
	// availabilityRatio is the fraction of the lookback an asset must cover.
	availabilityRatio = 0.8
)

// PriceSource provides historical prices and the tradable universe.
type PriceSource interface {
	Prices(ctx context.Context, asset string, days int) (models.PriceSeries, error)
	Universe(ctx context.Context, limit int, minVolumeUSD float64) ([]string, error)
}

// Screener tests asset pairs for statistical-arbitrage tradability.
// Per-pair failures are swallowed and counted; a run always completes with
// whatever valid pairs it found.
type Screener struct {
	prices PriceSource
	logger *zap.Logger
}

// New creates a pairs screener over the given price source.
func New(prices PriceSource, logger *zap.Logger) *Screener {
	return &Screener{prices: prices, logger: logger}
}

// Screen runs the full screening pipeline: universe resolution, data
// availability pre-filtering, pair generation, concurrent two-stage testing,
// and final filtering plus ranking.
func (s *Screener) Screen(ctx context.Context, cfg models.ScreeningConfig) (*models.ScreeningRun, error) {
	startedAt := time.Now().UTC()
	run := &models.ScreeningRun{
		SessionID: uuid.NewString(),
		Config:    cfg,
		Results:   []models.PairCandidate{},
		Stats:     models.ScreeningStats{StartedAt: startedAt},
	}

	assets := cfg.Assets
	if len(assets) == 0 {
		var err error
		assets, err = s.prices.Universe(ctx, cfg.MaxAssets, cfg.MinVolumeUSD)
		if err != nil {
			return nil, err
		}
	}
	run.Stats.AssetsConsidered = len(assets)
	s.logger.Info("resolved screening universe", zap.Int("assets", len(assets)))

	// Availability pre-filter before pair generation keeps doomed pairs out
	// of the O(n^2) test stage.
	validAssets := s.filterByAvailability(ctx, assets, cfg.LookbackDays)
	run.Stats.ValidAssets = len(validAssets)
	s.logger.Info("availability filter complete",
		zap.Int("valid", len(validAssets)),
		zap.Int("removed", len(assets)-len(validAssets)))

	if len(validAssets) < 2 {
		run.Stats.Duration = time.Since(startedAt)
		s.logger.Warn("not enough assets with sufficient data to form pairs")
		return run, nil
	}

	type pair struct{ a, b string }
	var pairs []pair
	for i, a := range validAssets {
		for _, b := range validAssets[i+1:] {
			pairs = append(pairs, pair{a, b})
		}
	}
	run.Stats.PairsGenerated = len(pairs)
	s.logger.Info("testing pairs", zap.Int("pairs", len(pairs)))

	workers := maxWorkers
	if len(pairs) < workers {
		workers = len(pairs)
	}

	var (
		mu        sync.Mutex
		results   []models.PairCandidate
		processed int
	)
	jobs := make(chan pair)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				pairCtx, cancel := context.WithTimeout(ctx, pairTimeout)
				candidate := s.testPair(pairCtx, p.a, p.b, cfg)
				cancel()

				mu.Lock()
				processed++
				if candidate != nil {
					results = append(results, *candidate)
				}
				mu.Unlock()
			}
		}()
	}
	for _, p := range pairs {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	run.Stats.PairsProcessed = processed

	filtered := results[:0]
	for _, r := range results {
		if r.Correlation >= cfg.MinCorrelation && r.ADFPValue <= cfg.MaxADFPValue {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Correlation*(1-filtered[i].ADFPValue) >
			filtered[j].Correlation*(1-filtered[j].ADFPValue)
	})

	run.Results = filtered
	run.Stats.PairsFound = len(filtered)
	run.Stats.Duration = time.Since(startedAt)

	s.logger.Info("screening complete",
		zap.String("session_id", run.SessionID),
		zap.Int("pairs_found", len(filtered)),
		zap.Duration("duration", run.Stats.Duration))
	return run, nil
}

// filterByAvailability concurrently preloads every candidate's price series
// and keeps assets covering at least 80% of the lookback. Fetch failures
// exclude the asset, never abort the run.
func (s *Screener) filterByAvailability(ctx context.Context, assets []string, lookbackDays int) []string {
	minRequired := int(float64(lookbackDays) * availabilityRatio)

	workers := maxWorkers
	if len(assets) < workers {
		workers = len(assets)
	}
	if workers == 0 {
		return nil
	}

	available := make(map[string]bool, len(assets))
	var mu sync.Mutex
	jobs := make(chan string)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for asset := range jobs {
				fetchCtx, cancel := context.WithTimeout(ctx, preloadTimeout)
				series, err := s.prices.Prices(fetchCtx, asset, lookbackDays)
				cancel()
				if err != nil {
					s.logger.Warn("removing asset, data load failed",
						zap.String("asset", asset), zap.Error(err))
					continue
				}
				if len(series) < minRequired {
					s.logger.Debug("removing asset, insufficient history",
						zap.String("asset", asset),
						zap.Int("available", len(series)),
						zap.Int("required", minRequired))
					continue
				}
				mu.Lock()
				available[asset] = true
				mu.Unlock()
			}
		}()
	}
	for _, asset := range assets {
		jobs <- asset
	}
	close(jobs)
	wg.Wait()

	valid := make([]string, 0, len(available))
	for _, asset := range assets {
		if available[asset] {
			valid = append(valid, asset)
		}
	}
	return valid
}

// testPair runs the two-stage filter on one pair: a cheap correlation gate,
// then the cointegration test, then full candidate scoring. Returns nil when
// the pair fails any stage.
func (s *Screener) testPair(ctx context.Context, assetA, assetB string, cfg models.ScreeningConfig) *models.PairCandidate {
	seriesA, err := s.prices.Prices(ctx, assetA, cfg.LookbackDays)
	if err != nil {
		s.logger.Debug("pair test failed", zap.String("asset", assetA), zap.Error(err))
		return nil
	}
	seriesB, err := s.prices.Prices(ctx, assetB, cfg.LookbackDays)
	if err != nil {
		s.logger.Debug("pair test failed", zap.String("asset", assetB), zap.Error(err))
		return nil
	}

	minRequired := int(float64(cfg.LookbackDays) * availabilityRatio)
	if len(seriesA) < minRequired || len(seriesB) < minRequired {
		return nil
	}

	_, closesA, closesB := models.AlignSeries(seriesA, seriesB)

	corr, minCorr, maxCorr := stats.Correlation(closesA, closesB, 0)

	// Stage one: cheap correlation gate at 90% of the configured threshold.
	quickThreshold := math.Max(0.7, cfg.MinCorrelation*0.9)
	if corr < quickThreshold {
		return nil
	}

	eg := stats.EngleGranger(closesA, closesB)
	if !eg.IsCointegrated {
		return nil
	}
	if corr < cfg.MinCorrelation {
		return nil
	}
	if len(closesA) < minAlignedPoints {
		return nil
	}

	alpha, _, err := stats.LinearFit(closesA, closesB)
	if err != nil {
		return nil
	}

	spread := stats.Spread(closesA, closesB, eg.Beta, alpha)
	meanSpread := 0.0
	for _, v := range spread {
		meanSpread += v
	}
	meanSpread /= float64(len(spread))

	zscore := stats.ZScore(spread)
	currentZ := 0.0
	if len(zscore) > 0 {
		currentZ = zscore[len(zscore)-1]
	}

	candidate := &models.PairCandidate{
		AssetA:         assetA,
		AssetB:         assetB,
		Correlation:    corr,
		MinCorrelation: minCorr,
		MaxCorrelation: maxCorr,
		Beta:           eg.Beta,
		Alpha:          alpha,
		ADFStatistic:   eg.ADFStatistic,
		ADFPValue:      eg.ADFPValue,
		SpreadStd:      eg.SpreadStd,
		MeanSpread:     meanSpread,
		CurrentZScore:  currentZ,
	}

	if cfg.IncludeHurst {
		if h, ok := stats.GeneralizedHurst(spread, 50, 1); ok {
			candidate.HurstExponent = &h
		}
	}

	candidate.CompositeScore = compositeScore(corr, eg.ADFPValue, candidate.HurstExponent)
	return candidate
}

// compositeScore blends correlation, ADF confidence, and Hurst proximity
// to 0.5 into a 0-100 pair strength indicator.
func compositeScore(corr, adfPValue float64, hurst *float64) float64 {
	h := 0.5
	if hurst != nil {
		h = *hurst
	}

	adfScore := clamp01(1.0 - adfPValue/0.1)
	hurstScore := clamp01(1.0 - math.Abs(h-0.5)*2)
	return (corr*0.5 + adfScore*0.3 + hurstScore*0.2) * 100
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
