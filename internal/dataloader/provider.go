package dataloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/pairtrader/statarb-cli/internal/config"
	"github.com/pairtrader/statarb-cli/internal/models"
)

// sufficiencyRatio is the fraction of requested days a cached or fetched
// series must cover to be considered usable.
const sufficiencyRatio = 0.8

const universeCacheTTL = 5 * time.Minute

// Exchange is the subset of the REST client the provider needs.
type Exchange interface {
	Klines(ctx context.Context, asset string, days int) (models.PriceSeries, error)
	TopAssets(ctx context.Context, limit int, minVolumeUSD float64) ([]string, error)
}

// Provider serves daily price series through three tiers: an in-process map,
// a JSON disk cache, and the exchange REST API. Concurrent requests for the
// same series share a single fetch.
type Provider struct {
	exchange Exchange
	cfg      *config.Config
	logger   *zap.Logger

	mu          sync.Mutex
	memory      map[string]models.PriceSeries
	memoryOrder []string

	// insufficient tracks assets whose full history is shorter than requested,
	// keyed by asset, holding the best length ever observed.
	insufficient map[string]int

	fetchLocks map[string]*sync.Mutex

	hot *gocache.Cache
}

// NewProvider creates a price data provider backed by the given exchange.
func NewProvider(exchange Exchange, cfg *config.Config, logger *zap.Logger) *Provider {
	return &Provider{
		exchange:     exchange,
		cfg:          cfg,
		logger:       logger,
		memory:       make(map[string]models.PriceSeries),
		insufficient: make(map[string]int),
		fetchLocks:   make(map[string]*sync.Mutex),
		hot:          gocache.New(universeCacheTTL, 10*time.Minute),
	}
}

func cacheKey(asset string, days int) string {
	return fmt.Sprintf("%s_%d", strings.ToUpper(asset), days)
}

func sufficientLen(n, days int) bool {
	return n >= int(float64(days)*sufficiencyRatio)
}

func sufficient(series models.PriceSeries, days int) bool {
	return sufficientLen(len(series), days)
}

// Prices returns up to days daily closes for asset, most recent last.
// A series shorter than the lookback is returned as-is; some pairs can
// still use it. Available reports whether it meets the sufficiency rule.
func (p *Provider) Prices(ctx context.Context, asset string, days int) (models.PriceSeries, error) {
	asset = strings.ToUpper(asset)
	key := cacheKey(asset, days)

	p.mu.Lock()
	// A known-short asset never grows more history; its cached partial
	// series is the best we will get, so skip the refetch.
	short := false
	if best, known := p.insufficient[asset]; known && !sufficientLen(best, days) {
		short = true
	}
	if series, ok := p.memory[key]; ok && (short || sufficient(series, days)) {
		p.mu.Unlock()
		return series.Clone(), nil
	}
	lock := p.fetchLocks[key]
	if lock == nil {
		lock = &sync.Mutex{}
		p.fetchLocks[key] = lock
	}
	p.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have filled the cache while we waited.
	p.mu.Lock()
	if best, known := p.insufficient[asset]; known && !sufficientLen(best, days) {
		short = true
	}
	if series, ok := p.memory[key]; ok && (short || sufficient(series, days)) {
		p.mu.Unlock()
		return series.Clone(), nil
	}
	p.mu.Unlock()

	if series := p.loadDisk(key); sufficient(series, days) || (short && len(series) > 0) {
		p.store(key, series)
		return series.Clone(), nil
	}

	series, err := p.exchange.Klines(ctx, asset, days)
	if err != nil {
		// Degrade to whatever cached data exists before surfacing the error.
		if cached := p.loadDisk(key); len(cached) > 0 {
			p.logger.Warn("fetch failed, using disk cache",
				zap.String("asset", asset), zap.Error(err))
			return cached, nil
		}
		p.mu.Lock()
		cached, ok := p.memory[key]
		p.mu.Unlock()
		if ok && len(cached) > 0 {
			p.logger.Warn("fetch failed, using memory cache",
				zap.String("asset", asset), zap.Error(err))
			return cached.Clone(), nil
		}
		return nil, err
	}

	if !sufficient(series, days) {
		p.mu.Lock()
		if len(series) > p.insufficient[asset] || p.insufficient[asset] == 0 {
			p.insufficient[asset] = len(series)
		}
		p.mu.Unlock()
		p.logger.Debug("insufficient history, returning partial series",
			zap.String("asset", asset),
			zap.Int("requested", days),
			zap.Int("available", len(series)))
	}

	p.store(key, series)
	p.saveDisk(key, series)
	return series.Clone(), nil
}

// Available reports whether asset has enough history for the lookback.
func (p *Provider) Available(ctx context.Context, asset string, days int) bool {
	series, err := p.Prices(ctx, asset, days)
	return err == nil && sufficient(series, days)
}

// Universe returns the top tradable base assets by volume, cached briefly
// so repeated screening runs do not hammer the ticker endpoint.
func (p *Provider) Universe(ctx context.Context, limit int, minVolumeUSD float64) ([]string, error) {
	hotKey := fmt.Sprintf("universe_%d_%.0f", limit, minVolumeUSD)
	if cached, ok := p.hot.Get(hotKey); ok {
		return cached.([]string), nil
	}

	assets, err := p.exchange.TopAssets(ctx, limit, minVolumeUSD)
	if err != nil {
		return nil, err
	}
	p.hot.Set(hotKey, assets, gocache.DefaultExpiration)
	return assets, nil
}

// store inserts into the memory tier, evicting oldest entries past the cap.
func (p *Provider) store(key string, series models.PriceSeries) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.memory[key]; !exists {
		p.memoryOrder = append(p.memoryOrder, key)
	}
	p.memory[key] = series

	max := p.cfg.MemoryCacheMaxItems
	if max <= 0 {
		max = 200
	}
	for len(p.memoryOrder) > max {
		oldest := p.memoryOrder[0]
		p.memoryOrder = p.memoryOrder[1:]
		delete(p.memory, oldest)
	}
}

func (p *Provider) diskPath(key string) string {
	return filepath.Join(p.cfg.CacheDir, key+".json")
}

func (p *Provider) loadDisk(key string) models.PriceSeries {
	data, err := os.ReadFile(p.diskPath(key))
	if err != nil {
		return nil
	}
	var series models.PriceSeries
	if err := json.Unmarshal(data, &series); err != nil {
		p.logger.Warn("corrupt cache file", zap.String("key", key), zap.Error(err))
		return nil
	}
	return series
}

func (p *Provider) saveDisk(key string, series models.PriceSeries) {
	if err := os.MkdirAll(p.cfg.CacheDir, 0o755); err != nil {
		p.logger.Warn("create cache dir", zap.Error(err))
		return
	}
	data, err := json.Marshal(series)
	if err != nil {
		return
	}
	if err := os.WriteFile(p.diskPath(key), data, 0o644); err != nil {
		p.logger.Warn("write cache file", zap.String("key", key), zap.Error(err))
	}
}

// ClearCache drops cached series from both tiers. Either filter may be
// zero-valued: empty asset matches every symbol, days<=0 matches every
// lookback, and both empty clears everything.
func (p *Provider) ClearCache(asset string, days int) error {
	asset = strings.ToUpper(asset)

	p.mu.Lock()
	kept := p.memoryOrder[:0]
	for _, key := range p.memoryOrder {
		if matchesKey(key, asset, days) {
			delete(p.memory, key)
			continue
		}
		kept = append(kept, key)
	}
	p.memoryOrder = kept
	if asset == "" {
		p.insufficient = make(map[string]int)
	} else {
		delete(p.insufficient, asset)
	}
	p.mu.Unlock()

	entries, err := os.ReadDir(p.cfg.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".json")
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if matchesKey(name, asset, days) {
			if err := os.Remove(filepath.Join(p.cfg.CacheDir, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// CachedEntries lists disk cache entries as key and point count pairs.
func (p *Provider) CachedEntries() (map[string]int, error) {
	entries, err := os.ReadDir(p.cfg.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, err
	}

	out := make(map[string]int, len(entries))
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), ".json")
		series := p.loadDisk(key)
		out[key] = len(series)
	}
	return out, nil
}

func matchesKey(key, asset string, days int) bool {
	if days > 0 && !strings.HasSuffix(key, fmt.Sprintf("_%d", days)) {
		return false
	}
	if asset == "" {
		return true
	}
	return strings.HasPrefix(key, asset+"_")
}
