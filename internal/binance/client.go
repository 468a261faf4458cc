package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pairtrader/statarb-cli/internal/config"
	"github.com/pairtrader/statarb-cli/internal/models"
)

const (
	klinesPerPage = 1000
	maxRetries    = 3
	msPerDay      = int64(24 * time.Hour / time.Millisecond)
)

// Stablecoins are excluded from the tradable universe since their price
// series carry no mean-reversion signal.
var stablecoins = map[string]struct{}{
	"USDT": {}, "USDC": {}, "BUSD": {}, "DAI": {},
	"TUSD": {}, "USDP": {}, "USDD": {},
}

// Client is a thin wrapper around the Binance USDT-M futures REST API.
// All requests flow through a shared rate limiter and circuit breaker.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger

	// retryUnit scales retry backoff so tests can run without real sleeps.
	retryUnit time.Duration
}

// NewClient creates a new Binance futures client
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance-rest",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		baseURL:   cfg.BinanceBaseURL,
		limiter:   rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		breaker:   breaker,
		logger:    logger,
		retryUnit: time.Second,
	}
}

// doRequest performs a rate-limited GET through the circuit breaker.
func (c *Client) doRequest(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.BinanceAPIKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.cfg.BinanceAPIKey)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.httpClient.Do(req)
	})
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, ErrTimeout
		}
		return nil, err
	}

	return result.(*http.Response), nil
}

// parseResponse reads and unmarshals the response, classifying fatal statuses.
func parseResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)

		switch {
		case resp.StatusCode == http.StatusUnavailableForLegalReasons:
			return ErrRestricted
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusTeapot, apiErr.Code == -1003:
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		}
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	return json.Unmarshal(body, target)
}

// getJSON fetches path with retries. Rate-limit responses back off with
// growing waits; geo-restriction and timeouts abort immediately.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, target interface{}) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := c.doRequest(ctx, path, params)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				return err
			}
			lastErr = err
			continue
		}

		err = parseResponse(resp, target)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRestricted) {
			return err
		}
		lastErr = err

		wait := time.Duration(2*(attempt+1)) * 5 * c.retryUnit
		if errors.Is(err, ErrRateLimited) {
			wait = time.Duration(2*(attempt+1)) * 10 * c.retryUnit
			c.logger.Warn("rate limited, backing off",
				zap.String("path", path),
				zap.Duration("wait", wait))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

type ticker24h struct {
	Symbol      string `json:"symbol"`
	QuoteVolume string `json:"quoteVolume"`
}

// TopAssets returns up to limit USDT-quoted perpetual base assets sorted by
// 24h quote volume descending. Dated delivery contracts and stablecoin bases
// are excluded.
func (c *Client) TopAssets(ctx context.Context, limit int, minVolumeUSD float64) ([]string, error) {
	var tickers []ticker24h
	if err := c.getJSON(ctx, "/fapi/v1/ticker/24hr", nil, &tickers); err != nil {
		return nil, err
	}

	type candidate struct {
		base   string
		volume float64
	}
	var candidates []candidate
	for _, t := range tickers {
		if strings.Contains(t.Symbol, "_") {
			continue
		}
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		base := strings.TrimSuffix(t.Symbol, "USDT")
		if base == "" {
			continue
		}
		if _, isStable := stablecoins[base]; isStable {
			continue
		}
		vol, err := strconv.ParseFloat(t.QuoteVolume, 64)
		if err != nil || vol < minVolumeUSD {
			continue
		}
		candidates = append(candidates, candidate{base: base, volume: vol})
	}

	if len(candidates) == 0 {
		return nil, ErrNoAssets
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].volume > candidates[j].volume
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	assets := make([]string, len(candidates))
	for i, cand := range candidates {
		assets[i] = cand.base
	}
	return assets, nil
}

// Klines fetches up to days daily closes for the asset's USDT perpetual,
// paginating backwards in 1000-candle batches and deduplicating on open time.
func (c *Client) Klines(ctx context.Context, asset string, days int) (models.PriceSeries, error) {
	symbol := strings.ToUpper(asset) + "USDT"

	byTime := make(map[int64]float64)
	now := time.Now().UnixMilli()

	fetch := func(startMs int64, count int) error {
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("interval", "1d")
		params.Set("limit", strconv.Itoa(count))
		if startMs > 0 {
			params.Set("startTime", strconv.FormatInt(startMs, 10))
		}

		var raw [][]json.RawMessage
		if err := c.getJSON(ctx, "/fapi/v1/klines", params, &raw); err != nil {
			return err
		}
		for _, row := range raw {
			if len(row) < 5 {
				continue
			}
			var openTime int64
			if err := json.Unmarshal(row[0], &openTime); err != nil {
				continue
			}
			var closeStr string
			if err := json.Unmarshal(row[4], &closeStr); err != nil {
				continue
			}
			closePrice, err := strconv.ParseFloat(closeStr, 64)
			if err != nil {
				continue
			}
			byTime[openTime] = closePrice
		}
		return nil
	}

	if days <= klinesPerPage {
		if err := fetch(0, days); err != nil {
			return nil, err
		}
	} else {
		for batchEnd := days; batchEnd > 0; batchEnd -= klinesPerPage {
			count := klinesPerPage
			if batchEnd < klinesPerPage {
				count = batchEnd
			}
			since := now - int64(batchEnd)*msPerDay
			if err := fetch(since, count); err != nil {
				return nil, err
			}
		}
	}

	times := make([]int64, 0, len(byTime))
	for ts := range byTime {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	if len(times) > days {
		times = times[len(times)-days:]
	}

	series := make(models.PriceSeries, 0, len(times))
	for _, ts := range times {
		series = append(series, models.PricePoint{
			Date:  time.UnixMilli(ts).UTC().Truncate(24 * time.Hour),
			Close: byTime[ts],
		})
	}

	c.logger.Debug("fetched klines",
		zap.String("symbol", symbol),
		zap.Int("requested_days", days),
		zap.Int("points", len(series)))

	return series, nil
}
