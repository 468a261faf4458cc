package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pairtrader/statarb-cli/internal/config"
)

func newTestClient(serverURL string) *Client {
	cfg := &config.Config{
		BinanceBaseURL:  serverURL,
		HTTPTimeout:     5 * time.Second,
		RequestInterval: time.Millisecond,
	}
	c := NewClient(cfg, zap.NewNop())
	c.retryUnit = time.Millisecond
	return c
}

func TestTopAssetsFiltering(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/ticker/24hr" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `[
			{"symbol":"BTCUSDT","quoteVolume":"5000000000"},
			{"symbol":"ETHUSDT","quoteVolume":"2000000000"},
			{"symbol":"SOLUSDT","quoteVolume":"8000000000"},
			{"symbol":"USDCUSDT","quoteVolume":"9000000000"},
			{"symbol":"BTCUSDT_250926","quoteVolume":"100000000"},
			{"symbol":"ETHBTC","quoteVolume":"300000000"},
			{"symbol":"DOGEUSDT","quoteVolume":"500"}
		]`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assets, err := client.TopAssets(context.Background(), 10, 1_000_000)
	if err != nil {
		t.Fatalf("TopAssets failed: %v", err)
	}

	expected := []string{"SOL", "BTC", "ETH"}
	if len(assets) != len(expected) {
		t.Fatalf("Expected %d assets, got %d: %v", len(expected), len(assets), assets)
	}
	for i, want := range expected {
		if assets[i] != want {
			t.Errorf("Expected asset %s at position %d, got %s", want, i, assets[i])
		}
	}
}

func TestTopAssetsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"symbol":"BTCUSDT","quoteVolume":"5000000000"},
			{"symbol":"ETHUSDT","quoteVolume":"2000000000"},
			{"symbol":"SOLUSDT","quoteVolume":"1000000000"}
		]`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assets, err := client.TopAssets(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("TopAssets failed: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("Expected 2 assets, got %d", len(assets))
	}
	if assets[0] != "BTC" || assets[1] != "ETH" {
		t.Errorf("Expected [BTC ETH], got %v", assets)
	}
}

func TestTopAssetsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"symbol":"USDCUSDT","quoteVolume":"9000000000"}]`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.TopAssets(context.Background(), 10, 1_000_000)
	if !errors.Is(err, ErrNoAssets) {
		t.Errorf("Expected ErrNoAssets, got %v", err)
	}
}

func TestGeoRestriction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnavailableForLegalReasons)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.TopAssets(context.Background(), 10, 0)
	if !errors.Is(err, ErrRestricted) {
		t.Errorf("Expected ErrRestricted, got %v", err)
	}
}

func TestRateLimitRetryThenSuccess(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"code":-1003,"msg":"Too many requests"}`)
			return
		}
		fmt.Fprint(w, `[{"symbol":"BTCUSDT","quoteVolume":"5000000000"}]`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assets, err := client.TopAssets(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("Expected retry to recover, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
	if len(assets) != 1 || assets[0] != "BTC" {
		t.Errorf("Expected [BTC], got %v", assets)
	}
}

func TestRateLimitExhaustsRetries(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"code":-1003,"msg":"Too many requests"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.TopAssets(context.Background(), 10, 0)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
	if calls != maxRetries {
		t.Errorf("Expected %d calls, got %d", maxRetries, calls)
	}
}

func TestKlinesSinglePage(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("Expected symbol BTCUSDT, got %s", got)
		}
		if got := r.URL.Query().Get("interval"); got != "1d" {
			t.Errorf("Expected interval 1d, got %s", got)
		}
		fmt.Fprintf(w, `[
			[%d,"100","110","90","105","1000",0,"0",0,"0","0","0"],
			[%d,"105","115","95","108","1000",0,"0",0,"0","0","0"],
			[%d,"108","118","98","112","1000",0,"0",0,"0","0","0"]
		]`, base.UnixMilli(), base.AddDate(0, 0, 1).UnixMilli(), base.AddDate(0, 0, 2).UnixMilli())
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	series, err := client.Klines(context.Background(), "BTC", 3)
	if err != nil {
		t.Fatalf("Klines failed: %v", err)
	}

	if len(series) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(series))
	}
	expectedCloses := []float64{105, 108, 112}
	for i, want := range expectedCloses {
		if series[i].Close != want {
			t.Errorf("Expected close %v at index %d, got %v", want, i, series[i].Close)
		}
	}
	if !series[0].Date.Equal(base) {
		t.Errorf("Expected first date %v, got %v", base, series[0].Date)
	}
	if !series[1].Date.After(series[0].Date) {
		t.Errorf("Expected ascending dates, got %v then %v", series[0].Date, series[1].Date)
	}
}

func TestKlinesDeduplicatesOverlap(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The same candle twice in one payload.
		fmt.Fprintf(w, `[
			[%d,"100","110","90","105","1000",0,"0",0,"0","0","0"],
			[%d,"100","110","90","105","1000",0,"0",0,"0","0","0"]
		]`, base.UnixMilli(), base.UnixMilli())
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	series, err := client.Klines(context.Background(), "BTC", 5)
	if err != nil {
		t.Fatalf("Klines failed: %v", err)
	}
	if len(series) != 1 {
		t.Errorf("Expected 1 deduplicated point, got %d", len(series))
	}
}
