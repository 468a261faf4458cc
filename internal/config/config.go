package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Binance API
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceBaseURL   string
	BinanceWSURL     string

	// Screener defaults
	ScreenerMinCorrelation float64
	ScreenerMaxADFPValue   float64
	ScreenerLookbackDays   int
	ScreenerMinVolumeUSD   float64
	ScreenerMaxAssets      int
	LiveScreeningInterval  time.Duration

	// Backtester defaults
	InitialCapital     float64
	TransactionCostPct float64

	// Data provider
	CacheDir            string
	MemoryCacheMaxItems int
	RequestInterval     time.Duration
	HTTPTimeout         time.Duration

	// Performance
	WebsocketReconnectDelay time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		// Binance API
		BinanceAPIKey:    getEnv("BINANCE_API_KEY", ""),
		BinanceAPISecret: getEnv("BINANCE_API_SECRET", ""),
		BinanceBaseURL:   getEnv("BINANCE_BASE_URL", "https://fapi.binance.com"),
		BinanceWSURL:     getEnv("BINANCE_WS_URL", "wss://fstream.binance.com/ws"),

		// Screener defaults (365-day lookback because crypto trades 24/7)
		ScreenerMinCorrelation: getEnvFloat("SCREENER_MIN_CORRELATION", 0.80),
		ScreenerMaxADFPValue:   getEnvFloat("SCREENER_MAX_ADF_PVALUE", 0.10),
		ScreenerLookbackDays:   getEnvInt("SCREENER_LOOKBACK_DAYS", 365),
		ScreenerMinVolumeUSD:   getEnvFloat("SCREENER_MIN_VOLUME_USD", 1_000_000),
		ScreenerMaxAssets:      getEnvInt("SCREENER_MAX_ASSETS", 100),
		LiveScreeningInterval:  getEnvDuration("LIVE_SCREENING_INTERVAL_SEC", 1800) * time.Second,

		// Backtester defaults
		InitialCapital:     getEnvFloat("BACKTEST_INITIAL_CAPITAL", 10000.0),
		TransactionCostPct: getEnvFloat("BACKTEST_TRANSACTION_COST_PCT", 0.001),

		// Data provider
		CacheDir:            getEnv("PRICE_CACHE_DIR", defaultCacheDir()),
		MemoryCacheMaxItems: getEnvInt("PRICE_CACHE_MAX_ITEMS", 200),
		RequestInterval:     getEnvDuration("REQUEST_INTERVAL_MS", 500) * time.Millisecond,
		HTTPTimeout:         getEnvDuration("HTTP_TIMEOUT_MS", 30000) * time.Millisecond,

		// Performance
		WebsocketReconnectDelay: getEnvDuration("WEBSOCKET_RECONNECT_DELAY_MS", 1000) * time.Millisecond,
	}

	return cfg, nil
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("cache", "price_data")
	}
	return filepath.Join(home, ".statarb-cli", "cache", "prices")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue int64) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(parsed)
		}
	}
	return time.Duration(defaultValue)
}
