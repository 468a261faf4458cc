package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pairtrader/statarb-cli/internal/backtest"
	"github.com/pairtrader/statarb-cli/internal/binance"
	"github.com/pairtrader/statarb-cli/internal/config"
	"github.com/pairtrader/statarb-cli/internal/dataloader"
	"github.com/pairtrader/statarb-cli/internal/screener"
)

var (
	// Global instances
	cfg          *config.Config
	client       *binance.Client
	provider     *dataloader.Provider
	pairScreener *screener.Screener
	backtester   *backtest.Backtester
	logger       *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "statarb",
	Short: "Crypto statistical arbitrage pair screener and backtester",
	Long: `statarb screens crypto assets for cointegrated pairs, backtests
z-score mean reversion strategies on the spread, and monitors live
spreads over websocket market data.`,
	PersistentPreRunE: initializeApp,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().Bool("json", false, "emit raw JSON instead of tables")
}

// initConfig configures the logger: default INFO, DEBUG if DEBUG env is truthy.
func initConfig() {
	verbose := false
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" || v == "yes" {
		verbose = true
	}

	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	var err error
	logger, err = zcfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
}

// initializeApp sets up all dependencies
func initializeApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client = binance.NewClient(cfg, logger)
	provider = dataloader.NewProvider(client, cfg, logger)
	pairScreener = screener.New(provider, logger)
	backtester = backtest.New(provider, logger)

	return nil
}

// jsonOutput reports whether the global --json flag is set
func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}
