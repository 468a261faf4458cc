package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pairtrader/statarb-cli/internal/backtest"
	"github.com/pairtrader/statarb-cli/internal/models"
	"github.com/pairtrader/statarb-cli/internal/strategy"
	"github.com/pairtrader/statarb-cli/pkg/formatters"
)

var (
	btEntry        float64
	btStopLoss     float64
	btStopType     string
	btTakeProfit   float64
	btTPType       string
	btRebalance    bool
	btRebalFreq    int
	btRebalThresh  float64
	btCapital      float64
	btPositionSize float64
	btCost         float64
	btLookback     int
	btBeta         float64
	btShowTrades   bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().Float64Var(&btEntry, "entry", 2.0, "entry z-score threshold")
	backtestCmd.Flags().Float64Var(&btStopLoss, "stop-loss", 0, "stop-loss level (0 = disabled)")
	backtestCmd.Flags().StringVar(&btStopType, "stop-loss-type", "zscore", "stop-loss unit: zscore, percent or atr")
	backtestCmd.Flags().Float64Var(&btTakeProfit, "take-profit", 0, "take-profit level (0 = disabled)")
	backtestCmd.Flags().StringVar(&btTPType, "take-profit-type", "zscore", "take-profit unit: zscore, percent or atr")
	backtestCmd.Flags().BoolVar(&btRebalance, "rebalance", false, "enable periodic hedge rebalancing")
	backtestCmd.Flags().IntVar(&btRebalFreq, "rebalance-freq", 5, "days between rebalance checks")
	backtestCmd.Flags().Float64Var(&btRebalThresh, "rebalance-threshold", 0.05, "relative beta drift that triggers a resize")
	backtestCmd.Flags().Float64Var(&btCapital, "capital", 0, "initial capital in USD")
	backtestCmd.Flags().Float64Var(&btPositionSize, "position-size", 100, "capital per trade as % of initial capital")
	backtestCmd.Flags().Float64Var(&btCost, "cost", 0, "transaction cost as a fraction per side")
	backtestCmd.Flags().IntVar(&btLookback, "lookback", 365, "lookback window in days")
	backtestCmd.Flags().Float64Var(&btBeta, "beta", 0, "fixed hedge ratio override (0 = fit from data)")
	backtestCmd.Flags().BoolVar(&btShowTrades, "trades", false, "print the full trade ledger")
}

var backtestCmd = &cobra.Command{
	Use:   "backtest [assetA] [assetB]",
	Short: "Backtest a pair spread strategy",
	Long: `Backtests a z-score mean reversion strategy on the spread between
two assets, with optional stop-loss, take-profit and hedge rebalancing.`,
	Args: cobra.ExactArgs(2),
	RunE: runBacktest,
}

func parseStopUnit(s string) (models.StopUnit, error) {
	switch strings.ToLower(s) {
	case "zscore":
		return models.StopZScore, nil
	case "percent":
		return models.StopPercent, nil
	case "atr":
		return models.StopATR, nil
	default:
		return models.StopNone, fmt.Errorf("unknown stop unit %q (want zscore, percent or atr)", s)
	}
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	assetA := strings.ToUpper(args[0])
	assetB := strings.ToUpper(args[1])

	strat := strategy.Config{
		EntryThreshold:           btEntry,
		EnableRebalancing:        btRebalance,
		RebalancingFrequencyDays: btRebalFreq,
		RebalancingThreshold:     btRebalThresh,
	}
	if btStopLoss != 0 {
		unit, err := parseStopUnit(btStopType)
		if err != nil {
			return err
		}
		strat.StopLoss = models.Float64Ptr(btStopLoss)
		strat.StopLossType = unit
	}
	if btTakeProfit != 0 {
		unit, err := parseStopUnit(btTPType)
		if err != nil {
			return err
		}
		strat.TakeProfit = models.Float64Ptr(btTakeProfit)
		strat.TakeProfitType = unit
	}

	req := backtest.Request{
		AssetA:             assetA,
		AssetB:             assetB,
		Strategy:           strat,
		LookbackDays:       btLookback,
		InitialCapital:     btCapital,
		PositionSizePct:    btPositionSize,
		TransactionCostPct: btCost,
	}
	if req.InitialCapital == 0 {
		req.InitialCapital = cfg.InitialCapital
	}
	if req.TransactionCostPct == 0 {
		req.TransactionCostPct = cfg.TransactionCostPct
	}
	if btBeta != 0 {
		req.Beta = models.Float64Ptr(btBeta)
	}

	fmt.Printf("📈 Backtesting %s/%s over %d days...\n", assetA, assetB, req.LookbackDays)

	res, err := backtester.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	if jsonOutput(cmd) {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(formatters.FormatBacktestSummary(res))
	fmt.Println(formatters.FormatBacktestMetrics(res.Metrics))
	if btShowTrades {
		fmt.Println(formatters.FormatTradesTable(res.Trades))
	}
	return nil
}
