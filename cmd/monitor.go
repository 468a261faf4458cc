package cmd

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pairtrader/statarb-cli/internal/models"
	"github.com/pairtrader/statarb-cli/internal/stats"
	"github.com/pairtrader/statarb-cli/internal/stream"
	"github.com/pairtrader/statarb-cli/pkg/formatters"
)

var (
	monBeta     float64
	monAlpha    float64
	monMean     float64
	monStd      float64
	monLookback int
)

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().Float64Var(&monBeta, "beta", 0, "hedge ratio (0 = fit from history)")
	monitorCmd.Flags().Float64Var(&monAlpha, "alpha", 0, "regression intercept")
	monitorCmd.Flags().Float64Var(&monMean, "mean", 0, "historical mean spread")
	monitorCmd.Flags().Float64Var(&monStd, "std", 0, "historical spread standard deviation")
	monitorCmd.Flags().IntVar(&monLookback, "lookback", 365, "history window for fitting when no beta is given")
}

var monitorCmd = &cobra.Command{
	Use:   "monitor [assetA] [assetB]",
	Short: "Monitor a pair spread in real time",
	Long: `Streams live prices for both legs of a pair and prints the spread
and z-score on every tick. The hedge ratio and spread distribution are
fitted from history unless provided explicitly.`,
	Args: cobra.ExactArgs(2),
	RunE: runMonitor,
}

// fitPairParams regresses assetA on assetB over the lookback window and
// derives the spread distribution used for live z-scores.
func fitPairParams(ctx context.Context, assetA, assetB string) (stream.PairParams, error) {
	var params stream.PairParams

	seriesA, err := provider.Prices(ctx, assetA, monLookback)
	if err != nil {
		return params, fmt.Errorf("fetch %s: %w", assetA, err)
	}
	seriesB, err := provider.Prices(ctx, assetB, monLookback)
	if err != nil {
		return params, fmt.Errorf("fetch %s: %w", assetB, err)
	}

	_, closesA, closesB := models.AlignSeries(seriesA, seriesB)
	if len(closesA) < 50 {
		return params, fmt.Errorf("only %d aligned points for %s/%s, need at least 50", len(closesA), assetA, assetB)
	}

	alpha, beta, err := stats.LinearFit(closesA, closesB)
	if err != nil {
		return params, fmt.Errorf("hedge ratio fit: %w", err)
	}

	spread := stats.Spread(closesA, closesB, beta, alpha)
	var sum float64
	for _, v := range spread {
		sum += v
	}
	mean := sum / float64(len(spread))
	var variance float64
	for _, v := range spread {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(spread)))

	params = stream.PairParams{
		AssetA:     assetA,
		AssetB:     assetB,
		Beta:       beta,
		Alpha:      alpha,
		MeanSpread: mean,
		StdSpread:  std,
	}
	return params, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	assetA := strings.ToUpper(args[0])
	assetB := strings.ToUpper(args[1])

	var params stream.PairParams
	if monBeta != 0 {
		params = stream.PairParams{
			AssetA:     assetA,
			AssetB:     assetB,
			Beta:       monBeta,
			Alpha:      monAlpha,
			MeanSpread: monMean,
			StdSpread:  monStd,
		}
	} else {
		fmt.Printf("📐 Fitting hedge ratio from %d days of history...\n", monLookback)
		fitted, err := fitPairParams(ctx, assetA, assetB)
		if err != nil {
			return err
		}
		params = fitted
		fmt.Printf("   beta=%.4f alpha=%.4f mean=%.4f std=%.4f\n",
			params.Beta, params.Alpha, params.MeanSpread, params.StdSpread)
	}

	monitor := stream.NewMonitor(cfg, params, logger)
	monitor.OnUpdate(func(u stream.Update) {
		fmt.Println(formatters.FormatSpreadUpdate(
			assetA, assetB, u.PriceA, u.PriceB, u.Spread, u.ZScore, u.Timestamp))
	})

	fmt.Printf("📡 Connecting to %s/%s spread stream...\n", assetA, assetB)
	if err := monitor.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer monitor.Close()

	fmt.Println("Press Ctrl+C to stop...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			fmt.Println("\n📴 Stopping monitor...")
			return nil
		case <-ticker.C:
			if !monitor.IsConnected() {
				fmt.Println("⚠️  Reconnecting...")
			}
		}
	}
}
