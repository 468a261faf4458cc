package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pairtrader/statarb-cli/internal/screener"
	"github.com/pairtrader/statarb-cli/pkg/formatters"
)

var liveInterval time.Duration

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().StringVar(&screenAssets, "assets", "", "comma-separated asset list (default: top assets by volume)")
	liveCmd.Flags().IntVar(&screenMaxAssets, "max-assets", 0, "max assets when discovering by volume")
	liveCmd.Flags().IntVar(&screenLookback, "lookback", 0, "lookback window in days")
	liveCmd.Flags().Float64Var(&screenMinCorr, "min-corr", 0, "minimum return correlation")
	liveCmd.Flags().Float64Var(&screenMaxADF, "max-adf", 0, "maximum ADF p-value")
	liveCmd.Flags().BoolVar(&screenIncludeHurst, "hurst", false, "compute Hurst exponent for each pair")
	liveCmd.Flags().DurationVar(&liveInterval, "interval", 0, "time between screening runs (default 30m)")
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run the screener continuously",
	Long: `Runs the pair screener on a fixed interval in the foreground,
printing refreshed results after every cycle until interrupted.`,
	RunE: runLive,
}

func runLive(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := liveInterval
	if interval <= 0 {
		interval = cfg.LiveScreeningInterval
	}

	live := screener.NewLive(pairScreener, screeningConfig(), interval, logger)
	if err := live.Start(ctx); err != nil {
		return fmt.Errorf("failed to start live screener: %w", err)
	}
	defer live.Stop()

	fmt.Printf("📡 Live screening every %s. Press Ctrl+C to stop...\n", interval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var lastPrinted string
	for {
		select {
		case <-sigChan:
			fmt.Println("\n📴 Stopping live screener...")
			return nil
		case <-ticker.C:
			status := live.Status()
			if status.Running {
				continue
			}
			session := status.LastSession
			if session == nil || session.SessionID == lastPrinted {
				continue
			}
			lastPrinted = session.SessionID

			fmt.Printf("\n── %s • %d pairs tested • %s ──\n",
				session.CompletedAt.Format("15:04:05"),
				session.TotalPairsTested,
				session.Status)
			fmt.Println(formatters.FormatPairsTable(live.Results()))
		}
	}
}
