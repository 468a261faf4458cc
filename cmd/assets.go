package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pairtrader/statarb-cli/pkg/formatters"
)

var (
	assetsLimit     int
	assetsMinVolume float64
)

func init() {
	rootCmd.AddCommand(assetsCmd)

	assetsCmd.Flags().IntVar(&assetsLimit, "limit", 0, "number of assets to list")
	assetsCmd.Flags().Float64Var(&assetsMinVolume, "min-volume", 0, "minimum 24h quote volume in USD")
}

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "List top tradeable assets by volume",
	RunE:  runAssets,
}

func runAssets(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	limit := assetsLimit
	if limit <= 0 {
		limit = cfg.ScreenerMaxAssets
	}
	minVolume := assetsMinVolume
	if minVolume <= 0 {
		minVolume = cfg.ScreenerMinVolumeUSD
	}

	start := time.Now()
	assets, err := provider.Universe(ctx, limit, minVolume)
	if err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}

	if jsonOutput(cmd) {
		out, err := json.MarshalIndent(assets, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(formatters.FormatAssetList(assets))
	fmt.Printf("\n%d assets • %dms\n", len(assets), time.Since(start).Milliseconds())
	return nil
}
