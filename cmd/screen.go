package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pairtrader/statarb-cli/internal/models"
	"github.com/pairtrader/statarb-cli/pkg/formatters"
)

var (
	screenAssets       string
	screenMaxAssets    int
	screenLookback     int
	screenMinCorr      float64
	screenMaxADF       float64
	screenIncludeHurst bool
	screenMinVolume    float64
)

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().StringVar(&screenAssets, "assets", "", "comma-separated asset list (default: top assets by volume)")
	screenCmd.Flags().IntVar(&screenMaxAssets, "max-assets", 0, "max assets when discovering by volume")
	screenCmd.Flags().IntVar(&screenLookback, "lookback", 0, "lookback window in days")
	screenCmd.Flags().Float64Var(&screenMinCorr, "min-corr", 0, "minimum return correlation")
	screenCmd.Flags().Float64Var(&screenMaxADF, "max-adf", 0, "maximum ADF p-value")
	screenCmd.Flags().BoolVar(&screenIncludeHurst, "hurst", false, "compute Hurst exponent for each pair")
	screenCmd.Flags().Float64Var(&screenMinVolume, "min-volume", 0, "minimum 24h quote volume in USD")
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen assets for cointegrated pairs",
	Long: `Screens a universe of assets for tradeable pairs using return
correlation and Engle-Granger cointegration, ranking survivors by a
composite score.`,
	RunE: runScreen,
}

// screeningConfig merges flags over the environment defaults
func screeningConfig() models.ScreeningConfig {
	sc := models.ScreeningConfig{
		MaxAssets:      cfg.ScreenerMaxAssets,
		LookbackDays:   cfg.ScreenerLookbackDays,
		MinCorrelation: cfg.ScreenerMinCorrelation,
		MaxADFPValue:   cfg.ScreenerMaxADFPValue,
		IncludeHurst:   screenIncludeHurst,
		MinVolumeUSD:   cfg.ScreenerMinVolumeUSD,
	}
	if screenAssets != "" {
		for _, a := range strings.Split(screenAssets, ",") {
			if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
				sc.Assets = append(sc.Assets, a)
			}
		}
	}
	if screenMaxAssets > 0 {
		sc.MaxAssets = screenMaxAssets
	}
	if screenLookback > 0 {
		sc.LookbackDays = screenLookback
	}
	if screenMinCorr > 0 {
		sc.MinCorrelation = screenMinCorr
	}
	if screenMaxADF > 0 {
		sc.MaxADFPValue = screenMaxADF
	}
	if screenMinVolume > 0 {
		sc.MinVolumeUSD = screenMinVolume
	}
	return sc
}

func runScreen(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	sc := screeningConfig()

	fmt.Printf("🔍 Screening %d-day lookback (min corr %.2f, max ADF p %.2f)...\n",
		sc.LookbackDays, sc.MinCorrelation, sc.MaxADFPValue)

	start := time.Now()
	run, err := pairScreener.Screen(ctx, sc)
	if err != nil {
		return fmt.Errorf("screening failed: %w", err)
	}

	if jsonOutput(cmd) {
		out, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(formatters.FormatPairsTable(run.Results))
	fmt.Println(formatters.FormatScreeningStats(run.Stats))
	fmt.Printf("\n✅ %d pairs found • %dms\n", len(run.Results), time.Since(start).Milliseconds())
	return nil
}
