package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pairtrader/statarb-cli/pkg/formatters"
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the price cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached price series",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := provider.CachedEntries()
		if err != nil {
			return fmt.Errorf("failed to read cache: %w", err)
		}
		fmt.Println(formatters.FormatCacheTable(entries))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [asset] [days]",
	Short: "Clear cached price series",
	Long: `Clears the price cache. With no arguments everything is removed;
an asset limits the clear to that symbol, and a day count narrows it
to one lookback window.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset := ""
		days := 0
		if len(args) > 0 {
			asset = strings.ToUpper(args[0])
		}
		if len(args) > 1 {
			parsed, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid day count %q: %w", args[1], err)
			}
			days = parsed
		}

		if err := provider.ClearCache(asset, days); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}

		switch {
		case asset == "":
			fmt.Println("🗑  Cleared entire price cache")
		case days == 0:
			fmt.Printf("🗑  Cleared cached series for %s\n", asset)
		default:
			fmt.Printf("🗑  Cleared cached %d-day series for %s\n", days, asset)
		}
		return nil
	},
}
