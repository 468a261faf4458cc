package formatters

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"

	"github.com/pairtrader/statarb-cli/internal/models"
)

// Colors for different values
var (
	ColorGreen  = text.FgGreen
	ColorRed    = text.FgRed
	ColorYellow = text.FgYellow
	ColorBlue   = text.FgCyan
	ColorWhite  = text.FgWhite
	ColorGray   = text.FgHiBlack
)

// FormatPercent formats a percentage with color
func FormatPercent(percent decimal.Decimal) string {
	sign := ""
	if percent.IsPositive() {
		sign = "+"
	}

	percentStr := fmt.Sprintf("%s%.2f%%", sign, percent.InexactFloat64())

	if percent.IsPositive() {
		return ColorGreen.Sprint(percentStr)
	} else if percent.IsNegative() {
		return ColorRed.Sprint(percentStr)
	}
	return percentStr
}

// FormatDollarAmount formats a dollar amount with appropriate color
func FormatDollarAmount(amount decimal.Decimal) string {
	amountStr := fmt.Sprintf("$%.2f", amount.Abs().InexactFloat64())

	if amount.IsNegative() {
		return ColorRed.Sprint("-" + amountStr)
	}
	return ColorGreen.Sprint(amountStr)
}

// FormatZScore colors a z-score by how far the spread is stretched
func FormatZScore(z float64) string {
	zStr := fmt.Sprintf("%+.2f", z)
	abs := z
	if abs < 0 {
		abs = -abs
	}
	if abs >= 2.0 {
		return ColorYellow.Sprint(zStr)
	}
	if abs >= 1.5 {
		return ColorBlue.Sprint(zStr)
	}
	return zStr
}

// FormatPairsTable renders screening results ranked best-first
func FormatPairsTable(pairs []models.PairCandidate) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{
		"#", "Pair", "Corr", "Beta", "ADF p", "Spread σ%", "Z-Score", "Hurst", "Score"})

	for i, p := range pairs {
		hurst := ColorGray.Sprint("n/a")
		if p.HurstExponent != nil {
			hurst = fmt.Sprintf("%.3f", *p.HurstExponent)
		}

		pColor := ColorWhite
		if p.ADFPValue <= 0.05 {
			pColor = ColorGreen
		}

		t.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%s/%s", p.AssetA, p.AssetB),
			fmt.Sprintf("%.3f", p.Correlation),
			fmt.Sprintf("%.4f", p.Beta),
			pColor.Sprintf("%.4f", p.ADFPValue),
			fmt.Sprintf("%.2f", p.SpreadStd),
			FormatZScore(p.CurrentZScore),
			hurst,
			fmt.Sprintf("%.1f", p.CompositeScore),
		})
	}

	if len(pairs) == 0 {
		t.AppendRow(table.Row{"No pairs found", "", "", "", "", "", "", "", ""})
	}

	return t.Render()
}

// FormatScreeningStats renders the summary block for a screening run
func FormatScreeningStats(stats models.ScreeningStats) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	t.AppendRow(table.Row{"Assets Considered", stats.AssetsConsidered})
	t.AppendRow(table.Row{"Valid Assets", stats.ValidAssets})
	t.AppendRow(table.Row{"Pairs Generated", stats.PairsGenerated})
	t.AppendRow(table.Row{"Pairs Processed", stats.PairsProcessed})
	t.AppendRow(table.Row{"Pairs Found", ColorGreen.Sprint(stats.PairsFound)})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Started", stats.StartedAt.Format("2006-01-02 15:04:05")})
	t.AppendRow(table.Row{"Duration", stats.Duration.Round(time.Millisecond).String()})

	return t.Render()
}

// FormatTradesTable renders the trade ledger from a backtest
func FormatTradesTable(trades []*models.Trade) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{
		"Entry", "Exit", "Side", "Entry Z", "Exit Z", "P&L", "P&L %", "MAE %", "Rebal", "Reason"})

	for _, tr := range trades {
		side := ColorGreen.Sprint("LONG")
		if tr.Side == models.ShortSpread {
			side = ColorRed.Sprint("SHORT")
		}

		exit := ColorGray.Sprint("open")
		exitZ := ""
		pnl := ""
		pnlPct := ""
		if tr.Closed() {
			exit = tr.ExitDate.Format("2006-01-02")
			exitZ = fmt.Sprintf("%+.2f", tr.ExitZScore)
			if tr.PnL != nil {
				pnl = FormatDollarAmount(decimal.NewFromFloat(*tr.PnL))
			}
			if tr.PnLPct != nil {
				pnlPct = FormatPercent(decimal.NewFromFloat(*tr.PnLPct))
			}
		} else if tr.UnrealizedPnL != nil {
			pnl = FormatDollarAmount(decimal.NewFromFloat(*tr.UnrealizedPnL))
			if tr.UnrealizedPnLPct != nil {
				pnlPct = FormatPercent(decimal.NewFromFloat(*tr.UnrealizedPnLPct))
			}
		}

		reason := string(tr.ExitReason)
		switch tr.ExitReason {
		case models.ExitStopLoss:
			reason = ColorRed.Sprint(reason)
		case models.ExitTakeProfit:
			reason = ColorGreen.Sprint(reason)
		case models.StillOpen:
			reason = ColorYellow.Sprint(reason)
		}

		t.AppendRow(table.Row{
			tr.EntryDate.Format("2006-01-02"),
			exit,
			side,
			fmt.Sprintf("%+.2f", tr.EntryZScore),
			exitZ,
			pnl,
			pnlPct,
			fmt.Sprintf("%.2f", tr.MAEPct),
			len(tr.Rebalances),
			reason,
		})
	}

	if len(trades) == 0 {
		t.AppendRow(table.Row{"No trades", "", "", "", "", "", "", "", "", ""})
	}

	return t.Render()
}

// FormatBacktestMetrics renders the full metrics block for a backtest
func FormatBacktestMetrics(m models.BacktestMetrics) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	t.AppendRow(table.Row{"Initial Capital", fmt.Sprintf("$%.2f", m.InitialCapital)})
	t.AppendRow(table.Row{"Final Capital", fmt.Sprintf("$%.2f", m.FinalCapital)})
	t.AppendRow(table.Row{"Total Return", FormatPercent(decimal.NewFromFloat(m.TotalReturn))})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Total Trades", m.TotalTrades})
	t.AppendRow(table.Row{"Win Rate", fmt.Sprintf("%.1f%%", m.WinRate)})
	t.AppendRow(table.Row{"Profit Factor", formatRatio(m.ProfitFactor)})
	t.AppendRow(table.Row{"Sharpe Ratio", fmt.Sprintf("%.2f", m.SharpeRatio)})
	t.AppendRow(table.Row{"Max Drawdown", ColorRed.Sprintf("%.2f%%", m.MaxDrawdown)})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Avg MAE", FormatDollarAmount(decimal.NewFromFloat(m.AvgMAE))})
	t.AppendRow(table.Row{"Max MAE", FormatDollarAmount(decimal.NewFromFloat(m.MaxMAE))})
	t.AppendRow(table.Row{"Avg MAE %", fmt.Sprintf("%.2f%%", m.AvgMAEPct)})
	t.AppendRow(table.Row{"Return/MAE", formatRatio(m.ReturnToMAERatio)})

	if m.RebalancingEnabled {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Rebalances", m.TotalRebalances})
		t.AppendRow(table.Row{"Avg Rebalances/Trade", fmt.Sprintf("%.2f", m.AvgRebalancesPerTrade)})
		t.AppendRow(table.Row{"Rebalancing Costs", fmt.Sprintf("$%.2f", m.TotalRebalancingCosts)})
		t.AppendRow(table.Row{"Rebalancing Cost %", fmt.Sprintf("%.3f%%", m.RebalancingCostPct)})
	}

	t.AppendSeparator()
	t.AppendRow(table.Row{"Optimal Leverage", fmt.Sprintf("%.2fx", m.Leverage.Optimal)})
	t.AppendRow(table.Row{"Recommended Leverage", ColorBlue.Sprintf("%.2fx", m.Leverage.Recommended)})
	t.AppendRow(table.Row{"Sharpe-Based", fmt.Sprintf("%.2fx", m.Leverage.SharpeBased)})
	t.AppendRow(table.Row{"Drawdown-Based", fmt.Sprintf("%.2fx", m.Leverage.DrawdownBased)})

	if m.KellyPercentage != nil {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Kelly %", fmt.Sprintf("%.1f%%", *m.KellyPercentage)})
		if m.KellyDetails != nil {
			t.AppendRow(table.Row{"Avg Win", FormatDollarAmount(decimal.NewFromFloat(m.KellyDetails.AvgWin))})
			t.AppendRow(table.Row{"Avg Loss", FormatDollarAmount(decimal.NewFromFloat(m.KellyDetails.AvgLoss))})
			t.AppendRow(table.Row{"Win/Loss Ratio", fmt.Sprintf("%.2f", m.KellyDetails.WinLossRatio)})
		}
	}

	return t.Render()
}

// formatRatio renders a ratio, flagging the sentinel used for
// division-by-zero cases
func formatRatio(v float64) string {
	if v >= models.PosInfSentinel {
		return ColorGreen.Sprint("inf")
	}
	return fmt.Sprintf("%.2f", v)
}

// FormatBacktestSummary renders the header line for a backtest result
func FormatBacktestSummary(res *models.BacktestResult) string {
	return fmt.Sprintf("\n%s %s (hedge ratio %.4f)",
		text.Bold.Sprintf("%s/%s", res.AssetA, res.AssetB),
		ColorGray.Sprint("backtest"),
		res.Beta)
}

// FormatAssetList renders a numbered list of tradeable assets
func FormatAssetList(assets []string) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Asset"})

	for i, a := range assets {
		t.AppendRow(table.Row{i + 1, a})
	}

	if len(assets) == 0 {
		t.AppendRow(table.Row{"No assets", ""})
	}

	return t.Render()
}

// FormatCacheTable renders cached price series keys with point counts
func FormatCacheTable(entries map[string]int) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Key", "Points"})

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		t.AppendRow(table.Row{k, entries[k]})
	}

	if len(entries) == 0 {
		t.AppendRow(table.Row{"Cache empty", ""})
	}

	return t.Render()
}

// FormatSpreadUpdate renders one live spread observation
func FormatSpreadUpdate(assetA, assetB string, priceA, priceB, spread, z float64, ts time.Time) string {
	return fmt.Sprintf("%s  %s=%.4f %s=%.4f  spread=%+.4f  z=%s",
		ColorGray.Sprint(ts.Format("15:04:05")),
		assetA, priceA,
		assetB, priceB,
		spread,
		FormatZScore(z))
}

// FormatTimestamp formats a timestamp for display
func FormatTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}

// TruncateString truncates a string to specified length
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
