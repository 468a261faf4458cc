package backtest

import (
	"math"

	"github.com/pairtrader/statarb-cli/internal/models"
)

const (
	annualizationDays  = 365
	defaultMaxLeverage = 5.0
	leverageRiskFactor = 0.5
)

// sharpeRatio annualizes the mean/std of daily equity percent changes.
// Crypto trades every day, hence 365 periods per year.
func sharpeRatio(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}

	return math.Sqrt(annualizationDays) * mean / std
}

// maxDrawdown returns the largest peak-to-trough decline as a positive percent.
func maxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}

	peak := equity[0]
	worst := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := (e - peak) / peak
			if dd < worst {
				worst = dd
			}
		}
	}
	return math.Abs(worst) * 100
}

func winRate(trades []*models.Trade) float64 {
	closed, winners := 0, 0
	for _, t := range trades {
		if !t.Closed() || t.PnL == nil {
			continue
		}
		closed++
		if *t.PnL > 0 {
			winners++
		}
	}
	if closed == 0 {
		return 0
	}
	return float64(winners) / float64(closed) * 100
}

func profitFactor(trades []*models.Trade) float64 {
	grossProfit, grossLoss := 0.0, 0.0
	for _, t := range trades {
		if !t.Closed() || t.PnL == nil {
			continue
		}
		if *t.PnL > 0 {
			grossProfit += *t.PnL
		} else {
			grossLoss += math.Abs(*t.PnL)
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return models.PosInfSentinel
		}
		return 0
	}
	return grossProfit / grossLoss
}

// maeStats returns average and worst excursion in dollars and percent.
// Excursions are non-positive, so the worst is the minimum.
func maeStats(trades []*models.Trade) (avgMAE, maxMAE, avgPct, maxPct float64) {
	if len(trades) == 0 {
		return 0, 0, 0, 0
	}
	for _, t := range trades {
		avgMAE += t.MaxAdverseExcursion
		avgPct += t.MAEPct
		if t.MaxAdverseExcursion < maxMAE {
			maxMAE = t.MaxAdverseExcursion
		}
		if t.MAEPct < maxPct {
			maxPct = t.MAEPct
		}
	}
	n := float64(len(trades))
	return avgMAE / n, maxMAE, avgPct / n, maxPct
}

func totalReturn(initial, final float64) float64 {
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial * 100
}

// returnToMAE measures return earned per unit of average adverse excursion.
func returnToMAE(totalReturnPct, avgMAEPct float64) float64 {
	denom := math.Abs(avgMAEPct)
	if denom < 0.01 {
		if totalReturnPct > 0 {
			return models.PosInfSentinel
		}
		return 0
	}
	return totalReturnPct / denom
}

// kellyCriterion computes the Kelly position fraction from closed trades.
// Returns nil when the sample lacks both winners and losers.
func kellyCriterion(trades []*models.Trade) (*float64, *models.KellyDetails) {
	var wins, losses []float64
	for _, t := range trades {
		if !t.Closed() || t.PnL == nil {
			continue
		}
		if *t.PnL > 0 {
			wins = append(wins, *t.PnL)
		} else if *t.PnL < 0 {
			losses = append(losses, *t.PnL)
		}
	}
	if len(wins) == 0 || len(losses) == 0 {
		return nil, nil
	}

	avgWin := 0.0
	for _, w := range wins {
		avgWin += w
	}
	avgWin /= float64(len(wins))

	avgLoss := 0.0
	for _, l := range losses {
		avgLoss += math.Abs(l)
	}
	avgLoss /= float64(len(losses))

	winPct := float64(len(wins)) / float64(len(wins)+len(losses)) * 100

	kelly := 0.0
	if avgLoss > 0 && winPct > 0 && winPct < 100 {
		b := avgWin / avgLoss
		if b > 0 {
			p := winPct / 100
			q := 1 - p
			kelly = (b*p - q) / b * 100
			kelly = math.Max(0, math.Min(100, kelly))
		}
	}

	details := &models.KellyDetails{
		AvgWin:  avgWin,
		AvgLoss: avgLoss,
	}
	if avgLoss > 0 {
		details.WinLossRatio = avgWin / avgLoss
	}
	return &kelly, details
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// optimalLeverage derives conservative leverage bounds from realized Sharpe
// and drawdown. Shallow drawdowns cap leverage on the drawdown estimate so a
// lucky short sample cannot recommend outsized size.
func optimalLeverage(sharpe, maxDDPct, maxLeverage float64) models.LeverageInfo {
	if maxLeverage <= 0 {
		maxLeverage = defaultMaxLeverage
	}

	if sharpe <= 0 || maxDDPct <= 0 {
		return models.LeverageInfo{
			Optimal:       1.0,
			SharpeBased:   1.0,
			DrawdownBased: 1.0,
			Recommended:   1.0,
			MaxLeverage:   maxLeverage,
		}
	}

	sharpeBased := sharpe
	ddBased := math.Min(1/(maxDDPct/100)*leverageRiskFactor, maxLeverage)

	var optimal, recommended float64
	if maxDDPct < 5.0 {
		optimal = math.Min(ddBased, math.Min(math.Max(sharpeBased, 1.0), maxLeverage))
		recommended = math.Min(math.Max(1.0, ddBased*0.75), maxLeverage)
	} else {
		optimal = math.Min(sharpeBased, math.Min(ddBased, maxLeverage))
		if optimal > 1.5 {
			recommended = math.Max(1.0, optimal*0.75)
		} else {
			recommended = optimal
		}
	}

	floor1 := func(v float64) float64 { return math.Max(1.0, round2(v)) }
	return models.LeverageInfo{
		Optimal:       floor1(optimal),
		SharpeBased:   floor1(sharpeBased),
		DrawdownBased: floor1(ddBased),
		Recommended:   floor1(recommended),
		MaxLeverage:   maxLeverage,
	}
}

// computeMetrics assembles the full metrics block for a finished run.
func computeMetrics(trades []*models.Trade, equity []float64, initialCapital, finalCapital float64, rebalancingEnabled bool) models.BacktestMetrics {
	avgMAE, maxMAE, avgMAEPct, maxMAEPct := maeStats(trades)
	totalRet := totalReturn(initialCapital, finalCapital)
	sharpe := sharpeRatio(equity)
	maxDD := maxDrawdown(equity)

	closedCount := 0
	totalRebalances := 0
	rebalanceCosts := 0.0
	for _, t := range trades {
		if t.Closed() {
			closedCount++
		}
		totalRebalances += len(t.Rebalances)
		for _, r := range t.Rebalances {
			rebalanceCosts += r.Cost
		}
	}
	avgRebalances := float64(totalRebalances) / math.Max(1, float64(closedCount))
	rebalanceCostPct := 0.0
	if initialCapital > 0 {
		rebalanceCostPct = rebalanceCosts / initialCapital * 100
	}

	kelly, kellyDetails := kellyCriterion(trades)

	return models.BacktestMetrics{
		TotalTrades:           closedCount,
		WinRate:               winRate(trades),
		TotalReturn:           totalRet,
		SharpeRatio:           sharpe,
		MaxDrawdown:           maxDD,
		ProfitFactor:          profitFactor(trades),
		AvgMAE:                avgMAE,
		MaxMAE:                maxMAE,
		AvgMAEPct:             avgMAEPct,
		MaxMAEPct:             maxMAEPct,
		ReturnToMAERatio:      returnToMAE(totalRet, avgMAEPct),
		RebalancingEnabled:    rebalancingEnabled,
		TotalRebalances:       totalRebalances,
		AvgRebalancesPerTrade: avgRebalances,
		TotalRebalancingCosts: rebalanceCosts,
		RebalancingCostPct:    rebalanceCostPct,
		FinalCapital:          finalCapital,
		InitialCapital:        initialCapital,
		Leverage:              optimalLeverage(sharpe, maxDD, defaultMaxLeverage),
		KellyPercentage:       kelly,
		KellyDetails:          kellyDetails,
	}
}
