package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/pairtrader/statarb-cli/internal/models"
	"github.com/pairtrader/statarb-cli/internal/stats"
	"github.com/pairtrader/statarb-cli/internal/strategy"
)

// ErrInsufficientData means the pair lacks the statistical minimum of
// aligned observations. No partial backtest is produced.
var ErrInsufficientData = errors.New("insufficient aligned data for backtesting")

const (
	minAlignedPoints  = 50
	rollingBetaWindow = 90
	rollingBetaMin    = 30
	zscoreWindow      = 60
	zscoreMin         = 30
	maxSaneBeta       = 10.0
)

// PriceSource provides historical daily closes.
type PriceSource interface {
	Prices(ctx context.Context, asset string, days int) (models.PriceSeries, error)
}

// Request describes one backtest invocation.
type Request struct {
	AssetA string
	AssetB string

	Strategy strategy.Config

	LookbackDays int

	// Beta overrides the globally fitted hedge ratio when set.
	Beta *float64

	InitialCapital     float64
	PositionSizePct    float64
	TransactionCostPct float64
}

// Backtester replays a z-score strategy day by day over aligned history.
// Each invocation is single-threaded and independent.
type Backtester struct {
	prices PriceSource
	logger *zap.Logger
}

// New creates a backtester over the given price source.
func New(prices PriceSource, logger *zap.Logger) *Backtester {
	return &Backtester{prices: prices, logger: logger}
}

// position carries the mutable state of the currently open trade.
type position struct {
	side          models.PositionSide
	trade         *models.Trade
	entryBeta     float64
	entryAlpha    float64
	mae           float64
	lastRebalance *time.Time
}

// Run executes the backtest and returns the full result. The returned
// structure is sanitized for JSON serialization.
func (b *Backtester) Run(ctx context.Context, req Request) (*models.BacktestResult, error) {
	if req.LookbackDays <= 0 {
		req.LookbackDays = 365
	}
	if req.InitialCapital <= 0 {
		req.InitialCapital = 10000
	}
	if req.PositionSizePct <= 0 {
		req.PositionSizePct = strategy.DefaultPositionSizePct
	}
	strat := req.Strategy
	if err := strat.Normalize(); err != nil {
		return nil, err
	}

	seriesA, err := b.prices.Prices(ctx, req.AssetA, req.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", req.AssetA, err)
	}
	seriesB, err := b.prices.Prices(ctx, req.AssetB, req.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", req.AssetB, err)
	}
	if len(seriesA) < minAlignedPoints || len(seriesB) < minAlignedPoints {
		return nil, ErrInsufficientData
	}

	dates, closesA, closesB := models.AlignSeries(seriesA, seriesB)
	if len(dates) < minAlignedPoints {
		return nil, ErrInsufficientData
	}

	globalAlpha, globalBeta, err := stats.LinearFit(closesA, closesB)
	if err != nil {
		return nil, fmt.Errorf("global hedge fit: %w", err)
	}
	if req.Beta != nil {
		globalBeta = *req.Beta
	}

	// ATR over the global-hedge spread, only when an ATR unit is in play.
	var spreadATR []float64
	if strat.StopLossType == models.StopATR || strat.TakeProfitType == models.StopATR {
		globalSpread := stats.Spread(closesA, closesB, globalBeta, globalAlpha)
		spreadATR = stats.SpreadATR(globalSpread, stats.ATRPeriod)
	}

	// rollingFit estimates beta/alpha from the trailing window excluding the
	// current date, falling back to the global fit on thin or degenerate data.
	rollingFit := func(i int) (float64, float64) {
		start := i - rollingBetaWindow
		if start < 0 {
			start = 0
		}
		if i-start < rollingBetaMin {
			return globalBeta, globalAlpha
		}
		alpha, beta, err := stats.LinearFit(closesA[start:i], closesB[start:i])
		if err != nil || beta <= 0 || beta > maxSaneBeta {
			return globalBeta, globalAlpha
		}
		return beta, alpha
	}

	var (
		trades      []*models.Trade
		equity      = make([]models.EquityPoint, 0, len(dates))
		zscores     []models.ZScorePoint
		pos         *position
		capital     = req.InitialCapital
		costPct     = req.TransactionCostPct
		lastZ       = 0.0
		haveZ       = false
	)

	recordEquity := func(date time.Time) {
		equity = append(equity, models.EquityPoint{Date: date, Equity: capital})
	}

	for i, date := range dates {
		priceA := closesA[i]
		priceB := closesB[i]

		rollBeta, rollAlpha := rollingFit(i)

		// Rolling z-score over the trailing window including today. Bars
		// without enough history carry capital forward and generate nothing.
		window := zscoreWindow
		if i+1 < window {
			window = i + 1
		}
		if window < zscoreMin {
			recordEquity(date)
			continue
		}
		spreadWindow := stats.Spread(closesA[i+1-window:i+1], closesB[i+1-window:i+1], rollBeta, rollAlpha)
		zWindow := stats.ZScore(spreadWindow)
		zVal := zWindow[len(zWindow)-1]
		spreadVal := spreadWindow[len(spreadWindow)-1]
		if math.IsNaN(zVal) {
			recordEquity(date)
			continue
		}

		zscores = append(zscores, models.ZScorePoint{Date: date, Value: zVal})
		lastZ = zVal
		haveZ = true

		var curATR *float64
		if spreadATR != nil && !math.IsNaN(spreadATR[i]) {
			curATR = &spreadATR[i]
		}

		if pos != nil {
			unrealized := unrealizedPnL(pos, priceA, priceB)
			if unrealized < pos.mae {
				pos.mae = unrealized
			}

			// Exit checks see the bar's P&L as it stood before any resize.
			pnlPct := unrealized / req.InitialCapital * 100

			if strat.EnableRebalancing {
				capital -= b.maybeRebalance(pos, &strat, date, i, priceA, priceB, costPct, rollingFit)
			}
			if shouldExit(&strat, pos, zVal, spreadVal, pnlPct, curATR) {
				capital += b.closeTrade(pos, date, priceA, priceB, zVal, spreadVal, curATR, costPct, req.InitialCapital, &strat)
				pos = nil
			}
			recordEquity(date)
			continue
		}

		// Flat: evaluate entry.
		side := strat.EntrySignal(zVal)
		if side == models.Flat {
			recordEquity(date)
			continue
		}

		entryBeta, entryAlpha := rollBeta, rollAlpha
		tradeCapital := req.InitialCapital * req.PositionSizePct / 100
		quantityA := tradeCapital / (priceA + entryBeta*priceB)
		quantityB := entryBeta * quantityA
		dollarA := quantityA * priceA
		dollarB := quantityB * priceB
		entryCost := (dollarA + dollarB) * costPct
		capital -= entryCost

		trade := &models.Trade{
			EntryDate:    date,
			Side:         side,
			EntryPriceA:  priceA,
			EntryPriceB:  priceB,
			EntryZScore:  zVal,
			EntrySpread:  spreadVal,
			QuantityA:    quantityA,
			QuantityB:    quantityB,
			DollarA:      dollarA,
			DollarB:      dollarB,
			TradeCapital: tradeCapital,
			BetaUsed:     entryBeta,
			AlphaUsed:    entryAlpha,
		}
		trades = append(trades, trade)
		pos = &position{
			side:       side,
			trade:      trade,
			entryBeta:  entryBeta,
			entryAlpha: entryAlpha,
		}

		b.logger.Debug("opened position",
			zap.String("side", string(side)),
			zap.Time("date", date),
			zap.Float64("zscore", zVal),
			zap.Float64("beta", entryBeta))

		recordEquity(date)
	}

	// End-of-period handling for a still-open position.
	if pos != nil {
		finalDate := dates[len(dates)-1]
		finalA := closesA[len(closesA)-1]
		finalB := closesB[len(closesB)-1]
		finalZ := 0.0
		if haveZ {
			finalZ = lastZ
		}
		if closedPnL, closed := b.closeAtPeriodEnd(pos, &strat, finalDate, finalA, finalB, finalZ, costPct, req.InitialCapital); closed {
			capital += closedPnL
			if len(equity) > 0 {
				equity[len(equity)-1].Equity = capital
			}
		}
	}

	metrics := computeMetrics(trades, equityValues(equity), req.InitialCapital, capital, strat.EnableRebalancing)

	result := &models.BacktestResult{
		AssetA:      req.AssetA,
		AssetB:      req.AssetB,
		Beta:        globalBeta,
		Trades:      trades,
		EquityCurve: equity,
		ZScores:     zscores,
		Metrics:     metrics,
	}
	sanitizeResult(result)
	return result, nil
}

// unrealizedPnL marks the open position to the given prices.
func unrealizedPnL(pos *position, priceA, priceB float64) float64 {
	t := pos.trade
	if pos.side == models.LongSpread {
		return (priceA-t.EntryPriceA)*t.QuantityA + (t.EntryPriceB-priceB)*t.QuantityB
	}
	return (t.EntryPriceA-priceA)*t.QuantityA + (priceB-t.EntryPriceB)*t.QuantityB
}

// maybeRebalance resizes the hedge when beta has drifted past the threshold
// and enough days have passed. Returns the transaction cost charged.
func (b *Backtester) maybeRebalance(pos *position, strat *strategy.Config, date time.Time, i int, priceA, priceB, costPct float64, rollingFit func(int) (float64, float64)) float64 {
	t := pos.trade

	daysSince := int(date.Sub(t.EntryDate).Hours() / 24)
	if pos.lastRebalance != nil {
		daysSince = int(date.Sub(*pos.lastRebalance).Hours() / 24)
	}
	if daysSince < strat.RebalancingFrequencyDays {
		return 0
	}

	newBeta, newAlpha := rollingFit(i)
	drift := 0.0
	if pos.entryBeta > 0 {
		drift = math.Abs(newBeta-pos.entryBeta) / pos.entryBeta
	}
	if drift < strat.RebalancingThreshold {
		return 0
	}

	newQuantityA := t.TradeCapital / (priceA + newBeta*priceB)
	newQuantityB := newBeta * newQuantityA
	deltaA := newQuantityA - t.QuantityA
	deltaB := newQuantityB - t.QuantityB
	notional := math.Abs(deltaA*priceA) + math.Abs(deltaB*priceB)
	cost := notional * costPct

	oldBeta := pos.entryBeta
	t.QuantityA = newQuantityA
	t.QuantityB = newQuantityB
	t.DollarA = newQuantityA * priceA
	t.DollarB = newQuantityB * priceB
	pos.entryBeta = newBeta
	pos.entryAlpha = newAlpha
	pos.lastRebalance = &date

	t.Rebalances = append(t.Rebalances, models.RebalanceEvent{
		Date:         date,
		OldBeta:      oldBeta,
		NewBeta:      newBeta,
		BetaDriftPct: drift * 100,
		DeltaQtyA:    deltaA,
		DeltaQtyB:    deltaB,
		NewQuantityA: newQuantityA,
		NewQuantityB: newQuantityB,
		Cost:         cost,
	})

	b.logger.Debug("rebalanced hedge",
		zap.Time("date", date),
		zap.Float64("old_beta", oldBeta),
		zap.Float64("new_beta", newBeta),
		zap.Float64("drift_pct", drift*100),
		zap.Float64("cost", cost))

	return cost
}

// shouldExit evaluates stop-loss first, then take-profit, in the configured
// unit systems. pnlPct is unrealized P&L as a percent of initial capital.
func shouldExit(strat *strategy.Config, pos *position, z, spread, pnlPct float64, atr *float64) bool {
	t := pos.trade
	long := pos.side == models.LongSpread

	if strat.StopLoss != nil {
		sl := *strat.StopLoss
		switch strat.StopLossType {
		case models.StopPercent:
			if pnlPct <= -sl {
				return true
			}
		case models.StopZScore:
			if (long && z >= sl) || (!long && z <= -sl) {
				return true
			}
		case models.StopATR:
			if atr != nil && math.Abs(spread-t.EntrySpread) >= sl * *atr {
				return true
			}
		}
	}

	if strat.TakeProfit != nil {
		tp := *strat.TakeProfit
		switch strat.TakeProfitType {
		case models.StopPercent:
			if pnlPct >= tp {
				return true
			}
		case models.StopZScore:
			target := strategy.TakeProfitTarget(t.EntryZScore, tp)
			if (long && z >= target) || (!long && z <= target) {
				return true
			}
		case models.StopATR:
			if atr != nil {
				change := spread - t.EntrySpread
				if !long {
					change = -change
				}
				if change >= tp * *atr {
					return true
				}
			}
		}
	}

	return false
}

// closeTrade realizes the position against current prices using the
// entry-time hedge ratio, charges the exit cost, and returns the net P&L.
func (b *Backtester) closeTrade(pos *position, date time.Time, priceA, priceB, z, spread float64, atr *float64, costPct, initialCapital float64, strat *strategy.Config) float64 {
	t := pos.trade

	entrySpread := t.EntryPriceA - (t.AlphaUsed + t.BetaUsed*t.EntryPriceB)
	exitSpread := priceA - (t.AlphaUsed + t.BetaUsed*priceB)

	pnl := unrealizedPnL(pos, priceA, priceB)
	exitCost := (t.DollarA + t.DollarB) * costPct
	pnl -= exitCost
	pnlPct := pnl / initialCapital * 100

	exitDate := date
	t.ExitDate = &exitDate
	t.ExitPriceA = priceA
	t.ExitPriceB = priceB
	t.ExitZScore = z
	t.ExitReason = exitReason(strat, pos, z, spread, pnlPct, atr)
	t.PnL = &pnl
	t.PnLPct = &pnlPct
	t.SpreadChange = exitSpread - entrySpread
	t.MaxAdverseExcursion = pos.mae
	if t.TradeCapital > 0 {
		t.MAEPct = pos.mae / t.TradeCapital * 100
	}

	b.logger.Debug("closed position",
		zap.String("side", string(pos.side)),
		zap.Time("date", date),
		zap.String("reason", string(t.ExitReason)),
		zap.Float64("pnl", pnl))

	return pnl
}

// exitReason re-derives which configured condition triggered the close.
func exitReason(strat *strategy.Config, pos *position, z, spread, pnlPct float64, atr *float64) models.ExitReason {
	t := pos.trade
	long := pos.side == models.LongSpread

	if strat.StopLoss != nil {
		sl := *strat.StopLoss
		switch strat.StopLossType {
		case models.StopPercent:
			if pnlPct <= -sl {
				return models.ExitStopLoss
			}
		case models.StopZScore:
			if (long && z >= sl) || (!long && z <= -sl) {
				return models.ExitStopLoss
			}
		case models.StopATR:
			if atr != nil && math.Abs(spread-t.EntrySpread) >= sl * *atr {
				return models.ExitStopLoss
			}
		}
	}

	if strat.TakeProfit != nil {
		tp := *strat.TakeProfit
		switch strat.TakeProfitType {
		case models.StopPercent:
			if pnlPct >= tp {
				return models.ExitTakeProfit
			}
		case models.StopZScore:
			target := strategy.TakeProfitTarget(t.EntryZScore, tp)
			if (long && z >= target) || (!long && z <= target) {
				return models.ExitTakeProfit
			}
		case models.StopATR:
			if atr != nil {
				change := spread - t.EntrySpread
				if !long {
					change = -change
				}
				if change >= tp * *atr {
					return models.ExitTakeProfit
				}
			}
		}
	}

	return models.ExitUnknown
}

// closeAtPeriodEnd applies the asymmetric force-close rule: a z-score take
// profit closes only at its target, otherwise close when profitable; a
// configured stop-loss additionally forces a losing close. Positions that
// stay open record unrealized figures and never touch capital.
func (b *Backtester) closeAtPeriodEnd(pos *position, strat *strategy.Config, date time.Time, priceA, priceB, finalZ, costPct, initialCapital float64) (float64, bool) {
	t := pos.trade
	long := pos.side == models.LongSpread

	entrySpread := t.EntryPriceA - (t.AlphaUsed + t.BetaUsed*t.EntryPriceB)
	exitSpread := priceA - (t.AlphaUsed + t.BetaUsed*priceB)

	pnl := unrealizedPnL(pos, priceA, priceB)
	exitCost := (t.DollarA + t.DollarB) * costPct
	pnl -= exitCost

	shouldClose := false
	if strat.TakeProfit != nil && strat.TakeProfitType == models.StopZScore {
		target := strategy.TakeProfitTarget(t.EntryZScore, *strat.TakeProfit)
		if (long && finalZ >= target) || (!long && finalZ <= target) {
			shouldClose = true
		}
	} else if pnl > 0 {
		shouldClose = true
	}
	if strat.StopLoss != nil && pnl < 0 {
		shouldClose = true
	}

	t.MaxAdverseExcursion = pos.mae
	if t.TradeCapital > 0 {
		t.MAEPct = pos.mae / t.TradeCapital * 100
	}

	if !shouldClose {
		t.ExitReason = models.StillOpen
		t.UnrealizedPnL = &pnl
		if t.TradeCapital > 0 {
			pct := pnl / t.TradeCapital * 100
			t.UnrealizedPnLPct = &pct
		}
		b.logger.Warn("position still open at period end",
			zap.String("side", string(pos.side)),
			zap.Float64("unrealized_pnl", pnl),
			zap.Float64("zscore", finalZ))
		return 0, false
	}

	exitDate := date
	pnlPct := pnl / initialCapital * 100
	t.ExitDate = &exitDate
	t.ExitPriceA = priceA
	t.ExitPriceB = priceB
	t.ExitZScore = finalZ
	t.ExitReason = models.ExitEndOfPeriod
	t.PnL = &pnl
	t.PnLPct = &pnlPct
	t.SpreadChange = exitSpread - entrySpread
	return pnl, true
}

func equityValues(points []models.EquityPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Equity
	}
	return out
}

// sanitizeResult clamps non-finite floats so JSON encoding cannot fail.
func sanitizeResult(res *models.BacktestResult) {
	clean := func(v *float64) {
		if c, ok := models.SanitizeFloat(*v); ok {
			*v = c
		} else {
			*v = 0
		}
	}

	clean(&res.Beta)
	for i := range res.EquityCurve {
		clean(&res.EquityCurve[i].Equity)
	}
	for i := range res.ZScores {
		clean(&res.ZScores[i].Value)
	}
	for _, t := range res.Trades {
		clean(&t.EntryPriceA)
		clean(&t.EntryPriceB)
		clean(&t.EntryZScore)
		clean(&t.EntrySpread)
		clean(&t.QuantityA)
		clean(&t.QuantityB)
		clean(&t.DollarA)
		clean(&t.DollarB)
		clean(&t.SpreadChange)
		clean(&t.MaxAdverseExcursion)
		clean(&t.MAEPct)
		if t.PnL != nil {
			clean(t.PnL)
		}
		if t.PnLPct != nil {
			clean(t.PnLPct)
		}
		if t.UnrealizedPnL != nil {
			clean(t.UnrealizedPnL)
		}
		if t.UnrealizedPnLPct != nil {
			clean(t.UnrealizedPnLPct)
		}
	}

	m := &res.Metrics
	clean(&m.WinRate)
	clean(&m.TotalReturn)
	clean(&m.SharpeRatio)
	clean(&m.MaxDrawdown)
	clean(&m.ProfitFactor)
	clean(&m.AvgMAE)
	clean(&m.MaxMAE)
	clean(&m.AvgMAEPct)
	clean(&m.MaxMAEPct)
	clean(&m.ReturnToMAERatio)
	clean(&m.TotalRebalancingCosts)
	clean(&m.RebalancingCostPct)
	clean(&m.FinalCapital)
	if m.KellyPercentage != nil {
		clean(m.KellyPercentage)
	}
}
