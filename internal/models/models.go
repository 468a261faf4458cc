package models

import (
	"math"
	"time"
)

// PositionSide represents the direction of an open spread position
type PositionSide string

const (
	Flat        PositionSide = "flat"
	LongSpread  PositionSide = "long_spread"  // long A, short B
	ShortSpread PositionSide = "short_spread" // short A, long B
)

// StopUnit represents the unit system for stop-loss / take-profit levels
type StopUnit string

const (
	StopNone    StopUnit = "none"
	StopZScore  StopUnit = "zscore"
	StopPercent StopUnit = "percent"
	StopATR     StopUnit = "atr"
)

// ExitReason describes why a trade was closed
type ExitReason string

const (
	ExitStopLoss    ExitReason = "stop_loss"
	ExitTakeProfit  ExitReason = "take_profit"
	ExitEndOfPeriod ExitReason = "end_of_period"
	ExitUnknown     ExitReason = "unknown"
	StillOpen       ExitReason = "open_at_end"
)

// PricePoint is a single daily close
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries is an ordered sequence of daily closes, ascending by date,
// no duplicate dates. Immutable once cached for a (symbol, days) key.
type PriceSeries []PricePoint

// Closes returns the close values in date order
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Close
	}
	return out
}

// Dates returns the dates in order
func (s PriceSeries) Dates() []time.Time {
	out := make([]time.Time, len(s))
	for i, p := range s {
		out[i] = p.Date
	}
	return out
}

// Clone returns an independent copy of the series
func (s PriceSeries) Clone() PriceSeries {
	out := make(PriceSeries, len(s))
	copy(out, s)
	return out
}

// AlignSeries intersects two price series on common dates, preserving order.
// Dates present in only one series are dropped.
func AlignSeries(a, b PriceSeries) (dates []time.Time, closesA, closesB []float64) {
	byDate := make(map[time.Time]float64, len(b))
	for _, p := range b {
		byDate[p.Date] = p.Close
	}
	for _, p := range a {
		if cb, ok := byDate[p.Date]; ok {
			dates = append(dates, p.Date)
			closesA = append(closesA, p.Close)
			closesB = append(closesB, cb)
		}
	}
	return dates, closesA, closesB
}

// ScreeningConfig is the immutable configuration for one screening run
type ScreeningConfig struct {
	Assets         []string `json:"assets,omitempty"` // empty = top assets by volume
	MaxAssets      int      `json:"max_assets"`
	LookbackDays   int      `json:"lookback_days"`
	MinCorrelation float64  `json:"min_correlation"`
	MaxADFPValue   float64  `json:"max_adf_pvalue"`
	IncludeHurst   bool     `json:"include_hurst"`
	MinVolumeUSD   float64  `json:"min_volume_usd"`
}

// PairCandidate is one scored pair from a screening run. Immutable once scored.
type PairCandidate struct {
	AssetA         string   `json:"asset_a"`
	AssetB         string   `json:"asset_b"`
	Correlation    float64  `json:"correlation"`
	MinCorrelation float64  `json:"min_correlation"`
	MaxCorrelation float64  `json:"max_correlation"`
	Beta           float64  `json:"beta"`
	Alpha          float64  `json:"alpha"`
	ADFStatistic   float64  `json:"adf_statistic"`
	ADFPValue      float64  `json:"adf_pvalue"`
	SpreadStd      float64  `json:"spread_std"` // % of mean price A
	MeanSpread     float64  `json:"mean_spread"`
	CurrentZScore  float64  `json:"current_zscore"`
	HurstExponent  *float64 `json:"hurst_exponent"` // nil when unavailable
	CompositeScore float64  `json:"composite_score"`
}

// ScreeningStats summarizes what a screening run processed
type ScreeningStats struct {
	AssetsConsidered int           `json:"assets_count"`
	ValidAssets      int           `json:"valid_assets_count"`
	PairsGenerated   int           `json:"pairs_generated"`
	PairsProcessed   int           `json:"pairs_processed"`
	PairsFound       int           `json:"pairs_found"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
}

// ScreeningRun holds the finalized output of one screening invocation
type ScreeningRun struct {
	SessionID string          `json:"session_id"`
	Config    ScreeningConfig `json:"config"`
	Results   []PairCandidate `json:"results"`
	Stats     ScreeningStats  `json:"stats"`
}

// RebalanceEvent records one hedge resize while a trade was open
type RebalanceEvent struct {
	Date          time.Time `json:"date"`
	OldBeta       float64   `json:"old_beta"`
	NewBeta       float64   `json:"new_beta"`
	BetaDriftPct  float64   `json:"beta_drift_pct"`
	DeltaQtyA     float64   `json:"delta_quantity_a"`
	DeltaQtyB     float64   `json:"delta_quantity_b"`
	NewQuantityA  float64   `json:"new_quantity_a"`
	NewQuantityB  float64   `json:"new_quantity_b"`
	Cost          float64   `json:"cost"`
}

// Trade is one round-trip (or still-open) spread position.
// QuantityB == beta-at-entry * QuantityA at creation; mutated only by
// rebalancing events and the single closing update.
type Trade struct {
	EntryDate    time.Time    `json:"entry_date"`
	Side         PositionSide `json:"entry_signal"`
	EntryPriceA  float64      `json:"entry_price_a"`
	EntryPriceB  float64      `json:"entry_price_b"`
	EntryZScore  float64      `json:"entry_zscore"`
	EntrySpread  float64      `json:"entry_spread"`
	QuantityA    float64      `json:"quantity_a"`
	QuantityB    float64      `json:"quantity_b"`
	DollarA      float64      `json:"dollar_a"`
	DollarB      float64      `json:"dollar_b"`
	TradeCapital float64      `json:"trade_capital"`
	BetaUsed     float64      `json:"beta_used"`
	AlphaUsed    float64      `json:"alpha_used"`

	Rebalances []RebalanceEvent `json:"rebalances,omitempty"`

	// Populated on close; ExitDate nil while the position is open.
	ExitDate     *time.Time `json:"exit_date"`
	ExitPriceA   float64    `json:"exit_price_a,omitempty"`
	ExitPriceB   float64    `json:"exit_price_b,omitempty"`
	ExitZScore   float64    `json:"exit_zscore,omitempty"`
	ExitReason   ExitReason `json:"exit_reason,omitempty"`
	PnL          *float64   `json:"pnl"`
	PnLPct       *float64   `json:"pnl_pct"`
	SpreadChange float64    `json:"spread_change,omitempty"`

	// Unrealized figures for positions still open at period end.
	UnrealizedPnL    *float64 `json:"unrealized_pnl,omitempty"`
	UnrealizedPnLPct *float64 `json:"unrealized_pnl_pct,omitempty"`

	MaxAdverseExcursion float64 `json:"max_adverse_excursion"`
	MAEPct              float64 `json:"mae_pct"`
}

// Closed reports whether the trade has been closed out
func (t *Trade) Closed() bool {
	return t.ExitDate != nil
}

// EquityPoint is one point on the realized equity curve
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// ZScorePoint is one rolling z-score observation
type ZScorePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// LeverageInfo holds leverage recommendations from the metrics calculator
type LeverageInfo struct {
	Optimal       float64 `json:"optimal_leverage"`
	SharpeBased   float64 `json:"sharpe_based"`
	DrawdownBased float64 `json:"drawdown_based"`
	Recommended   float64 `json:"recommended"`
	MaxLeverage   float64 `json:"max_leverage"`
}

// KellyDetails holds the inputs behind a Kelly sizing recommendation
type KellyDetails struct {
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	WinLossRatio float64 `json:"win_loss_ratio"`
}

// BacktestMetrics is the full metrics block for one backtest
type BacktestMetrics struct {
	TotalTrades           int           `json:"total_trades"`
	WinRate               float64       `json:"win_rate"`
	TotalReturn           float64       `json:"total_return"`
	SharpeRatio           float64       `json:"sharpe_ratio"`
	MaxDrawdown           float64       `json:"max_drawdown"`
	ProfitFactor          float64       `json:"profit_factor"`
	AvgMAE                float64       `json:"avg_mae"`
	MaxMAE                float64       `json:"max_mae"`
	AvgMAEPct             float64       `json:"avg_mae_pct"`
	MaxMAEPct             float64       `json:"max_mae_pct"`
	ReturnToMAERatio      float64       `json:"return_to_mae_ratio"`
	RebalancingEnabled    bool          `json:"rebalancing_enabled"`
	TotalRebalances       int           `json:"total_rebalances"`
	AvgRebalancesPerTrade float64       `json:"avg_rebalances_per_trade"`
	TotalRebalancingCosts float64       `json:"total_rebalancing_costs"`
	RebalancingCostPct    float64       `json:"rebalancing_cost_pct"`
	FinalCapital          float64       `json:"final_capital"`
	InitialCapital        float64       `json:"initial_capital"`
	Leverage              LeverageInfo  `json:"leverage"`
	KellyPercentage       *float64      `json:"kelly_percentage"`
	KellyDetails          *KellyDetails `json:"kelly_details,omitempty"`
}

// BacktestResult is the complete output of one backtest invocation.
// Immutable after return; all float fields are sanitized for JSON.
type BacktestResult struct {
	AssetA      string          `json:"asset_a"`
	AssetB      string          `json:"asset_b"`
	Beta        float64         `json:"beta"`
	Trades      []*Trade        `json:"trades"`
	EquityCurve []EquityPoint   `json:"equity_curve"`
	ZScores     []ZScorePoint   `json:"zscore"`
	Metrics     BacktestMetrics `json:"metrics"`
}

// Sentinel values used when sanitizing non-finite floats for JSON output.
const (
	PosInfSentinel = 999999.0
	NegInfSentinel = -999999.0
)

// SanitizeFloat maps +Inf/-Inf to large finite sentinels and returns
// NaN unchanged flagged as invalid
func SanitizeFloat(v float64) (float64, bool) {
	if math.IsNaN(v) {
		return 0, false
	}
	if math.IsInf(v, 1) {
		return PosInfSentinel, true
	}
	if math.IsInf(v, -1) {
		return NegInfSentinel, true
	}
	return v, true
}

// SafeFloat returns nil for NaN and a sentinel-clamped pointer otherwise
func SafeFloat(v float64) *float64 {
	clean, ok := SanitizeFloat(v)
	if !ok {
		return nil
	}
	return &clean
}

// Float64Ptr returns a pointer to v
func Float64Ptr(v float64) *float64 {
	return &v
}
