package strategy

import (
	"fmt"
	"math"

	"github.com/pairtrader/statarb-cli/internal/models"
)

// Defaults applied when a field is zero-valued.
const (
	DefaultEntryThreshold     = 2.0
	DefaultRebalanceFrequency = 5
	DefaultRebalanceThreshold = 0.05
	DefaultPositionSizePct    = 100.0
)

// Config describes a z-score mean reversion strategy on a pair spread.
// StopLoss and TakeProfit are nil when disabled; their units are given
// by the matching type field.
type Config struct {
	EntryThreshold float64

	StopLoss     *float64
	StopLossType models.StopUnit

	TakeProfit     *float64
	TakeProfitType models.StopUnit

	EnableRebalancing        bool
	RebalancingFrequencyDays int
	RebalancingThreshold     float64
}

// Normalize fills zero-valued fields with defaults and validates units.
func (c *Config) Normalize() error {
	if c.EntryThreshold == 0 {
		c.EntryThreshold = DefaultEntryThreshold
	}
	if c.EntryThreshold < 0 {
		return fmt.Errorf("entry threshold must be positive, got %v", c.EntryThreshold)
	}
	if c.StopLoss != nil && c.StopLossType == models.StopNone {
		c.StopLossType = models.StopZScore
	}
	if c.TakeProfit != nil && c.TakeProfitType == models.StopNone {
		c.TakeProfitType = models.StopZScore
	}
	if c.RebalancingFrequencyDays <= 0 {
		c.RebalancingFrequencyDays = DefaultRebalanceFrequency
	}
	if c.RebalancingThreshold <= 0 {
		c.RebalancingThreshold = DefaultRebalanceThreshold
	}
	return nil
}

// EntrySignal returns the position to open at the given z-score, or Flat.
// A spread stretched above the threshold is shorted, below is bought.
func (c *Config) EntrySignal(z float64) models.PositionSide {
	switch {
	case z >= c.EntryThreshold:
		return models.ShortSpread
	case z <= -c.EntryThreshold:
		return models.LongSpread
	default:
		return models.Flat
	}
}

// TakeProfitTarget converts a z-score take profit setting into the absolute
// z level that closes the trade, relative to the entry z-score. A positive
// setting targets the opposite side of the mean; a negative setting targets
// the same side, closing before full reversion.
func TakeProfitTarget(entryZ, takeProfit float64) float64 {
	if takeProfit == 0 {
		return 0
	}
	if entryZ == 0 {
		return takeProfit
	}
	sign := 1.0
	if entryZ < 0 {
		sign = -1.0
	}
	if takeProfit >= 0 {
		return -sign * math.Abs(takeProfit)
	}
	return sign * math.Abs(takeProfit)
}
