package strategy

import (
	"testing"

	"github.com/pairtrader/statarb-cli/internal/models"
)

func TestTakeProfitTarget(t *testing.T) {
	cases := []struct {
		name       string
		entryZ     float64
		takeProfit float64
		expected   float64
	}{
		{"disabled", 2.5, 0, 0},
		{"zero entry returns setting", 0, 1.0, 1.0},
		{"positive entry crosses mean", 2.0, 1.0, -1.0},
		{"negative entry crosses mean", -2.0, 1.0, 1.0},
		{"positive entry partial reversion", 2.0, -1.0, 1.0},
		{"negative entry partial reversion", -2.0, -1.0, -1.0},
		{"magnitude preserved", 2.5, 0.5, -0.5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TakeProfitTarget(tc.entryZ, tc.takeProfit)
			if got != tc.expected {
				t.Errorf("Expected target %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestEntrySignal(t *testing.T) {
	cfg := &Config{EntryThreshold: 2.0}

	cases := []struct {
		z        float64
		expected models.PositionSide
	}{
		{2.5, models.ShortSpread},
		{2.0, models.ShortSpread},
		{1.9, models.Flat},
		{0, models.Flat},
		{-1.9, models.Flat},
		{-2.0, models.LongSpread},
		{-3.1, models.LongSpread},
	}

	for _, tc := range cases {
		if got := cfg.EntrySignal(tc.z); got != tc.expected {
			t.Errorf("Expected %s at z=%v, got %s", tc.expected, tc.z, got)
		}
	}
}

func TestNormalizeDefaults(t *testing.T) {
	sl := 3.0
	cfg := &Config{StopLoss: &sl}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if cfg.EntryThreshold != DefaultEntryThreshold {
		t.Errorf("Expected entry threshold %v, got %v", DefaultEntryThreshold, cfg.EntryThreshold)
	}
	if cfg.StopLossType != models.StopZScore {
		t.Errorf("Expected z-score stop unit default, got %s", cfg.StopLossType)
	}
	if cfg.RebalancingFrequencyDays != DefaultRebalanceFrequency {
		t.Errorf("Expected rebalance frequency %d, got %d", DefaultRebalanceFrequency, cfg.RebalancingFrequencyDays)
	}
}

func TestNormalizeRejectsNegativeThreshold(t *testing.T) {
	cfg := &Config{EntryThreshold: -1.0}
	if err := cfg.Normalize(); err == nil {
		t.Errorf("Expected error for negative entry threshold")
	}
}
