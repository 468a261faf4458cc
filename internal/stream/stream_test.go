package stream

import (
	"encoding/json"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/pairtrader/statarb-cli/internal/config"
)

func newTestMonitor() *Monitor {
	return NewMonitor(&config.Config{}, PairParams{
		AssetA:     "ETH",
		AssetB:     "BTC",
		Beta:       0.05,
		Alpha:      100.0,
		MeanSpread: 0.0,
		StdSpread:  50.0,
	}, zap.NewNop())
}

func tick(symbol, close string) json.RawMessage {
	return json.RawMessage(`{"e":"24hrMiniTicker","E":1700000000000,"s":"` + symbol + `","c":"` + close + `"}`)
}

func TestProcessMessageWaitsForBothLegs(t *testing.T) {
	m := newTestMonitor()

	var updates []Update
	m.OnUpdate(func(u Update) { updates = append(updates, u) })

	m.processMessage(tick("ETHUSDT", "3100"))
	if len(updates) != 0 {
		t.Fatalf("Expected no updates before both legs seen, got %d", len(updates))
	}

	m.processMessage(tick("BTCUSDT", "60000"))
	if len(updates) != 1 {
		t.Fatalf("Expected 1 update, got %d", len(updates))
	}

	u := updates[0]
	// spread = 3100 - (100 + 0.05*60000) = 0
	if math.Abs(u.Spread) > 1e-9 {
		t.Errorf("Expected spread 0, got %v", u.Spread)
	}
	if math.Abs(u.ZScore) > 1e-9 {
		t.Errorf("Expected z-score 0, got %v", u.ZScore)
	}
}

func TestProcessMessageZScore(t *testing.T) {
	m := newTestMonitor()

	var last Update
	m.OnUpdate(func(u Update) { last = u })

	m.processMessage(tick("BTCUSDT", "60000"))
	m.processMessage(tick("ETHUSDT", "3200"))

	// spread = 3200 - (100 + 0.05*60000) = 100, z = 100/50 = 2
	if math.Abs(last.Spread-100.0) > 1e-9 {
		t.Errorf("Expected spread 100, got %v", last.Spread)
	}
	if math.Abs(last.ZScore-2.0) > 1e-9 {
		t.Errorf("Expected z-score 2, got %v", last.ZScore)
	}
}

func TestProcessMessageIgnoresControlFrames(t *testing.T) {
	m := newTestMonitor()

	called := false
	m.OnUpdate(func(Update) { called = true })

	m.processMessage(json.RawMessage(`{"result":null,"id":1}`))
	m.processMessage(tick("DOGEUSDT", "0.1"))

	if called {
		t.Error("Expected no updates from control frames or unknown symbols")
	}
}
