package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pairtrader/statarb-cli/internal/config"
)

// PairParams holds the fitted relationship for the monitored pair.
// Beta, Alpha, MeanSpread and StdSpread come from a screening run or a
// backtest over historical closes.
type PairParams struct {
	AssetA     string
	AssetB     string
	Beta       float64
	Alpha      float64
	MeanSpread float64
	StdSpread  float64
}

// Update is emitted whenever a fresh price for either leg arrives and
// both legs have been seen at least once.
type Update struct {
	PriceA    float64
	PriceB    float64
	Spread    float64
	ZScore    float64
	Timestamp time.Time
}

// UpdateHandler is a callback for spread updates.
type UpdateHandler func(Update)

// Monitor maintains a websocket connection to the exchange miniTicker
// streams for both legs of a pair and recomputes the live spread and
// z-score on every tick.
type Monitor struct {
	cfg                   *config.Config
	params                PairParams
	logger                *zap.Logger
	conn                  *websocket.Conn
	mu                    sync.RWMutex
	handler               UpdateHandler
	reconnectDelay        time.Duration
	ctx                   context.Context
	cancel                context.CancelFunc
	isConnected           bool
	connectionAttempts    int
	maxConnectionAttempts int
	priceA                float64
	priceB                float64
	lastUpdate            time.Time
	nextRequestID         int
}

type miniTickerMessage struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// NewMonitor creates a monitor for a single pair.
func NewMonitor(cfg *config.Config, params PairParams, logger *zap.Logger) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		cfg:                   cfg,
		params:                params,
		logger:                logger,
		reconnectDelay:        cfg.WebsocketReconnectDelay,
		ctx:                   ctx,
		cancel:                cancel,
		maxConnectionAttempts: 5,
		nextRequestID:         1,
	}
}

// OnUpdate registers the callback invoked on each spread update.
func (m *Monitor) OnUpdate(handler UpdateHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Connect establishes the websocket connection and subscribes to both legs.
func (m *Monitor) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
		m.isConnected = false
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(m.cfg.BinanceWSURL, nil)
	if err != nil {
		m.connectionAttempts++
		return fmt.Errorf("websocket dial: %w", err)
	}

	m.conn = conn
	m.isConnected = true
	m.connectionAttempts = 0

	sub := subscribeRequest{
		Method: "SUBSCRIBE",
		Params: []string{
			streamName(m.params.AssetA),
			streamName(m.params.AssetB),
		},
		ID: m.nextRequestID,
	}
	m.nextRequestID++

	if err := m.conn.WriteJSON(sub); err != nil {
		m.conn.Close()
		m.conn = nil
		m.isConnected = false
		return fmt.Errorf("subscribe write: %w", err)
	}

	go m.handleMessages()

	m.logger.Info("Websocket connected",
		zap.String("url", m.cfg.BinanceWSURL),
		zap.Strings("streams", sub.Params))
	return nil
}

// streamName maps an asset like "BTC" to its miniTicker stream name.
func streamName(asset string) string {
	return strings.ToLower(asset) + "usdt@miniTicker"
}

// handleMessages processes incoming websocket messages.
func (m *Monitor) handleMessages() {
	defer func() {
		m.mu.Lock()
		m.isConnected = false
		m.mu.Unlock()

		if m.connectionAttempts < m.maxConnectionAttempts {
			m.reconnect()
		} else {
			m.logger.Error("Max connection attempts reached, stopping reconnection")
		}
	}()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
			var raw json.RawMessage

			m.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if err := m.conn.ReadJSON(&raw); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					m.logger.Error("Websocket read error", zap.Error(err))
				}
				return
			}

			m.processMessage(raw)
		}
	}
}

// processMessage handles an individual stream message.
func (m *Monitor) processMessage(raw json.RawMessage) {
	var msg miniTickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		m.logger.Error("failed to parse stream message", zap.Error(err))
		return
	}

	// Subscription acks and other control frames carry no event type.
	if msg.EventType != "24hrMiniTicker" {
		return
	}

	price, err := strconv.ParseFloat(msg.Close, 64)
	if err != nil {
		m.logger.Error("failed to parse close price",
			zap.String("symbol", msg.Symbol),
			zap.String("close", msg.Close),
			zap.Error(err))
		return
	}

	symbolA := strings.ToUpper(m.params.AssetA) + "USDT"
	symbolB := strings.ToUpper(m.params.AssetB) + "USDT"

	m.mu.Lock()
	switch msg.Symbol {
	case symbolA:
		m.priceA = price
	case symbolB:
		m.priceB = price
	default:
		m.mu.Unlock()
		return
	}

	if m.priceA == 0 || m.priceB == 0 {
		m.mu.Unlock()
		return
	}

	update := Update{
		PriceA:    m.priceA,
		PriceB:    m.priceB,
		Spread:    m.priceA - (m.params.Alpha + m.params.Beta*m.priceB),
		Timestamp: time.UnixMilli(msg.EventTime),
	}
	if m.params.StdSpread > 0 {
		update.ZScore = (update.Spread - m.params.MeanSpread) / m.params.StdSpread
	}
	m.lastUpdate = update.Timestamp
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		handler(update)
	}
}

// reconnect attempts to reconnect with exponential backoff.
func (m *Monitor) reconnect() {
	backoff := m.reconnectDelay
	maxBackoff := 60 * time.Second

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(backoff):
			if m.connectionAttempts >= m.maxConnectionAttempts {
				m.logger.Error("Max connection attempts reached, stopping reconnection",
					zap.Int("attempts", m.connectionAttempts))
				return
			}

			m.logger.Info("Attempting to reconnect",
				zap.Duration("backoff", backoff),
				zap.Int("attempt", m.connectionAttempts+1))

			if err := m.Connect(); err != nil {
				m.logger.Error("Reconnect failed", zap.Error(err))
				backoff = backoff * 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			} else {
				m.logger.Info("Reconnected successfully")
				return
			}
		}
	}
}

// Close gracefully shuts down the monitor.
func (m *Monitor) Close() error {
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		err := m.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			m.logger.Error("Error sending close message", zap.Error(err))
		}

		closeErr := m.conn.Close()
		m.conn = nil
		m.isConnected = false
		return closeErr
	}

	return nil
}

// IsConnected returns connection status.
func (m *Monitor) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isConnected
}

// LastUpdate returns the timestamp of the most recent spread update.
func (m *Monitor) LastUpdate() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdate
}
