// Package sweeper clears session tokens whose liveness window lapsed, so
// stale bearer tokens stop resolving even if nobody presents them again.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"medal/internal/auth"
	"medal/internal/clock"
	"medal/internal/storage"
)

type Sweeper struct {
	sessions storage.SessionStore
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
}

func New(sessions storage.SessionStore, clk clock.Clock, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		clock:    clk,
		logger:   logger,
		interval: interval,
	}
}

// Start launches the background loop. Calling Start on a running sweeper
// is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopChan != nil {
		return
	}
	s.stopChan = make(chan struct{})
	go s.run(s.stopChan)
}

// Stop ends the loop. Safe to call on a stopped sweeper.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopChan == nil {
		return
	}
	close(s.stopChan)
	s.stopChan = nil
}

func (s *Sweeper) run(stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			s.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(context.Background())
		}
	}
}

// SweepOnce clears every token outside its window right now.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := s.clock.Now()
	cleared, err := s.sessions.ClearExpiredTokens(ctx,
		now.Add(-auth.SessionWindow),
		now.Add(-auth.PermanentSessionWindow))
	if err != nil {
		s.logger.Error("failed to sweep expired sessions", "error", err)
		return
	}
	if cleared > 0 {
		s.logger.Info("cleared expired session tokens", "count", cleared)
	}
}
