package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bracket-live/internal/aggregator"
	"github.com/bracket-live/internal/domain"
)

// Pass runs a single aggregation pass
type Pass interface {
	Run(ctx context.Context) (*aggregator.PassResult, error)
}

// Scheduler runs aggregation passes on a fixed interval
type Scheduler struct {
	pass     Pass
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewScheduler creates a scheduler that triggers pass every interval
func NewScheduler(pass Pass, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		pass:     pass,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs one pass immediately and then one per interval
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("aggregation scheduler started", "interval", s.interval)

	go s.run(ctx)
	return nil
}

// Stop halts the scheduler and waits for an in-flight pass to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("aggregation scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunOnce executes a single pass and logs its outcome
func (s *Scheduler) RunOnce(ctx context.Context) error {
	startTime := time.Now()

	result, err := s.pass.Run(ctx)
	if errors.Is(err, domain.ErrLeaseHeld) {
		s.logger.Info("aggregation pass skipped, another pass holds the lease")
		return err
	}
	if err != nil {
		s.logger.Error("aggregation pass failed",
			"duration", time.Since(startTime),
			"error", err,
		)
		return err
	}

	s.logger.Info("aggregation pass completed",
		"duration", time.Since(startTime),
		"live_matches", result.LiveMatches,
		"hot_matches", len(result.Snapshot.HotMatches),
		"active_users", result.Snapshot.TotalActiveUsers,
		"cache_failures", result.CacheFailures,
	)
	return nil
}
