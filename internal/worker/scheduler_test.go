package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bracket-live/internal/aggregator"
	"github.com/bracket-live/internal/domain"
)

type countingPass struct {
	calls atomic.Int64
	err   error
}

func (p *countingPass) Run(ctx context.Context) (*aggregator.PassResult, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &aggregator.PassResult{Snapshot: domain.LiveActivitySnapshot{HotMatches: []domain.HotMatchSummary{}}}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsImmediatelyOnStart(t *testing.T) {
	pass := &countingPass{}
	s := NewScheduler(pass, time.Hour, testLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for pass.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := pass.calls.Load(); got != 1 {
		t.Errorf("passes = %d, want 1", got)
	}
	if s.IsRunning() {
		t.Error("scheduler still running after Stop")
	}
}

func TestScheduler_TicksOnInterval(t *testing.T) {
	pass := &countingPass{}
	s := NewScheduler(pass, 10*time.Millisecond, testLogger())

	s.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for pass.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if got := pass.calls.Load(); got < 3 {
		t.Errorf("passes = %d, want at least 3", got)
	}
}

func TestScheduler_StartTwiceIsNoop(t *testing.T) {
	pass := &countingPass{}
	s := NewScheduler(pass, time.Hour, testLogger())

	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()

	if got := pass.calls.Load(); got > 1 {
		t.Errorf("passes = %d, want at most 1", got)
	}
}

func TestScheduler_ContextCancelStopsLoop(t *testing.T) {
	pass := &countingPass{}
	s := NewScheduler(pass, 5*time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	s.Start(ctx)
	cancel()

	select {
	case <-s.doneCh:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after context cancellation")
	}
}

func TestScheduler_RunOnceReportsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"success", nil},
		{"lease held", domain.ErrLeaseHeld},
		{"pass failure", errors.New("postgres down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(&countingPass{err: tt.err}, time.Minute, testLogger())
			if err := s.RunOnce(context.Background()); !errors.Is(err, tt.err) {
				t.Errorf("RunOnce = %v, want %v", err, tt.err)
			}
		})
	}
}
