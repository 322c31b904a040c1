package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bracket-live/internal/config"
	"github.com/bracket-live/internal/domain"
)

// MatchSource reads raw match and vote state
type MatchSource interface {
	ListLiveMatches(ctx context.Context) ([]domain.MatchRecord, error)
	CountDistinctVoters(ctx context.Context, since time.Time, limit int) (int64, error)
}

// VoteCountCache remembers the vote total observed for each match on the previous pass
type VoteCountCache interface {
	GetVoteCount(ctx context.Context, matchID string) (domain.VoteCountEntry, bool, error)
	SetVoteCount(ctx context.Context, entry domain.VoteCountEntry, ttl time.Duration) error
}

// SnapshotWriter persists the aggregate document
type SnapshotWriter interface {
	PutSnapshot(ctx context.Context, snapshot domain.LiveActivitySnapshot) error
}

// RunLease grants exclusive ownership of an aggregation pass
type RunLease interface {
	AcquireLease(ctx context.Context, ttl time.Duration) (string, error)
	ReleaseLease(ctx context.Context, token string) error
}

// Aggregator computes the live activity snapshot from vote state
type Aggregator struct {
	matches   MatchSource
	counts    VoteCountCache
	snapshots SnapshotWriter
	lease     RunLease
	config    *config.AggregatorConfig
	policy    domain.ActiveUserPolicy
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes an Aggregator
type Option func(*Aggregator)

// WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithoutLease disables the run lease; the caller guarantees passes never overlap
func WithoutLease() Option {
	return func(a *Aggregator) { a.lease = nil }
}

// New creates an aggregator
func New(
	matches MatchSource,
	counts VoteCountCache,
	snapshots SnapshotWriter,
	lease RunLease,
	cfg *config.AggregatorConfig,
	logger *slog.Logger,
	opts ...Option,
) *Aggregator {
	a := &Aggregator{
		matches:   matches,
		counts:    counts,
		snapshots: snapshots,
		lease:     lease,
		config:    cfg,
		policy:    cfg.Policy(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the active user policy in effect
func (a *Aggregator) Policy() domain.ActiveUserPolicy {
	return a.policy
}

// PassResult summarizes one aggregation pass
type PassResult struct {
	Snapshot      domain.LiveActivitySnapshot
	LiveMatches   int
	CacheFailures int
}

// Run executes one aggregation pass. It returns domain.ErrLeaseHeld when
// another pass owns the lease. Any other error means nothing was written.
func (a *Aggregator) Run(ctx context.Context) (*PassResult, error) {
	if a.lease != nil {
		token, err := a.lease.AcquireLease(ctx, a.config.LeaseTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			// release even if the pass context was cancelled
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := a.lease.ReleaseLease(releaseCtx, token); err != nil {
				a.logger.Warn("failed to release aggregation lease", "error", err)
			}
		}()
	}

	now := a.now()

	matches, err := a.matches.ListLiveMatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing live matches: %w", err)
	}

	hot, cacheFailures := a.collectHotMatches(ctx, matches, now)
	hot = topByRecentVotes(hot, a.config.TopN)

	activeUsers, err := a.activeUsers(ctx, hot, now)
	if err != nil {
		return nil, fmt.Errorf("counting active users: %w", err)
	}

	snapshot := domain.LiveActivitySnapshot{
		HotMatches:       hot,
		TotalActiveUsers: activeUsers,
		LastUpdate:       now.UnixMilli(),
	}
	snapshot.Normalize()

	if err := a.snapshots.PutSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}

	return &PassResult{
		Snapshot:      snapshot,
		LiveMatches:   len(matches),
		CacheFailures: cacheFailures,
	}, nil
}

// collectHotMatches diffs every match against its cached baseline and
// advances the baseline. Results keep the order of matches.
func (a *Aggregator) collectHotMatches(ctx context.Context, matches []domain.MatchRecord, now time.Time) ([]domain.HotMatchSummary, int) {
	type outcome struct {
		summary  *domain.HotMatchSummary
		failures int
	}
	outcomes := make([]outcome, len(matches))

	g, gctx := errgroup.WithContext(ctx)
	if a.config.Concurrency > 0 {
		g.SetLimit(a.config.Concurrency)
	}
	for i := range matches {
		i := i // per-iteration copy; go.mod targets go1.21 loop semantics
		match := &matches[i]
		g.Go(func() error {
			summary, failures := a.observeMatch(gctx, match, now)
			outcomes[i] = outcome{summary: summary, failures: failures}
			return nil
		})
	}
	_ = g.Wait() // workers never fail, cache errors are absorbed per match

	hot := make([]domain.HotMatchSummary, 0, len(matches))
	failures := 0
	for _, o := range outcomes {
		failures += o.failures
		if o.summary != nil {
			hot = append(hot, *o.summary)
		}
	}
	return hot, failures
}

// observeMatch computes one match's recent votes. The baseline is
// overwritten with the current total whether or not the match is hot.
func (a *Aggregator) observeMatch(ctx context.Context, match *domain.MatchRecord, now time.Time) (*domain.HotMatchSummary, int) {
	failures := 0
	total := match.TotalVotes()

	var previous int64
	entry, found, err := a.counts.GetVoteCount(ctx, match.ID)
	switch {
	case err != nil:
		failures++
		a.logger.Warn("vote count cache read failed, using zero baseline",
			"match_id", match.ID,
			"error", err,
		)
	case found:
		previous = entry.Count
	}

	err = a.counts.SetVoteCount(ctx, domain.VoteCountEntry{
		MatchID:    match.ID,
		Count:      total,
		ObservedAt: now,
	}, a.config.VoteCountTTL)
	if err != nil {
		failures++
		a.logger.Warn("vote count cache write failed",
			"match_id", match.ID,
			"error", err,
		)
	}

	recent := total - previous
	if recent <= 0 {
		return nil, failures
	}

	return &domain.HotMatchSummary{
		MatchID:      match.ID,
		RecentVotes:  recent,
		Song1:        match.Song1.DisplayTitle(),
		Song2:        match.Song2.DisplayTitle(),
		ThumbnailURL: ThumbnailURL(match.Song1.VideoURL),
	}, failures
}

// topByRecentVotes orders summaries by recent votes, highest first, keeping
// the incoming order among equal counts, and keeps at most n.
func topByRecentVotes(hot []domain.HotMatchSummary, n int) []domain.HotMatchSummary {
	sort.SliceStable(hot, func(i, j int) bool {
		return hot[i].RecentVotes > hot[j].RecentVotes
	})
	if n >= 0 && len(hot) > n {
		hot = hot[:n]
	}
	return hot
}

func (a *Aggregator) activeUsers(ctx context.Context, hot []domain.HotMatchSummary, now time.Time) (int64, error) {
	switch a.policy {
	case domain.ActiveUsersTopMatchSum:
		var sum int64
		for _, h := range hot {
			sum += h.RecentVotes
		}
		return sum, nil
	case domain.ActiveUsersDistinctVoters:
		since := now.Add(-a.config.ActiveWindow)
		return a.matches.CountDistinctVoters(ctx, since, a.config.ActiveQueryLimit)
	default:
		return 0, errors.New("no active user policy configured")
	}
}
