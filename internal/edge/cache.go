package edge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bracket-live/internal/config"
	"github.com/bracket-live/internal/domain"
)

// Status describes how a read was answered
type Status string

const (
	StatusHit      Status = "HIT"
	StatusMiss     Status = "MISS"
	StatusDegraded Status = "DEGRADED"
)

// SnapshotFetcher reads the latest snapshot straight from the backing store
type SnapshotFetcher interface {
	GetSnapshot(ctx context.Context) (*domain.LiveActivitySnapshot, error)
}

// entry is a serialized snapshot and the time the edge fetched it
type entry struct {
	payload   []byte
	fetchedAt time.Time
}

// Result is the outcome of a cache read
type Result struct {
	Payload []byte
	Status  Status
	Age     time.Duration
	Err     error
}

// Cache serves the live activity snapshot with a freshness window. Entries
// are never evicted; staleness is checked on read. Concurrent misses may
// each fetch and overwrite the entry, the last writer wins.
type Cache struct {
	fetcher   SnapshotFetcher
	freshness time.Duration
	logger    *slog.Logger
	now       func() time.Time

	current atomic.Pointer[entry]
}

// NewCache creates an edge cache in front of fetcher
func NewCache(fetcher SnapshotFetcher, cfg *config.EdgeConfig, logger *slog.Logger) *Cache {
	return &Cache{
		fetcher:   fetcher,
		freshness: cfg.FreshnessWindow,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the wall clock
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Read returns the cached payload while fresh, otherwise refetches it.
// Fetch failures produce a degraded payload that is not cached.
func (c *Cache) Read(ctx context.Context) Result {
	now := c.now()

	if e := c.current.Load(); e != nil {
		age := now.Sub(e.fetchedAt)
		if age < c.freshness {
			return Result{Payload: e.payload, Status: StatusHit, Age: age}
		}
	}

	payload, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("live activity fetch failed, serving degraded payload", "error", err)
		return Result{Payload: degradedPayload(now, err), Status: StatusDegraded, Err: err}
	}

	c.current.Store(&entry{payload: payload, fetchedAt: now})
	return Result{Payload: payload, Status: StatusMiss}
}

// Frame returns the payload for one stream frame
func (c *Cache) Frame(ctx context.Context) []byte {
	return c.Read(ctx).Payload
}

func (c *Cache) fetch(ctx context.Context) ([]byte, error) {
	snapshot, err := c.fetcher.GetSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, domain.ErrSnapshotNotFound
	}
	snapshot.Normalize()
	return json.Marshal(snapshot)
}

func degradedPayload(now time.Time, cause error) []byte {
	msg := "live activity temporarily unavailable"
	if errors.Is(cause, domain.ErrSnapshotNotFound) {
		msg = "live activity not available yet"
	}
	data, _ := json.Marshal(domain.DegradedSnapshot(now, msg))
	return data
}
