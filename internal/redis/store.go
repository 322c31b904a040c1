package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bracket-live/internal/config"
	"github.com/bracket-live/internal/domain"
)

// releaseLeaseScript deletes the lease key only while it still holds our token
var releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store keeps the live activity documents: the snapshot, the per-match
// vote count cache and the aggregation run lease.
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewStore connects to Redis and verifies the connection
func NewStore(cfg *config.RedisConfig, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewStoreWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewStoreWithClient wraps an existing client
func NewStoreWithClient(client *redis.Client, prefix string, logger *slog.Logger) *Store {
	if prefix == "" {
		prefix = "live_activity"
	}
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks that Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) snapshotKey() string {
	return s.prefix + ":snapshot"
}

func (s *Store) voteCountKey(matchID string) string {
	return fmt.Sprintf("%s:votecount:%s", s.prefix, matchID)
}

func (s *Store) leaseKey() string {
	return s.prefix + ":aggregator:lease"
}

// GetVoteCount returns the last observed vote total for a match.
// found is false when no observation exists yet.
func (s *Store) GetVoteCount(ctx context.Context, matchID string) (entry domain.VoteCountEntry, found bool, err error) {
	result, err := s.client.HGetAll(ctx, s.voteCountKey(matchID)).Result()
	if err != nil {
		return domain.VoteCountEntry{}, false, fmt.Errorf("getting vote count: %w", err)
	}
	if len(result) == 0 {
		return domain.VoteCountEntry{}, false, nil
	}

	count, err := strconv.ParseInt(result["count"], 10, 64)
	if err != nil {
		return domain.VoteCountEntry{}, false, fmt.Errorf("parsing vote count for %s: %w", matchID, err)
	}
	observedMs, _ := strconv.ParseInt(result["observed_at"], 10, 64)

	return domain.VoteCountEntry{
		MatchID:    matchID,
		Count:      count,
		ObservedAt: time.UnixMilli(observedMs),
	}, true, nil
}

// SetVoteCount overwrites the observation for a match. A positive ttl lets
// entries of finished matches expire.
func (s *Store) SetVoteCount(ctx context.Context, entry domain.VoteCountEntry, ttl time.Duration) error {
	key := s.voteCountKey(entry.MatchID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"count", entry.Count,
		"observed_at", entry.ObservedAt.UnixMilli(),
	)
	if ttl > 0 {
		pipe.PExpire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting vote count: %w", err)
	}
	return nil
}

// PutSnapshot replaces the snapshot document with a single write
func (s *Store) PutSnapshot(ctx context.Context, snapshot domain.LiveActivitySnapshot) error {
	snapshot.Normalize()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.snapshotKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// GetSnapshot reads the current snapshot document
func (s *Store) GetSnapshot(ctx context.Context) (*domain.LiveActivitySnapshot, error) {
	data, err := s.client.Get(ctx, s.snapshotKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot domain.LiveActivitySnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	snapshot.Normalize()
	return &snapshot, nil
}

// AcquireLease takes the exclusive aggregation lease for ttl and returns its token
func (s *Store) AcquireLease(ctx context.Context, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.leaseKey(), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquiring lease: %w", err)
	}
	if !ok {
		return "", domain.ErrLeaseHeld
	}
	return token, nil
}

// ReleaseLease frees the lease if token still owns it
func (s *Store) ReleaseLease(ctx context.Context, token string) error {
	released, err := releaseLeaseScript.Run(ctx, s.client, []string{s.leaseKey()}, token).Int()
	if err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	if released == 0 {
		s.logger.Warn("aggregation lease expired before release")
	}
	return nil
}
