package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bracket-live/internal/config"
	"github.com/bracket-live/internal/domain"
)

// Repository provides PostgreSQL-based access to matches and vote events
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks that the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			id VARCHAR(64) PRIMARY KEY,
			status VARCHAR(20) NOT NULL DEFAULT 'upcoming',
			song1 JSONB NOT NULL DEFAULT '{}'::jsonb,
			song2 JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS vote_events (
			id BIGSERIAL PRIMARY KEY,
			match_id VARCHAR(64) NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
			user_id VARCHAR(128) NOT NULL,
			choice SMALLINT NOT NULL CHECK (choice IN (1, 2)),
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(match_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_vote_events_created ON vote_events(created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// CreateMatch inserts a new match
func (r *Repository) CreateMatch(ctx context.Context, match domain.MatchRecord) error {
	song1, err := json.Marshal(match.Song1)
	if err != nil {
		return fmt.Errorf("marshaling song1: %w", err)
	}
	song2, err := json.Marshal(match.Song2)
	if err != nil {
		return fmt.Errorf("marshaling song2: %w", err)
	}

	query := `
		INSERT INTO matches (id, status, song1, song2, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		match.ID,
		string(match.Status),
		song1,
		song2,
		match.CreatedAt,
		match.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrMatchExists
		}
		return fmt.Errorf("creating match: %w", err)
	}
	return nil
}

const matchColumns = `id, status, song1, song2, created_at, updated_at`

// GetMatch retrieves a match by ID
func (r *Repository) GetMatch(ctx context.Context, matchID string) (*domain.MatchRecord, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	match, err := r.scanMatch(r.pool.QueryRow(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMatchNotFound
		}
		return nil, fmt.Errorf("getting match: %w", err)
	}
	return match, nil
}

// ListMatches returns matches in creation order, optionally filtered by status
func (r *Repository) ListMatches(ctx context.Context, status domain.MatchStatus) ([]domain.MatchRecord, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		rows, err = r.pool.Query(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY created_at, id`)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+matchColumns+` FROM matches WHERE status = $1 ORDER BY created_at, id`, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	matches := []domain.MatchRecord{}
	for rows.Next() {
		match, err := r.scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, *match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}
	return matches, nil
}

// ListLiveMatches returns every match currently accepting votes
func (r *Repository) ListLiveMatches(ctx context.Context) ([]domain.MatchRecord, error) {
	return r.ListMatches(ctx, domain.MatchStatusLive)
}

// UpdateMatchStatus moves a match to a new lifecycle state
func (r *Repository) UpdateMatchStatus(ctx context.Context, matchID string, status domain.MatchStatus) error {
	query := `UPDATE matches SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, matchID, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("updating match status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

// RecordVote stores a vote event and increments the chosen contestant's
// count in one transaction. Only live matches accept votes and each user
// votes at most once per match.
func (r *Repository) RecordVote(ctx context.Context, vote domain.Vote) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM matches WHERE id = $1 FOR UPDATE`, vote.MatchID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrMatchNotFound
			}
			return fmt.Errorf("locking match: %w", err)
		}
		if domain.MatchStatus(status) != domain.MatchStatusLive {
			return domain.ErrMatchNotLive
		}

		result, err := tx.Exec(ctx, `
			INSERT INTO vote_events (match_id, user_id, choice, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (match_id, user_id) DO NOTHING
		`, vote.MatchID, vote.UserID, int(vote.Choice), vote.CastAt)
		if err != nil {
			return fmt.Errorf("recording vote event: %w", err)
		}
		if result.RowsAffected() == 0 {
			return domain.ErrAlreadyVoted
		}

		if _, err := tx.Exec(ctx, incrementVotesQuery(vote.Choice), vote.MatchID, vote.CastAt); err != nil {
			return fmt.Errorf("incrementing votes: %w", err)
		}
		return nil
	})
}

// incrementVotesQuery bumps the votes field inside the chosen contestant document
func incrementVotesQuery(choice domain.Choice) string {
	column := "song1"
	if choice == domain.ChoiceSong2 {
		column = "song2"
	}
	return fmt.Sprintf(`
		UPDATE matches
		SET %[1]s = jsonb_set(%[1]s, '{votes}', to_jsonb(COALESCE((%[1]s->>'votes')::bigint, 0) + 1)),
			updated_at = $2
		WHERE id = $1
	`, column)
}

// CountDistinctVoters counts distinct users among the most recent vote
// events cast at or after since, examining at most limit events.
func (r *Repository) CountDistinctVoters(ctx context.Context, since time.Time, limit int) (int64, error) {
	query := `
		SELECT COUNT(DISTINCT user_id)
		FROM (
			SELECT user_id
			FROM vote_events
			WHERE created_at >= $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
	`
	var count int64
	if err := r.pool.QueryRow(ctx, query, since, limit).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting distinct voters: %w", err)
	}
	return count, nil
}

// scanMatch reads one match row. Contestant documents that cannot be
// decoded are treated as empty rather than failing the row.
func (r *Repository) scanMatch(row pgx.Row) (*domain.MatchRecord, error) {
	var (
		match        domain.MatchRecord
		status       string
		song1, song2 []byte
	)
	if err := row.Scan(&match.ID, &status, &song1, &song2, &match.CreatedAt, &match.UpdatedAt); err != nil {
		return nil, err
	}
	match.Status = domain.MatchStatus(status)
	match.Song1 = r.decodeContestant(match.ID, "song1", song1)
	match.Song2 = r.decodeContestant(match.ID, "song2", song2)
	return &match, nil
}

func (r *Repository) decodeContestant(matchID, field string, raw []byte) domain.Contestant {
	c, err := DecodeContestant(raw)
	if err != nil {
		r.logger.Warn("malformed contestant document",
			"match_id", matchID,
			"field", field,
			"error", err,
		)
	}
	return c
}
