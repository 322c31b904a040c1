package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bracket-live/internal/domain"
)

// MatchRepository is the durable store for matches and vote events
type MatchRepository interface {
	CreateMatch(ctx context.Context, match domain.MatchRecord) error
	GetMatch(ctx context.Context, matchID string) (*domain.MatchRecord, error)
	ListMatches(ctx context.Context, status domain.MatchStatus) ([]domain.MatchRecord, error)
	UpdateMatchStatus(ctx context.Context, matchID string, status domain.MatchStatus) error
	RecordVote(ctx context.Context, vote domain.Vote) error
}

// VotingService provides business logic for matches and votes
type VotingService struct {
	repo   MatchRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewVotingService creates a new voting service
func NewVotingService(repo MatchRepository, logger *slog.Logger) *VotingService {
	return &VotingService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// CastVote records a single vote
func (s *VotingService) CastVote(ctx context.Context, vote domain.Vote) error {
	if err := vote.Validate(); err != nil {
		return err
	}
	if vote.CastAt.IsZero() {
		vote.CastAt = s.now()
	}

	if err := s.repo.RecordVote(ctx, vote); err != nil {
		return fmt.Errorf("recording vote: %w", err)
	}
	return nil
}

// CastVoteBatch records every vote in the batch and returns how many were
// accepted. Rejected votes are logged and skipped.
func (s *VotingService) CastVoteBatch(ctx context.Context, batch domain.BatchVotes) int {
	accepted := 0
	for _, vote := range batch.Votes {
		if err := s.CastVote(ctx, vote); err != nil {
			s.logger.Warn("failed to cast vote in batch",
				"match_id", vote.MatchID,
				"user_id", vote.UserID,
				"error", err,
			)
			continue
		}
		accepted++
	}
	return accepted
}

// CreateMatch creates a new match
func (s *VotingService) CreateMatch(ctx context.Context, req domain.CreateMatchRequest) (*domain.MatchRecord, error) {
	if req.ID == "" {
		return nil, domain.ErrInvalidMatch
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, domain.ErrInvalidMatch
	}

	match := req.ToRecord()
	if err := s.repo.CreateMatch(ctx, match); err != nil {
		return nil, err
	}

	s.logger.Info("match created", "match_id", match.ID, "status", match.Status)
	return &match, nil
}

// GetMatch returns a match by ID
func (s *VotingService) GetMatch(ctx context.Context, matchID string) (*domain.MatchRecord, error) {
	return s.repo.GetMatch(ctx, matchID)
}

// ListMatches returns all matches, or only those with the given status
func (s *VotingService) ListMatches(ctx context.Context, status domain.MatchStatus) ([]domain.MatchRecord, error) {
	if status != "" && !status.Valid() {
		return nil, domain.ErrInvalidRequest
	}
	return s.repo.ListMatches(ctx, status)
}

// UpdateMatchStatus moves a match to a new lifecycle state
func (s *VotingService) UpdateMatchStatus(ctx context.Context, matchID string, status domain.MatchStatus) error {
	if !status.Valid() {
		return domain.ErrInvalidRequest
	}
	if err := s.repo.UpdateMatchStatus(ctx, matchID, status); err != nil {
		return err
	}

	s.logger.Info("match status updated", "match_id", matchID, "status", status)
	return nil
}
