package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bracket-live/internal/domain"
)

type memoryRepo struct {
	mu      sync.Mutex
	matches map[string]*domain.MatchRecord
	voters  map[string]bool
	votes   []domain.Vote
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		matches: make(map[string]*domain.MatchRecord),
		voters:  make(map[string]bool),
	}
}

func (r *memoryRepo) CreateMatch(ctx context.Context, match domain.MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.matches[match.ID]; ok {
		return domain.ErrMatchExists
	}
	r.matches[match.ID] = &match
	return nil
}

func (r *memoryRepo) GetMatch(ctx context.Context, matchID string) (*domain.MatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memoryRepo) ListMatches(ctx context.Context, status domain.MatchStatus) ([]domain.MatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.MatchRecord{}
	for _, m := range r.matches {
		if status == "" || m.Status == status {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateMatchStatus(ctx context.Context, matchID string, status domain.MatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	m.Status = status
	return nil
}

func (r *memoryRepo) RecordVote(ctx context.Context, vote domain.Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[vote.MatchID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	if m.Status != domain.MatchStatusLive {
		return domain.ErrMatchNotLive
	}
	key := vote.MatchID + "/" + vote.UserID
	if r.voters[key] {
		return domain.ErrAlreadyVoted
	}
	r.voters[key] = true
	r.votes = append(r.votes, vote)
	if vote.Choice == domain.ChoiceSong1 {
		m.Song1.Votes++
	} else {
		m.Song2.Votes++
	}
	return nil
}

func newTestService() (*VotingService, *memoryRepo) {
	repo := newMemoryRepo()
	svc := NewVotingService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return svc, repo
}

func TestCreateMatch_Defaults(t *testing.T) {
	svc, _ := newTestService()

	match, err := svc.CreateMatch(context.Background(), domain.CreateMatchRequest{
		ID:    "m1",
		Song1: domain.Contestant{Title: "First", Votes: 40},
		Song2: domain.Contestant{Title: "Second"},
	})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if match.Status != domain.MatchStatusUpcoming {
		t.Errorf("status = %s, want upcoming", match.Status)
	}
	if match.TotalVotes() != 0 {
		t.Errorf("new match starts with %d votes, want 0", match.TotalVotes())
	}
}

func TestCreateMatch_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.CreateMatchRequest
		want error
	}{
		{"missing id", domain.CreateMatchRequest{}, domain.ErrInvalidMatch},
		{"unknown status", domain.CreateMatchRequest{ID: "m1", Status: "paused"}, domain.ErrInvalidMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateMatch(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	svc.CreateMatch(ctx, domain.CreateMatchRequest{ID: "dup"})
	if _, err := svc.CreateMatch(ctx, domain.CreateMatchRequest{ID: "dup"}); !errors.Is(err, domain.ErrMatchExists) {
		t.Errorf("duplicate create err = %v, want ErrMatchExists", err)
	}
}

func TestCastVote(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	svc.CreateMatch(ctx, domain.CreateMatchRequest{ID: "live", Status: domain.MatchStatusLive})
	svc.CreateMatch(ctx, domain.CreateMatchRequest{ID: "later"})

	tests := []struct {
		name string
		vote domain.Vote
		want error
	}{
		{"accepted", domain.Vote{MatchID: "live", UserID: "u1", Choice: domain.ChoiceSong2}, nil},
		{"second vote by same user", domain.Vote{MatchID: "live", UserID: "u1", Choice: domain.ChoiceSong1}, domain.ErrAlreadyVoted},
		{"match not live", domain.Vote{MatchID: "later", UserID: "u1", Choice: domain.ChoiceSong1}, domain.ErrMatchNotLive},
		{"unknown match", domain.Vote{MatchID: "nope", UserID: "u1", Choice: domain.ChoiceSong1}, domain.ErrMatchNotFound},
		{"bad choice", domain.Vote{MatchID: "live", UserID: "u2", Choice: 3}, domain.ErrInvalidVote},
		{"missing user", domain.Vote{MatchID: "live", Choice: domain.ChoiceSong1}, domain.ErrInvalidVote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CastVote(ctx, tt.vote)
			if tt.want == nil && err != nil {
				t.Fatalf("CastVote: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	match, _ := repo.GetMatch(ctx, "live")
	if match.Song2.Votes != 1 || match.Song1.Votes != 0 {
		t.Errorf("votes = %d/%d, want 0/1", match.Song1.Votes, match.Song2.Votes)
	}
	if got := repo.votes[0].CastAt; !got.Equal(time.UnixMilli(1_700_000_000_000)) {
		t.Errorf("cast at = %v, want service clock", got)
	}
}

func TestCastVoteBatch_SkipsRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.CreateMatch(ctx, domain.CreateMatchRequest{ID: "live", Status: domain.MatchStatusLive})

	accepted := svc.CastVoteBatch(ctx, domain.BatchVotes{Votes: []domain.Vote{
		{MatchID: "live", UserID: "u1", Choice: domain.ChoiceSong1},
		{MatchID: "live", UserID: "u1", Choice: domain.ChoiceSong1},
		{MatchID: "missing", UserID: "u2", Choice: domain.ChoiceSong1},
		{MatchID: "live", UserID: "u3", Choice: domain.ChoiceSong2},
	}})
	if accepted != 2 {
		t.Errorf("accepted = %d, want 2", accepted)
	}
}

func TestUpdateMatchStatus(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.CreateMatch(ctx, domain.CreateMatchRequest{ID: "m1"})

	if err := svc.UpdateMatchStatus(ctx, "m1", "paused"); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("invalid status err = %v", err)
	}
	if err := svc.UpdateMatchStatus(ctx, "missing", domain.MatchStatusLive); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Errorf("missing match err = %v", err)
	}
	if err := svc.UpdateMatchStatus(ctx, "m1", domain.MatchStatusLive); err != nil {
		t.Fatalf("UpdateMatchStatus: %v", err)
	}

	live, err := svc.ListMatches(ctx, domain.MatchStatusLive)
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(live) != 1 || live[0].ID != "m1" {
		t.Errorf("live matches = %+v", live)
	}
	if _, err := svc.ListMatches(ctx, "paused"); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("list with unknown status err = %v", err)
	}
}
