package domain

import (
	"fmt"
	"time"
)

// HotMatchSummary describes a match that gained votes since the previous
// aggregation pass.
type HotMatchSummary struct {
	MatchID      string `json:"matchId"`
	RecentVotes  int64  `json:"recentVotes"`
	Song1        string `json:"song1"`
	Song2        string `json:"song2"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// LiveActivitySnapshot is the aggregate document written by the aggregator
// and served by the edge layer. Error is only set on degraded payloads.
type LiveActivitySnapshot struct {
	HotMatches       []HotMatchSummary `json:"hotMatches"`
	TotalActiveUsers int64             `json:"totalActiveUsers"`
	LastUpdate       int64             `json:"lastUpdate"`
	Error            string            `json:"error,omitempty"`
}

// Normalize replaces a nil match list so the payload always encodes an array
// and clamps negative counters left by malformed documents.
func (s *LiveActivitySnapshot) Normalize() {
	if s.HotMatches == nil {
		s.HotMatches = []HotMatchSummary{}
	}
	if s.TotalActiveUsers < 0 {
		s.TotalActiveUsers = 0
	}
}

// DegradedSnapshot builds the empty payload returned when upstream data is unavailable
func DegradedSnapshot(now time.Time, cause string) LiveActivitySnapshot {
	if cause == "" {
		cause = "live activity unavailable"
	}
	return LiveActivitySnapshot{
		HotMatches:       []HotMatchSummary{},
		TotalActiveUsers: 0,
		LastUpdate:       now.UnixMilli(),
		Error:            cause,
	}
}

// VoteCountEntry is the last observed vote total of a match
type VoteCountEntry struct {
	MatchID    string    `json:"matchId"`
	Count      int64     `json:"count"`
	ObservedAt time.Time `json:"observedAt"`
}

// ActiveUserPolicy selects how the active user count is derived
type ActiveUserPolicy string

const (
	// ActiveUsersDistinctVoters counts distinct users who voted in the trailing window
	ActiveUsersDistinctVoters ActiveUserPolicy = "distinct_voters"
	// ActiveUsersTopMatchSum sums the recent votes of the emitted hot matches
	ActiveUsersTopMatchSum ActiveUserPolicy = "top_match_sum"
)

// ParseActiveUserPolicy validates a configured policy name
func ParseActiveUserPolicy(s string) (ActiveUserPolicy, error) {
	switch p := ActiveUserPolicy(s); p {
	case ActiveUsersDistinctVoters, ActiveUsersTopMatchSum:
		return p, nil
	}
	return "", fmt.Errorf("unknown active user policy %q", s)
}
