package domain

import (
	"time"
)

// MatchStatus is the lifecycle state of a bracket match
type MatchStatus string

const (
	MatchStatusUpcoming  MatchStatus = "upcoming"
	MatchStatusLive      MatchStatus = "live"
	MatchStatusCompleted MatchStatus = "completed"
)

// Valid reports whether s is a known status
func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusUpcoming, MatchStatusLive, MatchStatusCompleted:
		return true
	}
	return false
}

// Contestant is one music video competing in a match. Fields missing from
// the stored document decode to their zero value.
type Contestant struct {
	Votes      int64  `json:"votes"`
	Title      string `json:"title,omitempty"`
	ShortTitle string `json:"shortTitle,omitempty"`
	VideoURL   string `json:"videoUrl,omitempty"`
}

// DisplayTitle resolves the label shown for the contestant: the short title,
// then the full title, then the empty string.
func (c Contestant) DisplayTitle() string {
	return firstNonEmpty(c.ShortTitle, c.Title)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// MatchRecord is a tournament match between two contestants
type MatchRecord struct {
	ID        string      `json:"id"`
	Status    MatchStatus `json:"status"`
	Song1     Contestant  `json:"song1"`
	Song2     Contestant  `json:"song2"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// TotalVotes returns the combined vote count of both contestants
func (m *MatchRecord) TotalVotes() int64 {
	return m.Song1.Votes + m.Song2.Votes
}

// CreateMatchRequest represents a request to create a new match
type CreateMatchRequest struct {
	ID     string      `json:"id"`
	Status MatchStatus `json:"status,omitempty"`
	Song1  Contestant  `json:"song1"`
	Song2  Contestant  `json:"song2"`
}

// ToRecord converts the request into a MatchRecord with defaults applied.
// Vote counts always start at zero.
func (r *CreateMatchRequest) ToRecord() MatchRecord {
	now := time.Now()
	record := MatchRecord{
		ID:        r.ID,
		Status:    r.Status,
		Song1:     r.Song1,
		Song2:     r.Song2,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if record.Status == "" {
		record.Status = MatchStatusUpcoming
	}
	record.Song1.Votes = 0
	record.Song2.Votes = 0
	return record
}

// UpdateStatusRequest changes a match's lifecycle state
type UpdateStatusRequest struct {
	Status MatchStatus `json:"status"`
}
