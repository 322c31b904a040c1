package domain

import "time"

// Choice selects one of the two contestants of a match
type Choice int

const (
	ChoiceSong1 Choice = 1
	ChoiceSong2 Choice = 2
)

// Valid reports whether c names a contestant
func (c Choice) Valid() bool {
	return c == ChoiceSong1 || c == ChoiceSong2
}

// Vote is a single ballot cast by a user in a match
type Vote struct {
	MatchID string    `json:"matchId"`
	UserID  string    `json:"userId"`
	Choice  Choice    `json:"choice"`
	CastAt  time.Time `json:"castAt"`
}

// Validate checks the vote carries everything needed to be recorded
func (v *Vote) Validate() error {
	if v.MatchID == "" || v.UserID == "" || !v.Choice.Valid() {
		return ErrInvalidVote
	}
	return nil
}

// BatchVotes groups votes delivered together, e.g. from the message queue
type BatchVotes struct {
	Votes []Vote `json:"votes"`
}
