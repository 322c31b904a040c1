package domain

import "errors"

// Domain errors
var (
	ErrMatchNotFound    = errors.New("match not found")
	ErrMatchNotLive     = errors.New("match is not accepting votes")
	ErrMatchExists      = errors.New("match already exists")
	ErrInvalidMatch     = errors.New("invalid match definition")
	ErrAlreadyVoted     = errors.New("user already voted in this match")
	ErrInvalidVote      = errors.New("invalid vote")
	ErrSnapshotNotFound = errors.New("live activity snapshot not found")
	ErrLeaseHeld        = errors.New("aggregation lease held by another run")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInternalError    = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrMatchNotFound) || errors.Is(err, ErrSnapshotNotFound)
}

// IsConflictError reports whether err means the request clashes with existing state
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyVoted) || errors.Is(err, ErrMatchExists) || errors.Is(err, ErrMatchNotLive)
}
