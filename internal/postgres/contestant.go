package postgres

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bracket-live/internal/domain"
)

// contestantDocument mirrors the stored JSONB shape loosely so that a
// document with a wrongly typed field still yields its other fields.
type contestantDocument struct {
	Votes      json.RawMessage `json:"votes"`
	Title      json.RawMessage `json:"title"`
	ShortTitle json.RawMessage `json:"shortTitle"`
	VideoURL   json.RawMessage `json:"videoUrl"`
}

// DecodeContestant parses a contestant document. Absent or unusable fields
// default to zero values; the returned error only reports what was dropped.
func DecodeContestant(raw []byte) (domain.Contestant, error) {
	var c domain.Contestant
	if len(raw) == 0 {
		return c, nil
	}

	var doc contestantDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return c, fmt.Errorf("decoding contestant: %w", err)
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	votes, err := decodeCount(doc.Votes)
	keep(err)
	c.Votes = votes
	c.Title, err = decodeString(doc.Title)
	keep(err)
	c.ShortTitle, err = decodeString(doc.ShortTitle)
	keep(err)
	c.VideoURL, err = decodeString(doc.VideoURL)
	keep(err)

	return c, firstErr
}

func decodeString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected string, got %s", raw)
	}
	return s, nil
}

// decodeCount accepts a JSON number or a numeric string; negatives clamp to zero
func decodeCount(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("expected vote count, got %s", raw)
		}
		n = json.Number(s)
	}

	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return 0, fmt.Errorf("expected vote count, got %s", raw)
		}
		v = int64(f)
	}
	if v < 0 {
		return 0, nil
	}
	return v, nil
}
