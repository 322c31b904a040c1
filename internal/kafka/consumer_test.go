package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/bracket-live/internal/domain"
)

func TestDecodeVote(t *testing.T) {
	brokerTime := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name    string
		value   string
		want    domain.Vote
		wantErr bool
	}{
		{
			name:  "explicit cast time",
			value: `{"match_id":"m1","user_id":"u1","choice":2,"cast_at":1699999999000}`,
			want:  domain.Vote{MatchID: "m1", UserID: "u1", Choice: domain.ChoiceSong2, CastAt: time.UnixMilli(1_699_999_999_000)},
		},
		{
			name:  "broker time fallback",
			value: `{"match_id":"m1","user_id":"u1","choice":1}`,
			want:  domain.Vote{MatchID: "m1", UserID: "u1", Choice: domain.ChoiceSong1, CastAt: brokerTime},
		},
		{name: "not json", value: `vote!`, wantErr: true},
		{name: "missing match", value: `{"user_id":"u1","choice":1}`, wantErr: true},
		{name: "choice out of range", value: `{"match_id":"m1","user_id":"u1","choice":0}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeVote([]byte(tt.value), brokerTime)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeVote: %v", err)
			}
			if got.MatchID != tt.want.MatchID || got.UserID != tt.want.UserID || got.Choice != tt.want.Choice {
				t.Errorf("vote = %+v, want %+v", got, tt.want)
			}
			if !got.CastAt.Equal(tt.want.CastAt) {
				t.Errorf("cast at = %v, want %v", got.CastAt, tt.want.CastAt)
			}
		})
	}
}

func TestDecodeVote_InvalidChoiceIsVoteError(t *testing.T) {
	_, err := DecodeVote([]byte(`{"match_id":"m1","user_id":"u1","choice":7}`), time.Now())
	if !errors.Is(err, domain.ErrInvalidVote) {
		t.Errorf("err = %v, want ErrInvalidVote", err)
	}
}

func TestVoteMessage_EncodeDecode(t *testing.T) {
	data, err := VoteMessage{MatchID: "m9", UserID: "fan-3", Choice: 1, CastAt: 1_700_000_000_123}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	vote, err := DecodeVote(data, time.Time{})
	if err != nil {
		t.Fatalf("DecodeVote: %v", err)
	}
	if vote.MatchID != "m9" || vote.CastAt.UnixMilli() != 1_700_000_000_123 {
		t.Errorf("vote = %+v", vote)
	}
}
