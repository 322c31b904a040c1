package postgres

import (
	"strings"
	"testing"

	"github.com/bracket-live/internal/domain"
)

func TestDecodeContestant(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    domain.Contestant
		wantErr bool
	}{
		{
			name: "full document",
			raw:  `{"votes": 12, "title": "Full Title", "shortTitle": "Short", "videoUrl": "https://youtu.be/dQw4w9WgXcQ"}`,
			want: domain.Contestant{Votes: 12, Title: "Full Title", ShortTitle: "Short", VideoURL: "https://youtu.be/dQw4w9WgXcQ"},
		},
		{
			name: "empty input",
			raw:  ``,
			want: domain.Contestant{},
		},
		{
			name: "missing votes default to zero",
			raw:  `{"title": "Only Title"}`,
			want: domain.Contestant{Title: "Only Title"},
		},
		{
			name: "null fields",
			raw:  `{"votes": null, "title": null}`,
			want: domain.Contestant{},
		},
		{
			name: "numeric string votes",
			raw:  `{"votes": "7"}`,
			want: domain.Contestant{Votes: 7},
		},
		{
			name: "float votes truncate",
			raw:  `{"votes": 3.0}`,
			want: domain.Contestant{Votes: 3},
		},
		{
			name: "negative votes clamp",
			raw:  `{"votes": -4}`,
			want: domain.Contestant{},
		},
		{
			name:    "wrongly typed title keeps other fields",
			raw:     `{"votes": 5, "title": 99, "shortTitle": "S"}`,
			want:    domain.Contestant{Votes: 5, ShortTitle: "S"},
			wantErr: true,
		},
		{
			name:    "garbage votes",
			raw:     `{"votes": "many", "title": "T"}`,
			want:    domain.Contestant{Title: "T"},
			wantErr: true,
		},
		{
			name:    "not an object",
			raw:     `[1,2,3]`,
			want:    domain.Contestant{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeContestant([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestIncrementVotesQuery(t *testing.T) {
	q1 := incrementVotesQuery(domain.ChoiceSong1)
	q2 := incrementVotesQuery(domain.ChoiceSong2)

	if !strings.Contains(q1, "SET song1 = jsonb_set(song1") {
		t.Errorf("song1 query targets wrong column: %s", q1)
	}
	if !strings.Contains(q2, "SET song2 = jsonb_set(song2") {
		t.Errorf("song2 query targets wrong column: %s", q2)
	}
}
