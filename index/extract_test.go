package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePaths(t *testing.T) {
	tests := []struct {
		name     string
		response string
		max      int
		want     []Path
	}{
		{
			name:     "one per line",
			response: "(Disk, fills, Capture)\n(Capture, writes to, Storage)",
			max:      10,
			want: []Path{
				{Subject: "Disk", Relation: "fills", Object: "Capture"},
				{Subject: "Capture", Relation: "writes to", Object: "Storage"},
			},
		},
		{
			name:     "object with comma and quotes",
			response: `Triplets: ("AppResponse", supports, "10G, 40G interfaces")`,
			max:      10,
			want: []Path{
				{Subject: "AppResponse", Relation: "supports", Object: "10G, 40G interfaces"},
			},
		},
		{
			name:     "duplicates dropped",
			response: "(a, b, c) (a, b, c) (a, b, d)",
			max:      10,
			want: []Path{
				{Subject: "a", Relation: "b", Object: "c"},
				{Subject: "a", Relation: "b", Object: "d"},
			},
		},
		{
			name:     "limit",
			response: "(a, r, b)\n(b, r, c)\n(c, r, d)",
			max:      2,
			want: []Path{
				{Subject: "a", Relation: "r", Object: "b"},
				{Subject: "b", Relation: "r", Object: "c"},
			},
		},
		{
			name:     "blank parts skipped",
			response: `("", r, b)`,
			max:      10,
			want:     nil,
		},
		{
			name:     "no triplets",
			response: "I could not find any facts.",
			max:      10,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePaths(tt.response, tt.max))
		})
	}
}

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		name     string
		response string
		max      int
		want     []string
	}{
		{"plain", "license^licenses^License key", 10, []string{"license", "licenses", "License key"}},
		{"echoed prefix", "KEYWORDS: capture^packet capture", 10, []string{"capture", "packet capture"}},
		{"case-insensitive duplicates", "Disk^disk^DISK^storage", 10, []string{"Disk", "storage"}},
		{"only first line", "disk^storage\nExplanation: these are synonyms", 10, []string{"disk", "storage"}},
		{"limit", "a^b^c^d", 2, []string{"a", "b"}},
		{"empty", "   ", 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKeywords(tt.response, tt.max))
		})
	}
}
