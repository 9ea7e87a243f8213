package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/kbqa/index"
)

func TestBanner(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Banner()

	rule := strings.Repeat("/", 80)
	assert.Equal(t, rule+"   ASKING QUESTION   "+rule+"\n", buf.String())
}

func TestAnswer(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	p.Answer("What stops capture?", &index.Response{
		Answer: "A full disk.",
		Sources: []index.SourceNode{
			{Text: "first source", Metadata: map[string]string{"source": "S10001", "created_at": "08/15/2023"}},
			{Text: "second source", Metadata: map[string]string{"source": "S10002"}},
		},
	}, 1234*time.Millisecond)
	require.NoError(t, p.Err())

	want := "Query: What stops capture?\n" +
		"Response: A full disk.\n" +
		"Time: 1.23\n" +
		strings.Repeat("=", 80) + "\n" +
		"Context: ### source 0 ###:\nfirst source\nMetadata: {'source': 'S10001', 'created_at': '08/15/2023'}\n" +
		"Context: ### source 1 ###:\nsecond source\nMetadata: {'source': 'S10002'}\n"
	assert.Equal(t, want, buf.String())
}

func TestAnswer_OneBlockPerQuestion(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	qs := []string{"q1", "q2", "q3"}
	for _, q := range qs {
		p.Answer(q, &index.Response{Answer: index.EmptyResponse}, time.Second)
	}

	out := buf.String()
	assert.Equal(t, len(qs), strings.Count(out, "Query: "))
	assert.Equal(t, len(qs), strings.Count(out, "Time: 1.00\n"))
	assert.Less(t, strings.Index(out, "Query: q1"), strings.Index(out, "Query: q2"))
	assert.Less(t, strings.Index(out, "Query: q2"), strings.Index(out, "Query: q3"))
}

func TestFailed(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Failed("q", errors.New("llm down"), 0)
	assert.Contains(t, buf.String(), "Response: Error: llm down\n")
}

func TestGraphBuilt(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).GraphBuilt(83*time.Second + 250*time.Millisecond)
	assert.Equal(t, "KG generation completed in: 0:01:23.250000\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00:00"},
		{5 * time.Second, "0:00:05"},
		{time.Hour + 2*time.Minute + 3*time.Second + time.Microsecond, "1:02:03.000001"},
		{26 * time.Hour, "1 day, 2:00:00"},
		{50 * time.Hour, "2 days, 2:00:00"},
		{1500 * time.Nanosecond, "0:00:00.000002"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.d))
		})
	}
}

func TestFormatMetadata(t *testing.T) {
	tests := []struct {
		name string
		md   map[string]string
		want string
	}{
		{"empty", nil, "{}"},
		{"known keys first", map[string]string{"zeta": "z", "created_at": "c", "source": "s", "alpha": "a"},
			"{'source': 's', 'created_at': 'c', 'alpha': 'a', 'zeta': 'z'}"},
		{"single quote", map[string]string{"source": "it's"}, `{'source': "it's"}`},
		{"both quotes", map[string]string{"source": `it's "x"`}, `{'source': 'it\'s "x"'}`},
		{"newline", map[string]string{"source": "a\nb"}, `{'source': 'a\nb'}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMetadata(tt.md))
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestPrinter_StickyError(t *testing.T) {
	p := New(failingWriter{})
	p.Banner()
	p.GraphBuilt(time.Second)
	assert.EqualError(t, p.Err(), "closed")
}
