package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractIDs(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "empty body",
			body: "",
			want: []string{},
		},
		{
			name: "five and six digit ids",
			body: `<a href="index?id=S12345">x</a> <a href="index?id=S123456">y</a>`,
			want: []string{"S12345", "S123456"},
		},
		{
			name: "duplicates removed",
			body: "S12345 S12345 S54321 S12345",
			want: []string{"S12345", "S54321"},
		},
		{
			name: "too short or too long ignored",
			body: "S1234 S1234567 XS12345 S12345X",
			want: []string{},
		},
		{
			name: "lowercase prefix ignored",
			body: "s12345",
			want: []string{},
		},
		{
			name: "punctuation boundaries",
			body: "(S99999),S88888;",
			want: []string{"S99999", "S88888"},
		},
		{
			name: "non-ASCII letters are boundaries",
			body: "éS12345 S54321ü",
			want: []string{"S12345", "S54321"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractIDs(tt.body)
			assert.Equal(t, tt.want, got)
			for _, id := range got {
				assert.True(t, IsArticleID(id), "extracted %q must match the id pattern", id)
			}
		})
	}
}

func TestIsArticleID(t *testing.T) {
	assert.True(t, IsArticleID("S12345"))
	assert.True(t, IsArticleID("S123456"))
	assert.False(t, IsArticleID("S1234"))
	assert.False(t, IsArticleID(" S12345"))
	assert.False(t, IsArticleID("S12345 "))
	assert.False(t, IsArticleID(""))
}

func TestIDSet(t *testing.T) {
	s := NewIDSet()
	s.Add("S22222", "S11111")
	s.Add(ExtractIDs("S11111 S33333")...)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"S11111", "S22222", "S33333"}, s.Sorted())
}

func TestArticle_TextAndMetadata(t *testing.T) {
	a := &Article{
		ID:           "S12345",
		Title:        "Title",
		Issue:        "Issue",
		Solution:     "Solution",
		LastModified: "2023-08-01",
	}

	assert.Equal(t, "TitleIssueSolution", a.Text())
	assert.Equal(t, map[string]string{"source": "S12345", "created_at": "2023-08-01"}, a.Metadata())

	a.Issue = ""
	assert.Equal(t, "TitleSolution", a.Text())
}

func TestNewDocument_CopiesMetadata(t *testing.T) {
	md := map[string]string{MetaSource: "S12345"}
	doc := NewDocument("text", md)

	require.NotEmpty(t, doc.ID)
	assert.Equal(t, md, doc.Metadata)

	md[MetaSource] = "changed"
	assert.Equal(t, "S12345", doc.Metadata[MetaSource])

	other := NewDocument("text", md)
	assert.NotEqual(t, doc.ID, other.ID)
}
