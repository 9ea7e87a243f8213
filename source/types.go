// Package source provides the article and document types produced by KB ingestion.
package source

import (
	"maps"
	"regexp"
	"sort"

	"github.com/google/uuid"
)

// Metadata keys attached to every document derived from a KB article.
const (
	MetaSource    = "source"
	MetaCreatedAt = "created_at"
)

// articleIDPattern matches KB solution numbers such as S123456. RE2 word
// boundaries only treat ASCII as word characters, so "éS12345" yields S12345.
var articleIDPattern = regexp.MustCompile(`\bS\d{5,6}\b`)

// IsArticleID reports whether s is exactly one KB article identifier.
func IsArticleID(s string) bool {
	loc := articleIDPattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// ExtractIDs returns every article identifier found in body, in first-seen order
// with duplicates removed.
func ExtractIDs(body string) []string {
	matches := articleIDPattern.FindAllString(body, -1)
	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		ids = append(ids, m)
	}
	return ids
}

// IDSet is a deduplicated collection of article identifiers.
type IDSet struct {
	ids map[string]struct{}
}

// NewIDSet creates an empty set.
func NewIDSet() *IDSet {
	return &IDSet{ids: make(map[string]struct{})}
}

// Add inserts ids, ignoring ones already present.
func (s *IDSet) Add(ids ...string) {
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

// Len returns the number of identifiers.
func (s *IDSet) Len() int {
	return len(s.ids)
}

// Sorted returns the identifiers in lexical order.
func (s *IDSet) Sorted() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Article is one scraped KB article. It only lives in memory during a scrape.
type Article struct {
	// ID is the KB solution number.
	ID string `json:"id"`

	// Title is the text of the content title heading.
	Title string `json:"title"`

	// Issue is the optional problem description.
	Issue string `json:"issue,omitempty"`

	// Solution is the resolution text.
	Solution string `json:"solution"`

	// LastModified is the raw "last modified" string shown on the article page.
	LastModified string `json:"last_modified"`
}

// Text returns title, issue and solution concatenated as they appear on the page.
func (a *Article) Text() string {
	return a.Title + a.Issue + a.Solution
}

// Metadata returns the metadata every chunk of this article carries.
func (a *Article) Metadata() map[string]string {
	return map[string]string{
		MetaSource:    a.ID,
		MetaCreatedAt: a.LastModified,
	}
}

// Document is a bounded span of text ready for indexing.
type Document struct {
	// ID uniquely identifies the chunk node in the graph.
	ID string `json:"id"`

	// Text is the chunk content.
	Text string `json:"text"`

	// Metadata is inherited unchanged from the parent article.
	Metadata map[string]string `json:"metadata"`
}

// NewDocument creates a document with a fresh ID and its own copy of metadata.
func NewDocument(text string, metadata map[string]string) Document {
	md := make(map[string]string, len(metadata))
	maps.Copy(md, metadata)
	return Document{
		ID:       uuid.New().String(),
		Text:     text,
		Metadata: md,
	}
}
