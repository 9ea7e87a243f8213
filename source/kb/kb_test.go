package kb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/kbqa/source"
	"github.com/c360studio/kbqa/source/chunker"
)

const articleHTML = `<html><head><title>KB</title></head><body>
<h1 id="contenttitle">%s</h1>
%s
<div id="SOLUTION">%s</div>
<div class="row searchDetailInput">
<label>Created</label>
<span>01/02/2020</span>
<span></span>
</div>
<div class="row searchDetailInput">
<label>Last Modified</label>
<span>%s</span>
<span></span>
</div>
</body></html>`

func articlePage(title, issue, solution, modified string) string {
	issueDiv := ""
	if issue != "" {
		issueDiv = `<div id="ISSUE">` + issue + `</div>`
	}
	return fmt.Sprintf(articleHTML, title, issueDiv, solution, modified)
}

// fakeKB serves a listing endpoint and article pages.
type fakeKB struct {
	mu       sync.Mutex
	listings map[string]string // offset -> body
	articles map[string]string // id -> html
	forms    []map[string]string
	cookies  []string
	agents   []string
}

func (f *fakeKB) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/content/c_list.jsp", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded; charset=UTF-8", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())

		f.mu.Lock()
		f.forms = append(f.forms, map[string]string{"cat": r.PostForm.Get("cat"), "offset": r.PostForm.Get("offset")})
		f.record(r)
		body := f.listings[r.PostForm.Get("offset")]
		f.mu.Unlock()

		fmt.Fprint(w, body)
	})
	mux.HandleFunc("/index", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)

		f.mu.Lock()
		f.record(r)
		page, ok := f.articles[r.URL.Query().Get("id")]
		f.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	})
	return mux
}

func (f *fakeKB) record(r *http.Request) {
	if c, err := r.Cookie("SESSIONID"); err == nil {
		f.cookies = append(f.cookies, c.Value)
	}
	f.agents = append(f.agents, r.Header.Get("User-Agent"))
}

func newTestScraper(t *testing.T, f *fakeKB, mutate func(*Config)) *Scraper {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.SessionID = "secret-session"
	if mutate != nil {
		mutate(&cfg)
	}

	client, err := NewClient(cfg)
	require.NoError(t, err)
	return NewScraper(client, chunker.NewDefault())
}

func TestScraper_ListIDs(t *testing.T) {
	f := &fakeKB{
		listings: map[string]string{
			"0":  `<a href="index?id=S10001">one</a><a href="index?id=S10002">two</a>`,
			"15": `<a href="index?id=S10002">two</a> S200003 junk S1 XS30000`,
			"30": ``,
		},
	}
	s := newTestScraper(t, f, nil)

	ids, err := s.ListIDs(context.Background(), "AppResponse", 0, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"S10001", "S10002", "S200003"}, ids.Sorted())
	require.Len(t, f.forms, 3)
	assert.Equal(t, map[string]string{"cat": "AppResponse", "offset": "0"}, f.forms[0])
	assert.Equal(t, map[string]string{"cat": "AppResponse", "offset": "15"}, f.forms[1])
	assert.Equal(t, map[string]string{"cat": "AppResponse", "offset": "30"}, f.forms[2])
	for _, c := range f.cookies {
		assert.Equal(t, "secret-session", c)
	}
	assert.Len(t, f.cookies, 3)
}

func TestScraper_FetchArticle(t *testing.T) {
	f := &fakeKB{
		articles: map[string]string{
			"S10001": articlePage("Disk full", "Capture stops.", "Free space.", "08/15/2023"),
			"S10002": articlePage("No issue", "", "Just a fix.", "09/01/2023"),
		},
	}
	s := newTestScraper(t, f, nil)

	a, err := s.FetchArticle(context.Background(), "S10001")
	require.NoError(t, err)
	assert.Equal(t, "S10001", a.ID)
	assert.Equal(t, "Disk full", a.Title)
	assert.Equal(t, "Capture stops.", a.Issue)
	assert.Equal(t, "Free space.", a.Solution)
	assert.Equal(t, "08/15/2023", a.LastModified)
	assert.Equal(t, "Disk fullCapture stops.Free space.", a.Text())

	b, err := s.FetchArticle(context.Background(), "S10002")
	require.NoError(t, err)
	assert.Empty(t, b.Issue)
	assert.Equal(t, "No issueJust a fix.", b.Text())
	assert.Equal(t, "09/01/2023", b.LastModified)
}

func TestScraper_FetchArticle_MissingRegions(t *testing.T) {
	tests := []struct {
		name     string
		page     string
		selector string
	}{
		{
			name:     "no title",
			page:     `<div id="SOLUTION">x</div><div class="row searchDetailInput">a\nb\nc\n</div>`,
			selector: SelectorTitle,
		},
		{
			name:     "no solution",
			page:     `<h1 id="contenttitle">t</h1><div class="row searchDetailInput">a</div>`,
			selector: SelectorSolution,
		},
		{
			name:     "no details row",
			page:     `<h1 id="contenttitle">t</h1><div id="SOLUTION">x</div>`,
			selector: SelectorDetails,
		},
		{
			name:     "details row too short",
			page:     `<h1 id="contenttitle">t</h1><div id="SOLUTION">x</div><div class="row searchDetailInput">only one line</div>`,
			selector: SelectorDetails,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeKB{articles: map[string]string{"S10001": tt.page}}
			s := newTestScraper(t, f, nil)

			_, err := s.FetchArticle(context.Background(), "S10001")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingRegion))
			assert.Contains(t, err.Error(), tt.selector)
		})
	}
}

func TestScraper_FetchArticle_InvalidID(t *testing.T) {
	s := newTestScraper(t, &fakeKB{articles: map[string]string{}}, nil)

	for _, id := range []string{"", "S1234", "S10001&x=1", "../S10001"} {
		_, err := s.FetchArticle(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidID, "id %q", id)
	}
}

func TestScraper_FetchArticle_HTTPError(t *testing.T) {
	s := newTestScraper(t, &fakeKB{articles: map[string]string{}}, nil)

	_, err := s.FetchArticle(context.Background(), "S99999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestScraper_Scrape(t *testing.T) {
	long := strings.Repeat("step ", 3000)
	f := &fakeKB{
		listings: map[string]string{
			"0": `S10002 S10001 S10002`,
		},
		articles: map[string]string{
			"S10001": articlePage("Short", "", "Fix.", "08/15/2023"),
			"S10002": articlePage("Long", "Problem.", long, "09/01/2023"),
		},
	}
	s := newTestScraper(t, f, nil)

	docs, err := s.Scrape(context.Background())
	require.NoError(t, err)

	// S10001 fits in one chunk, S10002 needs three windows of 1024 with overlap 20.
	require.Len(t, docs, 4)
	assert.Equal(t, "ShortFix.", docs[0].Text)
	assert.Equal(t, map[string]string{source.MetaSource: "S10001", source.MetaCreatedAt: "08/15/2023"}, docs[0].Metadata)
	for _, d := range docs[1:] {
		assert.Equal(t, "S10002", d.Metadata[source.MetaSource])
		assert.Equal(t, "09/01/2023", d.Metadata[source.MetaCreatedAt])
	}
}

func TestScraper_Scrape_StopsOnFirstFailure(t *testing.T) {
	f := &fakeKB{
		listings: map[string]string{"0": `S10001 S10002`},
		articles: map[string]string{
			"S10001": `<html><body>broken</body></html>`,
			"S10002": articlePage("Fine", "", "Fix.", "08/15/2023"),
		},
	}
	s := newTestScraper(t, f, nil)

	docs, err := s.Scrape(context.Background())
	require.Error(t, err)
	assert.Nil(t, docs)
	assert.ErrorIs(t, err, ErrMissingRegion)
}

func TestParser_Markdown(t *testing.T) {
	p := NewParser(TextFormatMarkdown)
	page := articlePage("Title", "", "<ul><li>first</li><li>second</li></ul>", "08/15/2023")

	a, err := p.Parse("S10001", []byte(page))
	require.NoError(t, err)
	assert.Contains(t, a.Solution, "- first")
	assert.Contains(t, a.Solution, "- second")
	assert.Equal(t, "08/15/2023", a.LastModified)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad scheme", mutate: func(c *Config) { c.BaseURL = "ftp://kb" }, wantErr: "http or https"},
		{name: "no category", mutate: func(c *Config) { c.Category = "" }, wantErr: "category is required"},
		{name: "reversed pages", mutate: func(c *Config) { c.FirstPage = 2; c.LastPage = 1 }, wantErr: "last_page"},
		{name: "bad format", mutate: func(c *Config) { c.TextFormat = "pdf" }, wantErr: "text_format"},
		{name: "zero page size", mutate: func(c *Config) { c.PageSize = 0 }, wantErr: "page_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type countingRecorder struct {
	articles, chunks int
}

func (c *countingRecorder) ArticleScraped()      { c.articles++ }
func (c *countingRecorder) ChunksProduced(n int) { c.chunks += n }

func TestScraper_Recorder(t *testing.T) {
	f := &fakeKB{
		listings: map[string]string{"0": `S10001`},
		articles: map[string]string{"S10001": articlePage("T", "", "S", "08/15/2023")},
	}
	server := httptest.NewServer(f.handler(t))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	client, err := NewClient(cfg)
	require.NoError(t, err)

	rec := &countingRecorder{}
	s := NewScraper(client, chunker.NewDefault(), WithRecorder(rec))
	_, err = s.Scrape(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rec.articles)
	assert.Equal(t, 1, rec.chunks)
	assert.Empty(t, f.cookies, "no cookie is sent without a session id")
	assert.Equal(t, cfg.UserAgent, f.agents[0])
}
