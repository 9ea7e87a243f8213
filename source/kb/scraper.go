package kb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/kbqa/source"
	"github.com/c360studio/kbqa/source/chunker"
)

// Recorder receives scrape progress counts.
type Recorder interface {
	ArticleScraped()
	ChunksProduced(n int)
}

type nopRecorder struct{}

func (nopRecorder) ArticleScraped()    {}
func (nopRecorder) ChunksProduced(int) {}

// Scraper lists, fetches and chunks KB articles.
type Scraper struct {
	client   *Client
	parser   *Parser
	chunker  *chunker.Chunker
	recorder Recorder
	logger   *slog.Logger
}

// ScraperOption configures a Scraper.
type ScraperOption func(*Scraper)

// WithRecorder sets the progress recorder.
func WithRecorder(r Recorder) ScraperOption {
	return func(s *Scraper) {
		s.recorder = r
	}
}

// WithScraperLogger sets the logger.
func WithScraperLogger(logger *slog.Logger) ScraperOption {
	return func(s *Scraper) {
		s.logger = logger
	}
}

// NewScraper creates a scraper on top of client.
func NewScraper(client *Client, ch *chunker.Chunker, opts ...ScraperOption) *Scraper {
	s := &Scraper{
		client:   client,
		parser:   NewParser(client.config.TextFormat),
		chunker:  ch,
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListIDs collects the article ids on listing pages firstPage..lastPage.
func (s *Scraper) ListIDs(ctx context.Context, category string, firstPage, lastPage int) (*source.IDSet, error) {
	ids := source.NewIDSet()
	for page := firstPage; page <= lastPage; page++ {
		s.logger.Info("Finding KBs on page", "page", page, "category", category)

		body, err := s.client.ListPage(ctx, category, page)
		if err != nil {
			return nil, fmt.Errorf("list page %d: %w", page, err)
		}
		ids.Add(source.ExtractIDs(string(body))...)
	}
	return ids, nil
}

// FetchArticle downloads and parses one article.
func (s *Scraper) FetchArticle(ctx context.Context, id string) (*source.Article, error) {
	if !source.IsArticleID(id) {
		return nil, fmt.Errorf("fetch article %q: %w", id, ErrInvalidID)
	}
	page, err := s.client.ArticlePage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch article %s: %w", id, err)
	}
	return s.parser.Parse(id, page)
}

// Scrape lists the configured pages, then fetches and chunks every article.
// The first failure ends the scrape.
func (s *Scraper) Scrape(ctx context.Context) ([]source.Document, error) {
	cfg := s.client.config
	ids, err := s.ListIDs(ctx, cfg.Category, cfg.FirstPage, cfg.LastPage)
	if err != nil {
		return nil, err
	}

	var docs []source.Document
	for _, id := range ids.Sorted() {
		s.logger.Info("Scraping KB", "id", id)

		article, err := s.FetchArticle(ctx, id)
		if err != nil {
			return nil, err
		}
		s.recorder.ArticleScraped()

		chunks := s.chunker.Documents(article.Text(), article.Metadata())
		s.recorder.ChunksProduced(len(chunks))
		docs = append(docs, chunks...)

		last := chunks[len(chunks)-1]
		s.logger.Debug("Last chunk",
			"id", last.ID,
			"source", last.Metadata[source.MetaSource],
			"created_at", last.Metadata[source.MetaCreatedAt],
			"chars", len(last.Text))
	}

	s.logger.Info("Split done", "articles", ids.Len(), "docs", len(docs))
	return docs, nil
}
