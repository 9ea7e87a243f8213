// Package kb scrapes articles from the knowledge-base portal.
//
// The portal exposes a listing endpoint that is POSTed a category and offset and
// answers with markup containing article ids, and an article page per id. Both
// require the session cookie of a logged-in user. Extraction relies on fixed
// selectors of that site and fails loudly when the markup changes.
package kb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Client talks to the KB portal.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.http = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a KB client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kb config: %w", err)
	}

	c := &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.GetTimeout()},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListPage POSTs one listing page and returns the raw response body.
func (c *Client) ListPage(ctx context.Context, category string, page int) ([]byte, error) {
	form := url.Values{}
	form.Set("cat", category)
	form.Set("offset", strconv.Itoa(c.config.PageSize*page))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.config.ListPath), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	return c.do(req)
}

// ArticlePage GETs the page of one article and returns the raw HTML.
func (c *Client) ArticlePage(ctx context.Context, id string) ([]byte, error) {
	u := c.endpoint(c.config.DetailPath) + "?" + url.Values{"id": {id}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.do(req)
}

func (c *Client) endpoint(path string) string {
	return strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// do sends req with the session cookie and browser headers the portal expects.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if c.config.SessionID != "" {
		req.AddCookie(&http.Cookie{Name: c.config.SessionCookie, Value: c.config.SessionID})
	}

	c.logger.Debug("KB request", "method", req.Method, "url", req.URL.String())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: HTTP %d: %s", req.Method, req.URL.Path, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	maxSize := c.config.GetMaxContentSize()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > maxSize {
		return nil, fmt.Errorf("content too large (exceeds %d bytes)", maxSize)
	}
	return body, nil
}
