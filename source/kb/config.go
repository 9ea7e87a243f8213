package kb

import (
	"fmt"
	"net/url"
	"time"
)

// Text formats for extracted article regions.
const (
	TextFormatText     = "text"
	TextFormatMarkdown = "markdown"
)

// Config holds the KB site settings.
type Config struct {
	// BaseURL is the KB portal root, e.g. https://kb.example.com.
	BaseURL string `yaml:"base_url"`

	// ListPath is the listing endpoint that returns article links for a category page.
	ListPath string `yaml:"list_path"`

	// DetailPath is the article page endpoint; the article id is passed as ?id=.
	DetailPath string `yaml:"detail_path"`

	// SessionCookie is the name of the authentication cookie.
	SessionCookie string `yaml:"session_cookie"`

	// SessionID is the authentication cookie value.
	SessionID string `yaml:"session_id"`

	// UserAgent is sent on every request.
	UserAgent string `yaml:"user_agent"`

	// Category is the listing category to scrape.
	Category string `yaml:"category"`

	// FirstPage and LastPage bound the listing pages, inclusive.
	FirstPage int `yaml:"first_page"`
	LastPage  int `yaml:"last_page"`

	// PageSize is the listing offset step per page.
	PageSize int `yaml:"page_size"`

	// TextFormat is "text" (plain node text) or "markdown".
	TextFormat string `yaml:"text_format"`

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxContentSize caps a response body in bytes.
	MaxContentSize int64 `yaml:"max_content_size"`
}

// DefaultConfig returns the settings of the reference KB portal.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://kb.example.com",
		ListPath:       "/content/c_list.jsp",
		DetailPath:     "/index",
		SessionCookie:  "SESSIONID",
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/116.0",
		Category:       "AppResponse",
		FirstPage:      0,
		LastPage:       0,
		PageSize:       15,
		TextFormat:     TextFormatText,
		Timeout:        30 * time.Second,
		MaxContentSize: 10 * 1024 * 1024,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be http or https, got %q", c.BaseURL)
	}
	if c.Category == "" {
		return fmt.Errorf("category is required")
	}
	if c.FirstPage < 0 {
		return fmt.Errorf("first_page must not be negative")
	}
	if c.LastPage < c.FirstPage {
		return fmt.Errorf("last_page (%d) must not be before first_page (%d)", c.LastPage, c.FirstPage)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive")
	}
	switch c.TextFormat {
	case "", TextFormatText, TextFormatMarkdown:
	default:
		return fmt.Errorf("text_format must be %q or %q, got %q", TextFormatText, TextFormatMarkdown, c.TextFormat)
	}
	if c.MaxContentSize < 0 {
		return fmt.Errorf("max_content_size must be non-negative")
	}
	return nil
}

// GetTimeout returns the request timeout with default.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

// GetMaxContentSize returns the max content size with default.
func (c *Config) GetMaxContentSize() int64 {
	if c.MaxContentSize <= 0 {
		return 10 * 1024 * 1024 // 10MB default
	}
	return c.MaxContentSize
}
