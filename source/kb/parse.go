package kb

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/c360studio/kbqa/source"
)

// Selectors of the article page regions.
const (
	SelectorTitle    = "h1#contenttitle"
	SelectorIssue    = "div#ISSUE"
	SelectorSolution = "div#SOLUTION"
	SelectorDetails  = "div.row.searchDetailInput"
)

// lastModifiedLine is the position of the date in the last details row,
// counted back from the end of its newline-split text.
const lastModifiedLine = 3

var (
	// ErrMissingRegion is returned when a required region is absent from an article page.
	ErrMissingRegion = errors.New("missing article region")

	// ErrInvalidID is returned for an identifier that is not a KB article id.
	ErrInvalidID = errors.New("not a KB article id")
)

// Parser extracts article fields from article page HTML.
type Parser struct {
	format    string
	converter *md.Converter
}

// NewParser creates a parser for the given text format.
func NewParser(format string) *Parser {
	p := &Parser{format: format}
	if format == TextFormatMarkdown {
		p.converter = md.NewConverter("", true, nil)
	}
	return p
}

// Parse extracts the article with the given id from page.
func (p *Parser) Parse(id string, page []byte) (*source.Article, error) {
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse article %s: %w", id, err)
	}
	doc := goquery.NewDocumentFromNode(root)

	title := doc.Find(SelectorTitle).First()
	if title.Length() == 0 {
		return nil, fmt.Errorf("article %s: %w: %s", id, ErrMissingRegion, SelectorTitle)
	}
	solution := doc.Find(SelectorSolution).First()
	if solution.Length() == 0 {
		return nil, fmt.Errorf("article %s: %w: %s", id, ErrMissingRegion, SelectorSolution)
	}

	modified, err := lastModified(doc)
	if err != nil {
		return nil, fmt.Errorf("article %s: %w", id, err)
	}

	article := &source.Article{
		ID:           id,
		LastModified: modified,
	}
	if article.Title, err = p.text(title); err != nil {
		return nil, fmt.Errorf("article %s title: %w", id, err)
	}
	if issue := doc.Find(SelectorIssue).First(); issue.Length() > 0 {
		if article.Issue, err = p.text(issue); err != nil {
			return nil, fmt.Errorf("article %s issue: %w", id, err)
		}
	}
	if article.Solution, err = p.text(solution); err != nil {
		return nil, fmt.Errorf("article %s solution: %w", id, err)
	}

	return article, nil
}

// lastModified reads the date from the last details row. The row text is split
// on newlines and the date is the third line from the end.
func lastModified(doc *goquery.Document) (string, error) {
	rows := doc.Find(SelectorDetails)
	if rows.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingRegion, SelectorDetails)
	}

	lines := strings.Split(rows.Last().Text(), "\n")
	if len(lines) < lastModifiedLine {
		return "", fmt.Errorf("%w: %s has %d lines, want at least %d",
			ErrMissingRegion, SelectorDetails, len(lines), lastModifiedLine)
	}
	return strings.TrimSpace(lines[len(lines)-lastModifiedLine]), nil
}

// text renders a region in the configured format.
func (p *Parser) text(sel *goquery.Selection) (string, error) {
	if p.converter == nil {
		return sel.Text(), nil
	}

	inner, err := sel.Html()
	if err != nil {
		return "", err
	}
	markdown, err := p.converter.ConvertString(inner)
	if err != nil {
		return "", err
	}
	return markdown + "\n\n", nil
}
