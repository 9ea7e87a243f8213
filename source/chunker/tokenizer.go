package chunker

import (
	"fmt"
	"regexp"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

// Tokenizer names accepted by Config.Tokenizer.
const (
	TokenizerWord   = "word"
	TokenizerCL100K = "cl100k_base"
)

// Span is the byte range of one token in the source text.
type Span struct {
	Start int
	End   int
}

// Tokenizer finds token boundaries in text.
type Tokenizer interface {
	Tokenize(text string) []Span
}

// NewTokenizer returns the tokenizer registered under name.
func NewTokenizer(name string) (Tokenizer, error) {
	switch name {
	case "", TokenizerWord:
		return WordTokenizer{}, nil
	case TokenizerCL100K:
		tok, err := NewTiktokenTokenizer(name)
		if err != nil {
			return nil, err
		}
		return tok, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}

// wordRe matches runs of word characters or single punctuation marks.
var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\p{L}\p{N}_\s]`)

// WordTokenizer treats each word and each punctuation mark as one token.
type WordTokenizer struct{}

// Tokenize implements Tokenizer.
func (WordTokenizer) Tokenize(text string) []Span {
	locs := wordRe.FindAllStringIndex(text, -1)
	spans := make([]Span, len(locs))
	for i, loc := range locs {
		spans[i] = Span{Start: loc[0], End: loc[1]}
	}
	return spans
}

// TiktokenTokenizer uses a BPE encoding, matching what OpenAI-family models count.
type TiktokenTokenizer struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

var offlineBPE sync.Once

// NewTiktokenTokenizer loads the named BPE encoding from the ranks embedded
// in the binary, so no download happens at run time.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	offlineBPE.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// Tokenize implements Tokenizer. Whitespace-only tokens are dropped so chunk
// boundaries never start or end on whitespace. BPE tokens can cover part of a
// multi-byte character; such tokens are merged so every span starts and ends
// on a rune boundary.
func (t *TiktokenTokenizer) Tokenize(text string) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.enc.Encode(text, nil, nil)
	spans := make([]Span, 0, len(ids))
	offset := 0
	for _, id := range ids {
		start := offset
		offset = min(offset+len(t.enc.Decode([]int{id})), len(text))

		s, e := start, offset
		for s > 0 && !utf8.RuneStart(text[s]) {
			s--
		}
		for e < len(text) && !utf8.RuneStart(text[e]) {
			e++
		}
		for s < e && isSpace(text[s]) {
			s++
		}
		for e > s && isSpace(text[e-1]) {
			e--
		}
		if s >= e {
			continue
		}

		if n := len(spans); n > 0 && s < spans[n-1].End {
			spans[n-1].End = max(spans[n-1].End, e)
			continue
		}
		spans = append(spans, Span{Start: s, End: e})
	}
	return spans
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
