// Package report prints build timings and answered questions to the console.
package report

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/kbqa/index"
	"github.com/c360studio/kbqa/source"
)

const (
	bannerTitle = "   ASKING QUESTION   "
	ruleWidth   = 80
)

// metadataOrder lists the keys printed first, in this order. Other keys
// follow sorted.
var metadataOrder = []string{source.MetaSource, source.MetaCreatedAt}

// Printer writes the report. The first write error sticks and is returned
// by Err.
type Printer struct {
	w   io.Writer
	err error
}

// New creates a printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Err returns the first write error.
func (p *Printer) Err() error {
	return p.err
}

func (p *Printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// GraphBuilt prints how long graph construction took.
func (p *Printer) GraphBuilt(elapsed time.Duration) {
	p.printf("KG generation completed in: %s\n", FormatDuration(elapsed))
}

// Banner prints the line that opens the answers.
func (p *Printer) Banner() {
	rule := strings.Repeat("/", ruleWidth)
	p.printf("%s%s%s\n", rule, bannerTitle, rule)
}

// Answer prints one question block followed by its sources, numbered from 0.
func (p *Printer) Answer(question string, resp *index.Response, elapsed time.Duration) {
	p.printf("Query: %s\nResponse: %s\nTime: %.2f\n%s\n",
		question, resp.Answer, elapsed.Seconds(), strings.Repeat("=", ruleWidth))
	for j, src := range resp.Sources {
		p.printf("Context: ### source %d ###:\n%s\nMetadata: %s\n", j, src.Text, FormatMetadata(src.Metadata))
	}
}

// Failed prints a question block for a question that could not be answered.
func (p *Printer) Failed(question string, err error, elapsed time.Duration) {
	p.Answer(question, &index.Response{Answer: "Error: " + err.Error()}, elapsed)
}

// FormatDuration renders d as H:MM:SS with microseconds when non-zero, and
// a day count when d spans days, e.g. "0:01:05.250000" or "1 day, 2:00:00".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Microsecond)
	neg := d < 0
	if neg {
		d = -d
	}

	days := int64(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int64(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int64(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	seconds := int64(d / time.Second)
	micros := int64((d - time.Duration(seconds)*time.Second) / time.Microsecond)

	var b strings.Builder
	if neg {
		b.WriteString("-")
	}
	switch {
	case days == 1:
		b.WriteString("1 day, ")
	case days > 1:
		fmt.Fprintf(&b, "%d days, ", days)
	}
	fmt.Fprintf(&b, "%d:%02d:%02d", hours, minutes, seconds)
	if micros != 0 {
		fmt.Fprintf(&b, ".%06d", micros)
	}
	return b.String()
}

// FormatMetadata renders metadata as {'key': 'value', ...}.
func FormatMetadata(md map[string]string) string {
	keys := make([]string, 0, len(md))
	for _, k := range metadataOrder {
		if _, ok := md[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range md {
		if !slices.Contains(metadataOrder, k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = quote(k) + ": " + quote(md[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// quote uses single quotes unless the string holds a single quote and no
// double quote.
func quote(s string) string {
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return `"` + escape(s, "") + `"`
	}
	return "'" + escape(s, "'") + "'"
}

func escape(s, q string) string {
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	s = r.Replace(s)
	if q != "" {
		s = strings.ReplaceAll(s, q, `\`+q)
	}
	return s
}
