// Package questions reads the question batch the ask command answers.
package questions

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultFile is the question file used when none is given.
const DefaultFile = "sample_qs.txt"

// maxLineSize bounds a single question line.
const maxLineSize = 1024 * 1024

// Read returns every line of r as one question, in order. Line endings are
// stripped; a final line without a newline still counts.
func Read(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var out []string
	for scanner.Scan() {
		out = append(out, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Load reads the question file at path.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open questions: %w", err)
	}
	defer f.Close()

	qs, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read questions %s: %w", path, err)
	}
	return qs, nil
}

// Resolve expands a question file pattern. Patterns support ** for any
// number of directories. A pattern without glob characters is returned as is.
// Matches are sorted and directories are skipped.
func Resolve(pattern string) ([]string, error) {
	if !containsGlob(pattern) {
		return []string{pattern}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no question files match %q", pattern)
	}
	sort.Strings(matches)
	return matches, nil
}

// LoadAll loads every file matching pattern, concatenating their questions
// in file order.
func LoadAll(pattern string) ([]string, error) {
	paths, err := Resolve(pattern)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, p := range paths {
		qs, err := Load(p)
		if err != nil {
			return nil, err
		}
		out = append(out, qs...)
	}
	return out, nil
}

func containsGlob(pattern string) bool {
	return strings.ContainsAny(filepath.ToSlash(pattern), "*?[{")
}
