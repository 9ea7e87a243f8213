package index

import (
	"regexp"
	"strings"
)

// Path is one extracted (subject, relation, object) triplet.
type Path struct {
	Subject  string
	Relation string
	Object   string
}

// tripletLine matches "(a, b, c)" with the object allowed to contain commas.
var tripletLine = regexp.MustCompile(`\(\s*([^,()]+?)\s*,\s*([^,()]+?)\s*,\s*([^()]+?)\s*\)`)

// ParsePaths reads up to max triplets from an extraction response. Blank
// parts, quotes and duplicates are dropped. max <= 0 means no limit.
func ParsePaths(response string, max int) []Path {
	var out []Path
	seen := make(map[Path]bool)
	for _, m := range tripletLine.FindAllStringSubmatch(response, -1) {
		p := Path{
			Subject:  cleanPart(m[1]),
			Relation: cleanPart(m[2]),
			Object:   cleanPart(m[3]),
		}
		if p.Subject == "" || p.Relation == "" || p.Object == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

func cleanPart(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
}

// ParseKeywords splits a keyword response on '^' and drops blanks and
// duplicates, case-insensitively. The "KEYWORDS:" echo some models emit is
// removed. max <= 0 means no limit.
func ParseKeywords(response string, max int) []string {
	response = strings.TrimSpace(response)
	if i := strings.LastIndex(strings.ToUpper(response), "KEYWORDS:"); i >= 0 {
		response = response[i+len("KEYWORDS:"):]
	}
	if i := strings.IndexByte(response, '\n'); i >= 0 {
		response = response[:i]
	}

	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(response, "^") {
		kw := cleanPart(part)
		key := strings.ToLower(kw)
		if kw == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}
