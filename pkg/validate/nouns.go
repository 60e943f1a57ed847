package validate

import (
	"regexp"
	"strings"
)

// Candidate extraction is a pure heuristic kept behind this small surface so
// it can be swapped without touching validation or scoring logic.

var (
	quotedPattern = regexp.MustCompile(`["']([^"']{2,60})["']`)

	// Two or more consecutive capitalized words, allowing "the"/"of" as
	// connectors ("The Rusty Nail", "Port of Salt").
	capitalizedPattern = regexp.MustCompile(`\b(?:The\s+)?[A-Z][a-z]+(?:\s+(?:of\s+|the\s+)?[A-Z][a-z]+)+\b`)
)

// ExtractCandidates returns candidate proper-noun references from free text:
// quoted sequences and capitalized multi-word runs, deduplicated in order of
// first appearance.
func ExtractCandidates(text string) []string {
	var out []string
	seen := make(map[string]bool)

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		lower := strings.ToLower(s)
		if !seen[lower] {
			seen[lower] = true
			out = append(out, s)
		}
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range capitalizedPattern.FindAllString(text, -1) {
		add(m)
	}
	return out
}

// nameSimilar reports whether a candidate matches a canonical name with
// fuzzy tolerance: containment, or at least 70% positional character
// agreement when the lengths are near-equal.
func nameSimilar(candidate, canonical string) bool {
	a := strings.ToLower(candidate)
	b := strings.ToLower(canonical)
	if a == b {
		return true
	}

	if len(a) >= 4 && len(b) >= 4 {
		if strings.Contains(a, b) || strings.Contains(b, a) {
			return true
		}
	}

	// Positional agreement only makes sense for near-equal lengths.
	if diff := len(a) - len(b); diff < -2 || diff > 2 {
		return false
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return false
	}
	matches := 0
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return float64(matches)/float64(longer) >= 0.7
}
