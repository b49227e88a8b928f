// Package identity decides whether two records from different (or the same)
// sources represent the same title.
package identity

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	disallowedRegex    = regexp.MustCompile(`[^a-z0-9 -]`)
	multipleSpaceRegex = regexp.MustCompile(`\s+`)
	leadingArticle     = regexp.MustCompile(`^(the|a|an) `)
	trailingToken      = regexp.MustCompile(` (the animation|animation|episode|ep|series|season|ova)( \d+)?$`)

	// Decompose and strip combining marks so "Pokémon" and "Pokemon"
	// normalize identically.
	foldMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// NormalizeName converts a title to its canonical comparison form: folded,
// lowercased, stripped of punctuation, leading articles and trailing
// episode/season noise tokens.
func NormalizeName(name string) string {
	folded, _, err := transform.String(foldMarks, name)
	if err != nil {
		folded = name
	}

	s := strings.ToLower(folded)
	s = disallowedRegex.ReplaceAllString(s, " ")
	s = multipleSpaceRegex.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = leadingArticle.ReplaceAllString(s, "")
	s = trailingToken.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Similarity returns a 0.0-1.0 score for two raw titles. Equal normalized
// forms score 1.0. Names whose normalized lengths differ by more than 40% of
// the longer are rejected outright before the edit-distance computation.
func Similarity(a, b string) float64 {
	na := NormalizeName(a)
	nb := NormalizeName(b)

	if na == nb {
		if na == "" {
			return 0
		}
		return 1.0
	}

	maxLen := len(na)
	minLen := len(nb)
	if minLen > maxLen {
		maxLen, minLen = minLen, maxLen
	}
	if maxLen == 0 {
		return 0
	}
	if float64(maxLen-minLen) > 0.4*float64(maxLen) {
		return 0
	}

	d := levenshtein.ComputeDistance(na, nb)
	if d > maxLen {
		d = maxLen
	}
	return float64(maxLen-d) / float64(maxLen)
}

// Resolver applies a configurable similarity threshold. One canonical
// threshold is used everywhere; callers that need a looser bulk match
// configure it rather than hardcoding a second value.
type Resolver struct {
	Threshold float64
}

// NewResolver creates a resolver. A zero threshold falls back to 0.90.
func NewResolver(threshold float64) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.90
	}
	return &Resolver{Threshold: threshold}
}

// IsDuplicate reports whether two titles denote the same real-world entry.
func (r *Resolver) IsDuplicate(a, b string) bool {
	na := NormalizeName(a)
	nb := NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	return Similarity(a, b) >= r.Threshold
}
