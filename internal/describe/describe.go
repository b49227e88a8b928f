// Package describe scores and cleans description candidates so merges prefer
// real synopsis text over scraped boilerplate.
package describe

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// NoDescription is the sentinel returned when no usable description exists.
const NoDescription = "No Description"

const (
	minUsefulLength = 30
	promoSpan       = 150
)

var defaultBoilerplate = []*regexp.Regexp{
	regexp.MustCompile(`(?i)watch .{1,80} episode \d+`),
	regexp.MustCompile(`(?i)thousands of (videos|titles|episodes)`),
	regexp.MustCompile(`(?i)(stream|download)[^.]{0,40}for free`),
	regexp.MustCompile(`(?i)subscribe to our`),
	regexp.MustCompile(`(?i)best (site|place) to (watch|stream)`),
	regexp.MustCompile(`(?i)in (720p|1080p|high quality|hd quality)`),
}

var promoKeywords = []string{
	"free", "download", "stream", "subscribe", "unlimited",
	"website", "click", "signup", "sign up", "hd quality",
}

var plotKeywords = []string{
	"story", "discovers", "journey", "secret", "world",
	"life", "finds", "must", "past", "between",
}

var (
	episodePrefixRegex = regexp.MustCompile(`(?i)^[^.!?]{0,80}episode \d+ is:?\s*`)
	urlRegex           = regexp.MustCompile(`https?://\S+`)
	whitespaceRegex    = regexp.MustCompile(`\s+`)
)

// Filter detects boilerplate text and scores description candidates.
type Filter struct {
	maxLen      int
	boilerplate []*regexp.Regexp
}

// NewFilter creates a filter. extraPatterns extends the built-in boilerplate
// list with source-specific regular expressions; invalid patterns are skipped.
func NewFilter(maxLen int, extraPatterns []string) *Filter {
	if maxLen <= 0 {
		maxLen = 500
	}
	patterns := append([]*regexp.Regexp(nil), defaultBoilerplate...)
	for _, p := range extraPatterns {
		if re, err := regexp.Compile(p); err == nil {
			patterns = append(patterns, re)
		}
	}
	return &Filter{maxLen: maxLen, boilerplate: patterns}
}

// IsPromotional reports whether text is boilerplate or promotional rather
// than a real synopsis.
func (f *Filter) IsPromotional(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minUsefulLength {
		return true
	}

	for _, re := range f.boilerplate {
		if re.MatchString(trimmed) {
			return true
		}
	}

	return hasKeywordCluster(strings.ToLower(trimmed))
}

// hasKeywordCluster reports whether 2+ promotional keywords occur within a
// span shorter than promoSpan characters.
func hasKeywordCluster(lower string) bool {
	type hit struct {
		pos     int
		keyword string
	}
	var hits []hit
	for _, kw := range promoKeywords {
		offset := 0
		for {
			i := strings.Index(lower[offset:], kw)
			if i < 0 {
				break
			}
			hits = append(hits, hit{pos: offset + i, keyword: kw})
			offset += i + len(kw)
		}
	}
	if len(hits) < 2 {
		return false
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	for i := 1; i < len(hits); i++ {
		if hits[i].keyword != hits[i-1].keyword && hits[i].pos-hits[i-1].pos < promoSpan {
			return true
		}
	}
	return false
}

// CleanDescription strips scraped noise from a description candidate. The
// result is the sentinel when nothing usable remains, otherwise synopsis text
// truncated to the configured length at a word boundary.
func (f *Filter) CleanDescription(text string) string {
	s := stripHTML(text)
	s = episodePrefixRegex.ReplaceAllString(s, "")
	s = urlRegex.ReplaceAllString(s, "")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if s == "" || f.IsPromotional(s) {
		return NoDescription
	}
	return truncateAtWord(s, f.maxLen)
}

// ScoreDescription rates a candidate 0-100. Promotional text scores 0.
func (f *Filter) ScoreDescription(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || f.IsPromotional(trimmed) {
		return 0
	}

	score := 0
	if len(trimmed) >= 100 {
		score += 20
	}
	if len(trimmed) >= 200 {
		score += 15
	}
	if len(trimmed) >= 300 {
		score += 10
	}

	first := rune(trimmed[0])
	if first >= 'A' && first <= 'Z' {
		score += 10
	}

	lower := strings.ToLower(trimmed)
	plot := 0
	for _, kw := range plotKeywords {
		if strings.Contains(lower, kw) {
			plot += 5
		}
	}
	if plot > 25 {
		plot = 25
	}
	score += plot

	clean := true
	for _, kw := range promoKeywords {
		if strings.Contains(lower, kw) {
			clean = false
			break
		}
	}
	if clean {
		score += 15
	}

	if score > 100 {
		score = 100
	}
	return score
}

// SelectBest picks the best description across sources. Sources are consulted
// in priority order; the first candidate scoring above zero wins. When none
// qualify the highest scorer wins regardless of priority, and the sentinel is
// returned only when every candidate scores zero.
func (f *Filter) SelectBest(bySource map[string]string, priority []string) string {
	for _, src := range priority {
		if text, ok := bySource[src]; ok && f.ScoreDescription(text) > 0 {
			return f.CleanDescription(text)
		}
	}

	// Deterministic fallback scan over sources outside the priority list.
	names := make([]string, 0, len(bySource))
	for name := range bySource {
		names = append(names, name)
	}
	sort.Strings(names)

	best := ""
	bestScore := 0
	for _, name := range names {
		if s := f.ScoreDescription(bySource[name]); s > bestScore {
			bestScore = s
			best = bySource[name]
		}
	}
	if bestScore == 0 {
		return NoDescription
	}
	return f.CleanDescription(best)
}

// stripHTML extracts the text content from a fragment that may carry markup.
func stripHTML(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return text
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}
	return doc.Text()
}

// truncateAtWord cuts s to at most max bytes at the nearest word boundary,
// appending an ellipsis when anything was dropped. The cut never splits a
// multi-byte rune.
func truncateAtWord(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	cut := s[:max]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "…"
}
