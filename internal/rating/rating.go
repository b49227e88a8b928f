// Package rating converts heterogeneous popularity signals (direct scores,
// raw view counts, trending ranks) onto a comparable 0-10 scale and resolves
// a single display rating across sources.
package rating

import "math"

const (
	// minViewCount is the floor under which a view count carries no signal.
	minViewCount = 1000
	// maxViewRating caps view-derived ratings below any strong direct score.
	maxViewRating = 7.5
	// maxTrendingRating caps trending-derived ratings.
	maxTrendingRating = 7.0
	// DefaultMinDirectVotes is the smallest sample size a direct rating
	// needs before it can outrank other signals.
	DefaultMinDirectVotes = 10
)

// Entry is one source's raw contribution to a rating breakdown.
type Entry struct {
	Raw       float64 `json:"raw"`
	Type      string  `json:"type"` // direct | views | trending
	VoteCount int     `json:"voteCount,omitempty"`
	ViewCount int     `json:"viewCount,omitempty"`
}

// Resolved is the outcome of priority resolution.
type Resolved struct {
	Rating *float64
	Source string
	IsNA   bool
}

// NormalizeDirect clamps an explicit score to [0, 10].
func NormalizeDirect(v float64) *float64 {
	if v < 0 {
		v = 0
	}
	if v > 10 {
		v = 10
	}
	return &v
}

// NormalizeViews converts a raw view count to a 0-10 scale rating.
// Counts under the floor return nil; above it the value is log-scaled,
// capped at maxViewRating and rounded to one decimal. Monotonically
// non-decreasing in views.
func NormalizeViews(views int) *float64 {
	if views < minViewCount {
		return nil
	}
	v := math.Log10(float64(views)+1) * 1.5
	if v > maxViewRating {
		v = maxViewRating
	}
	v = round1(v)
	return &v
}

// TrendingScore converts a trending list position to a rough score before
// normalization. Position 1 scores highest; the floor is 5.0.
func TrendingScore(position int) float64 {
	v := round1(9.5 - float64(position)*0.05)
	if v < 5.0 {
		v = 5.0
	}
	return v
}

// NormalizeTrending clamps a pre-converted trending score to [0, 10] and
// caps it at maxTrendingRating.
func NormalizeTrending(v float64) *float64 {
	if v < 0 {
		v = 0
	}
	if v > 10 {
		v = 10
	}
	if v > maxTrendingRating {
		v = maxTrendingRating
	}
	return &v
}

// ResolvePriority walks the provider priority order and returns the first
// usable normalized rating. A direct entry whose known vote count is below
// minVotes skips its provider entirely: a statistically meaningless score
// must not outrank a solid view-based signal from a lower-priority source.
func ResolvePriority(breakdown map[string]Entry, priority []string, minVotes int) Resolved {
	if minVotes <= 0 {
		minVotes = DefaultMinDirectVotes
	}

	for _, src := range priority {
		entry, ok := breakdown[src]
		if !ok {
			continue
		}

		var normalized *float64
		switch entry.Type {
		case "direct":
			if entry.VoteCount > 0 && entry.VoteCount < minVotes {
				continue // insufficient sample, move to next provider
			}
			normalized = NormalizeDirect(entry.Raw)
		case "views":
			views := entry.ViewCount
			if views == 0 {
				views = int(entry.Raw)
			}
			normalized = NormalizeViews(views)
		case "trending":
			normalized = NormalizeTrending(entry.Raw)
		}

		if normalized != nil {
			return Resolved{Rating: normalized, Source: src}
		}
	}

	return Resolved{IsNA: true}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
