package record

import (
	"strings"

	"github.com/mediafuse/mediafuse/internal/describe"
	"github.com/mediafuse/mediafuse/internal/rating"
	"github.com/mediafuse/mediafuse/internal/source"
)

// Merger combines records judged identical by the identity resolver. Merging
// is pure: inputs are never mutated, the higher-scoring side becomes the
// primary and the other fills its gaps field by field.
type Merger struct {
	Priority    []string
	PrimaryTier map[string]bool
	Describe    *describe.Filter
	MinVotes    int
}

// NewMerger creates a merger.
func NewMerger(priority []string, primaryTier map[string]bool, filter *describe.Filter, minVotes int) *Merger {
	if filter == nil {
		filter = describe.NewFilter(0, nil)
	}
	if minVotes <= 0 {
		minVotes = rating.DefaultMinDirectVotes
	}
	return &Merger{
		Priority:    priority,
		PrimaryTier: primaryTier,
		Describe:    filter,
		MinVotes:    minVotes,
	}
}

// Merge folds a new source record into an existing aggregated record.
func (m *Merger) Merge(existing Aggregated, cand source.Record, provider string) Aggregated {
	return m.MergeAggregated(existing, FromSource(cand, provider))
}

// MergeAggregated merges two aggregated records. The offline bundle builder
// calls this directly so batch and live merges share one implementation.
func (m *Merger) MergeAggregated(a, b Aggregated) Aggregated {
	cfg := ScoreConfig{PrimaryTier: m.PrimaryTier}

	primary, secondary := a, b
	if Score(&b, cfg) > Score(&a, cfg) {
		primary, secondary = b, a
	}

	merged := primary.clone()

	for _, p := range secondary.Providers {
		if !merged.HasProvider(p) {
			merged.Providers = append(merged.Providers, p)
		}
	}

	for src, slug := range secondary.ProviderSlugs {
		if _, ok := merged.ProviderSlugs[src]; !ok {
			merged.ProviderSlugs[src] = slug
		}
	}

	// Secondary entries fill missing breakdown keys; entries for the
	// secondary's own sources are always re-recorded since it observed them
	// more recently than whatever the primary carries.
	for src, entry := range secondary.RatingBreakdown {
		if _, ok := merged.RatingBreakdown[src]; !ok || secondary.HasProvider(src) {
			merged.RatingBreakdown[src] = entry
		}
	}

	merged.Description = m.mergeDescription(primary, secondary)

	if merged.Poster == "" {
		merged.Poster = secondary.Poster
	}

	merged.Studio = mergeStudio(primary.Studio, secondary.Studio)
	merged.Genres = mergeGenres(primary.Genres, secondary.Genres, merged.Studio)

	if merged.Year == 0 {
		merged.Year = secondary.Year
	}
	if secondary.LastUpdated.After(merged.LastUpdated) {
		merged.LastUpdated = secondary.LastUpdated
	}
	if len(secondary.Episodes) > len(merged.Episodes) {
		merged.Episodes = append([]source.Episode(nil), secondary.Episodes...)
	}

	merged.MetadataScore = Score(&merged, cfg)
	m.resolveRating(&merged)
	return merged
}

// Rescore re-derives the completeness score and resolved rating in place.
// Used after seeding records that bypassed a merge.
func (m *Merger) Rescore(a *Aggregated) {
	a.MetadataScore = Score(a, ScoreConfig{PrimaryTier: m.PrimaryTier})
	m.resolveRating(a)
}

func (m *Merger) resolveRating(a *Aggregated) {
	res := rating.ResolvePriority(a.RatingBreakdown, m.Priority, m.MinVotes)
	a.Rating = res.Rating
	a.RatingSource = res.Source
	a.RatingIsNA = res.IsNA
}

// mergeDescription prefers the primary's text, swapping in the secondary's
// when the primary's is missing or too short, then runs best-candidate
// selection as a final pass.
func (m *Merger) mergeDescription(primary, secondary Aggregated) string {
	pDesc := primary.Description
	sDesc := secondary.Description

	// Identical text carries no new information; re-cleaning it here would
	// make self-merges rewrite the stored description.
	if pDesc == sDesc {
		return pDesc
	}

	if (pDesc == "" || len(pDesc) < 30 || pDesc == describe.NoDescription) && len(sDesc) > 30 {
		return m.Describe.CleanDescription(sDesc)
	}

	candidates := make(map[string]string)
	if len(primary.Providers) > 0 && pDesc != "" {
		candidates[primary.Providers[0]] = pDesc
	}
	if len(secondary.Providers) > 0 && sDesc != "" {
		candidates[secondary.Providers[0]] = sDesc
	}
	if len(candidates) == 0 {
		return pDesc
	}

	best := m.Describe.SelectBest(candidates, m.Priority)
	if best == describe.NoDescription && pDesc != "" {
		return pDesc
	}
	return best
}

// mergeStudio keeps the primary's studio unless it is shouting-case and the
// secondary's is not; sources that only emit upper-case studio tags lose to
// natural capitalization.
func mergeStudio(primary, secondary string) string {
	if primary == "" {
		return secondary
	}
	if secondary == "" {
		return primary
	}
	if primary == strings.ToUpper(primary) && secondary != strings.ToUpper(secondary) {
		return secondary
	}
	return primary
}

// mergeGenres unions both genre lists, deduplicating case-insensitively and
// dropping any entry equal to the resolved studio name. Sources sometimes
// tag the studio itself as a genre.
func mergeGenres(a, b []string, studio string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	studioLower := strings.ToLower(studio)

	for _, list := range [][]string{a, b} {
		for _, g := range list {
			key := strings.ToLower(strings.TrimSpace(g))
			if key == "" || seen[key] {
				continue
			}
			if studioLower != "" && key == studioLower {
				continue
			}
			seen[key] = true
			out = append(out, g)
		}
	}
	return out
}
