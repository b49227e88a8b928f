package record

// ScoreConfig identifies the primary trust tier used by the completeness
// score.
type ScoreConfig struct {
	PrimaryTier map[string]bool
}

// Score computes the metadata completeness score for a record. The score is
// monotonic: adding a description, genre, studio, year, episodes or a higher
// direct rating never decreases it.
func Score(a *Aggregated, cfg ScoreConfig) int {
	score := 0

	for _, p := range a.Providers {
		if cfg.PrimaryTier[p] {
			score += 10
			break
		}
	}

	if direct, ok := bestDirect(a); ok {
		score += 5
		if direct >= 8 {
			score += 2
		}
	}

	if len(a.Description) > 20 {
		score += 3
		if len(a.Description) > 100 {
			score++
		}
	}

	genres := len(a.Genres)
	if genres > 5 {
		genres = 5
	}
	score += genres

	if a.Year > 0 {
		score++
	}
	if a.Studio != "" {
		score++
	}
	if len(a.Episodes) > 0 {
		score += 2
	}

	return score
}

// bestDirect returns the highest raw direct rating in the breakdown.
func bestDirect(a *Aggregated) (float64, bool) {
	best := 0.0
	found := false
	for _, entry := range a.RatingBreakdown {
		if entry.Type == "direct" && (!found || entry.Raw > best) {
			best = entry.Raw
			found = true
		}
	}
	return best, found
}
