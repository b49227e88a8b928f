package record

import (
	"testing"

	"github.com/mediafuse/mediafuse/internal/rating"
	"github.com/mediafuse/mediafuse/internal/source"
)

func TestScore_Monotonic(t *testing.T) {
	cfg := ScoreConfig{PrimaryTier: map[string]bool{"source-1": true}}

	base := Aggregated{
		ID:        "source-2:title",
		Name:      "Title",
		Providers: []string{"source-2"},
	}
	prev := Score(&base, cfg)

	steps := []struct {
		name  string
		apply func(a *Aggregated)
	}{
		{"add description", func(a *Aggregated) {
			a.Description = "A tale of two cities, told at length."
		}},
		{"longer description", func(a *Aggregated) {
			a.Description = a.Description + " It keeps going with enough detail to cross the one hundred character boundary for scoring."
		}},
		{"add genre", func(a *Aggregated) { a.Genres = append(a.Genres, "Drama") }},
		{"add another genre", func(a *Aggregated) { a.Genres = append(a.Genres, "Fantasy") }},
		{"add studio", func(a *Aggregated) { a.Studio = "Example Works" }},
		{"add year", func(a *Aggregated) { a.Year = 2024 }},
		{"add episodes", func(a *Aggregated) {
			a.Episodes = append(a.Episodes, source.Episode{Number: 1, ID: "e1"})
		}},
		{"add direct rating", func(a *Aggregated) {
			a.RatingBreakdown = map[string]rating.Entry{
				"source-2": {Raw: 6.0, Type: "direct", VoteCount: 20},
			}
		}},
		{"raise direct rating", func(a *Aggregated) {
			a.RatingBreakdown["source-2"] = rating.Entry{Raw: 8.5, Type: "direct", VoteCount: 20}
		}},
		{"join primary tier", func(a *Aggregated) {
			a.Providers = append(a.Providers, "source-1")
		}},
	}

	for _, step := range steps {
		step.apply(&base)
		got := Score(&base, cfg)
		if got < prev {
			t.Errorf("step %q decreased score: %d -> %d", step.name, prev, got)
		}
		prev = got
	}
}

func TestDisplayRating(t *testing.T) {
	v := 8.649
	a := Aggregated{Rating: &v}
	if got := a.DisplayRating(); got != "8.6" {
		t.Errorf("DisplayRating = %q, want 8.6", got)
	}

	na := Aggregated{RatingIsNA: true}
	if got := na.DisplayRating(); got != "N/A" {
		t.Errorf("DisplayRating = %q, want N/A", got)
	}
}

func TestScore_GenreCap(t *testing.T) {
	cfg := ScoreConfig{}
	a := Aggregated{Providers: []string{"source-2"}}
	a.Genres = []string{"a", "b", "c", "d", "e"}
	five := Score(&a, cfg)
	a.Genres = append(a.Genres, "f", "g", "h")
	if Score(&a, cfg) != five {
		t.Error("genre contribution must cap at 5")
	}
}

func TestScore_PrimaryTierBonusOnce(t *testing.T) {
	cfg := ScoreConfig{PrimaryTier: map[string]bool{"source-1": true, "source-3": true}}
	a := Aggregated{Providers: []string{"source-1"}}
	one := Score(&a, cfg)
	a.Providers = append(a.Providers, "source-3")
	if Score(&a, cfg) != one {
		t.Error("primary tier bonus must apply once")
	}
}
