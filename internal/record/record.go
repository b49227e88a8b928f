// Package record owns the unified representation of a title after
// reconciling all matching source records, and the merge logic that builds
// it. The live serving path and the offline bundle builder share this
// package so their merge semantics cannot drift apart.
package record

import (
	"strconv"
	"time"

	"github.com/mediafuse/mediafuse/internal/rating"
	"github.com/mediafuse/mediafuse/internal/source"
)

// Aggregated is the unified, merged view of a title. It is created the first
// time a source record has no existing match and mutated only through the
// Merger.
type Aggregated struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Poster      string           `json:"poster,omitempty"`
	Description string           `json:"description,omitempty"`
	Genres      []string         `json:"genres,omitempty"`
	Studio      string           `json:"studio,omitempty"`
	Year        int              `json:"year,omitempty"`
	LastUpdated time.Time        `json:"lastUpdated,omitempty"`
	Episodes    []source.Episode `json:"episodes,omitempty"`

	Providers       []string                `json:"providers"`
	ProviderSlugs   map[string]string       `json:"providerSlugs,omitempty"`
	RatingBreakdown map[string]rating.Entry `json:"ratingBreakdown,omitempty"`

	MetadataScore int      `json:"metadataScore"`
	Rating        *float64 `json:"rating,omitempty"`
	RatingSource  string   `json:"ratingSource,omitempty"`
	RatingIsNA    bool     `json:"ratingIsNA"`
}

// DisplayRating projects the resolved rating for presentation adapters.
func (a *Aggregated) DisplayRating() string {
	if a.RatingIsNA || a.Rating == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*a.Rating, 'f', 1, 64)
}

// HasProvider reports whether a source already contributed to this record.
func (a *Aggregated) HasProvider(name string) bool {
	for _, p := range a.Providers {
		if p == name {
			return true
		}
	}
	return false
}

// FromSource lifts a raw source record into an aggregated record with a
// single contributing provider.
func FromSource(rec source.Record, provider string) Aggregated {
	agg := Aggregated{
		ID:          rec.ID,
		Name:        rec.Name,
		Poster:      rec.Poster,
		Description: rec.Description,
		Genres:      append([]string(nil), rec.Genres...),
		Studio:      rec.Studio,
		Year:        rec.Year,
		LastUpdated: rec.LastUpdated,
		Episodes:    append([]source.Episode(nil), rec.Episodes...),
		Providers:   []string{provider},
		ProviderSlugs: map[string]string{
			provider: source.Slug(rec.ID),
		},
		RatingBreakdown: make(map[string]rating.Entry),
	}

	if entry, ok := breakdownEntry(rec); ok {
		agg.RatingBreakdown[provider] = entry
	}
	return agg
}

// breakdownEntry converts a source record's raw rating signal into a
// breakdown entry. Records with no signal at all contribute nothing.
func breakdownEntry(rec source.Record) (rating.Entry, bool) {
	switch rec.RatingType {
	case source.RatingDirect:
		if rec.Rating == nil {
			return rating.Entry{}, false
		}
		return rating.Entry{Raw: *rec.Rating, Type: "direct", VoteCount: rec.VoteCount}, true
	case source.RatingViews:
		return rating.Entry{Raw: float64(rec.ViewCount), Type: "views", ViewCount: rec.ViewCount}, true
	case source.RatingTrending:
		if rec.Rating == nil {
			return rating.Entry{}, false
		}
		return rating.Entry{Raw: *rec.Rating, Type: "trending"}, true
	default:
		// Untyped records still carry a view counter often enough to matter.
		if rec.ViewCount > 0 {
			return rating.Entry{Raw: float64(rec.ViewCount), Type: "views", ViewCount: rec.ViewCount}, true
		}
		if rec.Rating != nil {
			return rating.Entry{Raw: *rec.Rating, Type: "direct", VoteCount: rec.VoteCount}, true
		}
		return rating.Entry{}, false
	}
}

// clone returns a deep copy so merges never alias the input's slices or maps.
func (a Aggregated) clone() Aggregated {
	out := a
	out.Genres = append([]string(nil), a.Genres...)
	out.Episodes = append([]source.Episode(nil), a.Episodes...)
	out.Providers = append([]string(nil), a.Providers...)

	out.ProviderSlugs = make(map[string]string, len(a.ProviderSlugs))
	for k, v := range a.ProviderSlugs {
		out.ProviderSlugs[k] = v
	}
	out.RatingBreakdown = make(map[string]rating.Entry, len(a.RatingBreakdown))
	for k, v := range a.RatingBreakdown {
		out.RatingBreakdown[k] = v
	}
	return out
}
