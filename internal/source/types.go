package source

import (
	"errors"
	"time"
)

// RatingType identifies how a source expresses popularity.
type RatingType string

const (
	// RatingDirect is an explicit user score on a 0-10 scale.
	RatingDirect RatingType = "direct"
	// RatingViews is a raw view counter.
	RatingViews RatingType = "views"
	// RatingTrending is a position-derived trending score.
	RatingTrending RatingType = "trending"
)

// Episode is one episode entry within a source record.
type Episode struct {
	Number   int       `json:"number"`
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Poster   string    `json:"poster,omitempty"`
	Released time.Time `json:"released,omitempty"`
}

// Record is a single source's raw view of a title, before reconciliation.
// IDs are source-prefixed ("<source>:<slug>") and unique within a source.
type Record struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Poster      string     `json:"poster,omitempty"`
	Description string     `json:"description,omitempty"`
	Genres      []string   `json:"genres,omitempty"`
	Studio      string     `json:"studio,omitempty"`
	Year        int        `json:"year,omitempty"`
	Rating      *float64   `json:"rating,omitempty"`
	RatingType  RatingType `json:"ratingType,omitempty"`
	VoteCount   int        `json:"voteCount,omitempty"`
	ViewCount   int        `json:"viewCount,omitempty"`
	LastUpdated time.Time  `json:"lastUpdated,omitempty"`
	Episodes    []Episode  `json:"episodes,omitempty"`
}

// ErrMalformed marks records rejected at the ingestion boundary.
var ErrMalformed = errors.New("malformed source record")

// Validate checks the fields every record must carry before it may enter
// identity resolution. Malformed records are dropped, not raised.
func (r *Record) Validate() error {
	if r.ID == "" {
		return errors.Join(ErrMalformed, errors.New("missing id"))
	}
	if r.Name == "" {
		return errors.Join(ErrMalformed, errors.New("missing name"))
	}
	switch r.RatingType {
	case "", RatingDirect, RatingViews, RatingTrending:
	default:
		return errors.Join(ErrMalformed, errors.New("unknown rating type"))
	}
	return nil
}

// Slug returns the source-native id fragment of a prefixed record id.
func Slug(id string) string {
	for i := 0; i < len(id); i++ {
		if id[i] == ':' {
			return id[i+1:]
		}
	}
	return id
}
