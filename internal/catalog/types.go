// Package catalog owns the accumulating pagination engine: per-view growing
// lists of merged records, lazily pulling upstream pages to satisfy a
// requested window and reconciling every new record against everything seen
// so far.
package catalog

import (
	"errors"
	"time"

	"github.com/mediafuse/mediafuse/internal/record"
)

// SortStrategy selects how a view orders its filtered working set.
type SortStrategy string

const (
	SortRecency       SortStrategy = "recency"
	SortRating        SortStrategy = "rating"
	SortAlphabetical  SortStrategy = "alphabetical"
	SortMetadataScore SortStrategy = "score"
)

// View is one configured catalog view.
type View struct {
	ID    string
	Genre string // domain tag filter applied upstream and locally
	// TimeWindow keeps only records updated within the window ("this
	// week"). A non-zero window raises the accumulation fetch multiplier,
	// since most accumulated records fall outside it.
	TimeWindow time.Duration
	Sort       SortStrategy
}

// Windowed reports whether the view carries a time-window filter.
func (v View) Windowed() bool {
	return v.TimeWindow > 0
}

// Request is one page request against a catalog view.
type Request struct {
	CatalogID        string
	FilterKey        string
	Skip             int
	Limit            int
	BlacklistGenres  []string
	BlacklistStudios []string
}

// AccumulationState is the persisted raw accumulation for one
// (catalog, filter) pair. Items grow monotonically; IsComplete moves
// false -> true exactly once.
type AccumulationState struct {
	Items          []record.Aggregated `json:"items"`
	NextPageCursor int                 `json:"nextPageCursor"`
	IsComplete     bool                `json:"isComplete"`
}

func newAccumulationState() *AccumulationState {
	return &AccumulationState{NextPageCursor: 1}
}

// ErrUnknownView is returned for requests against an unconfigured catalog id.
var ErrUnknownView = errors.New("unknown catalog view")

// ErrDenied is returned for metadata requests against a denylisted id.
var ErrDenied = errors.New("record is denylisted")

// ErrNotFound is returned when no source can serve a metadata request.
var ErrNotFound = errors.New("record not found on any source")

// stateKey builds the cache key for an accumulation state.
func stateKey(catalogID, filterKey string) string {
	if filterKey == "" {
		filterKey = "all"
	}
	return "catalog:" + catalogID + ":" + filterKey + ":accumulated"
}
