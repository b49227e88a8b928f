package source

import (
	"context"
	"errors"
)

// SortHint tells a provider how to order a catalog page.
type SortHint string

const (
	SortRecent  SortHint = "recent"
	SortPopular SortHint = "popular"
	SortDefault SortHint = ""
)

// ErrNotSupported is returned by providers for optional operations they do
// not implement; callers fall back to fetching a generic page and filtering
// locally.
var ErrNotSupported = errors.New("operation not supported by source")

// Provider is the per-source scraper contract. Implementations live outside
// this module; they return the common Record shape and nothing else.
type Provider interface {
	// Name returns the source identifier used in provider sets and
	// rating breakdowns.
	Name() string

	// Catalog returns one page of listings. genre may be empty.
	Catalog(ctx context.Context, page int, genre string, sort SortHint) ([]Record, error)

	// Metadata returns the enriched record for an id, including episodes.
	Metadata(ctx context.Context, id string) (*Record, error)

	// Search returns records matching a free-text query.
	Search(ctx context.Context, query string) ([]Record, error)
}

// YearBrowser is implemented by providers that can page a catalog by year.
type YearBrowser interface {
	CatalogByYear(ctx context.Context, year, page int) ([]Record, error)
}

// StudioBrowser is implemented by providers that can page a catalog by studio.
type StudioBrowser interface {
	CatalogByStudio(ctx context.Context, studio string, page int) ([]Record, error)
}
