// Package mock provides an in-memory source provider for tests and dev mode.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mediafuse/mediafuse/internal/source"
)

// Provider is a scripted in-memory source. Pages are keyed by page number;
// failures can be injected per operation.
type Provider struct {
	mu sync.Mutex

	name    string
	pages   map[int][]source.Record
	details map[string]source.Record

	failCatalog  error
	failMetadata map[string]error

	catalogCalls  int
	metadataCalls int
	searchCalls   int
}

// New creates a mock provider with no data.
func New(name string) *Provider {
	return &Provider{
		name:         name,
		pages:        make(map[int][]source.Record),
		details:      make(map[string]source.Record),
		failMetadata: make(map[string]error),
	}
}

func (p *Provider) Name() string { return p.name }

// SetPage installs the records returned for a catalog page.
func (p *Provider) SetPage(page int, records []source.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages[page] = records
}

// SetDetail installs the enriched record returned by Metadata.
func (p *Provider) SetDetail(rec source.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.details[rec.ID] = rec
}

// FailCatalog makes every Catalog call return err.
func (p *Provider) FailCatalog(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failCatalog = err
}

// FailMetadata makes Metadata for id return err.
func (p *Provider) FailMetadata(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failMetadata[id] = err
}

func (p *Provider) Catalog(_ context.Context, page int, genre string, _ source.SortHint) ([]source.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.catalogCalls++

	if p.failCatalog != nil {
		return nil, p.failCatalog
	}

	records := p.pages[page]
	if genre == "" {
		return append([]source.Record(nil), records...), nil
	}

	filtered := make([]source.Record, 0, len(records))
	for _, r := range records {
		for _, g := range r.Genres {
			if strings.EqualFold(g, genre) {
				filtered = append(filtered, r)
				break
			}
		}
	}
	return filtered, nil
}

func (p *Provider) Metadata(_ context.Context, id string) (*source.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metadataCalls++

	if err, ok := p.failMetadata[id]; ok {
		return nil, err
	}
	rec, ok := p.details[id]
	if !ok {
		return nil, fmt.Errorf("mock: no detail for %s", id)
	}
	return &rec, nil
}

func (p *Provider) Search(_ context.Context, query string) ([]source.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searchCalls++

	q := strings.ToLower(query)
	var matches []source.Record
	for _, records := range p.pages {
		for _, r := range records {
			if strings.Contains(strings.ToLower(r.Name), q) {
				matches = append(matches, r)
			}
		}
	}
	return matches, nil
}

// CatalogCalls returns how many times Catalog was invoked.
func (p *Provider) CatalogCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.catalogCalls
}

// MetadataCalls returns how many times Metadata was invoked.
func (p *Provider) MetadataCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metadataCalls
}
