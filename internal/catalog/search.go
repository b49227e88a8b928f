package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mediafuse/mediafuse/internal/record"
	"github.com/mediafuse/mediafuse/internal/source"
)

const (
	searchTTL   = 15 * time.Minute
	metadataTTL = time.Hour
)

// Search queries every source in parallel and reconciles the combined
// results the same way catalog accumulation does, so a title listed on three
// sites comes back as one merged record.
func (s *Service) Search(ctx context.Context, query string) ([]record.Aggregated, error) {
	if query == "" {
		return nil, nil
	}

	var results []record.Aggregated
	err := s.cache.Wrap(ctx, "search:"+query, searchTTL, &results, func(ctx context.Context) (any, error) {
		var wg sync.WaitGroup
		out := make(chan []providerRecord, len(s.providers))

		for _, p := range s.providers {
			wg.Add(1)
			go func(p source.Provider) {
				defer wg.Done()
				records := s.fetcher.Search(ctx, p, query)
				batch := make([]providerRecord, 0, len(records))
				for _, rec := range records {
					batch = append(batch, providerRecord{rec: rec, provider: p.Name()})
				}
				out <- batch
			}(p)
		}
		wg.Wait()
		close(out)

		state := newAccumulationState()
		for batch := range out {
			for _, pr := range batch {
				s.reconcile(state, pr.rec, pr.provider)
			}
		}

		items := state.Items
		if s.deny != nil {
			kept := items[:0]
			for _, item := range items {
				if !s.deny.IsDenied(item.ID) {
					kept = append(kept, item)
				}
			}
			items = kept
		}

		sort.Slice(items, func(i, j int) bool {
			if items[i].MetadataScore != items[j].MetadataScore {
				return items[i].MetadataScore > items[j].MetadataScore
			}
			return items[i].Name < items[j].Name
		})
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Metadata returns the enriched record for an id, consulting sources in
// definition priority order and merging every source that knows the title.
// Persistent server faults feed the denylist; any success clears the id's
// failure count. A bare slug (no source prefix) is resolved to its canonical
// record id through the slug registry first.
func (s *Service) Metadata(ctx context.Context, id string) (*record.Aggregated, error) {
	if s.registry != nil && !strings.Contains(id, ":") {
		if canonical, ok := s.registry.Resolve(id); ok {
			id = canonical
		}
	}

	if s.deny != nil && s.deny.IsDenied(id) {
		return nil, ErrDenied
	}

	var result record.Aggregated
	err := s.cache.Wrap(ctx, "metadata:"+id, metadataTTL, &result, func(ctx context.Context) (any, error) {
		return s.fetchMetadata(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) fetchMetadata(ctx context.Context, id string) (*record.Aggregated, error) {
	var merged *record.Aggregated
	var lastErr error

	for _, p := range s.orderedProviders() {
		rec, err := s.fetcher.Metadata(ctx, p, id)
		if err != nil {
			if errors.Is(err, source.ErrUpstreamFault) && s.deny != nil {
				if s.deny.RecordFailure(id, err.Error()) {
					s.logger.Warn().Str("id", id).Msg("Record denylisted during metadata fetch")
					return nil, ErrDenied
				}
			}
			lastErr = err
			continue
		}
		if rec == nil {
			continue
		}
		if err := rec.Validate(); err != nil {
			droppedRecords.WithLabelValues(p.Name()).Inc()
			continue
		}

		if s.deny != nil {
			s.deny.ClearFailures(id)
		}
		if s.registry != nil {
			s.registry.Register(source.Slug(rec.ID), rec.ID, p.Name())
		}

		if merged == nil {
			agg := record.FromSource(*rec, p.Name())
			s.merger.Rescore(&agg)
			merged = &agg
		} else {
			next := s.merger.Merge(*merged, *rec, p.Name())
			merged = &next
		}
	}

	if merged == nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrNotFound
	}
	return merged, nil
}

// orderedProviders returns providers in definition priority order, falling
// back to registration order for sources without a definition.
func (s *Service) orderedProviders() []source.Provider {
	if s.defs == nil {
		return s.providers
	}

	byName := make(map[string]source.Provider, len(s.providers))
	for _, p := range s.providers {
		byName[p.Name()] = p
	}

	ordered := make([]source.Provider, 0, len(s.providers))
	for _, name := range s.defs.PriorityOrder() {
		if p, ok := byName[name]; ok {
			ordered = append(ordered, p)
			delete(byName, name)
		}
	}
	for _, p := range s.providers {
		if _, ok := byName[p.Name()]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered
}
