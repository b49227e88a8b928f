package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mediafuse/mediafuse/internal/record"
	"github.com/mediafuse/mediafuse/internal/source"
)

const browseTTL = time.Hour

// BrowseYear returns merged records released in a given year. Sources with
// native year browsing are asked directly; the rest contribute a generic
// page filtered locally.
func (s *Service) BrowseYear(ctx context.Context, year, page int) ([]record.Aggregated, error) {
	key := fmt.Sprintf("browse:year:%d:%d", year, page)
	return s.browse(ctx, key, func(ctx context.Context, p source.Provider) ([]source.Record, error) {
		records, err := s.fetcher.CatalogByYear(ctx, p, year, page)
		if errors.Is(err, source.ErrNotSupported) {
			fallback := s.fetcher.Catalog(ctx, p, page, "", source.SortPopular)
			kept := fallback[:0]
			for _, rec := range fallback {
				if rec.Year == year {
					kept = append(kept, rec)
				}
			}
			return kept, nil
		}
		return records, err
	})
}

// BrowseStudio mirrors BrowseYear for studio browsing.
func (s *Service) BrowseStudio(ctx context.Context, studio string, page int) ([]record.Aggregated, error) {
	key := fmt.Sprintf("browse:studio:%s:%d", strings.ToLower(studio), page)
	return s.browse(ctx, key, func(ctx context.Context, p source.Provider) ([]source.Record, error) {
		records, err := s.fetcher.CatalogByStudio(ctx, p, studio, page)
		if errors.Is(err, source.ErrNotSupported) {
			fallback := s.fetcher.Catalog(ctx, p, page, "", source.SortPopular)
			kept := fallback[:0]
			for _, rec := range fallback {
				if strings.EqualFold(rec.Studio, studio) {
					kept = append(kept, rec)
				}
			}
			return kept, nil
		}
		return records, err
	})
}

// browse fetches from every provider sequentially in priority order and
// reconciles the results into one merged, name-sorted set. Fetch errors
// degrade that source to an empty contribution.
func (s *Service) browse(ctx context.Context, key string, fetch func(context.Context, source.Provider) ([]source.Record, error)) ([]record.Aggregated, error) {
	var results []record.Aggregated
	err := s.cache.Wrap(ctx, key, browseTTL, &results, func(ctx context.Context) (any, error) {
		state := newAccumulationState()
		for _, p := range s.orderedProviders() {
			records, err := fetch(ctx, p)
			if err != nil {
				s.logger.Warn().Err(err).Str("source", p.Name()).Str("key", key).
					Msg("Browse fetch failed, skipping source")
				continue
			}
			for _, rec := range records {
				s.reconcile(state, rec, p.Name())
			}
		}
		sortItems(state.Items, SortAlphabetical)
		return state.Items, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
