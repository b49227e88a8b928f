package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mediafuse/mediafuse/internal/cache"
	"github.com/mediafuse/mediafuse/internal/config"
	"github.com/mediafuse/mediafuse/internal/denylist"
	"github.com/mediafuse/mediafuse/internal/identity"
	"github.com/mediafuse/mediafuse/internal/record"
	"github.com/mediafuse/mediafuse/internal/registry"
	"github.com/mediafuse/mediafuse/internal/source"
)

// Service is the accumulation pagination engine.
type Service struct {
	providers []source.Provider
	defs      *config.Definitions
	fetcher   *source.Fetcher
	cache     *cache.Cache
	resolver  *identity.Resolver
	merger    *record.Merger
	deny      *denylist.Denylist
	registry  *registry.Registry

	views              map[string]View
	windowedMultiplier int
	stateTTL           time.Duration
	refreshPages       int
	knownStreak        int

	flight singleflight.Group
	logger zerolog.Logger
}

// Options configures the service.
type Options struct {
	Providers          []source.Provider
	Definitions        *config.Definitions
	Fetcher            *source.Fetcher
	Cache              *cache.Cache
	Resolver           *identity.Resolver
	Merger             *record.Merger
	Denylist           *denylist.Denylist
	Registry           *registry.Registry
	Views              []View
	WindowedMultiplier int
	StateTTL           time.Duration
	RefreshPages       int
	KnownStreak        int
}

// New creates the catalog service.
func New(opts Options, logger zerolog.Logger) *Service {
	if opts.WindowedMultiplier <= 0 {
		opts.WindowedMultiplier = 5
	}
	if opts.StateTTL <= 0 {
		opts.StateTTL = time.Hour
	}
	if opts.RefreshPages <= 0 {
		opts.RefreshPages = 3
	}
	if opts.KnownStreak <= 0 {
		opts.KnownStreak = 5
	}

	views := make(map[string]View, len(opts.Views))
	for _, v := range opts.Views {
		views[v.ID] = v
	}

	return &Service{
		providers:          opts.Providers,
		defs:               opts.Definitions,
		fetcher:            opts.Fetcher,
		cache:              opts.Cache,
		resolver:           opts.Resolver,
		merger:             opts.Merger,
		deny:               opts.Denylist,
		registry:           opts.Registry,
		views:              views,
		windowedMultiplier: opts.WindowedMultiplier,
		stateTTL:           opts.StateTTL,
		refreshPages:       opts.RefreshPages,
		knownStreak:        opts.KnownStreak,
		logger:             logger.With().Str("component", "catalog").Logger(),
	}
}

// Serve returns one page of a catalog view, accumulating upstream pages
// lazily until the requested window can be satisfied. Raw accumulation and
// the filtered working set are kept separate so repeated requests stay
// idempotent while the underlying set grows.
func (s *Service) Serve(ctx context.Context, req Request) ([]record.Aggregated, error) {
	view, ok := s.views[req.CatalogID]
	if !ok {
		return nil, ErrUnknownView
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Skip < 0 {
		req.Skip = 0
	}

	multiplier := 1
	if view.Windowed() {
		multiplier = s.windowedMultiplier
	}
	target := (req.Skip + req.Limit) * multiplier

	state, err := s.accumulateShared(ctx, view, req.FilterKey, target)
	if err != nil {
		return nil, err
	}

	working := s.applyFilters(state.Items, view, req)
	return window(working, req.Skip, req.Limit), nil
}

// accumulateShared collapses concurrent accumulation for the same
// (catalog, filter) key into one pass. The original design left this race
// open; two concurrent requests for an uncached page would both fetch
// upstream.
func (s *Service) accumulateShared(ctx context.Context, view View, filterKey string, target int) (*AccumulationState, error) {
	key := stateKey(view.ID, filterKey)

	for {
		v, err, shared := s.flight.Do(key, func() (any, error) {
			return s.accumulate(context.WithoutCancel(ctx), view, filterKey, target)
		})
		if err != nil {
			return nil, err
		}
		state := v.(*AccumulationState)

		// A shared pass may have been driven by a shallower request than
		// ours. Run again until the state covers our target or the sources
		// are exhausted; our own pass always does.
		if !shared || state.IsComplete || len(state.Items) >= target {
			return state, nil
		}
	}
}

// accumulate grows the state for a key until it holds target items or the
// sources are exhausted. Pages are fetched from all sources in parallel but
// merged strictly sequentially; the next page is not requested until the
// current one is fully reconciled.
func (s *Service) accumulate(ctx context.Context, view View, filterKey string, target int) (*AccumulationState, error) {
	key := stateKey(view.ID, filterKey)

	state := newAccumulationState()
	s.cache.Get(key, state)

	for len(state.Items) < target && !state.IsComplete {
		page := state.NextPageCursor
		records := s.fetchPage(ctx, view, page)

		changed := 0
		for _, pr := range records {
			if s.reconcile(state, pr.rec, pr.provider) {
				changed++
			}
		}

		if changed == 0 {
			state.IsComplete = true
			s.logger.Debug().Str("key", key).Int("items", len(state.Items)).
				Msg("Accumulation complete, sources exhausted")
		} else {
			state.NextPageCursor = page + 1
		}

		pagesFetched.WithLabelValues(view.ID).Inc()
		if err := s.persist(key, state); err != nil {
			return nil, err
		}
	}

	return state, nil
}

// providerRecord pairs a fetched record with its originating source.
type providerRecord struct {
	rec      source.Record
	provider string
}

// fetchPage fans out one page number to every provider. Failed sources
// contribute nothing; ordering across sources is not guaranteed and does not
// matter because reconciliation is order-insensitive for identity.
func (s *Service) fetchPage(ctx context.Context, view View, page int) []providerRecord {
	var wg sync.WaitGroup
	results := make(chan []providerRecord, len(s.providers))

	for _, p := range s.providers {
		wg.Add(1)
		go func(p source.Provider) {
			defer wg.Done()
			records := s.fetcher.Catalog(ctx, p, page, view.Genre, source.SortPopular)
			out := make([]providerRecord, 0, len(records))
			for _, rec := range records {
				out = append(out, providerRecord{rec: rec, provider: p.Name()})
			}
			results <- out
		}(p)
	}

	wg.Wait()
	close(results)

	var all []providerRecord
	for batch := range results {
		all = append(all, batch...)
	}
	return all
}

// reconcile folds one source record into the state, returning true when the
// state gained a new entry or a new provider contribution. Records are
// checked against everything accumulated so far, which includes earlier
// records from the same page.
func (s *Service) reconcile(state *AccumulationState, rec source.Record, provider string) bool {
	if err := rec.Validate(); err != nil {
		s.logger.Debug().Err(err).Str("source", provider).Msg("Dropping malformed record")
		droppedRecords.WithLabelValues(provider).Inc()
		return false
	}

	if s.registry != nil {
		s.registry.Register(source.Slug(rec.ID), rec.ID, provider)
	}

	for i := range state.Items {
		existing := &state.Items[i]
		if existing.ID != rec.ID && !s.resolver.IsDuplicate(existing.Name, rec.Name) {
			continue
		}

		knownProvider := existing.HasProvider(provider)
		state.Items[i] = s.merger.Merge(*existing, rec, provider)
		merges.Inc()

		// Re-merging a provider we already had refreshes fields but is
		// not accumulation progress.
		return !knownProvider
	}

	agg := record.FromSource(rec, provider)
	s.merger.Rescore(&agg)
	state.Items = append(state.Items, agg)
	return true
}

func (s *Service) persist(key string, state *AccumulationState) error {
	if err := s.cache.Set(key, state, s.stateTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to persist accumulation state")
		return err
	}
	return nil
}

// Seed replaces the accumulation state for a view with a prebuilt record
// set, marking it complete. Used when loading an offline bundle.
func (s *Service) Seed(view string, filterKey string, items []record.Aggregated) error {
	state := &AccumulationState{
		Items:          items,
		NextPageCursor: 1,
		IsComplete:     true,
	}
	return s.persist(stateKey(view, filterKey), state)
}

// StateSnapshot returns a copy of the current accumulation state for a key.
func (s *Service) StateSnapshot(catalogID, filterKey string) (*AccumulationState, bool) {
	state := newAccumulationState()
	if s.cache.Get(stateKey(catalogID, filterKey), state) == cache.StatusMiss {
		return nil, false
	}
	return state, true
}

