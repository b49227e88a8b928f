package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediafuse/mediafuse/internal/cache"
	"github.com/mediafuse/mediafuse/internal/source"
)

// RefreshRecent runs one incremental refresh pass over a view's unfiltered
// accumulation. Each source is scanned in recent-first order; once a run of
// consecutive already-known records is seen the scan stops, on the assumption
// that everything older is known too. Sources flagged FullFirstPage interleave
// updated entries into their recent listing, so their first page is always
// consumed in full before the streak rule applies.
//
// New and changed records are reconciled into the existing state in place.
// The page cursor is untouched: refresh fills the front of the set, normal
// accumulation keeps extending the back.
func (s *Service) RefreshRecent(ctx context.Context, catalogID string) error {
	view, ok := s.views[catalogID]
	if !ok {
		return ErrUnknownView
	}

	jobID := uuid.NewString()
	key := stateKey(view.ID, "")
	logger := s.logger.With().Str("job", jobID).Str("view", view.ID).Logger()

	state := newAccumulationState()
	if s.cache.Get(key, state) == cache.StatusMiss {
		// Nothing accumulated yet; first demand-driven request will build it.
		logger.Debug().Msg("Skipping refresh, no accumulated state")
		refreshRuns.WithLabelValues("skipped").Inc()
		return nil
	}

	added := 0
	for _, p := range s.providers {
		added += s.refreshProvider(ctx, logger.With().Str("source", p.Name()).Logger(), state, view, p)
		if ctx.Err() != nil {
			refreshRuns.WithLabelValues("canceled").Inc()
			return ctx.Err()
		}
	}

	if err := s.persist(key, state); err != nil {
		refreshRuns.WithLabelValues("error").Inc()
		return err
	}

	logger.Info().Int("added", added).Int("items", len(state.Items)).
		Msg("Incremental refresh complete")
	refreshRuns.WithLabelValues("ok").Inc()
	return nil
}

// refreshProvider scans one source's recent pages into the state, returning
// how many records were new. The known streak counts consecutive records that
// were already accumulated and resets whenever a new one appears.
func (s *Service) refreshProvider(ctx context.Context, logger zerolog.Logger, state *AccumulationState, view View, p source.Provider) int {
	fullFirstPage := false
	if s.defs != nil {
		if def, ok := s.defs.Definition(p.Name()); ok {
			fullFirstPage = def.FullFirstPage
		}
	}

	added := 0
	streak := 0
	for page := 1; page <= s.refreshPages; page++ {
		records := s.fetcher.Catalog(ctx, p, page, view.Genre, source.SortRecent)
		if len(records) == 0 {
			break
		}

		for _, rec := range records {
			if s.isKnown(state, rec) {
				streak++
			} else {
				streak = 0
			}
			if s.reconcile(state, rec, p.Name()) {
				added++
			}

			if streak >= s.knownStreak && !(fullFirstPage && page == 1) {
				logger.Debug().Int("page", page).Int("added", added).
					Msg("Refresh early stop, known streak reached")
				return added
			}
		}
	}
	return added
}

// isKnown reports whether a record matches something already accumulated,
// by id or by resolved identity.
func (s *Service) isKnown(state *AccumulationState, rec source.Record) bool {
	for i := range state.Items {
		if state.Items[i].ID == rec.ID || s.resolver.IsDuplicate(state.Items[i].Name, rec.Name) {
			return true
		}
	}
	return false
}
