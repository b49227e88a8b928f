package source

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrUpstreamFault marks server-fault-class upstream failures. Providers wrap
// 5xx-style errors with it so repeated metadata failures can feed the denylist.
var ErrUpstreamFault = errors.New("upstream server fault")

// FetcherConfig holds fetch policy shared by all sources.
type FetcherConfig struct {
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	MaxConcurrent int
}

// Fetcher wraps providers with timeout, bounded retry, per-source rate
// limiting and a global concurrency cap. Sources are scraped sites with
// independent rate sensitivity, so each gets its own limiter.
type Fetcher struct {
	cfg      FetcherConfig
	limiters map[string]*rate.Limiter
	sem      *semaphore.Weighted
	logger   zerolog.Logger
}

// NewFetcher creates a fetcher. rates maps source name to its limiter;
// sources without an entry are not rate limited.
func NewFetcher(cfg FetcherConfig, rates map[string]*rate.Limiter, logger zerolog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if rates == nil {
		rates = make(map[string]*rate.Limiter)
	}
	return &Fetcher{
		cfg:      cfg,
		limiters: rates,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:   logger.With().Str("component", "fetcher").Logger(),
	}
}

// Catalog fetches one catalog page with the fetch policy applied.
// Exhausted retries degrade to an empty page: aggregation proceeds with
// whatever other sources returned.
func (f *Fetcher) Catalog(ctx context.Context, p Provider, page int, genre string, sort SortHint) []Record {
	var records []Record
	err := f.run(ctx, p.Name(), func(ctx context.Context) error {
		var err error
		records, err = p.Catalog(ctx, page, genre, sort)
		return err
	})
	if err != nil {
		f.logger.Warn().Err(err).Str("source", p.Name()).Int("page", page).
			Msg("Catalog fetch failed after retries, contributing empty page")
		fetchFailures.WithLabelValues(p.Name(), "catalog").Inc()
		return nil
	}
	return records
}

// Metadata fetches an enriched record. Unlike Catalog, the error is returned
// so callers can classify persistent server faults for the denylist.
func (f *Fetcher) Metadata(ctx context.Context, p Provider, id string) (*Record, error) {
	var rec *Record
	err := f.run(ctx, p.Name(), func(ctx context.Context) error {
		var err error
		rec, err = p.Metadata(ctx, id)
		return err
	})
	if err != nil {
		fetchFailures.WithLabelValues(p.Name(), "metadata").Inc()
		return nil, err
	}
	return rec, nil
}

// Search fetches search results, degrading to empty on failure.
func (f *Fetcher) Search(ctx context.Context, p Provider, query string) []Record {
	var records []Record
	err := f.run(ctx, p.Name(), func(ctx context.Context) error {
		var err error
		records, err = p.Search(ctx, query)
		return err
	})
	if err != nil {
		f.logger.Warn().Err(err).Str("source", p.Name()).Msg("Search fetch failed after retries")
		fetchFailures.WithLabelValues(p.Name(), "search").Inc()
		return nil
	}
	return records
}

// CatalogByYear uses the provider's year browser when available, otherwise
// returns ErrNotSupported so the caller filters a generic page locally.
func (f *Fetcher) CatalogByYear(ctx context.Context, p Provider, year, page int) ([]Record, error) {
	yb, ok := p.(YearBrowser)
	if !ok {
		return nil, ErrNotSupported
	}
	var records []Record
	err := f.run(ctx, p.Name(), func(ctx context.Context) error {
		var err error
		records, err = yb.CatalogByYear(ctx, year, page)
		return err
	})
	return records, err
}

// CatalogByStudio mirrors CatalogByYear for studio browsing.
func (f *Fetcher) CatalogByStudio(ctx context.Context, p Provider, studio string, page int) ([]Record, error) {
	sb, ok := p.(StudioBrowser)
	if !ok {
		return nil, ErrNotSupported
	}
	var records []Record
	err := f.run(ctx, p.Name(), func(ctx context.Context) error {
		var err error
		records, err = sb.CatalogByStudio(ctx, studio, page)
		return err
	})
	return records, err
}

// run applies the semaphore, rate limiter, timeout and retry policy around
// one provider call.
func (f *Fetcher) run(ctx context.Context, sourceName string, fn func(ctx context.Context) error) error {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer f.sem.Release(1)

	if lim, ok := f.limiters[sourceName]; ok && lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}

	backoff := retry.WithMaxRetries(uint64(f.cfg.MaxRetries), retry.NewConstant(f.cfg.RetryDelay))
	attempt := 0

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotSupported) {
			return err
		}
		f.logger.Debug().Err(err).Str("source", sourceName).Int("attempt", attempt).
			Msg("Upstream fetch attempt failed")
		fetchRetries.WithLabelValues(sourceName).Inc()
		return retry.RetryableError(err)
	})
}
