package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/mediafuse/mediafuse/internal/bundle"
	"github.com/mediafuse/mediafuse/internal/cache"
	"github.com/mediafuse/mediafuse/internal/catalog"
	"github.com/mediafuse/mediafuse/internal/config"
	"github.com/mediafuse/mediafuse/internal/denylist"
	"github.com/mediafuse/mediafuse/internal/describe"
	"github.com/mediafuse/mediafuse/internal/identity"
	"github.com/mediafuse/mediafuse/internal/logger"
	"github.com/mediafuse/mediafuse/internal/record"
	"github.com/mediafuse/mediafuse/internal/registry"
	"github.com/mediafuse/mediafuse/internal/scheduler"
	"github.com/mediafuse/mediafuse/internal/source"
	"github.com/mediafuse/mediafuse/internal/source/mock"
	"github.com/mediafuse/mediafuse/internal/store"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics listen address, empty disables")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().Str("logLevel", cfg.Logging.Level).Msg("starting mediafuse")

	defs, err := config.LoadDefinitions(cfg.Sources.DefinitionsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load source definitions")
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	reg, err := registry.New(db, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load slug registry")
	}
	defer reg.Close()

	deny, err := denylist.New(db, denylist.DefaultTTL, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load denylist")
	}
	defer deny.Close()

	c, err := cache.New(cache.Config{
		Dir:            cfg.Cache.Dir,
		DefaultTTL:     cfg.Cache.DefaultTTL,
		DiskMultiplier: cfg.Cache.DiskMultiplier,
		MaxMemoryItems: cfg.Cache.MaxMemoryItems,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create cache")
	}
	defer c.Close()

	limiters := make(map[string]*rate.Limiter)
	for _, def := range defs.Sources {
		if def.RatePerSecond > 0 {
			burst := def.Burst
			if burst <= 0 {
				burst = 1
			}
			limiters[def.Name] = rate.NewLimiter(rate.Limit(def.RatePerSecond), burst)
		}
	}

	fetcher := source.NewFetcher(source.FetcherConfig{
		Timeout:       cfg.Sources.FetchTimeout,
		MaxRetries:    cfg.Sources.MaxRetries,
		RetryDelay:    cfg.Sources.RetryDelay,
		MaxConcurrent: cfg.Sources.MaxConcurrent,
	}, limiters, log.Logger)

	svc := catalog.New(catalog.Options{
		Providers:          buildProviders(defs, log),
		Definitions:        defs,
		Fetcher:            fetcher,
		Cache:              c,
		Resolver:           identity.NewResolver(cfg.Aggregation.SimilarityThreshold),
		Merger: record.NewMerger(
			defs.PriorityOrder(),
			defs.PrimaryTier(),
			describe.NewFilter(cfg.Aggregation.MaxDescriptionLen, defs.BoilerplatePatterns),
			cfg.Aggregation.MinDirectVotes,
		),
		Denylist:           deny,
		Registry:           reg,
		Views:              buildViews(defs),
		WindowedMultiplier: cfg.Aggregation.WindowedMultiplier,
		StateTTL:           cfg.Cache.DefaultTTL,
		KnownStreak:        cfg.Refresh.KnownStreak,
	}, log.Logger)

	if cfg.Bundle.Path != "" {
		doc, err := bundle.Load(cfg.Bundle.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Bundle.Path).Msg("failed to load bundle")
		}
		if err := bundle.Seed(doc, svc, c, log.Logger); err != nil {
			log.Fatal().Err(err).Msg("failed to seed bundle")
		}
	}

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	registerTasks(sched, cfg, defs, svc, reg, deny, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics listener failed")
			}
		}()
		log.Info().Str("addr", *metricsAddr).Msg("metrics listener started")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")
}

// buildProviders instantiates one provider per defined source. Native site
// clients are registered here as they are written; sources without one fall
// back to the in-memory mock so the rest of the pipeline stays exercisable.
func buildProviders(defs *config.Definitions, log *logger.Logger) []source.Provider {
	native := map[string]func(config.SourceDefinition) source.Provider{}

	providers := make([]source.Provider, 0, len(defs.Sources))
	for _, def := range defs.Sources {
		if build, ok := native[def.Name]; ok {
			providers = append(providers, build(def))
			continue
		}
		log.Warn().Str("source", def.Name).Msg("no native client for source, using mock provider")
		providers = append(providers, mock.New(def.Name))
	}
	return providers
}

func buildViews(defs *config.Definitions) []catalog.View {
	views := make([]catalog.View, 0, len(defs.Views))
	for _, v := range defs.Views {
		views = append(views, catalog.View{
			ID:         v.ID,
			Genre:      v.Genre,
			TimeWindow: time.Duration(v.TimeWindow),
			Sort:       catalog.SortStrategy(v.Sort),
		})
	}
	return views
}

// registerTasks wires the recurring maintenance jobs: one incremental refresh
// per configured view, plus periodic flushes of the write-buffered services so
// a crash loses at most one interval of registrations.
func registerTasks(sched *scheduler.Scheduler, cfg *config.Config, defs *config.Definitions, svc *catalog.Service, reg *registry.Registry, deny *denylist.Denylist, log *logger.Logger) {
	for _, v := range defs.Views {
		viewID := v.ID
		err := sched.RegisterTask(scheduler.TaskConfig{
			ID:       "refresh-" + viewID,
			Name:     "Incremental refresh: " + viewID,
			Interval: cfg.Refresh.Interval,
			Func: func(ctx context.Context) error {
				return svc.RefreshRecent(ctx, viewID)
			},
		})
		if err != nil {
			log.Error().Err(err).Str("view", viewID).Msg("failed to register refresh task")
		}
	}

	err := sched.RegisterTask(scheduler.TaskConfig{
		ID:       "flush-state",
		Name:     "Flush slug registry and denylist",
		Interval: 10 * time.Minute,
		Func: func(ctx context.Context) error {
			if err := reg.Flush(); err != nil {
				return err
			}
			return deny.Flush()
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to register flush task")
	}
}
