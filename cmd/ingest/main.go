// Command ingest embeds festival events with the passage model and stores the
// vectors in the configured catalog backend.
//
//	ingest -file events.json -backend qdrant -recreate
//	ingest -missing                    # backfill Postgres rows without embeddings
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/WessleyAI/festa/engine/catalog"
	"github.com/WessleyAI/festa/engine/domain"
	"github.com/WessleyAI/festa/engine/ingest"
	"github.com/WessleyAI/festa/pkg/config"
	"github.com/WessleyAI/festa/pkg/fn"
	"github.com/WessleyAI/festa/pkg/resilience"
	"github.com/WessleyAI/festa/pkg/solar"
)

type options struct {
	file     string
	backend  string
	missing  bool
	recreate bool
}

func main() {
	var opts options
	flag.StringVar(&opts.file, "file", "", "JSON array of events to embed")
	flag.StringVar(&opts.backend, "backend", "", "catalog backend: postgres or qdrant (default from config)")
	flag.BoolVar(&opts.missing, "missing", false, "embed Postgres rows that have no embedding yet")
	flag.BoolVar(&opts.recreate, "recreate", false, "drop the Qdrant collection before writing")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := cfg.Logging.Logger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("ingest failed", "err", err)
		os.Exit(1)
	}
}

func (o options) check(defaultBackend string) (options, error) {
	if o.backend == "" {
		o.backend = defaultBackend
	}
	switch {
	case o.backend != "postgres" && o.backend != "qdrant":
		return o, fmt.Errorf("unknown backend %q", o.backend)
	case o.missing && o.backend != "postgres":
		return o, errors.New("-missing requires the postgres backend")
	case o.missing && o.file != "":
		return o, errors.New("-missing and -file are mutually exclusive")
	case !o.missing && o.file == "":
		return o, errors.New("one of -file or -missing is required")
	case o.recreate && o.backend != "qdrant":
		return o, errors.New("-recreate requires the qdrant backend")
	}
	return o, nil
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) error {
	opts, err := opts.check(cfg.Catalog.Backend)
	if err != nil {
		return err
	}

	embedder, err := solar.NewEmbedClient(solar.EmbedConfig{
		URL:          cfg.Solar.EmbeddingURL,
		APIKey:       cfg.Solar.APIKey,
		QueryModel:   cfg.Solar.QueryModel,
		PassageModel: cfg.Solar.PassageModel,
		Timeout:      cfg.Solar.EmbedTimeout,
		Retry:        fn.RetryOpts{MaxAttempts: cfg.Solar.EmbedRetries, InitialWait: cfg.Solar.EmbedBackoff, Linear: true},
		Limiter:      resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.Solar.RateLimit, Burst: cfg.Solar.RateBurst}),
		OnRetry: func(attempt int, err error) {
			logger.Warn("solar embed rate limited, retrying", "attempt", attempt, "err", err)
		},
	})
	if err != nil {
		return err
	}

	var (
		writer catalog.Writer
		events []domain.Event
	)
	switch opts.backend {
	case "postgres":
		db, err := catalog.OpenPostgres(ctx, cfg.Catalog.DatabaseURL, catalog.PoolOpts{
			MaxOpen:     cfg.Catalog.MaxOpenConns,
			MaxIdle:     cfg.Catalog.MaxIdleConns,
			MaxLifetime: cfg.Catalog.ConnLifetime,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		pg := catalog.NewPostgres(db, cfg.Catalog.Table, logger)
		writer = pg
		if opts.missing {
			if events, err = pg.ListMissing(ctx); err != nil {
				return err
			}
		}
	case "qdrant":
		q, err := catalog.NewQdrant(cfg.Catalog.QdrantAddr, cfg.Catalog.Collection)
		if err != nil {
			return err
		}
		defer q.Close()
		if opts.recreate {
			if err := q.DeleteCollection(ctx); err != nil {
				logger.Warn("drop collection", "collection", cfg.Catalog.Collection, "err", err)
			}
		}
		writer = q
	}

	if opts.file != "" {
		if events, err = readEvents(opts.file); err != nil {
			return err
		}
	}
	logger.Info("ingest starting", "backend", opts.backend, "events", len(events),
		"model", embedder.Model(solar.RoleDocument))

	rep, err := ingest.Run(ctx, ingest.Deps{
		Embedder:    embedder,
		Writer:      writer,
		Concurrency: cfg.Ingest.Concurrency,
		Logger:      logger,
	}, events)
	if err != nil {
		return err
	}
	if rep.Embedded > 0 && cfg.Cache.RedisURL != "" {
		invalidateCache(ctx, cfg.Cache, logger)
	}
	if rep.Total > 0 && rep.Embedded == 0 {
		return fmt.Errorf("no events embedded (%d skipped, %d failed)", rep.Skipped, rep.Failed)
	}
	return nil
}

func readEvents(path string) ([]domain.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	events, err := ingest.LoadEvents(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// invalidateCache drops the API's catalog snapshot so new vectors are served
// without waiting for the TTL.
func invalidateCache(ctx context.Context, cc config.CacheConfig, logger *slog.Logger) {
	ropts, err := redis.ParseURL(cc.RedisURL)
	if err != nil {
		logger.Warn("parse redis url", "err", err)
		return
	}
	rdb := redis.NewClient(ropts)
	defer rdb.Close()
	if err := catalog.NewCached(nil, rdb, cc.Key, cc.TTL, logger).Invalidate(ctx); err != nil {
		logger.Warn("catalog cache invalidation failed", "err", err)
		return
	}
	logger.Info("catalog cache invalidated", "key", cc.Key)
}
