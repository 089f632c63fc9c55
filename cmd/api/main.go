// Package main implements the festival recommendation chat API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/WessleyAI/festa/engine/analytics"
	"github.com/WessleyAI/festa/engine/catalog"
	"github.com/WessleyAI/festa/engine/rag"
	"github.com/WessleyAI/festa/pkg/config"
	"github.com/WessleyAI/festa/pkg/fn"
	"github.com/WessleyAI/festa/pkg/metrics"
	"github.com/WessleyAI/festa/pkg/mid"
	"github.com/WessleyAI/festa/pkg/natsutil"
	"github.com/WessleyAI/festa/pkg/resilience"
	"github.com/WessleyAI/festa/pkg/solar"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := cfg.Logging.Logger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	pm := reg.Pipeline

	// --- Catalog ---
	store, closeStore, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Solar clients ---
	embedder, chat, err := newSolarClients(cfg.Solar, pm, logger)
	if err != nil {
		return err
	}

	// --- Analytics (optional) ---
	opts := rag.DefaultOptions()
	opts.TopK = cfg.RAG.TopK
	opts.CatalogTimeout = cfg.RAG.CatalogTimeout
	opts.Metrics = pm
	if cfg.NATS.URL != "" {
		nc, err := natsutil.Connect(cfg.NATS.URL, "festa-api", logger)
		if err != nil {
			logger.Warn("analytics disabled", "err", err)
		} else {
			defer drain(nc, logger)
			opts.Notifier = analytics.NewPublisher(nc, cfg.NATS.Subject)
		}
	}

	svc := rag.New(embedder, store, rag.NewGenerator(chat), opts, logger)

	// --- HTTP server ---
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newHandler(svc, reg.Handler(), cfg.Server, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  2 * cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", cfg.Server.Addr, "catalog", cfg.Catalog.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func newHandler(svc recommender, metricsHandler http.Handler, sc config.ServerConfig, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/chat", handleChat(svc, sc.HandlerTimeout(), logger))
	mux.Handle("GET /metrics", metricsHandler)

	return mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(sc.CORSOrigin),
		mid.OTel("festa-api"),
	)
}

// openCatalog builds the configured catalog backend, wrapped in the Redis
// snapshot cache when one is configured.
func openCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (catalog.Store, func(), error) {
	var (
		store   catalog.Store
		closers []func() error
	)

	switch cfg.Catalog.Backend {
	case "postgres":
		db, err := catalog.OpenPostgres(ctx, cfg.Catalog.DatabaseURL, catalog.PoolOpts{
			MaxOpen:     cfg.Catalog.MaxOpenConns,
			MaxIdle:     cfg.Catalog.MaxIdleConns,
			MaxLifetime: cfg.Catalog.ConnLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, db.Close)
		store = catalog.NewPostgres(db, cfg.Catalog.Table, logger)
	case "qdrant":
		q, err := catalog.NewQdrant(cfg.Catalog.QdrantAddr, cfg.Catalog.Collection)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, q.Close)
		store = q
	default:
		return nil, nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}

	if cfg.Cache.RedisURL != "" {
		ropts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			closeAll(closers, logger)
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(ropts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, cache reads will fall through", "err", err)
		}
		closers = append(closers, rdb.Close)
		store = catalog.NewCached(store, rdb, cfg.Cache.Key, cfg.Cache.TTL, logger)
	}

	return store, func() { closeAll(closers, logger) }, nil
}

func closeAll(closers []func() error, logger *slog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("close", "err", err)
		}
	}
}

func newSolarClients(sc config.SolarConfig, pm *metrics.Pipeline, logger *slog.Logger) (*solar.EmbedClient, *solar.ChatClient, error) {
	limiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: sc.RateLimit, Burst: sc.RateBurst})

	embedder, err := solar.NewEmbedClient(solar.EmbedConfig{
		URL:          sc.EmbeddingURL,
		APIKey:       sc.APIKey,
		QueryModel:   sc.QueryModel,
		PassageModel: sc.PassageModel,
		Timeout:      sc.EmbedTimeout,
		Retry:        fn.RetryOpts{MaxAttempts: sc.EmbedRetries, InitialWait: sc.EmbedBackoff, Linear: true},
		Limiter:      limiter,
		OnRetry: func(attempt int, err error) {
			pm.EmbedRetry()
			logger.Warn("solar embed rate limited, retrying", "attempt", attempt, "err", err)
		},
	})
	if err != nil {
		return nil, nil, err
	}

	chat, err := solar.NewChatClient(solar.ChatConfig{
		BaseURL:     sc.BaseURL,
		APIKey:      sc.APIKey,
		Model:       sc.ChatModel,
		Temperature: sc.Temperature,
		Timeout:     sc.ChatTimeout,
		Breaker: resilience.BreakerOpts{
			FailThreshold: sc.BreakerFailures,
			Timeout:       sc.BreakerTimeout,
			OnStateChange: func(_, _, to string) { pm.BreakerState(to) },
		},
		Limiter: limiter,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return embedder, chat, nil
}

func drain(nc *nats.Conn, logger *slog.Logger) {
	if err := nc.Drain(); err != nil {
		logger.Warn("nats drain", "err", err)
	}
}
