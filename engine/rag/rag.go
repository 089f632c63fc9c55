// Package rag orchestrates the festival recommendation pipeline: it embeds
// the user's question, ranks the embedded catalog by cosine similarity,
// renders the best matches into a prompt context and asks the generation
// model for a grounded reply, falling back to a templated listing when
// generation fails.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/WessleyAI/festa/engine/domain"
	"github.com/WessleyAI/festa/pkg/fn"
	"github.com/WessleyAI/festa/pkg/metrics"
	"github.com/WessleyAI/festa/pkg/mid"
)

var tracer = otel.Tracer("github.com/WessleyAI/festa/engine/rag")

// Embedder turns a user question into a query vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Catalog loads every event that has an embedding, in a stable order.
type Catalog interface {
	ListEmbedded(ctx context.Context) ([]domain.Event, error)
}

// Notifier receives one event per finished request.
type Notifier interface {
	Publish(ctx context.Context, ev domain.ChatEvent) error
}

// Options configures the pipeline.
type Options struct {
	TopK int
	// CatalogTimeout bounds the catalog read. Zero means no extra deadline.
	CatalogTimeout time.Duration
	Metrics        *metrics.Pipeline
	Notifier       Notifier
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:           DefaultTopK,
		CatalogTimeout: 10 * time.Second,
	}
}

// Service is the recommendation orchestrator.
type Service struct {
	embed   Embedder
	catalog Catalog
	gen     Generator
	opts    Options
	logger  *slog.Logger
}

// New creates a new recommendation Service.
func New(embed Embedder, catalog Catalog, gen Generator, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Service{
		embed:   embed,
		catalog: catalog,
		gen:     gen,
		opts:    opts,
		logger:  logger,
	}
}

// Recommend answers one chat request. It returns an error only when the query
// cannot be embedded or the catalog cannot be read; generation failures are
// answered with FallbackReply.
func (s *Service) Recommend(ctx context.Context, req domain.ChatRequest) (*domain.ChatResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "rag.Recommend")
	defer span.End()

	requestID := mid.RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	rec := &domain.ChatEvent{RequestID: requestID, UserID: req.UserID, At: start.UTC()}
	logger := s.logger.With("request_id", rec.RequestID)
	logger.Info("rag recommend start", "user_id", req.UserID, "message_len", len(req.Message))

	defer func() {
		rec.Duration = time.Since(start)
		s.opts.Metrics.Outcome(string(rec.Outcome))
		span.SetAttributes(attribute.String("rag.outcome", string(rec.Outcome)))
		s.notify(ctx, logger, *rec)
	}()

	// 1. Embed the query.
	query, err := s.embedQuery(ctx, req.Message)
	if err != nil {
		rec.Outcome = domain.OutcomeEmbedFailed
		span.SetStatus(codes.Error, "embed failed")
		logger.Error("rag: embed query failed", "err", err)
		return nil, fmt.Errorf("rag: embed query: %w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	// 2. Load and rank the catalog.
	events, err := s.loadCatalog(ctx)
	if err != nil {
		rec.Outcome = domain.OutcomeCatalogFailed
		span.SetStatus(codes.Error, "catalog failed")
		logger.Error("rag: load catalog failed", "err", err)
		return nil, fmt.Errorf("rag: load catalog: %w: %w", domain.ErrCatalogUnavailable, err)
	}
	ranked := Rank(query, events, s.opts.TopK)
	rec.Candidates = len(ranked)
	logger.Info("rag rank done", "catalog", len(events), "ranked", len(ranked))

	if len(ranked) == 0 {
		rec.Outcome = domain.OutcomeEmptyCatalog
		rec.RelatedEventIDs = []int64{}
		return &domain.ChatResult{Reply: EmptyReply, RelatedEventIDs: []int64{}}, nil
	}

	top := fn.Map(ranked, func(se domain.ScoredEvent) domain.Event { return se.Event })
	ids := fn.Unique(fn.Map(top, func(ev domain.Event) int64 { return ev.ID }))
	rec.RelatedEventIDs = ids

	// 3. Generate, or fall back to the templated listing.
	reply, err := s.generate(ctx, req.Message, BuildContext(top))
	if err != nil {
		rec.Outcome = domain.OutcomeFallback
		logger.Warn("rag: generation failed, using fallback", "err", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err))
		return &domain.ChatResult{Reply: FallbackReply(top), RelatedEventIDs: ids}, nil
	}

	rec.Outcome = domain.OutcomeSuccess
	logger.Info("rag recommend done", "related", len(ids), "duration", time.Since(start))
	return &domain.ChatResult{Reply: reply, RelatedEventIDs: ids}, nil
}

func (s *Service) embedQuery(ctx context.Context, message string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "rag.embed")
	defer span.End()

	start := time.Now()
	vec, err := s.embed.EmbedQuery(ctx, message)
	s.opts.Metrics.ObserveUpstream("embed", start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rag.embedding_dim", len(vec)))
	return vec, nil
}

func (s *Service) loadCatalog(ctx context.Context) ([]domain.Event, error) {
	ctx, span := tracer.Start(ctx, "rag.catalog")
	defer span.End()

	if s.opts.CatalogTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CatalogTimeout)
		defer cancel()
	}

	start := time.Now()
	events, err := s.catalog.ListEmbedded(ctx)
	s.opts.Metrics.ObserveUpstream("catalog", start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.opts.Metrics.Catalog(len(events))
	span.SetAttributes(attribute.Int("rag.catalog_size", len(events)))
	return events, nil
}

func (s *Service) generate(ctx context.Context, message, contextText string) (string, error) {
	ctx, span := tracer.Start(ctx, "rag.generate")
	defer span.End()

	start := time.Now()
	reply, err := s.gen.Generate(ctx, message, contextText)
	s.opts.Metrics.ObserveUpstream("generate", start, err)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return reply, nil
}

func (s *Service) notify(ctx context.Context, logger *slog.Logger, ev domain.ChatEvent) {
	if s.opts.Notifier == nil {
		return
	}
	if err := s.opts.Notifier.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warn("rag: publish chat event failed", "err", err)
	}
}
