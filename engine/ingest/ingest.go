// Package ingest embeds catalog events with the document-side model and
// writes the vectors to a catalog backend.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/festa/engine/catalog"
	"github.com/WessleyAI/festa/engine/domain"
	"github.com/WessleyAI/festa/pkg/fn"
)

// DefaultBatchSize is the number of events written per SaveEmbeddings call.
const DefaultBatchSize = 64

// ErrNoText marks events skipped because they have nothing to embed.
var ErrNoText = errors.New("ingest: event has no title")

// DocumentEmbedder embeds catalog passages.
type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// CollectionPreparer is implemented by writers that must be sized before the
// first write, such as the Qdrant catalog.
type CollectionPreparer interface {
	EnsureCollection(ctx context.Context, dims int) error
}

// Deps holds the external dependencies of an ingestion run.
type Deps struct {
	Embedder    DocumentEmbedder
	Writer      catalog.Writer
	Concurrency int
	BatchSize   int
	Logger      *slog.Logger
}

// Report summarises one run.
type Report struct {
	Total    int
	Embedded int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// Run embeds every event and saves the vectors. Events that fail to embed
// are logged and counted; a write failure aborts the run.
func Run(ctx context.Context, deps Deps, events []domain.Event) (Report, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	start := time.Now()
	rep := Report{Total: len(events)}

	results := fn.ParMapResult(events, deps.Concurrency, func(ev domain.Event) fn.Result[domain.Event] {
		return embedOne(ctx, deps.Embedder, ev)
	})

	embedded := make([]domain.Event, 0, len(events))
	for i, r := range results {
		ev, err := r.Unwrap()
		switch {
		case err == nil:
			embedded = append(embedded, ev)
		case errors.Is(err, ErrNoText):
			rep.Skipped++
			log.Warn("ingest: skipping event without title", "id", events[i].ID)
		default:
			rep.Failed++
			log.Error("ingest: embed failed", "id", events[i].ID, "err", err)
		}
	}
	if err := ctx.Err(); err != nil {
		rep.Duration = time.Since(start)
		return rep, err
	}

	if p, ok := deps.Writer.(CollectionPreparer); ok && len(embedded) > 0 {
		if err := p.EnsureCollection(ctx, len(embedded[0].Embedding)); err != nil {
			rep.Duration = time.Since(start)
			return rep, fmt.Errorf("ingest: prepare collection: %w", err)
		}
	}

	for i := 0; i < len(embedded); i += batch {
		end := min(i+batch, len(embedded))
		saved := end - i
		if err := deps.Writer.SaveEmbeddings(ctx, embedded[i:end]); err != nil {
			var missing *catalog.MissingError
			if !errors.As(err, &missing) {
				rep.Duration = time.Since(start)
				return rep, fmt.Errorf("ingest: save batch at %d: %w", i, err)
			}
			saved -= len(missing.IDs)
			rep.Failed += len(missing.IDs)
			log.Warn("ingest: events not in catalog", "ids", missing.IDs)
		}
		rep.Embedded += saved
		log.Info("ingest: batch saved", "from", i, "to", end, "saved", saved)
	}

	rep.Duration = time.Since(start)
	log.Info("ingest: done", "total", rep.Total, "embedded", rep.Embedded,
		"skipped", rep.Skipped, "failed", rep.Failed, "duration", rep.Duration)
	return rep, nil
}

func embedOne(ctx context.Context, e DocumentEmbedder, ev domain.Event) fn.Result[domain.Event] {
	text := DocumentText(ev)
	if text == "" {
		return fn.Err[domain.Event](ErrNoText)
	}
	vec, err := e.EmbedDocument(ctx, text)
	if err != nil {
		return fn.Err[domain.Event](fmt.Errorf("event %d: %w", ev.ID, err))
	}
	ev.Embedding = vec
	return fn.Ok(ev)
}
