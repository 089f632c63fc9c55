// Package domain defines the core types shared by the festival recommendation
// pipeline: catalog events, chat requests and results, and the validation gate
// at the API entry point.
package domain

import "time"

// Vector is an embedding. A nil or empty vector means "no embedding".
type Vector []float32

// Event is one festival or cultural event from the catalog. Attributes are kept
// under the column names the ingestion source used; read them through Lookup.
type Event struct {
	ID        int64             `json:"id"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	Embedding Vector            `json:"embedding,omitempty"`
}

// HasEmbedding reports whether the event can take part in ranking.
func (e Event) HasEmbedding() bool { return len(e.Embedding) > 0 }

// ScoredEvent pairs an event with its similarity to a query.
type ScoredEvent struct {
	Event Event
	Score float64
}

// ChatRequest is the inbound chat call.
type ChatRequest struct {
	UserID  string `json:"user_id" validate:"required,max=128"`
	Message string `json:"message" validate:"required"`
}

// ChatResult is what the pipeline returns for one chat request.
type ChatResult struct {
	Reply           string  `json:"reply"`
	RelatedEventIDs []int64 `json:"related_event_ids"`
}

// Outcome is the terminal state a chat request ended in.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeEmptyCatalog  Outcome = "empty_catalog"
	OutcomeFallback      Outcome = "degraded_fallback"
	OutcomeEmbedFailed   Outcome = "embed_failed"
	OutcomeCatalogFailed Outcome = "catalog_failed"
)

// ChatEvent is the analytics record published after every chat request.
type ChatEvent struct {
	RequestID       string        `json:"request_id"`
	UserID          string        `json:"user_id"`
	Outcome         Outcome       `json:"outcome"`
	RelatedEventIDs []int64       `json:"related_event_ids"`
	Candidates      int           `json:"candidates"`
	Duration        time.Duration `json:"duration_ns"`
	At              time.Time     `json:"at"`
}
