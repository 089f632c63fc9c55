// Package catalog provides the event catalog backends: Postgres (pgvector
// column), Qdrant, and a Redis snapshot cache in front of either.
package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/WessleyAI/festa/engine/domain"
)

// Store lists every event that has an embedding, ordered by ID.
type Store interface {
	ListEmbedded(ctx context.Context) ([]domain.Event, error)
}

// Writer persists document embeddings produced by ingestion.
type Writer interface {
	SaveEmbeddings(ctx context.Context, events []domain.Event) error
}

// MissingError is returned by a Writer when some events did not exist in the
// backend. The other events of the call were saved.
type MissingError struct {
	IDs []int64
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("catalog: %d events not found: %v", len(e.IDs), e.IDs)
}

// ParseVector parses pgvector text output such as "[0.1,0.2,0.3]".
// Empty input yields a nil vector.
func ParseVector(s string) (domain.Vector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("catalog: vector %q: missing brackets", truncate(s, 32))
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, nil
	}
	parts := strings.Split(body, ",")
	vec := make(domain.Vector, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("catalog: vector element %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

// FormatVector renders v in pgvector text form.
func FormatVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
