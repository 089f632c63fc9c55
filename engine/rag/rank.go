package rag

import (
	"math"
	"sort"

	"github.com/WessleyAI/festa/engine/domain"
)

// DefaultTopK is the number of events kept for context when none is configured.
const DefaultTopK = 3

// Cosine returns the cosine similarity of a and b, or 0 when either has zero
// magnitude. Vectors of different length are compared over their common prefix.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank scores every event that carries an embedding against query and returns
// at most topK of them, best first. Equal scores keep catalog order.
func Rank(query []float32, events []domain.Event, topK int) []domain.ScoredEvent {
	if topK <= 0 {
		topK = DefaultTopK
	}
	scored := make([]domain.ScoredEvent, 0, len(events))
	for _, ev := range events {
		if !ev.HasEmbedding() {
			continue
		}
		scored = append(scored, domain.ScoredEvent{Event: ev, Score: Cosine(query, ev.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
