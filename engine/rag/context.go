package rag

import (
	"fmt"
	"strings"

	"github.com/WessleyAI/festa/engine/domain"
)

// NoCandidatesContext replaces the context block when nothing was retrieved.
const NoCandidatesContext = "현재 추천 가능한 행사가 없습니다."

// BuildContext renders one line per event for the generation prompt.
func BuildContext(events []domain.Event) string {
	if len(events) == 0 {
		return NoCandidatesContext
	}
	var b strings.Builder
	for i, ev := range events {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- id=%d, 제목: %s, 장소: %s, 기간: %s, 분류: %s",
			ev.ID, ev.Title(), ev.Place(), ev.Period(), ev.Lookup(domain.FieldCategory))
	}
	return b.String()
}
