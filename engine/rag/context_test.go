package rag

import (
	"strings"
	"testing"

	"github.com/WessleyAI/festa/engine/domain"
)

func TestBuildContext_Empty(t *testing.T) {
	if got := BuildContext(nil); got != NoCandidatesContext {
		t.Fatalf("expected sentinel, got %q", got)
	}
}

func TestBuildContext_Line(t *testing.T) {
	events := []domain.Event{{
		ID: 7,
		Attrs: map[string]string{
			"title":      "서울 빛초롱 축제",
			"place_name": "청계천",
			"start_date": "2024-12-13",
			"event_end":  "2025-01-05",
			"codename":   "축제-문화/예술",
		},
	}}
	want := "- id=7, 제목: 서울 빛초롱 축제, 장소: 청계천, 기간: 2024-12-13 ~ 2025-01-05, 분류: 축제-문화/예술"
	if got := BuildContext(events); got != want {
		t.Fatalf("got  %q\nwant %q", got, want)
	}
}

func TestBuildContext_AliasTitle(t *testing.T) {
	events := []domain.Event{{ID: 1, Attrs: map[string]string{"event_title": "Lantern Fest"}}}
	if got := BuildContext(events); !strings.Contains(got, "제목: Lantern Fest") {
		t.Fatalf("alias title not resolved: %q", got)
	}
}

func TestBuildContext_MissingFieldsRenderEmpty(t *testing.T) {
	got := BuildContext([]domain.Event{{ID: 3}})
	want := "- id=3, 제목: , 장소: , 기간:  ~ , 분류: "
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBuildContext_Idempotent(t *testing.T) {
	events := []domain.Event{
		{ID: 1, Attrs: map[string]string{"title": "A", "place": "P", "category": "c"}},
		{ID: 2, Attrs: map[string]string{"event_title": "B", "pro_start": "2024-01-01"}},
	}
	first, second := BuildContext(events), BuildContext(events)
	if first != second {
		t.Fatalf("not idempotent:\n%q\n%q", first, second)
	}
	if strings.Count(first, "\n") != 1 {
		t.Errorf("expected two lines, got %q", first)
	}
}
