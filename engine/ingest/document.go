package ingest

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/WessleyAI/festa/engine/domain"
)

var labels = []struct {
	field domain.Field
	label string
}{
	{domain.FieldTitle, "제목"},
	{domain.FieldPlace, "장소"},
	{domain.FieldCategory, "분류"},
}

// DocumentText renders the passage embedded for ev: the aliased fields first,
// then every other attribute sorted by column name. It returns "" when the
// event has no title.
func DocumentText(ev domain.Event) string {
	if ev.Title() == "" {
		return ""
	}
	var lines []string
	for _, l := range labels {
		if v := ev.Lookup(l.field); v != "" {
			lines = append(lines, l.label+": "+v)
		}
	}
	if ev.Lookup(domain.FieldStart) != "" || ev.Lookup(domain.FieldEnd) != "" {
		lines = append(lines, "기간: "+ev.Period())
	}

	extra := make([]string, 0, len(ev.Attrs))
	for k, v := range ev.Attrs {
		if domain.KnownColumn(k) || strings.TrimSpace(v) == "" {
			continue
		}
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		lines = append(lines, k+": "+strings.TrimSpace(ev.Attrs[k]))
	}
	return strings.Join(lines, "\n")
}

// LoadEvents reads a JSON array of flat event objects. Each object needs an
// integer "id"; other scalar values become attributes.
func LoadEvents(r io.Reader) ([]domain.Event, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("ingest: decode events: %w", err)
	}

	events := make([]domain.Event, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for i, obj := range raw {
		num, ok := obj["id"].(json.Number)
		if !ok {
			return nil, fmt.Errorf("ingest: event %d: missing numeric id", i)
		}
		id, err := num.Int64()
		if err != nil {
			return nil, fmt.Errorf("ingest: event %d: id %s: %w", i, num, err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("ingest: event %d: duplicate id %d", i, id)
		}
		seen[id] = struct{}{}

		ev := domain.Event{ID: id, Attrs: make(map[string]string, len(obj))}
		for k, v := range obj {
			if k == "id" || k == "embedding" {
				continue
			}
			switch tv := v.(type) {
			case string:
				if s := strings.TrimSpace(tv); s != "" {
					ev.Attrs[k] = s
				}
			case json.Number:
				ev.Attrs[k] = tv.String()
			case bool:
				ev.Attrs[k] = fmt.Sprint(tv)
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
