package domain

import "strings"

// Field is a logical event attribute. Ingestion sources store each field under
// one of several column names.
type Field int

const (
	FieldTitle Field = iota
	FieldPlace
	FieldStart
	FieldEnd
	FieldCategory
)

// fieldAliases lists the column names of each field in lookup priority order.
var fieldAliases = map[Field][]string{
	FieldTitle:    {"title", "event_title"},
	FieldPlace:    {"place", "place_name"},
	FieldStart:    {"start_date", "event_start", "pro_start"},
	FieldEnd:      {"end_date", "event_end", "pro_end"},
	FieldCategory: {"codename", "category"},
}

func (f Field) String() string {
	switch f {
	case FieldTitle:
		return "title"
	case FieldPlace:
		return "place"
	case FieldStart:
		return "start"
	case FieldEnd:
		return "end"
	case FieldCategory:
		return "category"
	default:
		return "unknown"
	}
}

// Aliases returns the column names for f, highest priority first.
func (f Field) Aliases() []string {
	out := make([]string, len(fieldAliases[f]))
	copy(out, fieldAliases[f])
	return out
}

// Lookup returns the first non-blank value stored under one of f's aliases,
// or "" when none is populated.
func (e Event) Lookup(f Field) string {
	for _, name := range fieldAliases[f] {
		if v := strings.TrimSpace(e.Attrs[name]); v != "" {
			return v
		}
	}
	return ""
}

// Title is shorthand for Lookup(FieldTitle).
func (e Event) Title() string { return e.Lookup(FieldTitle) }

// Place is shorthand for Lookup(FieldPlace).
func (e Event) Place() string { return e.Lookup(FieldPlace) }

// Period renders the event's date range as "start ~ end".
func (e Event) Period() string {
	return e.Lookup(FieldStart) + " ~ " + e.Lookup(FieldEnd)
}

// KnownColumn reports whether name is an alias of any field.
func KnownColumn(name string) bool {
	for _, names := range fieldAliases {
		for _, n := range names {
			if n == name {
				return true
			}
		}
	}
	return false
}
