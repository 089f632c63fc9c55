package analytics

import (
	"sort"
	"sync"
	"time"

	"github.com/WessleyAI/festa/engine/domain"
)

// EventCount is how often an event was recommended in a window.
type EventCount struct {
	EventID int64 `json:"event_id"`
	Count   int64 `json:"count"`
}

// Snapshot summarises the chat events seen in one window.
type Snapshot struct {
	Since       time.Time                `json:"since"`
	Until       time.Time                `json:"until"`
	Requests    int64                    `json:"requests"`
	Users       int                      `json:"users"`
	ByOutcome   map[domain.Outcome]int64 `json:"by_outcome"`
	TopEvents   []EventCount             `json:"top_events"`
	AvgDuration time.Duration            `json:"avg_duration_ns"`
}

// Tally aggregates chat events. It is safe for concurrent use.
type Tally struct {
	mu       sync.Mutex
	topN     int
	since    time.Time
	requests int64
	total    time.Duration
	users    map[string]struct{}
	outcomes map[domain.Outcome]int64
	events   map[int64]int64
}

// NewTally starts a window at since, keeping the topN most recommended events.
func NewTally(since time.Time, topN int) *Tally {
	if topN <= 0 {
		topN = 10
	}
	t := &Tally{topN: topN}
	t.reset(since)
	return t
}

func (t *Tally) reset(since time.Time) {
	t.since = since
	t.requests = 0
	t.total = 0
	t.users = make(map[string]struct{})
	t.outcomes = make(map[domain.Outcome]int64)
	t.events = make(map[int64]int64)
}

// Add records one chat event.
func (t *Tally) Add(ev domain.ChatEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests++
	t.total += ev.Duration
	t.users[ev.UserID] = struct{}{}
	t.outcomes[ev.Outcome]++
	for _, id := range ev.RelatedEventIDs {
		t.events[id]++
	}
}

// Rotate returns the snapshot of the current window and starts a new one at until.
func (t *Tally) Rotate(until time.Time) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Since:     t.since,
		Until:     until,
		Requests:  t.requests,
		Users:     len(t.users),
		ByOutcome: t.outcomes,
		TopEvents: make([]EventCount, 0, len(t.events)),
	}
	if t.requests > 0 {
		s.AvgDuration = t.total / time.Duration(t.requests)
	}
	for id, n := range t.events {
		s.TopEvents = append(s.TopEvents, EventCount{EventID: id, Count: n})
	}
	sort.Slice(s.TopEvents, func(i, j int) bool {
		if s.TopEvents[i].Count != s.TopEvents[j].Count {
			return s.TopEvents[i].Count > s.TopEvents[j].Count
		}
		return s.TopEvents[i].EventID < s.TopEvents[j].EventID
	})
	if len(s.TopEvents) > t.topN {
		s.TopEvents = s.TopEvents[:t.topN]
	}

	t.reset(until)
	return s
}
