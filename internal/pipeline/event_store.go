package pipeline

import (
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// EventStore holds the earnings events awaiting their verification window,
// keyed by ticker. All methods are safe for concurrent use.
type EventStore struct {
	mu     sync.Mutex
	events map[string]domain.TrackedEvent
}

// NewEventStore creates an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string]domain.TrackedEvent)}
}

// Upsert inserts ev when its ID is not tracked yet. An existing entry is
// never overwritten, so the first-seen release time wins. It reports
// whether ev was inserted.
func (s *EventStore) Upsert(ev domain.TrackedEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; ok {
		return false
	}
	s.events[ev.ID] = ev
	return true
}

// Has reports whether id is tracked.
func (s *EventStore) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.events[id]
	return ok
}

// Remove drops id and reports whether it was present.
func (s *EventStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return false
	}
	delete(s.events, id)
	return true
}

// Take removes id and returns the event it held. Only one caller can take a
// given event, which is what keeps a trigger from firing twice.
func (s *EventStore) Take(id string) (domain.TrackedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if ok {
		delete(s.events, id)
	}
	return ev, ok
}

// Snapshot returns a sequence over a copy of the tracked events, ordered by
// release time. Mutating the store while ranging over it is safe and does
// not affect the sequence. The sequence may be ranged over more than once.
func (s *EventStore) Snapshot() iter.Seq[domain.TrackedEvent] {
	s.mu.Lock()
	list := make([]domain.TrackedEvent, 0, len(s.events))
	for _, ev := range s.events {
		list = append(list, ev)
	}
	s.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].ReleaseAt.Equal(list[j].ReleaseAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].ReleaseAt.Before(list[j].ReleaseAt)
	})

	return func(yield func(domain.TrackedEvent) bool) {
		for _, ev := range list {
			if !yield(ev) {
				return
			}
		}
	}
}

// Len returns the number of tracked events.
func (s *EventStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Prune removes every event whose window closed before now and returns the
// removed events.
func (s *EventStore) Prune(now time.Time, window time.Duration) []domain.TrackedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []domain.TrackedEvent
	for id, ev := range s.events {
		if ev.Stale(now, window) {
			stale = append(stale, ev)
			delete(s.events, id)
		}
	}
	return stale
}
