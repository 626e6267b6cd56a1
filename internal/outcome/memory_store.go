package outcome

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Alias1177/RateWatcher/models"
)

// MemoryStore is an in-process EventStore.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]models.BreakoutEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[int64]models.BreakoutEvent)}
}

func (s *MemoryStore) InsertBreakout(_ context.Context, ev *models.BreakoutEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	ev.ID = s.nextID
	ev.Resolved = false
	ev.ResolvedAt = nil
	s.events[ev.ID] = *ev
	return nil
}

func (s *MemoryStore) PendingBreakouts(_ context.Context, since time.Time) ([]models.BreakoutEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.BreakoutEvent
	for _, ev := range s.events {
		if !ev.Resolved && !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) MarkBreakoutResolved(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return fmt.Errorf("breakout %d not found", id)
	}
	ev.Resolved = true
	ev.ResolvedAt = &at
	s.events[id] = ev
	return nil
}

// Events returns every stored event ordered by id.
func (s *MemoryStore) Events() []models.BreakoutEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.BreakoutEvent, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
