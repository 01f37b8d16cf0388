package memory

import (
	"context"
	"sync"

	"rideescrow/internal/domain/entities"
	"rideescrow/internal/repository"
)

// EventStore keeps the event log in a slice. Seq starts at 1.
type EventStore struct {
	mu     sync.RWMutex
	events []entities.Event
}

func NewEventStore() *EventStore {
	return &EventStore{}
}

func (s *EventStore) Append(ctx context.Context, events []entities.Event) ([]entities.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]entities.Event, len(events))
	for i, ev := range events {
		ev.Seq = uint64(len(s.events)) + 1
		s.events = append(s.events, ev)
		stored[i] = ev
	}
	return stored, nil
}

func (s *EventStore) List(ctx context.Context, filter repository.EventFilter) ([]entities.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entities.Event
	// Seq is the slice position + 1, so the scan can start past AfterSeq.
	start := filter.AfterSeq
	if start > uint64(len(s.events)) {
		start = uint64(len(s.events))
	}
	for _, ev := range s.events[start:] {
		if !matches(ev, filter) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func matches(ev entities.Event, f repository.EventFilter) bool {
	if f.Epoch != "" && ev.Epoch != f.Epoch {
		return false
	}
	if f.Contract != nil && ev.Contract != *f.Contract {
		return false
	}
	if f.Name != "" && ev.Name != f.Name {
		return false
	}
	if f.TxID != "" && ev.TxID != f.TxID {
		return false
	}
	return true
}

var _ repository.EventStore = (*EventStore)(nil)
