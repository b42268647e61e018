package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yourname/babylog/internal"
)

// MemoryStore is the non-durable backend used for tests and for running
// without Postgres. It is single-process, so InTx serializes transactions
// on a mutex and rolls back by restoring a snapshot; forUpdate is honored
// in signature only, the transaction mutex already provides exclusion.
type MemoryStore struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	events map[int64]*internal.Event
	nextID int64
	logger internal.Logger
}

func NewMemoryStore(logger internal.Logger) *MemoryStore {
	return &MemoryStore{
		events: make(map[int64]*internal.Event),
		nextID: 1,
		logger: logger,
	}
}

func (s *MemoryStore) Create(ctx context.Context, ev *internal.Event) (*internal.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := ev.Clone()
	stored.ID = s.nextID
	s.nextID++
	s.events[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id int64, upd EventUpdate) (*internal.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, internal.NewNotFoundError(fmt.Sprintf("event %d", id))
	}
	if upd.Amount != nil {
		v := *upd.Amount
		ev.Amount = &v
	}
	if upd.Subtype != nil {
		v := *upd.Subtype
		ev.Subtype = &v
	}
	if upd.Timestamp != nil {
		ev.Timestamp = *upd.Timestamp
	}
	if ev.Sleep != nil {
		if upd.SleepStart != nil {
			ev.Sleep.Start = *upd.SleepStart
		}
		if upd.ClearSleepEnd {
			ev.Sleep.End = nil
		} else if upd.SleepEnd != nil {
			end := *upd.SleepEnd
			ev.Sleep.End = &end
		}
	}
	return ev.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return internal.NewNotFoundError(fmt.Sprintf("event %d", id))
	}
	delete(s.events, id)
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id int64) (*internal.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, internal.NewNotFoundError(fmt.Sprintf("event %d", id))
	}
	return ev.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, f EventFilter) ([]internal.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.Event{}
	for _, ev := range s.events {
		if f.From != nil && ev.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && !ev.Timestamp.Before(*f.To) {
			continue
		}
		if f.User != "" && ev.UserName != f.User {
			continue
		}
		if len(f.Types) > 0 && !containsType(f.Types, ev.Type) {
			continue
		}
		out = append(out, *ev.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) LastOpenSleep(ctx context.Context, user string, forUpdate bool) (*internal.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var open *internal.Event
	for _, ev := range s.events {
		if ev.Type != internal.EventSleep || ev.UserName != user || ev.Sleep == nil || !ev.Sleep.Open() {
			continue
		}
		if open == nil || ev.Sleep.Start.After(open.Sleep.Start) {
			open = ev
		}
	}
	if open == nil {
		return nil, nil
	}
	return open.Clone(), nil
}

func (s *MemoryStore) OverlappingSleep(ctx context.Context, start, end time.Time, excludeID int64) ([]internal.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.Event{}
	for _, ev := range s.events {
		if ev.Type != internal.EventSleep || ev.Sleep == nil || ev.ID == excludeID {
			continue
		}
		if !ev.Sleep.Start.Before(end) {
			continue
		}
		if ev.Sleep.End != nil && !ev.Sleep.End.After(start) {
			continue
		}
		out = append(out, *ev.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sleep.Start.Before(out[j].Sleep.Start) })
	return out, nil
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(EventStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot, snapID := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snapshot, snapID)
		return err
	}
	return nil
}

func (s *MemoryStore) snapshot() (map[int64]*internal.Event, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[int64]*internal.Event, len(s.events))
	for id, ev := range s.events {
		snap[id] = ev.Clone()
	}
	return snap, s.nextID
}

func (s *MemoryStore) restore(snap map[int64]*internal.Event, nextID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = snap
	s.nextID = nextID
}

func containsType(types []internal.EventType, t internal.EventType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

var _ EventStore = (*MemoryStore)(nil)
