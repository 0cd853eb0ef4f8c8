package store

import (
	"sort"
	"sync"
	"time"

	"github.com/Unidata/tds-sub001/pkg/models"
)

// Store is the in-memory status store for the daemon.
// It is thread-safe and supports pub/sub for real-time updates.
type Store struct {
	mu          sync.RWMutex
	startedAt   time.Time
	collections map[string]*CollectionStatus
	active      map[string]int
	subscribers map[chan Update]struct{}
	now         func() time.Time
}

// New creates a new Store instance.
func New() *Store {
	return &Store{
		startedAt:   time.Now(),
		collections: make(map[string]*CollectionStatus),
		active:      make(map[string]int),
		subscribers: make(map[chan Update]struct{}),
		now:         time.Now,
	}
}

// Register adds the configured collections so they show up before their
// first event.
func (s *Store) Register(collections ...models.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range collections {
		st := s.status(c.Name)
		st.Trigger = c.Trigger
		st.UpdateType = c.UpdateType
	}
}

// status returns the entry for name, creating it. Caller holds the write lock.
func (s *Store) status(name string) *CollectionStatus {
	st, ok := s.collections[name]
	if !ok {
		st = &CollectionStatus{Name: name}
		s.collections[name] = st
	}
	return st
}

// RecordEvent counts an inbound event as accepted or dropped.
func (s *Store) RecordEvent(ev models.UpdateEvent, accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status(ev.Collection)
	if accepted {
		st.Accepted++
	} else {
		st.Dropped++
	}
	st.LastEvent = ev.ReceivedAt

	s.broadcast(Update{
		Type:       UpdateEvent,
		Collection: ev.Collection,
		Source:     ev.Source,
		Time:       s.now(),
		Accepted:   accepted,
	})
}

// RunStarted implements executor.Recorder.
func (s *Store) RunStarted(collection string, _ models.UpdateType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status(collection)
	s.active[collection]++
	st.Running = true

	s.broadcast(Update{Type: UpdateRunStarted, Collection: collection, Time: s.now()})
}

// RunFinished implements executor.Recorder.
func (s *Store) RunFinished(result models.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status(result.Collection)
	// The next run may start while this one is still sending triggers.
	if s.active[result.Collection] > 0 {
		s.active[result.Collection]--
	}
	st.Running = s.active[result.Collection] > 0
	st.Runs++
	if result.Failed() {
		st.Failures++
	}
	run := result
	st.LastRun = &run

	s.broadcast(Update{Type: UpdateRunFinished, Collection: result.Collection, Time: s.now(), Run: &run})
}

// Get returns a copy of the current state with collections sorted by name.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := State{
		StartedAt:   s.startedAt,
		Collections: make([]CollectionStatus, 0, len(s.collections)),
	}
	for _, st := range s.collections {
		c := *st
		if st.LastRun != nil {
			run := *st.LastRun
			c.LastRun = &run
		}
		state.Collections = append(state.Collections, c)
	}
	sort.Slice(state.Collections, func(i, j int) bool {
		return state.Collections[i].Name < state.Collections[j].Name
	})
	return state
}

// Collection returns a copy of one collection's status.
func (s *Store) Collection(name string) (CollectionStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.collections[name]
	if !ok {
		return CollectionStatus{}, false
	}
	return *st, true
}

// BroadcastConfigReload notifies subscribers that a config file changed.
func (s *Store) BroadcastConfigReload(file string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.broadcast(Update{Type: UpdateConfigReload, Source: file, Time: s.now()})
}

// broadcast fans u out to subscribers. Caller holds the lock.
func (s *Store) broadcast(u Update) {
	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			// Non-blocking send to prevent slow clients from stalling the daemon
		}
	}
}

// Subscribe creates a new subscription channel for state updates.
func (s *Store) Subscribe() chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Update, 100) // Buffered
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; !ok {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}
