// Package dispatcher debounces update events per collection. While a rebuild
// for a collection is in flight, further events for it are dropped.
package dispatcher

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/sirupsen/logrus"
)

// ListenerState is the per-collection gate. It is idle when no rebuild for
// the collection is accepted or running.
type ListenerState struct {
	Name  string
	inUse atomic.Bool
}

// TryAcquire moves the gate from idle to running. It reports false when a
// run is already in flight.
func (s *ListenerState) TryAcquire() bool {
	return s.inUse.CompareAndSwap(false, true)
}

// Release returns the gate to idle.
func (s *ListenerState) Release() {
	s.inUse.Store(false)
}

// InUse reports whether a run holds the gate.
func (s *ListenerState) InUse() bool {
	return s.inUse.Load()
}

// StateInfo is a point-in-time view of one gate.
type StateInfo struct {
	Name  string `json:"name"`
	InUse bool   `json:"in_use"`
}

// SubmitFunc hands an accepted event to the executor. The callee owns the
// gate from then on and must release it when the run completes. A non-nil
// error means the task was not taken; the dispatcher releases the gate.
type SubmitFunc func(state *ListenerState, ev models.UpdateEvent) error

// Dispatcher routes events to the executor, at most one per collection at a
// time. It is safe for concurrent use.
type Dispatcher struct {
	mu     sync.RWMutex
	states map[string]*ListenerState
	submit SubmitFunc
	closed atomic.Bool
	logger *logrus.Entry
}

// New creates a dispatcher that passes accepted events to submit.
func New(submit SubmitFunc, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		states: make(map[string]*ListenerState),
		submit: submit,
		logger: logger,
	}
}

// ProcessEvent submits a rebuild for ev unless one is already in flight for
// the same collection. It reports whether the event was accepted. Dropped
// events are not queued.
func (d *Dispatcher) ProcessEvent(ev models.UpdateEvent) bool {
	log := d.logger.WithFields(logrus.Fields{
		"collection":  ev.Collection,
		"update_type": ev.UpdateType,
		"source":      ev.Source,
	})

	if d.closed.Load() {
		log.Debug("Dispatcher closed, dropping event")
		return false
	}

	state := d.state(ev.Collection)
	if !state.TryAcquire() {
		log.Debug("Collection update already in progress, dropping event")
		return false
	}

	if err := d.submit(state, ev); err != nil {
		state.Release()
		log.WithError(err).Warn("Failed to submit collection update")
		return false
	}

	log.Debug("Collection update submitted")
	return true
}

// state returns the gate for name, creating it on first use. Gates live for
// the lifetime of the dispatcher.
func (d *Dispatcher) state(name string) *ListenerState {
	d.mu.RLock()
	s, ok := d.states[name]
	d.mu.RUnlock()
	if ok {
		return s
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.states[name]; ok {
		return s
	}
	s = &ListenerState{Name: name}
	d.states[name] = s
	return s
}

// States returns a snapshot of every gate sorted by name.
func (d *Dispatcher) States() []StateInfo {
	d.mu.RLock()
	out := make([]StateInfo, 0, len(d.states))
	for name, s := range d.states {
		out = append(out, StateInfo{Name: name, InUse: s.InUse()})
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close makes every later event a drop. Runs in flight are unaffected.
func (d *Dispatcher) Close() {
	d.closed.Store(true)
}
