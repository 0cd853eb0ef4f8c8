package models

import "time"

// CollectionStatus is the daemon's view of one collection.
type CollectionStatus struct {
	Name       string     `json:"name"`
	Trigger    bool       `json:"trigger"`
	UpdateType UpdateType `json:"update_type"`
	// Busy mirrors the listener gate: an event arriving now would be dropped.
	Busy bool `json:"busy"`
	// Running is true while a rebuild or its trigger fanout is in progress.
	Running   bool       `json:"running"`
	Accepted  uint64     `json:"accepted"`
	Dropped   uint64     `json:"dropped"`
	Runs      uint64     `json:"runs"`
	Failures  uint64     `json:"failures"`
	LastEvent time.Time  `json:"last_event,omitempty"`
	LastRun   *RunResult `json:"last_run,omitempty"`
}

// DaemonState is the body of GET /api/state.
type DaemonState struct {
	StartedAt   time.Time          `json:"started_at"`
	PID         int                `json:"pid,omitempty"`
	Workers     int                `json:"workers,omitempty"`
	InFlight    int                `json:"in_flight"`
	Queued      int                `json:"queued"`
	Collections []CollectionStatus `json:"collections"`
}

// Collection returns the status for name.
func (s DaemonState) Collection(name string) (CollectionStatus, bool) {
	for _, c := range s.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return CollectionStatus{}, false
}

// StateUpdateType defines what kind of change a StateUpdate describes.
type StateUpdateType string

const (
	StateUpdateEvent        StateUpdateType = "event"
	StateUpdateRunStarted   StateUpdateType = "run_started"
	StateUpdateRunFinished  StateUpdateType = "run_finished"
	StateUpdateConfigReload StateUpdateType = "config_reload"
)

// StateUpdate is one change pushed to stream subscribers.
type StateUpdate struct {
	Type       StateUpdateType `json:"type"`
	Collection string          `json:"collection,omitempty"`
	Source     string          `json:"source,omitempty"` // event source or changed file
	Time       time.Time       `json:"time"`

	// Accepted is set on StateUpdateEvent.
	Accepted bool `json:"accepted,omitempty"`
	// Run is set on StateUpdateRunFinished.
	Run *RunResult `json:"run,omitempty"`
}

// TriggerResponse is the body returned by GET /api/trigger.
type TriggerResponse struct {
	Collection string     `json:"collection"`
	UpdateType UpdateType `json:"update_type,omitempty"`
	Accepted   bool       `json:"accepted"`
}
