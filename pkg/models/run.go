package models

import "time"

// TriggerOutcome classifies the result of one trigger call.
type TriggerOutcome string

const (
	// OutcomeAccepted means the target answered 200.
	OutcomeAccepted TriggerOutcome = "accepted"
	// OutcomeRejected means the target answered with any other status.
	OutcomeRejected TriggerOutcome = "rejected"
	// OutcomeUnreachable means the connection was refused.
	OutcomeUnreachable TriggerOutcome = "unreachable"
	// OutcomeFailed covers every other transport failure.
	OutcomeFailed TriggerOutcome = "failed"
)

// TriggerResult records one trigger call made during a fanout.
type TriggerResult struct {
	Target     string         `json:"target"`
	URL        string         `json:"url"`
	Local      bool           `json:"local"`
	Outcome    TriggerOutcome `json:"outcome"`
	StatusCode int            `json:"status_code,omitempty"`
	Error      string         `json:"error,omitempty"`
	Elapsed    time.Duration  `json:"elapsed"`
}

// OK reports whether the target accepted the trigger.
func (r TriggerResult) OK() bool {
	return r.Outcome == OutcomeAccepted
}

// RunResult records one rebuild task.
type RunResult struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	UpdateType UpdateType      `json:"update_type"`
	StartedAt  time.Time       `json:"started_at"`
	Elapsed    time.Duration   `json:"elapsed"`
	Changed    bool            `json:"changed"`
	Error      string          `json:"error,omitempty"`
	Triggers   []TriggerResult `json:"triggers,omitempty"`
}

// Failed reports whether the rebuild returned an error or panicked.
func (r RunResult) Failed() bool {
	return r.Error != ""
}

// TargetInfo describes a configured downstream server.
type TargetInfo struct {
	Name        string `json:"name"`
	BaseURL     string `json:"base_url"`
	Local       bool   `json:"local"`
	TriggerPath string `json:"trigger_path"`
}
