package models

import (
	"fmt"
	"strings"
	"time"
)

// UpdateType controls how aggressively a collection is rebuilt.
// It is passed through to the rebuild collaborator untouched.
type UpdateType string

const (
	// UpdateNoCheck rebuilds without checking inputs for changes.
	UpdateNoCheck UpdateType = "nocheck"
	// UpdateTest rebuilds only if the inputs changed.
	UpdateTest UpdateType = "test"
	// UpdateAlways forces a full rebuild.
	UpdateAlways UpdateType = "always"
	// UpdateNever tells a downstream server not to re-check on its own.
	UpdateNever UpdateType = "never"
)

// UpdateTypes lists every accepted update type.
var UpdateTypes = []UpdateType{UpdateNoCheck, UpdateTest, UpdateAlways, UpdateNever}

// ParseUpdateType converts a string into an UpdateType.
func ParseUpdateType(s string) (UpdateType, error) {
	v := UpdateType(strings.ToLower(strings.TrimSpace(s)))
	for _, ut := range UpdateTypes {
		if v == ut {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown update type %q", s)
}

// String implements fmt.Stringer.
func (u UpdateType) String() string {
	return string(u)
}

// UpdateEvent is an inbound change notification for one collection.
type UpdateEvent struct {
	Collection string     `json:"collection"`
	UpdateType UpdateType `json:"update_type"`
	Source     string     `json:"source,omitempty"`
	ReceivedAt time.Time  `json:"received_at"`
}

// NewUpdateEvent stamps an event with the current time.
func NewUpdateEvent(collection string, updateType UpdateType, source string) UpdateEvent {
	return UpdateEvent{
		Collection: collection,
		UpdateType: updateType,
		Source:     source,
		ReceivedAt: time.Now(),
	}
}

// Collection is the runtime view of a configured collection.
type Collection struct {
	Name       string     `json:"name"`
	Trigger    bool       `json:"trigger"`
	UpdateType UpdateType `json:"update_type"`
	Dir        string     `json:"dir,omitempty"`
}
