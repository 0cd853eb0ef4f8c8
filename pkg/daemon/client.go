// Package daemon provides a client for the tdm daemon's control API.
package daemon

import (
	"context"

	"github.com/Unidata/tds-sub001/pkg/models"
)

// Client defines the interface for interacting with a running tdm daemon.
type Client interface {
	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// State returns per-collection status and executor load.
	State(ctx context.Context) (*models.DaemonState, error)

	// Targets returns the servers that receive triggers.
	Targets(ctx context.Context) ([]models.TargetInfo, error)

	// Trigger asks the daemon to update a collection. An empty update type
	// uses the collection's configured one.
	Trigger(ctx context.Context, collection string, updateType models.UpdateType) (*models.TriggerResponse, error)

	// Stream subscribes to real-time state updates from the daemon.
	// The channel is closed when ctx is cancelled or the connection is lost.
	Stream(ctx context.Context) (<-chan models.StateUpdate, error)

	// Close cleans up any resources used by the client.
	Close() error
}
