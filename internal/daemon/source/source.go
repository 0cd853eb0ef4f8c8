// Package source provides the event sources that feed update events to the
// daemon.
package source

import (
	"context"

	"github.com/Unidata/tds-sub001/pkg/models"
)

// Handler receives update events. It must not block.
type Handler func(ev models.UpdateEvent)

// Source is a background producer of update events.
type Source interface {
	// Name returns the source's name for logging.
	Name() string

	// Run emits events to handler until ctx is canceled.
	Run(ctx context.Context, handler Handler) error
}
