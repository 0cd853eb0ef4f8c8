// Package engine runs the daemon's event sources.
package engine

import (
	"context"
	"sync"

	"github.com/Unidata/tds-sub001/internal/daemon/source"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/sirupsen/logrus"
)

// Engine manages and runs all event sources.
type Engine struct {
	sources []source.Source
	logger  *logrus.Entry
}

// New creates a new Engine instance.
func New(logger *logrus.Entry) *Engine {
	return &Engine{logger: logger}
}

// Register adds a source to the engine.
func (e *Engine) Register(s source.Source) {
	e.sources = append(e.sources, s)
}

// Sources returns the names of the registered sources.
func (e *Engine) Sources() []string {
	names := make([]string, 0, len(e.sources))
	for _, s := range e.sources {
		names = append(names, s.Name())
	}
	return names
}

// Start runs all sources and blocks until every one has returned.
// Events are delivered to handler from a single consumer goroutine, so
// handler never runs concurrently with itself. The events channel is never
// closed: a source may still hand over an event while it shuts down.
func (e *Engine) Start(ctx context.Context, handler source.Handler) {
	events := make(chan models.UpdateEvent, 100)
	sourcesDone := make(chan struct{})
	var consumer sync.WaitGroup

	// 1. Start event consumer
	consumer.Add(1)
	go func() {
		defer consumer.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				handler(ev)
			case <-sourcesDone:
				for {
					select {
					case ev := <-events:
						handler(ev)
					default:
						return
					}
				}
			}
		}
	}()

	// 2. Start sources
	var wg sync.WaitGroup
	for _, s := range e.sources {
		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			e.logger.WithField("source", src.Name()).Info("Starting event source")
			err := src.Run(ctx, func(ev models.UpdateEvent) {
				select {
				case events <- ev:
				case <-ctx.Done():
				case <-sourcesDone:
				}
			})
			if err != nil {
				e.logger.WithField("source", src.Name()).WithError(err).Error("Event source failed")
			}
		}(s)
	}

	wg.Wait()
	close(sourcesDone)
	consumer.Wait()
}
