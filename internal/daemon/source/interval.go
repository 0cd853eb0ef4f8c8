package source

import (
	"context"
	"sync"
	"time"

	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/sirupsen/logrus"
)

// IntervalSpec schedules periodic events for one collection.
type IntervalSpec struct {
	Collection string
	UpdateType models.UpdateType
	// Every is the rescan period; zero disables the ticker.
	Every time.Duration
	// OnStartup emits one event as soon as the source runs.
	OnStartup bool
}

// IntervalSource emits events on a fixed schedule. It supplies the trailing
// event that picks up changes whose own events were dropped while a rebuild
// was running.
type IntervalSource struct {
	specs  []IntervalSpec
	logger *logrus.Entry
}

// NewIntervalSource creates an IntervalSource. Specs with neither a period
// nor OnStartup are ignored.
func NewIntervalSource(specs []IntervalSpec, logger *logrus.Entry) *IntervalSource {
	active := make([]IntervalSpec, 0, len(specs))
	for _, s := range specs {
		if s.Every > 0 || s.OnStartup {
			active = append(active, s)
		}
	}
	return &IntervalSource{specs: active, logger: logger}
}

// Name implements Source.
func (s *IntervalSource) Name() string { return "interval" }

// Len returns the number of scheduled collections.
func (s *IntervalSource) Len() int { return len(s.specs) }

// Run implements Source.
func (s *IntervalSource) Run(ctx context.Context, handler Handler) error {
	var wg sync.WaitGroup
	for _, spec := range s.specs {
		wg.Add(1)
		go func(spec IntervalSpec) {
			defer wg.Done()
			s.schedule(ctx, spec, handler)
		}(spec)
	}
	wg.Wait()
	return nil
}

func (s *IntervalSource) schedule(ctx context.Context, spec IntervalSpec, handler Handler) {
	emit := func() {
		handler(models.NewUpdateEvent(spec.Collection, spec.UpdateType, s.Name()))
	}

	if spec.OnStartup {
		s.logger.WithField("collection", spec.Collection).Debug("Emitting startup update")
		emit()
	}
	if spec.Every <= 0 {
		return
	}

	ticker := time.NewTicker(spec.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emit()
		}
	}
}
