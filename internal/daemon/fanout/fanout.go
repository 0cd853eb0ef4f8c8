// Package fanout delivers "collection rebuilt" triggers to every registered
// downstream server.
package fanout

import (
	"context"
	"errors"
	"io"
	"net/http"
	"syscall"
	"time"

	"github.com/Unidata/tds-sub001/internal/daemon/target"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/Unidata/tds-sub001/pkg/signer"
	"github.com/Unidata/tds-sub001/version"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Fanout sends one trigger per target per call.
type Fanout struct {
	registry *target.Registry
	signer   *signer.Signer
	limiter  *rate.Limiter
	logger   *logrus.Entry
}

// Option configures a Fanout.
type Option func(*Fanout)

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(f *Fanout) {
		f.logger = logger
	}
}

// WithRate paces consecutive trigger calls to at most rps per second.
// Zero or negative leaves calls unpaced.
func WithRate(rps float64) Option {
	return func(f *Fanout) {
		if rps > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// New creates a Fanout over the registry. Local targets are authenticated
// with tokens minted by s.
func New(registry *target.Registry, s *signer.Signer, opts ...Option) *Fanout {
	f := &Fanout{
		registry: registry,
		signer:   s,
		logger:   logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SendTriggers notifies every target that collection was rebuilt. A failure
// on one target never prevents the next from being attempted, and nothing
// is retried. Results are returned in registry order.
func (f *Fanout) SendTriggers(ctx context.Context, collection string) []models.TriggerResult {
	targets := f.registry.Targets()
	results := make([]models.TriggerResult, 0, len(targets))

	for _, t := range targets {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				results = append(results, f.record(t, t.TriggerURL(collection), collection, 0, err, 0))
				continue
			}
		}
		results = append(results, f.send(ctx, t, collection))
	}

	return results
}

func (f *Fanout) send(ctx context.Context, t *target.Target, collection string) models.TriggerResult {
	triggerURL := t.TriggerURL(collection)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, triggerURL, nil)
	if err != nil {
		return f.record(t, triggerURL, collection, 0, err, time.Since(start))
	}
	req.Header.Set("User-Agent", version.UserAgent())

	// Remote sessions already carry Basic credentials.
	if t.Local {
		if err := f.signer.SignRequest(req); err != nil {
			return f.record(t, triggerURL, collection, 0, err, time.Since(start))
		}
	}

	resp, err := t.Client().Do(req)
	if err != nil {
		return f.record(t, triggerURL, collection, 0, err, time.Since(start))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return f.record(t, triggerURL, collection, resp.StatusCode, nil, time.Since(start))
}

// record classifies one call and logs it at the matching severity.
func (f *Fanout) record(t *target.Target, triggerURL, collection string, status int, err error, elapsed time.Duration) models.TriggerResult {
	res := models.TriggerResult{
		Target:     t.Name,
		URL:        triggerURL,
		Local:      t.Local,
		StatusCode: status,
		Elapsed:    elapsed,
	}

	log := f.logger.WithFields(logrus.Fields{
		"collection": collection,
		"target":     t.Name,
		"url":        triggerURL,
		"elapsed_ms": elapsed.Milliseconds(),
	})

	switch {
	case err == nil && status == http.StatusOK:
		res.Outcome = models.OutcomeAccepted
		log.Info("Trigger accepted")
	case err == nil:
		res.Outcome = models.OutcomeRejected
		log.WithField("status", status).Warn("Trigger rejected")
	case IsConnectionRefused(err):
		res.Outcome = models.OutcomeUnreachable
		res.Error = err.Error()
		log.WithError(err).Debug("Trigger target not running")
	default:
		res.Outcome = models.OutcomeFailed
		res.Error = err.Error()
		log.WithError(err).Error("Trigger failed")
	}

	return res
}

// IsConnectionRefused reports whether err means nothing listens on the
// target address.
func IsConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
