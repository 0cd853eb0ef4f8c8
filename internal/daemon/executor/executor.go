// Package executor runs collection rebuilds on a bounded worker pool.
package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Unidata/tds-sub001/internal/daemon/rebuild"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = stderrors.New("executor is shut down")

// Task is one accepted update for a collection.
type Task struct {
	Collection models.Collection
	UpdateType models.UpdateType
	Event      models.UpdateEvent

	// Done is called exactly once when the rebuild finishes, fails, panics
	// or is abandoned at shutdown. It runs before any triggers are sent.
	Done func()
}

func (t Task) done() {
	if t.Done != nil {
		t.Done()
	}
}

// Notifier sends triggers for a rebuilt collection.
type Notifier interface {
	SendTriggers(ctx context.Context, collection string) []models.TriggerResult
}

// Recorder observes task lifecycles.
type Recorder interface {
	RunStarted(collection string, ut models.UpdateType)
	RunFinished(result models.RunResult)
}

// Options configures an Executor.
type Options struct {
	Workers      int
	Rebuilder    rebuild.Rebuilder
	Notifier     Notifier
	SendTriggers bool
	Recorder     Recorder
	Logger       *logrus.Entry
}

// Executor runs tasks with at most Workers rebuilds in flight. Different
// collections run in parallel; a single collection is serialized by the
// dispatcher gate, not here.
type Executor struct {
	opts Options
	sem  *semaphore.Weighted

	// cancelled at shutdown so tasks still waiting for a slot give up.
	pending context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	wg       sync.WaitGroup
	closed   bool
	inFlight atomic.Int64
	queued   atomic.Int64
}

// New creates an Executor.
func New(opts Options) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.Workers)),
		pending: ctx,
		cancel:  cancel,
	}
}

// Submit schedules task and returns immediately.
func (e *Executor) Submit(task Task) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.wg.Add(1)
	e.queued.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()

		err := e.sem.Acquire(e.pending, 1)
		e.queued.Add(-1)
		if err != nil {
			e.opts.Logger.WithField("collection", task.Collection.Name).
				Debug("Executor shutting down, abandoning queued update")
			task.done()
			return
		}
		defer e.sem.Release(1)

		e.inFlight.Add(1)
		defer e.inFlight.Add(-1)

		e.run(task)
	}()
	return nil
}

func (e *Executor) run(task Task) {
	name := task.Collection.Name
	result := models.RunResult{
		ID:         uuid.NewString(),
		Collection: name,
		UpdateType: task.UpdateType,
		StartedAt:  time.Now(),
	}

	if e.opts.Recorder != nil {
		e.opts.Recorder.RunStarted(name, task.UpdateType)
		defer func() { e.opts.Recorder.RunFinished(result) }()
	}

	log := e.opts.Logger.WithFields(logrus.Fields{
		"collection":  name,
		"update_type": task.UpdateType,
		"run_id":      result.ID,
	})

	changed, err := e.rebuild(task)
	result.Elapsed = time.Since(result.StartedAt)
	result.Changed = changed
	log = log.WithField("elapsed_ms", result.Elapsed.Milliseconds())

	if err != nil {
		result.Error = err.Error()
		log.WithError(err).Error("Collection rebuild failed")
		return
	}
	log.WithField("changed", changed).Info("Collection rebuild finished")

	if changed && task.Collection.Trigger && e.opts.SendTriggers && e.opts.Notifier != nil {
		result.Triggers = e.notify(log, name)
	}
}

// rebuild invokes the rebuilder, turning panics into errors. The task's Done
// hook always runs before it returns.
func (e *Executor) rebuild(task Task) (changed bool, err error) {
	defer task.done()
	defer func() {
		if r := recover(); r != nil {
			changed = false
			err = fmt.Errorf("rebuild panicked: %v", r)
		}
	}()

	return e.opts.Rebuilder.Rebuild(context.Background(), task.Collection, task.UpdateType)
}

func (e *Executor) notify(log *logrus.Entry, collection string) (results []models.TriggerResult) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Trigger fanout panicked")
		}
	}()
	return e.opts.Notifier.SendTriggers(context.Background(), collection)
}

// InFlight returns the number of rebuilds currently running.
func (e *Executor) InFlight() int {
	return int(e.inFlight.Load())
}

// Queued returns the number of accepted tasks waiting for a worker.
func (e *Executor) Queued() int {
	return int(e.queued.Load())
}

// Workers returns the pool size.
func (e *Executor) Workers() int {
	return e.opts.Workers
}

// Shutdown rejects new tasks, abandons queued ones and waits for running
// ones to finish or ctx to expire.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
