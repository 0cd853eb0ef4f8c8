package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Unidata/tds-sub001/internal/daemon/rebuild"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	logger, _ := logtest.NewNullLogger()
	return logrus.NewEntry(logger)
}

// journal records the order of lifecycle events across goroutines.
type journal struct {
	mu      sync.Mutex
	entries []string
	results []models.RunResult
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) SendTriggers(_ context.Context, collection string) []models.TriggerResult {
	j.add("triggers:" + collection)
	return []models.TriggerResult{{Target: "localhost:8080", Outcome: models.OutcomeAccepted}}
}

func (j *journal) RunStarted(collection string, _ models.UpdateType) {
	j.add("started:" + collection)
}

func (j *journal) RunFinished(result models.RunResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, "finished:"+result.Collection)
	j.results = append(j.results, result)
}

func (j *journal) lastResult() models.RunResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.results[len(j.results)-1]
}

func collection(name string, trigger bool) models.Collection {
	return models.Collection{Name: name, Trigger: trigger, UpdateType: models.UpdateTest}
}

// runOne submits a single task and waits for the executor to drain.
func runOne(t *testing.T, opts Options, task Task) {
	t.Helper()
	e := New(opts)
	released := make(chan struct{})
	inner := task.Done
	task.Done = func() {
		if inner != nil {
			inner()
		}
		close(released)
	}
	require.NoError(t, e.Submit(task))

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("task never completed")
	}
	// Shutdown now only waits for the tail of the run.
	require.NoError(t, e.Shutdown(context.Background()))
}

func TestChangedRebuildSendsTriggersAfterDone(t *testing.T) {
	j := &journal{}
	runOne(t, Options{
		Rebuilder:    rebuild.TriggerOnly,
		Notifier:     j,
		Recorder:     j,
		SendTriggers: true,
		Logger:       testLogger(),
	}, Task{
		Collection: collection("gfs", true),
		UpdateType: models.UpdateAlways,
		Done:       func() { j.add("done:gfs") },
	})

	assert.Equal(t, []string{"started:gfs", "done:gfs", "triggers:gfs", "finished:gfs"}, j.list())

	res := j.lastResult()
	assert.True(t, res.Changed)
	assert.False(t, res.Failed())
	assert.Equal(t, models.UpdateAlways, res.UpdateType)
	assert.NotEmpty(t, res.ID)
	assert.Len(t, res.Triggers, 1)
}

func TestNoTriggers(t *testing.T) {
	unchanged := rebuild.RebuilderFunc(func(context.Context, models.Collection, models.UpdateType) (bool, error) {
		return false, nil
	})

	cases := []struct {
		name      string
		rebuilder rebuild.Rebuilder
		trigger   bool
		global    bool
	}{
		{"unchanged", unchanged, true, true},
		{"collection trigger off", rebuild.TriggerOnly, false, true},
		{"global trigger off", rebuild.TriggerOnly, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j := &journal{}
			runOne(t, Options{
				Rebuilder:    tc.rebuilder,
				Notifier:     j,
				SendTriggers: tc.global,
				Logger:       testLogger(),
			}, Task{
				Collection: collection("gfs", tc.trigger),
				Done:       func() { j.add("done") },
			})
			assert.Equal(t, []string{"done"}, j.list())
		})
	}
}

func TestRebuildErrorReleasesAndSkipsTriggers(t *testing.T) {
	j := &journal{}
	failing := rebuild.RebuilderFunc(func(context.Context, models.Collection, models.UpdateType) (bool, error) {
		return true, errors.New("index corrupt")
	})

	logger, hook := logtest.NewNullLogger()
	runOne(t, Options{
		Rebuilder:    failing,
		Notifier:     j,
		Recorder:     j,
		SendTriggers: true,
		Logger:       logrus.NewEntry(logger),
	}, Task{
		Collection: collection("gfs", true),
		Done:       func() { j.add("done:gfs") },
	})

	assert.Equal(t, []string{"started:gfs", "done:gfs", "finished:gfs"}, j.list())
	res := j.lastResult()
	assert.True(t, res.Failed())
	assert.Equal(t, "index corrupt", res.Error)
	assert.Empty(t, res.Triggers)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestPanicIsContained(t *testing.T) {
	j := &journal{}
	panicking := rebuild.RebuilderFunc(func(context.Context, models.Collection, models.UpdateType) (bool, error) {
		panic("nil index")
	})

	e := New(Options{Workers: 1, Rebuilder: panicking, Recorder: j, Logger: testLogger()})
	var done int32
	for _, name := range []string{"gfs", "nam"} {
		require.NoError(t, e.Submit(Task{
			Collection: collection(name, true),
			Done:       func() { atomic.AddInt32(&done, 1) },
		}))
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&done) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, e.Shutdown(context.Background()))

	// The pool survives the first panic and runs the second task.
	assert.Equal(t, int32(2), atomic.LoadInt32(&done))
	assert.Contains(t, j.lastResult().Error, "nil index")
	assert.Len(t, j.results, 2)
}

func TestPoolIsBounded(t *testing.T) {
	var running, peak int32
	release := make(chan struct{})
	blocking := rebuild.RebuilderFunc(func(context.Context, models.Collection, models.UpdateType) (bool, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		return false, nil
	})

	e := New(Options{Workers: 2, Rebuilder: blocking, Logger: testLogger()})
	assert.Equal(t, 2, e.Workers())

	var done int32
	start := time.Now()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, e.Submit(Task{
			Collection: collection(name, false),
			Done:       func() { atomic.AddInt32(&done, 1) },
		}))
	}
	// Submit never waits for a worker.
	assert.Less(t, time.Since(start), time.Second)

	require.Eventually(t, func() bool {
		return e.InFlight() == 2 && e.Queued() == 3
	}, 2*time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&done) == 5 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, e.Shutdown(context.Background()))

	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
	assert.Equal(t, int32(5), atomic.LoadInt32(&done))
}

func TestShutdownAbandonsQueuedTasks(t *testing.T) {
	release := make(chan struct{})
	var rebuilt int32
	blocking := rebuild.RebuilderFunc(func(context.Context, models.Collection, models.UpdateType) (bool, error) {
		atomic.AddInt32(&rebuilt, 1)
		<-release
		return false, nil
	})

	e := New(Options{Workers: 1, Rebuilder: blocking, Logger: testLogger()})

	var done int32
	for _, name := range []string{"a", "b"} {
		require.NoError(t, e.Submit(Task{
			Collection: collection(name, false),
			Done:       func() { atomic.AddInt32(&done, 1) },
		}))
	}
	require.Eventually(t, func() bool { return e.InFlight() == 1 }, 2*time.Second, 5*time.Millisecond)

	shutdown := make(chan error, 1)
	go func() { shutdown <- e.Shutdown(context.Background()) }()

	// The queued task is abandoned, the running one is waited for.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&done) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, e.Submit(Task{Collection: collection("c", false)}), ErrClosed)

	close(release)
	require.NoError(t, <-shutdown)
	assert.Equal(t, int32(2), atomic.LoadInt32(&done))
	assert.Equal(t, int32(1), atomic.LoadInt32(&rebuilt))
}

func TestShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	blocking := rebuild.RebuilderFunc(func(context.Context, models.Collection, models.UpdateType) (bool, error) {
		<-release
		return false, nil
	})

	e := New(Options{Workers: 1, Rebuilder: blocking, Logger: testLogger()})
	require.NoError(t, e.Submit(Task{Collection: collection("a", false)}))
	require.Eventually(t, func() bool { return e.InFlight() == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Shutdown(ctx), context.DeadlineExceeded)
}
