package store

import (
	"testing"
	"time"

	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndSnapshotOrder(t *testing.T) {
	s := New()
	s.Register(
		models.Collection{Name: "nam", Trigger: true, UpdateType: models.UpdateTest},
		models.Collection{Name: "gfs", Trigger: false, UpdateType: models.UpdateAlways},
	)

	state := s.Get()
	require.Len(t, state.Collections, 2)
	assert.Equal(t, "gfs", state.Collections[0].Name)
	assert.False(t, state.Collections[0].Trigger)
	assert.Equal(t, models.UpdateAlways, state.Collections[0].UpdateType)
	assert.Equal(t, "nam", state.Collections[1].Name)
	assert.False(t, state.StartedAt.IsZero())
}

func TestCounters(t *testing.T) {
	s := New()
	ev := models.NewUpdateEvent("gfs", models.UpdateTest, "watch")

	s.RecordEvent(ev, true)
	s.RecordEvent(ev, false)
	s.RecordEvent(ev, false)
	s.RunStarted("gfs", models.UpdateTest)

	st, ok := s.Collection("gfs")
	require.True(t, ok)
	assert.Equal(t, uint64(1), st.Accepted)
	assert.Equal(t, uint64(2), st.Dropped)
	assert.True(t, st.Running)
	assert.Equal(t, ev.ReceivedAt, st.LastEvent)

	s.RunFinished(models.RunResult{Collection: "gfs", Changed: true})
	s.RunStarted("gfs", models.UpdateTest)
	s.RunFinished(models.RunResult{Collection: "gfs", Error: "boom"})

	st, _ = s.Collection("gfs")
	assert.False(t, st.Running)
	assert.Equal(t, uint64(2), st.Runs)
	assert.Equal(t, uint64(1), st.Failures)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, "boom", st.LastRun.Error)

	_, ok = s.Collection("missing")
	assert.False(t, ok)
}

func TestOverlappingRunsKeepRunningFlag(t *testing.T) {
	s := New()

	// The gate reopens before the first run's fanout finishes, so the next
	// run can start before the first is recorded as finished.
	s.RunStarted("gfs", models.UpdateTest)
	s.RunStarted("gfs", models.UpdateTest)
	s.RunFinished(models.RunResult{Collection: "gfs"})

	st, _ := s.Collection("gfs")
	assert.True(t, st.Running)

	s.RunFinished(models.RunResult{Collection: "gfs"})
	st, _ = s.Collection("gfs")
	assert.False(t, st.Running)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.RunStarted("gfs", models.UpdateTest)
	s.RunFinished(models.RunResult{Collection: "gfs", Error: "first"})

	state := s.Get()
	state.Collections[0].LastRun.Error = "mutated"
	state.Collections[0].Runs = 99

	st, _ := s.Collection("gfs")
	assert.Equal(t, "first", st.LastRun.Error)
	assert.Equal(t, uint64(1), st.Runs)
}

func TestSubscribe(t *testing.T) {
	s := New()
	ch := s.Subscribe()

	s.RecordEvent(models.NewUpdateEvent("gfs", models.UpdateTest, "redis"), true)
	s.RunStarted("gfs", models.UpdateTest)
	s.RunFinished(models.RunResult{Collection: "gfs", Changed: true})
	s.BroadcastConfigReload("/etc/tdm/tdm.yml")

	want := []UpdateType{UpdateEvent, UpdateRunStarted, UpdateRunFinished, UpdateConfigReload}
	for _, typ := range want {
		select {
		case u := <-ch:
			assert.Equal(t, typ, u.Type)
			if typ == UpdateEvent {
				assert.True(t, u.Accepted)
				assert.Equal(t, "redis", u.Source)
			}
			if typ == UpdateRunFinished {
				require.NotNil(t, u.Run)
				assert.True(t, u.Run.Changed)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %s update", typ)
		}
	}

	s.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	// A second unsubscribe is harmless.
	s.Unsubscribe(ch)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			s.RecordEvent(models.NewUpdateEvent("gfs", models.UpdateTest, "watch"), false)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("store blocked on a full subscriber")
	}
	assert.Len(t, ch, cap(ch))
}
