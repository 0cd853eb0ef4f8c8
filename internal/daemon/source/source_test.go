package source

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogger() *logrus.Entry {
	logger, _ := logtest.NewNullLogger()
	return logrus.NewEntry(logger)
}

type collector struct {
	mu     sync.Mutex
	events []models.UpdateEvent
}

func (c *collector) handle(ev models.UpdateEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []models.UpdateEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.UpdateEvent, len(c.events))
	copy(out, c.events)
	return out
}

func runSource(t *testing.T, src Source, c *collector) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, c.handle) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestIntervalSourceStartupAndTicks(t *testing.T) {
	src := NewIntervalSource([]IntervalSpec{
		{Collection: "radar", UpdateType: models.UpdateTest, Every: 20 * time.Millisecond, OnStartup: true},
		{Collection: "idle"},
	}, newLogger())
	assert.Equal(t, 1, src.Len())

	c := &collector{}
	cancel, done := runSource(t, src, c)

	require.Eventually(t, func() bool { return len(c.snapshot()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for _, ev := range c.snapshot() {
		assert.Equal(t, "radar", ev.Collection)
		assert.Equal(t, models.UpdateTest, ev.UpdateType)
		assert.Equal(t, "interval", ev.Source)
	}
}

func TestIntervalSourceStartupOnly(t *testing.T) {
	src := NewIntervalSource([]IntervalSpec{
		{Collection: "once", UpdateType: models.UpdateAlways, OnStartup: true},
	}, newLogger())

	c := &collector{}
	_, done := runSource(t, src, c)

	// Without a period the source returns after the startup event.
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("interval source did not return")
	}
	require.Len(t, c.snapshot(), 1)
	assert.Equal(t, models.UpdateAlways, c.snapshot()[0].UpdateType)
}

func TestWatchSourceSettlesBurst(t *testing.T) {
	dir := t.TempDir()
	src, err := NewWatchSource([]WatchSpec{{
		Collection: "metar",
		UpdateType: models.UpdateTest,
		Dirs:       []string{dir},
		Include:    []string{"*.nc"},
		Settle:     100 * time.Millisecond,
	}}, newLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, src.Len())

	c := &collector{}
	cancel, done := runSource(t, src, c)

	// Give the watcher a moment to register the directory.
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "obs"+string(rune('a'+i))+".nc")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Len(t, c.snapshot(), 1, "burst should collapse to a single event")

	ev := c.snapshot()[0]
	assert.Equal(t, "metar", ev.Collection)
	assert.Equal(t, "watch", ev.Source)

	cancel()
	require.NoError(t, <-done)
}

func TestWatchSourceRunWaitsForSettleCallback(t *testing.T) {
	dir := t.TempDir()
	src, err := NewWatchSource([]WatchSpec{{
		Collection: "metar",
		UpdateType: models.UpdateTest,
		Dirs:       []string{dir},
		Include:    []string{"*.nc"},
		Settle:     20 * time.Millisecond,
	}}, newLogger())
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, func(models.UpdateEvent) {
			once.Do(func() { close(entered) })
			<-release
		})
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "obs.nc"), []byte("x"), 0o644))

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("settle callback never fired")
	}

	cancel()
	select {
	case <-done:
		t.Fatal("Run returned while a settle callback was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the callback finished")
	}
}

func TestWatchSourceIgnoresUnmatchedFiles(t *testing.T) {
	dir := t.TempDir()
	src, err := NewWatchSource([]WatchSpec{{
		Collection: "grib",
		Dirs:       []string{dir},
		Include:    []string{"*.grib2"},
		Settle:     20 * time.Millisecond,
	}}, newLogger())
	require.NoError(t, err)

	c := &collector{}
	runSource(t, src, c)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}

func TestWatchSourceInvalidPattern(t *testing.T) {
	_, err := NewWatchSource([]WatchSpec{{
		Collection: "bad",
		Dirs:       []string{t.TempDir()},
		Include:    []string{"!"},
	}}, newLogger())
	assert.Error(t, err)
}

func TestWatchSourceMissingDir(t *testing.T) {
	src, err := NewWatchSource([]WatchSpec{{
		Collection: "gone",
		Dirs:       []string{filepath.Join(t.TempDir(), "missing")},
	}}, newLogger())
	require.NoError(t, err)

	err = src.Run(context.Background(), func(models.UpdateEvent) {})
	assert.Error(t, err)
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    models.UpdateType
		wantErr bool
	}{
		{name: "with type", payload: `{"collection":"radar","update_type":"always"}`, want: models.UpdateAlways},
		{name: "without type", payload: `{"collection":"radar"}`, want: ""},
		{name: "bad json", payload: `{not json`, wantErr: true},
		{name: "no collection", payload: `{"update_type":"test"}`, wantErr: true},
		{name: "unknown type", payload: `{"collection":"radar","update_type":"sometimes"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeMessage([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "radar", ev.Collection)
			assert.Equal(t, tt.want, ev.UpdateType)
		})
	}
}

func setupRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisSourceReceivesPublishedEvents(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	channel := "tdm:test:" + t.Name()
	src := NewRedisSource(RedisOptions{Addr: "localhost:6379", DB: 1, Channel: channel}, newLogger())
	assert.Equal(t, channel, src.Channel())

	c := &collector{}
	cancel, done := runSource(t, src, c)

	// Publish until the subscription is live; the malformed message must
	// be skipped without stopping the source.
	require.Eventually(t, func() bool {
		ctx := context.Background()
		_ = client.Publish(ctx, channel, "garbage").Err()
		_ = Publish(ctx, client, channel, "radar", models.UpdateNoCheck)
		return len(c.snapshot()) > 0
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	ev := c.snapshot()[0]
	assert.Equal(t, "radar", ev.Collection)
	assert.Equal(t, models.UpdateNoCheck, ev.UpdateType)
	assert.Equal(t, "redis", ev.Source)
}
