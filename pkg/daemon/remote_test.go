package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Unidata/tds-sub001/config"
	"github.com/Unidata/tds-sub001/errors"
	"github.com/Unidata/tds-sub001/internal/daemon/coordinator"
	"github.com/Unidata/tds-sub001/internal/daemon/rebuild"
	"github.com/Unidata/tds-sub001/internal/daemon/server"
	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDaemon runs a coordinator and control server on a temporary socket.
func startDaemon(t *testing.T) (socket, keyPath string) {
	t.Helper()

	// Unix socket paths are length limited; keep it short.
	dir, err := os.MkdirTemp("", "tdm")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	socket = filepath.Join(dir, "tdm.sock")
	keyPath = filepath.Join(dir, "tdm.key")

	logger, _ := logtest.NewNullLogger()
	entry := logrus.NewEntry(logger)

	off := false
	cfg := &config.Config{
		SendTriggers:  &off,
		SecretKeyFile: keyPath,
		Collections:   []config.CollectionConfig{{Name: "radar"}},
	}
	cfg.SetDefaults()

	coord, err := coordinator.New(cfg, rebuild.TriggerOnly, entry)
	require.NoError(t, err)

	srv := server.New(coord, entry)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(socket) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-errCh
	})

	require.Eventually(t, func() bool {
		c, err := ConnectTo(socket, keyPath)
		if err != nil {
			return false
		}
		defer c.Close()
		return c.IsRunning()
	}, 2*time.Second, 10*time.Millisecond)

	return socket, keyPath
}

func TestConnectToMissingSocket(t *testing.T) {
	_, err := ConnectTo(filepath.Join(t.TempDir(), "none.sock"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonNotRunning))
}

func TestRemoteClient(t *testing.T) {
	socket, keyPath := startDaemon(t)

	c, err := ConnectTo(socket, keyPath)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()

	targets, err := c.Targets(ctx)
	require.NoError(t, err)
	assert.Empty(t, targets)

	cfg, err := c.Config(ctx)
	require.NoError(t, err)
	assert.Contains(t, cfg, "collections")

	updates, err := c.Stream(ctx)
	require.NoError(t, err)

	resp, err := c.Trigger(ctx, "radar", models.UpdateAlways)
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, models.UpdateAlways, resp.UpdateType)

	deadline := time.After(2 * time.Second)
	for finished := false; !finished; {
		select {
		case u, ok := <-updates:
			require.True(t, ok, "stream closed early")
			finished = u.Type == models.StateUpdateRunFinished
		case <-deadline:
			t.Fatal("no run_finished update received")
		}
	}

	state, err := c.State(ctx)
	require.NoError(t, err)
	coll, ok := state.Collection("radar")
	require.True(t, ok)
	assert.Equal(t, uint64(1), coll.Accepted)
	assert.Equal(t, uint64(1), coll.Runs)
	require.NotNil(t, coll.LastRun)
	assert.Equal(t, models.UpdateAlways, coll.LastRun.UpdateType)

	_, err = c.Trigger(ctx, "unknown", "")
	assert.Error(t, err)
}

func TestTriggerWithWrongKeyIsRejected(t *testing.T) {
	socket, _ := startDaemon(t)

	// A key file from another daemon instance.
	stale := filepath.Join(t.TempDir(), "stale.key")
	require.NoError(t, os.WriteFile(stale, []byte("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"), 0o600))

	c, err := ConnectTo(socket, stale)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Trigger(context.Background(), "radar", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
