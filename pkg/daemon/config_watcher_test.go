package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigWatcherReportsConfigEdits(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "tdm.yml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("workers: 2\n"), 0o644))

	var mu sync.Mutex
	var reloaded []string
	logger, _ := logtest.NewNullLogger()
	w, err := NewConfigWatcher(cfgFile, 10*time.Millisecond, func(file string) {
		mu.Lock()
		reloaded = append(reloaded, file)
		mu.Unlock()
	}, logrus.NewEntry(logger))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yml"), []byte("x: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(cfgFile, []byte("workers: 3\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloaded) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, f := range reloaded {
		assert.Equal(t, "tdm.yml", f)
	}
}
