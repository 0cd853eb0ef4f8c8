package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTdmHomeOverridesEverything(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TDM_HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "/nowhere/config")
	t.Setenv("XDG_RUNTIME_DIR", "/nowhere/run")

	assert.Equal(t, filepath.Join(home, "config", "tdm"), ConfigDir())
	assert.Equal(t, filepath.Join(home, "state", "tdm"), StateDir())
	assert.Equal(t, filepath.Join(home, "run", "tdm.sock"), SocketPath())
	assert.Equal(t, filepath.Join(home, "state", "tdm", "tdm.pid"), PidFilePath())
	assert.Equal(t, filepath.Join(home, "state", "tdm", "tdm.key"), SecretKeyPath())
	assert.Equal(t, filepath.Join(home, "state", "tdm", "logs"), LogDir())
}

func TestXDGFallbacks(t *testing.T) {
	t.Setenv("TDM_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")
	t.Setenv("XDG_RUNTIME_DIR", "")

	assert.Equal(t, "/xdg/config/tdm", ConfigDir())
	assert.Equal(t, "/xdg/state/tdm", StateDir())
	assert.Equal(t, "/xdg/state/tdm", RuntimeDir())
}

func TestEnsureDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TDM_HOME", home)

	require.NoError(t, EnsureDirs())
	for _, dir := range []string{ConfigDir(), StateDir(), LogDir(), RuntimeDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
