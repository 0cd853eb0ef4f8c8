// Package paths provides XDG-compliant path resolution for tdm.
//
// Resolution order:
// 1. TDM_HOME (portable root) → $TDM_HOME/{config,state,run}
// 2. XDG env vars → $XDG_*_HOME/tdm
// 3. Platform defaults → ~/.config/tdm, ~/.local/state/tdm
package paths

import (
	"os"
	"path/filepath"
)

const appName = "tdm"

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if home := os.Getenv("TDM_HOME"); home != "" {
		return filepath.Join(home, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if home := os.Getenv("TDM_HOME"); home != "" {
		return filepath.Join(home, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// ConfigDir returns the tdm configuration directory.
// Used as the last place to look for tdm.yml.
func ConfigDir() string {
	base := getConfigHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// StateDir returns the tdm state directory.
// Used for the pid file, the secret key and logs.
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// RuntimeDir returns the tdm runtime directory for the control socket.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if home := os.Getenv("TDM_HOME"); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// LogDir returns the directory for daemon log files.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// SocketPath returns the path to the daemon control socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "tdm.sock")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "tdm.pid")
}

// SecretKeyPath returns the default location of the shared signing key.
func SecretKeyPath() string {
	return filepath.Join(StateDir(), "tdm.key")
}

// EnsureDirs creates all tdm directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		StateDir(),
		LogDir(),
		RuntimeDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
