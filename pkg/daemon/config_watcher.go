package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultConfigDebounce collapses the multiple events editors emit per save.
const DefaultConfigDebounce = 100 * time.Millisecond

// ConfigWatcher watches the directory of the daemon's config file and
// reports edits to the config file and its override.
type ConfigWatcher struct {
	watcher      *fsnotify.Watcher
	debounce     time.Duration
	lastChange   time.Time
	mu           sync.Mutex
	logger       *logrus.Entry
	onReload     func(file string) // Callback to broadcast event
	names        map[string]bool   // Base names that count as config files
	targetToLink map[string]string // Maps target file paths to their symlink names in config dir
	configDir    string
}

// NewConfigWatcher creates a ConfigWatcher for configFile. The debounce
// parameter controls how long to wait before processing rapid changes.
// The onReload callback receives the base name of the changed file.
// Symlinked config files are followed by watching their target directory.
func NewConfigWatcher(configFile string, debounce time.Duration, onReload func(string), logger *logrus.Entry) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	configDir := filepath.Dir(configFile)
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, err
	}

	base := filepath.Base(configFile)
	ext := filepath.Ext(base)
	names := map[string]bool{base: true}
	for _, e := range []string{".yml", ".yaml", ".toml"} {
		names["tdm.override"+e] = true
	}

	// fsnotify doesn't follow symlinks, so we need to watch targets explicitly
	watchedDirs := map[string]bool{configDir: true}
	targetToLink := make(map[string]string)
	for name := range names {
		fullPath := filepath.Join(configDir, name)
		info, err := os.Lstat(fullPath)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := filepath.EvalSymlinks(fullPath)
		if err != nil {
			logger.WithError(err).Warnf("Failed to resolve symlink %s", name)
			continue
		}
		targetToLink[target] = name

		targetDir := filepath.Dir(target)
		if !watchedDirs[targetDir] {
			if err := watcher.Add(targetDir); err != nil {
				logger.WithError(err).Warnf("Failed to watch symlink target dir %s", targetDir)
			} else {
				watchedDirs[targetDir] = true
				logger.Debugf("Watching symlink target directory: %s", targetDir)
			}
		}
	}

	if debounce <= 0 {
		debounce = DefaultConfigDebounce
	}
	logger.WithFields(logrus.Fields{"file": base, "format": strings.TrimPrefix(ext, ".")}).Debug("Watching config file")

	return &ConfigWatcher{
		watcher:      watcher,
		debounce:     debounce,
		logger:       logger,
		onReload:     onReload,
		names:        names,
		targetToLink: targetToLink,
		configDir:    configDir,
	}, nil
}

// Start begins watching for config changes. It blocks until the context is cancelled.
func (w *ConfigWatcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Map target file changes back to symlink names
			name := filepath.Base(event.Name)
			if linkName, ok := w.targetToLink[event.Name]; ok {
				name = linkName
			}
			if w.names[name] {
				w.handleChange(filepath.Join(w.configDir, name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

// handleChange processes a config file change with debouncing.
func (w *ConfigWatcher) handleChange(file string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Debounce rapid writes
	elapsed := time.Since(w.lastChange)
	if elapsed < w.debounce {
		w.logger.Debugf("Debounced: %s (only %v since last change)", filepath.Base(file), elapsed)
		return
	}
	w.lastChange = time.Now()

	w.logger.Infof("Config changed: %s (restart the daemon to apply)", filepath.Base(file))

	if w.onReload != nil {
		w.onReload(filepath.Base(file))
	}
}

// Close stops the watcher and releases resources.
func (w *ConfigWatcher) Close() error {
	return w.watcher.Close()
}
