package source

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Unidata/tds-sub001/pkg/models"
	"github.com/fsnotify/fsnotify"
	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"
)

// DefaultSettle is the quiet period used when a WatchSpec has none.
const DefaultSettle = 500 * time.Millisecond

// WatchSpec describes the directories that feed one collection.
type WatchSpec struct {
	Collection string
	UpdateType models.UpdateType
	Dirs       []string
	// Include lists file name patterns that count as changes. Empty means
	// every file. Patterns prefixed with ! exclude.
	Include []string
	// Settle collapses a burst of file events into one update event.
	Settle time.Duration
}

type watchEntry struct {
	spec    WatchSpec
	matcher *patternmatcher.PatternMatcher
}

// WatchSource turns file system changes into update events. Directories are
// watched non-recursively.
type WatchSource struct {
	entries []*watchEntry
	byDir   map[string][]*watchEntry
	logger  *logrus.Entry

	mu     sync.Mutex
	timers map[string]*time.Timer
	// pending counts settle callbacks that are scheduled or running.
	pending sync.WaitGroup
}

// NewWatchSource validates the include patterns and returns a WatchSource.
func NewWatchSource(specs []WatchSpec, logger *logrus.Entry) (*WatchSource, error) {
	w := &WatchSource{
		byDir:  make(map[string][]*watchEntry),
		logger: logger,
		timers: make(map[string]*time.Timer),
	}

	for _, spec := range specs {
		if len(spec.Dirs) == 0 {
			continue
		}
		if spec.Settle <= 0 {
			spec.Settle = DefaultSettle
		}

		entry := &watchEntry{spec: spec}
		if len(spec.Include) > 0 {
			pm, err := patternmatcher.New(spec.Include)
			if err != nil {
				return nil, fmt.Errorf("invalid include pattern for collection %s: %w", spec.Collection, err)
			}
			entry.matcher = pm
		}

		w.entries = append(w.entries, entry)
		for _, dir := range spec.Dirs {
			dir = filepath.Clean(dir)
			w.byDir[dir] = append(w.byDir[dir], entry)
		}
	}
	return w, nil
}

// Name implements Source.
func (w *WatchSource) Name() string { return "watch" }

// Len returns the number of watched collections.
func (w *WatchSource) Len() int { return len(w.entries) }

// Run implements Source. It returns only after every settle callback has
// finished, so handler is never called once Run has returned.
func (w *WatchSource) Run(ctx context.Context, handler Handler) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for dir := range w.byDir {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.logger.WithField("dir", dir).Debug("Watching directory")
	}

	defer func() {
		w.stopTimers()
		w.pending.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.handle(ctx, event.Name, handler)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("Watcher error")
		}
	}
}

func (w *WatchSource) handle(ctx context.Context, file string, handler Handler) {
	base := filepath.Base(file)
	for _, entry := range w.byDir[filepath.Dir(file)] {
		if !entry.matches(base) {
			continue
		}
		w.logger.WithFields(logrus.Fields{
			"collection": entry.spec.Collection,
			"file":       base,
		}).Debug("File change")
		w.settle(ctx, entry.spec, handler)
	}
}

func (e *watchEntry) matches(name string) bool {
	if e.matcher == nil {
		return true
	}
	ok, err := e.matcher.MatchesOrParentMatches(name)
	return err == nil && ok
}

// settle (re)starts the collection's quiet-period timer. The event is
// emitted once no file has changed for spec.Settle.
func (w *WatchSource) settle(ctx context.Context, spec WatchSpec, handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[spec.Collection]; ok && t.Stop() {
		w.pending.Done()
	}
	w.pending.Add(1)
	w.timers[spec.Collection] = time.AfterFunc(spec.Settle, func() {
		defer w.pending.Done()
		if ctx.Err() != nil {
			return
		}
		handler(models.NewUpdateEvent(spec.Collection, spec.UpdateType, w.Name()))
	})
}

func (w *WatchSource) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, t := range w.timers {
		if t.Stop() {
			w.pending.Done()
		}
		delete(w.timers, name)
	}
}
