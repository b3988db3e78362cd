// Package watch re-runs the fixer on Python files as they are saved.
package watch

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Alok/autoflake/internal/output"
	"github.com/Alok/autoflake/pkg/config"
	"github.com/Alok/autoflake/pkg/parser"
)

// DefaultDebounce is how long a file must stay quiet before it is handed
// to the callback.
const DefaultDebounce = 500 * time.Millisecond

// Callback receives the files that settled since the last call, sorted.
type Callback func(ctx context.Context, paths []string)

// Watcher monitors directory trees for changed Python files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	config    *config.Config
	debounce  time.Duration
	roots     []string
	callback  Callback
	status    *output.Status
	mu        sync.Mutex
	pending   map[string]time.Time
}

// NewWatcher creates a watcher over roots. A nil status discards messages.
func NewWatcher(roots []string, cfg *config.Config, debounce time.Duration, status *output.Status) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if status == nil {
		status = output.NewStatus(io.Discard, false, true, false)
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		config:    cfg,
		debounce:  debounce,
		roots:     roots,
		status:    status,
		pending:   make(map[string]time.Time),
	}, nil
}

// SetCallback sets the function to call when files change.
func (w *Watcher) SetCallback(cb Callback) {
	w.callback = cb
}

// Start watches until ctx is done. It returns nil on cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			return err
		}
	}

	w.status.Info("Watching for changes in %d directories...", len(w.WatchedDirs()))
	w.status.Info("Press Ctrl+C to stop")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.processDebounced(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.status.Error("Watch error: %v", err)
		}
	}
}

// addTree watches root and every directory below it that is not excluded.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.excludedDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) excludedDir(name string) bool {
	return slices.Contains(w.config.Exclude.Dirs, name)
}

// handleEvent processes a filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// In-place rewrites land as a rename onto the target, which is a Create.
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	path := event.Name

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.excludedDir(filepath.Base(path)) {
				if err := w.addTree(path); err != nil {
					w.status.Warning("cannot watch %s: %v", path, err)
				}
			}
			return
		}
	}

	if !parser.IsPythonFile(path) || w.config.ShouldExclude(path) {
		return
	}

	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// processDebounced hands over pending changes after the debounce period.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounce / 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ready := w.takeReady(time.Now()); len(ready) > 0 && w.callback != nil {
				w.callback(ctx, ready)
			}
		}
	}
}

// takeReady removes and returns the files quiet for at least the debounce
// period as of now.
func (w *Watcher) takeReady(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, lastMod := range w.pending {
		if now.Sub(lastMod) >= w.debounce {
			ready = append(ready, path)
		}
	}
	for _, path := range ready {
		delete(w.pending, path)
	}
	slices.Sort(ready)
	return ready
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.fsWatcher.WatchList()
}
