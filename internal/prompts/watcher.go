package prompts

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sttmforge/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates a Loader's cache when files under its template
// directory change.
type Watcher struct {
	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	loader    *Loader
	debounce  time.Duration
	pending   bool
	lastEvent time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool

	stats WatcherStats
}

// WatcherStats counts watcher activity.
type WatcherStats struct {
	Events        int
	Invalidations int
	Errors        int
	LastEventPath string
}

// NewWatcher creates a watcher for loader's template directory.
func NewWatcher(loader *Loader) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		loader:   loader,
		debounce: 300 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start watches the template tree. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.loader.Dir()); err != nil {
		logging.PromptsWarn("template watch failed for %s: %v (continuing without reload)", w.loader.Dir(), err)
	} else {
		logging.Prompts("watching templates in %s", w.loader.Dir())
	}

	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryPrompts).Error("error closing template watcher: %v", err)
	}
	logging.Prompts("template watcher stopped")
}

// Stats returns a snapshot of watcher counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// addTree watches root and every directory below it; fsnotify is not
// recursive.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(p)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryPrompts).Error("template watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	logging.PromptsDebug("template event %s on %s", event.Op, event.Name)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logging.PromptsWarn("failed to watch new directory %s: %v", event.Name, err)
			}
		}
	}

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventPath = event.Name
	w.pending = true
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

// flush invalidates the cache once events have settled.
func (w *Watcher) flush() {
	w.mu.Lock()
	if !w.pending || time.Since(w.lastEvent) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.stats.Invalidations++
	w.mu.Unlock()

	w.loader.Invalidate()
	logging.Prompts("templates changed, cache invalidated")
}
