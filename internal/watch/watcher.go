// Package watch monitors the currently loaded Java source file so the
// chat session can warn when generated tests may be stale.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"testsmith/internal/logging"
)

// Event describes a change to the watched source file.
type Event struct {
	Path    string
	Removed bool
}

// SourceWatcher watches one source file at a time. Changing the watched
// file is done by calling Watch again; events arrive on Events().
type SourceWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	lastSeen time.Time
	debounce time.Duration
	events   chan Event
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// New creates a SourceWatcher.
func New() (*SourceWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &SourceWatcher{
		watcher:  w,
		debounce: 500 * time.Millisecond, // collapse rapid editor saves
		events:   make(chan Event, 8),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Events returns the channel change notifications arrive on.
func (w *SourceWatcher) Events() <-chan Event {
	return w.events
}

// Start begins the event loop. Non-blocking.
func (w *SourceWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Watch switches the watcher to a new source file, replacing any previous
// watch. Watching the parent directory catches editors that replace the
// file on save.
func (w *SourceWatcher) Watch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.path != "" {
		prevDir := filepath.Dir(w.path)
		if err := w.watcher.Remove(prevDir); err != nil {
			logging.Watch("failed to unwatch %s: %v", prevDir, err)
		}
	}

	w.path = path
	if path == "" {
		return nil
	}

	if err := w.watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	logging.Watch("watching %s", path)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *SourceWatcher) Stop() {
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
		logging.Watch("error closing watcher: %v", err)
	}
}

func (w *SourceWatcher) run(ctx context.Context) {
	// Closing events lets receivers blocked on Events() observe shutdown.
	defer close(w.doneCh)
	defer close(w.events)

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
			logging.Watch("watch error: %v", err)
		}
	}
}

func (w *SourceWatcher) handleEvent(event fsnotify.Event) {
	w.mu.Lock()
	watched := w.path
	if watched == "" || event.Name != watched {
		w.mu.Unlock()
		return
	}

	now := time.Now()
	if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		if now.Sub(w.lastSeen) < w.debounce {
			w.mu.Unlock()
			return
		}
		w.lastSeen = now
	}
	w.mu.Unlock()

	var ev Event
	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		ev = Event{Path: watched, Removed: true}
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		ev = Event{Path: watched}
	default:
		return
	}

	// Drop the event rather than block the loop
	select {
	case w.events <- ev:
	default:
	}
}
