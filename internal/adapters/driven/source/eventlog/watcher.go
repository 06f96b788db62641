package eventlog

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/helicon-labs/vectra/internal/logger"
)

// Watcher watches the event log tree and signals when segments or
// context files change. Signals are coalesced by the consumer, so a
// burst of writes collapsing into a single run is expected.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	triggers chan struct{}
	mu       sync.Mutex
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher over the source's event log root.
func NewWatcher(source *Source) *Watcher {
	return &Watcher{
		root:     source.root,
		triggers: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Triggers returns the channel that receives change signals.
func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

// Start begins watching. It runs until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	if err := w.addTreeLocked(w.root); err != nil {
		_ = w.watcher.Close()
		w.watcher = nil
		w.started = false
		w.mu.Unlock()
		return err
	}
	// Capture the channels while holding the lock: Stop nils out
	// w.watcher, so the run loop must not touch the field.
	events, errs := watcher.Events, watcher.Errors
	w.mu.Unlock()

	go w.run(ctx, events, errs)
	return nil
}

func (w *Watcher) run(ctx context.Context, events chan fsnotify.Event, errs chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				logger.Warn("Watcher error: %v", err)
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		// New container or segment directories must be added to the
		// watch set before their contents generate events.
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			if w.watcher != nil {
				if err := w.addTreeLocked(ev.Name); err != nil {
					logger.Warn("Watcher could not add %s: %v", ev.Name, err)
				}
			}
			w.mu.Unlock()
			w.signal()
			return
		}
		if isLogFile(ev.Name) {
			w.signal()
		}
	case ev.Op.Has(fsnotify.Write), ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		if isLogFile(ev.Name) {
			w.signal()
		}
	}
}

// signal sends a non-blocking trigger. A pending trigger already
// covers any change observed before the next run starts.
func (w *Watcher) signal() {
	select {
	case w.triggers <- struct{}{}:
	default:
	}
}

func isLogFile(path string) bool {
	return strings.HasSuffix(path, ".jsonl") || filepath.Base(path) == "context.json"
}

// addTreeLocked adds root and every directory below it to the watch
// set. The root is created if it does not exist yet.
func (w *Watcher) addTreeLocked(root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
