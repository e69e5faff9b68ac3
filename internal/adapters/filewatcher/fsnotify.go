// Package filewatcher provides file system monitoring adapters.
package filewatcher

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/pkg/logger"
)

// FSNotifyWatcher implements ports.FileWatcher using fsnotify.
// Editors often save by writing a temp file and renaming it over the
// original, so the directory is watched rather than the file itself.
type FSNotifyWatcher struct {
	watcher *fsnotify.Watcher
	names   map[string]struct{} // base names to report; empty means all
	log     logger.ILogger
}

var _ ports.FileWatcher = (*FSNotifyWatcher)(nil)

// NewFSNotifyWatcher creates a watcher that reports only the given file
// names (base names, e.g. "faqs.json").
func NewFSNotifyWatcher(names []string, log logger.ILogger) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[filepath.Base(n)] = struct{}{}
	}

	return &FSNotifyWatcher{
		watcher: w,
		names:   set,
		log:     log,
	}, nil
}

// Watch starts monitoring the directory and emits events.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan ports.FileEvent, 16)

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.isWatched(event.Name) {
					continue
				}

				var op ports.FileOperation
				switch {
				case event.Has(fsnotify.Create):
					op = ports.FileCreated
				case event.Has(fsnotify.Write):
					op = ports.FileModified
				case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
					op = ports.FileDeleted
				default:
					continue
				}

				select {
				case events <- ports.FileEvent{Path: event.Name, Operation: op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("watcher", "fsnotify error", map[string]interface{}{"error": err.Error(), "dir": dir})
			}
		}
	}()

	return events, nil
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *FSNotifyWatcher) isWatched(path string) bool {
	if len(w.names) == 0 {
		return true
	}
	_, ok := w.names[filepath.Base(path)]
	return ok
}
