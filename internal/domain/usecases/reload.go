package usecases

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/0xcro3dile/faqroute/internal/domain/ports"
	"github.com/0xcro3dile/faqroute/internal/pkg/logger"
)

// Reloader rebuilds the knowledge base whenever the FAQ file changes.
type Reloader struct {
	kb       *KnowledgeBase
	source   ports.EntrySource
	watcher  ports.FileWatcher
	repo     ports.SnapshotRepository // optional
	path     string
	debounce time.Duration
	log      logger.ILogger
}

// NewReloader wires a reloader for path. repo may be nil when snapshots
// are not persisted.
func NewReloader(kb *KnowledgeBase, source ports.EntrySource, watcher ports.FileWatcher, repo ports.SnapshotRepository, path string, log logger.ILogger) *Reloader {
	if log == nil {
		log = logger.NewNop()
	}
	return &Reloader{
		kb:       kb,
		source:   source,
		watcher:  watcher,
		repo:     repo,
		path:     path,
		debounce: 300 * time.Millisecond,
		log:      log,
	}
}

// Reload reads the FAQ file once and swaps in a new snapshot.
func (r *Reloader) Reload(ctx context.Context) error {
	entries, err := r.source.Load(ctx, r.path)
	if err != nil {
		return fmt.Errorf("loading %s: %w", r.path, err)
	}
	store, err := r.kb.Rebuild(ctx, entries)
	if err != nil {
		return err
	}
	if r.repo != nil {
		if err := r.kb.Save(ctx, r.repo); err != nil {
			return err
		}
	}
	r.log.Info("reload", "knowledge base reloaded", map[string]interface{}{"path": r.path, "entries": store.Len()})
	return nil
}

// Run watches the FAQ file's directory until ctx is cancelled. Bursts of
// events (editors write several times per save) collapse into one reload.
// A failed reload keeps the previous snapshot serving.
func (r *Reloader) Run(ctx context.Context) error {
	events, err := r.watcher.Watch(ctx, filepath.Dir(r.path))
	if err != nil {
		return fmt.Errorf("watching %s: %w", r.path, err)
	}

	timer := time.NewTimer(r.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Operation == ports.FileDeleted {
				r.log.Warn("reload", "FAQ file removed, keeping current snapshot", map[string]interface{}{"path": ev.Path})
				continue
			}
			timer.Reset(r.debounce)
		case <-timer.C:
			if err := r.Reload(ctx); err != nil {
				r.log.Error("reload", "reload failed", map[string]interface{}{"error": err.Error(), "path": r.path})
			}
		}
	}
}
