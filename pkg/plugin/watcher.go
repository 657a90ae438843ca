package plugin

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-runs discovery against a source whenever the watched plugin
// directory changes. Because discovery is idempotent, rescanning after
// every burst of filesystem events is safe.
type Watcher struct {
	manager  *Manager
	source   Source
	dir      string
	debounce time.Duration
	log      *slog.Logger
}

// NewWatcher builds a watcher over dir that feeds rescans through source.
func NewWatcher(manager *Manager, source Source, dir string) *Watcher {
	return &Watcher{
		manager:  manager,
		source:   source,
		dir:      dir,
		debounce: 200 * time.Millisecond,
		log:      slog.Default(),
	}
}

// Run blocks until the context is cancelled, rescanning after filesystem
// events settle. Watcher setup errors are returned; per-rescan errors are
// logged and watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-fire:
			timer = nil
			fire = nil
			added, err := w.manager.Discover(ctx, w.source)
			if err != nil {
				w.log.Warn("plugin rescan failed", "dir", w.dir, "error", err)
				continue
			}
			if added > 0 {
				w.log.Info("plugin rescan registered new plugins", "dir", w.dir, "count", added)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("plugin directory watch error", "dir", w.dir, "error", err)
		}
	}
}
