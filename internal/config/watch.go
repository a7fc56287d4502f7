package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce batches rapid write events (editors often emit several per
// save) into a single reload.
const watchDebounce = 250 * time.Millisecond

// Watcher reloads the routing configuration when the config file changes.
// The parent directory is watched rather than the file itself, because most
// editors and config-management tools replace the file via rename, which
// would otherwise detach the watch.
type Watcher struct {
	path   string
	logger *slog.Logger
	reload func() error
}

// NewWatcher creates a Watcher for the given config file. reload is invoked
// after changes settle; it must be safe to call from the watcher goroutine.
func NewWatcher(path string, logger *slog.Logger, reload func() error) *Watcher {
	return &Watcher{
		path:   filepath.Clean(path),
		logger: logger.With("component", "config_watcher"),
		reload: reload,
	}
}

// Run watches for changes until the context is cancelled. A failed reload is
// logged and the previous configuration stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.logger.Info("watching config file", "path", w.path)

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			if err := w.reload(); err != nil {
				w.logger.Error("config reload failed; keeping previous routes", "err", err)
				continue
			}
			w.logger.Info("config reloaded", "path", w.path)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", "err", err)
		}
	}
}
