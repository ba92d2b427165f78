package engine

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// watchDebounce coalesces bursts of file events (editors write + rename)
// into one reload.
const watchDebounce = 500 * time.Millisecond

// Watch reloads the knowledge base whenever a JSON document under dir
// changes. It blocks until ctx is done and is intended to run in its own
// goroutine.
func (e *Engine) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "watch %s", dir)
	}
	e.logger.Info("watching knowledge directory", "dir", dir)

	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(filepath.Base(event.Name), ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("knowledge watcher error", "error", err)
		case <-debounce.C:
			if _, err := e.Reload(ctx); err != nil {
				e.logger.Error("watch-triggered reload failed", "error", err)
			}
		}
	}
}
