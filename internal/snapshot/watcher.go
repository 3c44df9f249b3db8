package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/signalsfoundry/fibertrace/internal/logging"
)

// Watcher calls a reload function whenever a snapshot file changes on disk.
// It watches the parent directory, so exports that replace the file by
// rename are picked up as well as in-place writes. Bursts of events are
// collapsed into one reload after the debounce window.
type Watcher struct {
	path     string
	debounce time.Duration
	reload   func(context.Context) error
	log      logging.Logger

	fsw *fsnotify.Watcher
}

// NewWatcher starts watching the directory of path. Call Run to process
// events and Close to release the watch.
func NewWatcher(path string, debounce time.Duration, reload func(context.Context) error, log logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Noop()
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return &Watcher{path: abs, debounce: debounce, reload: reload, log: log, fsw: fsw}, nil
}

// Run processes file events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			if err := w.reload(ctx); err != nil {
				w.log.Warn(ctx, "snapshot reload failed", logging.String("path", w.path), logging.Err(err))
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn(ctx, "snapshot watcher error", logging.Err(err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
