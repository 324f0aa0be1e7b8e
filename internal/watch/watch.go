// Package watch triggers rebuilds when the input tree changes.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/sitepress/internal/logfields"
)

const defaultDebounce = 500 * time.Millisecond

// Rebuild is the action a watcher triggers. Errors are logged, not fatal:
// a broken edit mid-save must not kill the watch loop.
type Rebuild func(ctx context.Context) error

// Watcher rebuilds on filesystem changes under the input root, debounced so
// editor save bursts coalesce into one run. An optional interval adds
// scheduled rebuilds, which catches changes filesystem events cannot see
// (remote fetches, git sources).
type Watcher struct {
	root     string
	debounce time.Duration
	interval time.Duration
	rebuild  Rebuild
	logger   *slog.Logger
}

// New creates a watcher over root. interval may be zero to disable
// scheduled rebuilds.
func New(root string, debounce, interval time.Duration, rebuild Rebuild) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		interval: interval,
		rebuild:  rebuild,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	w.logger = logger
	return w
}

// Run watches until ctx is cancelled. The initial rebuild runs before
// watching starts so the output is current from the first moment.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := addRecursive(fw, w.root); err != nil {
		return err
	}

	w.runRebuild(ctx)

	var scheduler gocron.Scheduler
	trigger := make(chan struct{}, 1)
	if w.interval > 0 {
		scheduler, err = gocron.NewScheduler()
		if err != nil {
			return err
		}
		_, err = scheduler.NewJob(
			gocron.DurationJob(w.interval),
			gocron.NewTask(func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			}),
		)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() { _ = scheduler.Shutdown() }()
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) {
				// New directories need their own watches.
				_ = addRecursive(fw, ev.Name)
			}
			w.logger.Debug("Change detected", logfields.Path(ev.Name))
			if pending {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watch error", logfields.Error(err))

		case <-timer.C:
			pending = false
			w.runRebuild(ctx)

		case <-trigger:
			w.runRebuild(ctx)
		}
	}
}

func (w *Watcher) runRebuild(ctx context.Context) {
	if err := w.rebuild(ctx); err != nil {
		w.logger.Error("Rebuild failed", logfields.Error(err))
	}
}

// addRecursive watches dir and every directory below it. Non-directories
// are ignored so Create events for files can be passed through unchecked.
func addRecursive(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Races with deletions are expected while watching.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return fw.Add(path)
	})
}
