package content

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-seeds the catalog whenever the seed directory changes.
type Watcher struct {
	dir      string
	catalog  Catalog
	log      *zap.Logger
	debounce time.Duration

	// reloaded is signalled after each reload attempt; tests hook it.
	reloaded func(n int, err error)
}

func NewWatcher(dir string, catalog Catalog, log *zap.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		catalog:  catalog,
		log:      log,
		debounce: 250 * time.Millisecond,
	}
}

// Run blocks until ctx is done. Bursts of file events are collapsed into a
// single reload after the debounce delay. A broken seed file is logged and
// the previously seeded content stays in place.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info("watching retreat seeds", zap.String("dir", w.dir))

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !isSeedFile(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			w.log.Debug("seed change", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			n, err := Seed(ctx, w.dir, w.catalog, w.log)
			if err != nil {
				w.log.Error("reload retreat seeds", zap.Error(err))
			}
			if w.reloaded != nil {
				w.reloaded(n, err)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("seed watcher error", zap.Error(err))

		case <-ctx.Done():
			return nil
		}
	}
}
