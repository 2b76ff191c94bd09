// Package filewatcher watches a JSON route-spec file and publishes a new
// snapshot whenever the file changes ("conffile mode").
package filewatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/vpcrouter/vpcrouter/internal/models"
	"github.com/vpcrouter/vpcrouter/pkg/coalesce"
)

type Watcher struct {
	path  string
	specs *coalesce.Chan[models.RouteSpec]

	fsw     *fsnotify.Watcher
	started atomic.Bool
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

func New(path string) *Watcher {
	return &Watcher{
		path:  filepath.Clean(path),
		specs: coalesce.New[models.RouteSpec](),
		stop:  make(chan struct{}),
	}
}

// Start reads the file once (a spec file that cannot be read at startup
// is a configuration problem, not a transient one) and then watches the
// containing directory. Watching the directory rather than the file
// survives editors that write via rename.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := w.reload(); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.fsw = fsw
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

func (w *Watcher) Stop() {
	w.stopped.Do(func() {
		close(w.stop)
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
	})
	w.wg.Wait()
	w.specs.Close()
}

func (w *Watcher) RouteSpecs() <-chan models.RouteSpec {
	return w.specs.Recv()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := w.reload(); err != nil {
				// keep the last good spec published, a broken edit
				// must not wipe the routes
				log.Error().Err(err).Msgf("ignoring unusable route spec file %s", w.path)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("fs watcher error")
		}
	}
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("failed to read route spec file: %w", err)
	}
	spec, err := models.ParseRouteSpec(data)
	if err != nil {
		return err
	}
	log.Debug().Msgf("loaded route spec with %d cidrs from %s", len(spec), w.path)
	w.specs.Send(spec)
	return nil
}
