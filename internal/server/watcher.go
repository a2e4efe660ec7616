package server

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
)

// Watcher watches the catalog override directory and triggers a reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	onReload func(file string) error
	done     chan struct{}
	log      pslog.Logger
}

// NewWatcher creates a watcher for the YAML files in dir.
func NewWatcher(dir string, onReload func(string) error, logger pslog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  fsWatcher,
		dir:      dir,
		onReload: onReload,
		done:     make(chan struct{}),
		log:      logger,
	}, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				if ext := filepath.Ext(event.Name); ext != ".yaml" && ext != ".yml" {
					continue
				}

				file := filepath.Base(event.Name)
				w.log.Debug("catalog.watch.changed", "file", file, "op", event.Op.String())
				if err := w.onReload(file); err != nil {
					w.log.Warn("catalog.reload.failed", "file", file, "err", err)
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("catalog.watch.error", "err", err)

			case <-w.done:
				return
			}
		}
	}()
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
