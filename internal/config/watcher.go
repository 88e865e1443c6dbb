package config

import (
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/bridgeport-dev/bridgeport/internal/logging"
	"github.com/bridgeport-dev/bridgeport/pkg/types"
)

// Watcher reloads the configuration when a config file changes and hands the
// fresh copy to the registered callback.
type Watcher struct {
	watcher   *fsnotify.Watcher
	directory string
	onChange  func(*types.Config)

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// NewWatcher creates a watcher over the global and project config
// directories. onChange is invoked with the re-loaded configuration; load
// failures are logged and skipped.
func NewWatcher(directory string, onChange func(*types.Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs := []string{GetPaths().Config}
	if directory != "" {
		dirs = append(dirs, directory, filepath.Join(directory, ".bridgeport"))
	}
	for _, dir := range dirs {
		// Missing directories are fine; they may appear later but we only
		// watch what exists at startup.
		if err := w.Add(dir); err != nil {
			logging.Debug().Str("dir", dir).Err(err).Msg("not watching config dir")
		}
	}

	return &Watcher{
		watcher:   w,
		directory: directory,
		onChange:  onChange,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins watching. Safe to call once.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !isConfigFile(ev.Name) {
				continue
			}
			logging.Info().Str("file", ev.Name).Msg("config file changed, reloading")
			cfg, err := Load(w.directory)
			if err != nil {
				logging.Warn().Err(err).Msg("config reload failed, keeping previous")
				continue
			}
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// Stop ends watching and waits for the run loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		w.watcher.Close()
		return
	}
	w.started = false
	close(w.stopCh)
	w.watcher.Close()
	<-w.doneCh
}

func isConfigFile(path string) bool {
	return slices.Contains(configFileNames(), filepath.Base(path))
}
