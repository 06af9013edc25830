package config

import (
	"os"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches the loaded config file and logs drift. Most knobs here are
// process-lifetime fixed (segment layout, encryption key), so a changed file
// is surfaced to the operator rather than hot-applied.
type Watcher struct {
	fsw    *fsnotify.Watcher
	logger *zap.Logger
	done   chan struct{}
}

// WatchFile starts watching path for writes/renames, logging each event.
// Call Close to stop. A missing path (no config file was loaded) is a no-op.
func WatchFile(path string, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		return &Watcher{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Watcher{}, nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &Watcher{fsw: fsw, logger: logger, done: make(chan struct{})}
	go w.run(path)
	return w, nil
}

func (w *Watcher) run(path string) {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Rename) != 0 {
				w.logger.Warn("config file changed on disk; restart to apply",
					zap.String("path", path), zap.String("op", event.Op.String()))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watch error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher. Safe to call on a no-op Watcher.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	close(w.done)
	return w.fsw.Close()
}
