package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/nexusshell/corectl/pkg/log"
)

// Watcher reloads a Config from disk whenever its backing file changes,
// feeding the daemon's SIGHUP/config_reload path (nexusd re-reads
// DaemonConfig on SIGHUP via its own fsnotify-driven watch).
type Watcher struct {
	path    string
	onEvent func(Config)
	watcher *fsnotify.Watcher
}

// NewWatcher starts watching path. onEvent fires with the freshly reloaded
// Config each time the file is written; reload errors are logged and
// otherwise ignored so a transient bad write doesn't crash the daemon.
func NewWatcher(path string, onEvent func(Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: path, onEvent: onEvent, watcher: fw}, nil
}

// Run blocks, dispatching reloads until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	logger := log.WithComponent("config-watcher")
	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				logger.Warn().Err(err).Msg("config reload failed, keeping previous configuration")
				continue
			}
			if err := cfg.Validate(); err != nil {
				logger.Warn().Err(err).Msg("reloaded configuration is invalid, keeping previous configuration")
				continue
			}
			w.onEvent(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
