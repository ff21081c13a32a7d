package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after a write event before
// reloading, so editors that write in multiple syscalls trigger one reload.
const DefaultDebounce = 100 * time.Millisecond

// Watch reloads the configuration whenever the config file changes on disk.
// It watches the parent directory rather than the file itself so that
// rename-and-replace saves keep working. Watch returns immediately; the
// watcher goroutine runs until Close is called.
func (m *Manager) Watch(logger *slog.Logger) error {
	if m.path == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	target, err := filepath.Abs(m.path)
	if err != nil {
		watcher.Close()
		return err
	}

	go m.watchLoop(watcher, target, logger)
	return nil
}

func (m *Manager) watchLoop(watcher *fsnotify.Watcher, target string, logger *slog.Logger) {
	defer watcher.Close()

	var pending *time.Timer
	for {
		select {
		case <-m.stopWatch:
			if pending != nil {
				pending.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || abs != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(DefaultDebounce, func() {
				if err := m.Reload(); err != nil {
					logger.Warn("config reload failed", "path", target, "error", err)
					return
				}
				logger.Info("config reloaded", "path", target)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}
