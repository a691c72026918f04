package internal

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	pkgconfig "github.com/soramir/inkwell/pkg/config"
)

// watchConfig watches the config file for changes and calls apply with
// every successfully reloaded configuration until ctx is cancelled. The
// containing directory is watched rather than the file itself, because
// editors typically replace the file on save. Invalid edits are logged
// and ignored; the previous settings stay active.
func watchConfig(ctx context.Context, path string, logger *slog.Logger, apply func(*Config)) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watcher: init failed", slog.String("error", err.Error()))
		return
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		logger.Warn("config watcher: watch failed",
			slog.String("dir", dir), slog.String("error", err.Error()))
		return
	}

	logger.Info("config watcher: started", slog.String("path", path))

	// Debounce bursts of write events from a single save.
	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("config watcher: stopped")
			return

		case <-reloadCh:
			cfg := NewDefaultConfig()
			if err := pkgconfig.Load(path, cfg); err != nil {
				logger.Warn("config watcher: reload rejected", slog.String("error", err.Error()))
				continue
			}
			apply(cfg)

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher: error", slog.String("error", err.Error()))
		}
	}
}
