package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads filename whenever it changes on disk and hands the freshly
// validated value to onChange. fresh returns the base value each reload
// starts from. A file that fails to load is logged and skipped.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file via rename are still picked up.
func Watch[T any](ctx context.Context, filename string, fresh func() *T, logger *slog.Logger, onChange func(*T)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(filename)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watch %s: %w", target, err)
	}

	logger.Info("config: watching", slog.String("path", target))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(reloadDebounce)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(reloadDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("config: watcher stopped")
			return nil

		case <-reloadCh:
			cfg := fresh()
			if err := Load(target, cfg); err != nil {
				logger.Warn("config: reload failed", slog.String("path", target), slog.String("error", err.Error()))
				continue
			}
			logger.Info("config: reloaded", slog.String("path", target))
			onChange(cfg)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("config: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
