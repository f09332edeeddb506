package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the bursts of events editors emit on save.
const watchDebounce = 250 * time.Millisecond

// Watch calls load whenever one of paths is written, created, renamed or
// removed, and hands each successful result to apply. Directories are
// watched rather than files so atomic renames are seen. A failed reload is
// logged and the previous configuration stays in effect. Watch returns when
// ctx is cancelled.
func Watch(ctx context.Context, paths []string, load func() (*Config, error), apply func(*Config), logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer watcher.Close()

	targets := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		targets[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			logger.Warn("config watch skipped directory", "dir", dir, "error", err)
			continue
		}
		dirs[dir] = true
	}
	if len(dirs) == 0 {
		<-ctx.Done()
		return nil
	}

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(ev.Name)] || ev.Op == fsnotify.Chmod {
				continue
			}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", "error", err)

		case <-timer.C:
			cfg, err := load()
			if err != nil {
				logger.Error("config reload failed", "error", err)
				continue
			}
			logger.Info("config reloaded")
			apply(cfg)
		}
	}
}
