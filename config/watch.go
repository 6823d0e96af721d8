package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path whenever it changes and applies its engine section to
// engine. Other sections need a restart. It blocks until ctx is done.
// A file that fails to load is logged and the previous settings are kept.
func Watch(ctx context.Context, path string, engine *EngineConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()

	// Editors replace files by rename, so watch the directory.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isReload(ev, path) {
				continue
			}
			reload(path, engine, logger)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config.watch.error", "error", err)
		}
	}
}

// isReload reports whether ev changes the watched file's contents.
func isReload(ev fsnotify.Event, path string) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(path) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)
}

func reload(path string, engine *EngineConfig, logger *slog.Logger) {
	cfg, err := Load(path)
	if err != nil {
		logger.Warn("config.reload.failed", "path", path, "error", err)
		return
	}
	engine.Apply(cfg.Engine)
	logger.Info("config.reload.applied",
		"path", path,
		"cache", cfg.Engine.Cache,
		"simd", cfg.Engine.SIMD,
		"concurrency", cfg.Engine.Concurrency,
	)
}
