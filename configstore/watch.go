package configstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the file at path into s every time it is written or replaced, until ctx
// is done. env overrides are applied on top of each reload, as at startup. A reload that
// fails keeps the current configuration and is logged.
func (s *Store) Watch(ctx context.Context, path string, env map[string]string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("configstore: watch %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("configstore: watch: %w", err)
	}
	defer func() { _ = w.Close() }()
	// Editors often replace the file, so watch its directory.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("configstore: watch %s: %w", path, err)
	}
	s.logger.DebugContext(ctx, "llmrelay.config_watch_started", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reload(ctx, abs, env)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.WarnContext(ctx, "llmrelay.config_watch_error", "error", err)
		}
	}
}

func (s *Store) reload(ctx context.Context, path string, env map[string]string) {
	cfg, err := LoadFile(path)
	if err == nil {
		cfg, err = ApplyEnv(cfg, env)
	}
	if err == nil {
		err = s.Set(cfg)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "llmrelay.config_reload_failed", "path", path, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "llmrelay.config_reloaded", "path", path, "provider", cfg.Provider)
}
