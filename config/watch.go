package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"vadcap/log"
)

// reloadDelay lets an editor finish writing before the file is read.
const reloadDelay = 50 * time.Millisecond

// Watch reloads the YAML file at path each time it is written and passes the
// result to fn. Every reload starts from a copy of base, so keys missing from
// the file keep base's values. A file that fails to load or validate is
// logged and skipped. Watch returns nil when ctx is done.
func Watch(ctx context.Context, path string, base Config, fn func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: watch %q: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %q: %w", filepath.Dir(abs), err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.After(reloadDelay)

		case <-pending:
			pending = nil
			cfg := base
			if err := Load(abs, &cfg); err != nil {
				log.Warnf("config reload: %v", err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				log.Warnf("config reload: %v", err)
				continue
			}
			fn(&cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("config watch: %v", err)
		}
	}
}
