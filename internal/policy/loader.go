package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Load reads a policy file. Keys missing from the file keep their defaults.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	return p, nil
}

// Watch reloads path into store whenever the file changes, until ctx is
// cancelled. The parent directory is watched so editors that save via
// rename are picked up. A reload that fails keeps the previous policy.
func Watch(ctx context.Context, path string, store *Store) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch policy directory: %w", err)
	}

	slog.Info("policy: watching for changes", "path", abs)

	debounce := time.NewTimer(0)
	<-debounce.C

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// Wait for 100ms of inactivity before reloading
				debounce.Reset(100 * time.Millisecond)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("policy: watcher error", "error", err)

		case <-debounce.C:
			p, err := Load(abs)
			if err != nil {
				slog.Error("policy: reload failed, keeping previous policy", "path", abs, "error", err)
				continue
			}
			store.Set(p)
			slog.Info("policy: reloaded",
				"path", abs,
				"room_access", string(p.RoomAccess),
				"events_per_second", p.Rate.EventsPerSecond,
			)
		}
	}
}
