package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay debounces bursts of filesystem events into one reload.
const reloadDelay = 500 * time.Millisecond

// Watch starts watching manifest sources and triggers a reload on
// change. Each reload parses all sources and hands the result to
// reloadFn; reload failures are logged, not fatal. Watching stops when
// ctx is cancelled or StopWatching is called.
func (l *Loader) Watch(ctx context.Context, sources []string, reloadFn func(*ParsedManifest) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	l.watcher = watcher

	for _, path := range sources {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			if err := l.watchDirectory(path); err != nil {
				l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
		} else {
			if err := watcher.Add(path); err != nil {
				l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
			}
		}
	}

	go l.processEvents(ctx, sources, reloadFn)

	l.logger.Info().
		Int("paths", len(sources)).
		Msg("Started watching manifest sources")

	return nil
}

// watchDirectory adds a directory tree to the watcher. Watching the
// directories is enough; fsnotify reports events for files inside.
func (l *Loader) watchDirectory(dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return l.watcher.Add(path)
		}

		return nil
	})
}

// processEvents processes file system events and triggers reloads.
func (l *Loader) processEvents(ctx context.Context, sources []string, reloadFn func(*ParsedManifest) error) {
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if l.watcher != nil {
				_ = l.watcher.Close()
			}
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}

			// Only reload on write or create events for .cue files.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".cue") {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Manifest file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := l.triggerReload(ctx, sources, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload manifest")
				}
			})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// triggerReload reloads all manifest sources and applies the result.
func (l *Loader) triggerReload(ctx context.Context, sources []string, reloadFn func(*ParsedManifest) error) error {
	l.logger.Info().Msg("Reloading manifest...")

	parsed, err := l.Load(ctx, sources)
	if err != nil {
		return fmt.Errorf("failed to reload manifest: %w", err)
	}

	if err := reloadFn(parsed); err != nil {
		return fmt.Errorf("failed to apply reloaded manifest: %w", err)
	}

	l.logger.Info().
		Int("components", len(parsed.Components)).
		Msg("Manifest reloaded")

	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
