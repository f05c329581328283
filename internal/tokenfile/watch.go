package tokenfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange whenever the token file at path is created, written,
// or renamed into place by another process. It watches the parent directory
// because Save replaces the file via rename, which drops inode-level watches.
// Blocks until ctx is canceled.
func Watch(ctx context.Context, path string, onChange func(), logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tokenfile: creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("tokenfile: watching %s: %w", dir, err)
	}

	name := filepath.Clean(path)

	logger.Debug("watching token file", slog.String("path", name))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != name {
				continue
			}

			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				logger.Debug("token file changed",
					slog.String("path", name),
					slog.String("op", ev.Op.String()),
				)
				onChange()
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("token file watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
