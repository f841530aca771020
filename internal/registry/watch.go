package registry

import (
	"context"

	"tilepilot/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads the manifest whenever the file changes on disk, until ctx is
// cancelled. A registry running on the embedded default has nothing to watch
// and returns immediately.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(r.path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.reload(); err != nil {
					logging.RegistryWarn("manifest reload failed, keeping previous: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.RegistryWarn("manifest watch error: %v", err)
			}
		}
	}()
	return nil
}
