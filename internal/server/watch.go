package server

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// seedDebounce coalesces bursts of file events into one reload.
const seedDebounce = 100 * time.Millisecond

// watchSeeds reloads seeds whenever a CSV file in the seeds directory is
// written or created.
func (s *Server) watchSeeds(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	dir := s.engine.SeedsDir()
	if err := watcher.Add(dir); err != nil {
		s.logger.Error("failed to watch seeds directory", "dir", dir, "error", err)
		// Keep serving without reloads.
		<-ctx.Done()
		return nil
	}
	s.logger.Debug("watching seeds", "dir", dir)

	var (
		mu            sync.Mutex
		debounceTimer *time.Timer
	)
	defer func() {
		mu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Ext(event.Name) != ".csv" {
				continue
			}

			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(seedDebounce, func() {
				s.logger.Debug("seed changed, reloading", "file", event.Name)
				if _, err := s.reloadSeeds(ctx); err != nil {
					s.logger.Error("seed reload failed", "error", err)
				}
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}
