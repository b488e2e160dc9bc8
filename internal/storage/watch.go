package storage

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lehigh-university-libraries/ragtest/internal/results"
)

// Watch reloads the store whenever a results file in dir is created,
// rewritten or removed. Bursts of events within debounce collapse into one
// reload. onReload, if set, is called with the new run count. Watch returns
// once the watcher is running; it stops when ctx is done.
func (s *RunStore) Watch(ctx context.Context, dir string, debounce time.Duration, onReload func(int)) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			n, err := s.Load(dir)
			if err != nil {
				slog.Warn("Reloading runs failed", "dir", dir, "err", err)
				return
			}
			slog.Info("Reloaded saved runs", "dir", dir, "runs", n)
			if onReload != nil {
				onReload(n)
			}
		})
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !results.IsResultsFile(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					scheduleReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Results watch error", "err", err)
			}
		}
	}()

	return nil
}
