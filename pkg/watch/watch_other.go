//go:build !linux && !darwin

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watcher polls modification times.
type Watcher struct {
	mu       sync.Mutex
	watchMap map[string]time.Time
	*debouncer
}

func New(onChange func(path string)) (*Watcher, error) {
	return &Watcher{
		watchMap:  make(map[string]time.Time),
		debouncer: newDebouncer(onChange),
	}, nil
}

func (w *Watcher) Add(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	var mod time.Time
	if info, err := os.Stat(absPath); err == nil {
		mod = info.ModTime()
	}
	w.mu.Lock()
	w.watchMap[absPath] = mod
	w.mu.Unlock()
	return nil
}

// Watch polls until ctx is done.
func (w *Watcher) Watch(ctx context.Context) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.checkFiles()
		case <-ctx.Done():
			w.stop()
			return ctx.Err()
		}
	}
}

func (w *Watcher) checkFiles() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, last := range w.watchMap {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(last) {
			w.watchMap[path] = info.ModTime()
			w.trigger(path)
		}
	}
}

func (w *Watcher) Close() error {
	w.stop()
	return nil
}
