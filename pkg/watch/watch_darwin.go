//go:build darwin

package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// Watcher reports writes to files through kqueue. A file replaced under
// the same name is watched again and reported as changed.
type Watcher struct {
	kq       int
	mu       sync.Mutex
	watchMap map[int]string
	lost     map[string]bool // paths waiting to be re-added
	*debouncer
}

func New(onChange func(path string)) (*Watcher, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue failed: %w", err)
	}
	return &Watcher{
		kq:        kq,
		watchMap:  make(map[int]string),
		lost:      make(map[string]bool),
		debouncer: newDebouncer(onChange),
	}, nil
}

func (w *Watcher) Add(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addLocked(absPath)
}

func (w *Watcher) addLocked(absPath string) error {
	fd, err := unix.Open(absPath, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", absPath, err)
	}

	event := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: unix.NOTE_WRITE | unix.NOTE_ATTRIB | unix.NOTE_DELETE | unix.NOTE_RENAME,
	}
	if _, err := unix.Kevent(w.kq, []unix.Kevent_t{event}, nil, nil); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to add kevent for %s: %w", absPath, err)
	}
	w.watchMap[fd] = absPath
	return nil
}

// rewatch re-adds lost paths that exist again.
func (w *Watcher) rewatch() {
	w.mu.Lock()
	var back []string
	for path := range w.lost {
		if w.addLocked(path) == nil {
			delete(w.lost, path)
			back = append(back, path)
		}
	}
	w.mu.Unlock()

	for _, path := range back {
		w.trigger(path)
	}
}

// Watch delivers events until ctx is done.
func (w *Watcher) Watch(ctx context.Context) error {
	events := make([]unix.Kevent_t, 10)
	timeout := unix.NsecToTimespec(int64(100e6))

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return ctx.Err()
		default:
		}

		w.rewatch()

		n, err := unix.Kevent(w.kq, nil, events, &timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reading kevent: %w", err)
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Ident)
			w.mu.Lock()
			path := w.watchMap[fd]
			if path != "" && events[i].Fflags&(unix.NOTE_DELETE|unix.NOTE_RENAME) != 0 {
				delete(w.watchMap, fd)
				unix.Close(fd)
				w.lost[path] = true
				path = ""
			}
			w.mu.Unlock()
			if path != "" {
				w.trigger(path)
			}
		}
	}
}

func (w *Watcher) Close() error {
	w.stop()
	w.mu.Lock()
	defer w.mu.Unlock()
	for fd := range w.watchMap {
		unix.Close(fd)
	}
	return unix.Close(w.kq)
}
