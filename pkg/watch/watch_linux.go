//go:build linux

package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	writeMask = unix.IN_MODIFY | unix.IN_CLOSE_WRITE
	// the watched inode went away or was replaced, e.g. by a rename-over save
	goneMask  = unix.IN_ATTRIB | unix.IN_DELETE_SELF | unix.IN_MOVE_SELF | unix.IN_IGNORED
	watchMask = writeMask | goneMask
)

// Watcher reports writes to files through inotify. A file replaced under
// the same name is watched again and reported as changed.
type Watcher struct {
	fd       int
	mu       sync.Mutex
	watchMap map[int]string
	inodes   map[string]uint64
	lost     map[string]bool // paths waiting to be re-added
	*debouncer
}

func New(onChange func(path string)) (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init failed: %w", err)
	}
	return &Watcher{
		fd:        fd,
		watchMap:  make(map[int]string),
		inodes:    make(map[string]uint64),
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
	wd, err := unix.InotifyAddWatch(w.fd, absPath, watchMask)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", absPath, err)
	}
	var st unix.Stat_t
	if err := unix.Stat(absPath, &st); err != nil {
		unix.InotifyRmWatch(w.fd, uint32(wd))
		return fmt.Errorf("failed to stat %s: %w", absPath, err)
	}
	w.watchMap[wd] = absPath
	w.inodes[absPath] = uint64(st.Ino)
	return nil
}

// replaced reports whether the watch no longer follows the file at path.
func (w *Watcher) replaced(path string, mask uint32) bool {
	if mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF|unix.IN_IGNORED) != 0 {
		return true
	}
	var st unix.Stat_t
	return unix.Stat(path, &st) != nil || uint64(st.Ino) != w.inodes[path]
}

func (w *Watcher) handle(wd int, mask uint32) {
	w.mu.Lock()
	path := w.watchMap[wd]
	if path == "" {
		w.mu.Unlock()
		return
	}
	if mask&goneMask != 0 && w.replaced(path, mask) {
		delete(w.watchMap, wd)
		if mask&unix.IN_IGNORED == 0 {
			unix.InotifyRmWatch(w.fd, uint32(wd))
		}
		w.lost[path] = true
	}
	w.mu.Unlock()

	if mask&writeMask != 0 {
		w.trigger(path)
	}
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
	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*8)

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return ctx.Err()
		default:
		}

		w.rewatch()

		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("reading inotify events: %w", err)
		}

		for offset := 0; offset+unix.SizeofInotifyEvent <= n; {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			offset += unix.SizeofInotifyEvent + int(event.Len)
			w.handle(int(event.Wd), event.Mask)
		}
	}
}

func (w *Watcher) Close() error {
	w.stop()
	return unix.Close(w.fd)
}
