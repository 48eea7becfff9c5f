// Package vfs keeps the artifacts of a compile-and-run session in memory
// until they are flushed to a host directory.
package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"
)

// Artifact names written by a session.
const (
	Transcript = "foutput.txt" // echoed source, error markers, summary
	Listing    = "fcode.txt"   // generated instructions
	Symbols    = "ftable.txt"  // symbol table dump
	Results    = "fresult.txt" // program output and runtime notices
)

// MaxDiskBytes caps the total size of all artifacts.
const MaxDiskBytes = 4 << 20

var validFilename = regexp.MustCompile(`^[a-zA-Z0-9_]{1,32}(\.[a-zA-Z0-9]{1,4})?$`)

var (
	ErrFileNotFound    = errors.New("artifact not found")
	ErrInvalidFilename = errors.New("invalid artifact name")
	ErrQuotaExceeded   = errors.New("artifact disk full")
)

type FileEntry struct {
	Data     []byte
	Modified time.Time
}

// Disk is an in-memory set of named artifacts. It is safe for concurrent use.
type Disk struct {
	mu        sync.RWMutex
	files     map[string]*FileEntry
	dirty     map[string]bool
	usedBytes int
}

func New() *Disk {
	return &Disk{
		files: make(map[string]*FileEntry),
		dirty: make(map[string]bool),
	}
}

// Write replaces the contents of name with a copy of data.
func (d *Disk) Write(name string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store(name, data, false)
}

// Append adds data to the end of name, creating it if needed.
func (d *Disk) Append(name string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store(name, data, true)
}

func (d *Disk) store(name string, data []byte, appending bool) error {
	if !validFilename.MatchString(name) {
		return ErrInvalidFilename
	}

	var old []byte
	entry, ok := d.files[name]
	if ok {
		old = entry.Data
	}

	var next []byte
	if appending {
		next = make([]byte, 0, len(old)+len(data))
		next = append(append(next, old...), data...)
	} else {
		next = append([]byte(nil), data...)
	}
	if d.usedBytes-len(old)+len(next) > MaxDiskBytes {
		return ErrQuotaExceeded
	}

	if !ok {
		entry = &FileEntry{}
		d.files[name] = entry
	}
	entry.Data = next
	entry.Modified = time.Now()

	d.usedBytes += len(next) - len(old)
	d.dirty[name] = true
	return nil
}

// Read returns the contents of name.
func (d *Disk) Read(name string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !validFilename.MatchString(name) {
		return nil, ErrInvalidFilename
	}
	entry, ok := d.files[name]
	if !ok {
		return nil, ErrFileNotFound
	}
	return append([]byte(nil), entry.Data...), nil
}

// Size returns the length of name in bytes.
func (d *Disk) Size(name string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.files[name]
	if !ok {
		return 0, ErrFileNotFound
	}
	return len(entry.Data), nil
}

// Delete removes name. The next PersistTo removes it from the host too.
func (d *Disk) Delete(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.files[name]
	if !ok {
		return ErrFileNotFound
	}
	d.usedBytes -= len(entry.Data)
	delete(d.files, name)
	d.dirty[name] = true
	return nil
}

// Clear deletes every artifact.
func (d *Disk) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name := range d.files {
		d.dirty[name] = true
	}
	d.files = make(map[string]*FileEntry)
	d.usedBytes = 0
}

// List returns the artifact names in sorted order.
func (d *Disk) List() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]string, 0, len(d.files))
	for k := range d.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dirty reports whether anything changed since the last PersistTo.
func (d *Disk) Dirty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.dirty) > 0
}

// Writer returns an io.Writer that appends to name.
func (d *Disk) Writer(name string) *Writer {
	return &Writer{disk: d, name: name}
}

// Writer appends everything written to it to one artifact.
type Writer struct {
	disk *Disk
	name string
}

func (w *Writer) Write(p []byte) (int, error) {
	if err := w.disk.Append(w.name, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// PersistTo writes changed artifacts into dir, creating it if needed, and
// removes host files for deleted ones. It returns the first error seen.
func (d *Disk) PersistTo(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	d.mu.Lock()
	snapshot := make(map[string][]byte)
	var deleted []string
	for name := range d.dirty {
		if entry, ok := d.files[name]; ok {
			snapshot[name] = append([]byte(nil), entry.Data...)
		} else {
			deleted = append(deleted, name)
		}
		delete(d.dirty, name)
	}
	d.mu.Unlock()

	var firstErr error
	for _, name := range deleted {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	for name, data := range snapshot {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			d.mu.Lock()
			d.dirty[name] = true
			d.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LoadFrom reads the known artifacts present in dir. A missing directory is
// not an error.
func (d *Disk) LoadFrom(dir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range []string{Transcript, Listing, Symbols, Results} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := d.store(name, raw, false); err != nil {
			return err
		}
		delete(d.dirty, name)
	}
	return nil
}
