// Package watch calls back when watched files are written, coalescing
// bursts of writes into one notification.
package watch

import (
	"sync"
	"time"
)

// Debounce is how long a file must stay quiet before onChange fires.
const Debounce = 500 * time.Millisecond

type debouncer struct {
	mu       sync.Mutex
	timers   map[string]*time.Timer
	delay    time.Duration
	onChange func(string)
}

func newDebouncer(onChange func(string)) *debouncer {
	return &debouncer{
		timers:   make(map[string]*time.Timer),
		delay:    Debounce,
		onChange: onChange,
	}
}

func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.timers[path]; exists {
		timer.Stop()
	}
	d.timers[path] = time.AfterFunc(d.delay, func() {
		d.onChange(path)
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, timer := range d.timers {
		timer.Stop()
		delete(d.timers, path)
	}
}
