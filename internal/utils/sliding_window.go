package utils

import (
	"sync"
	"time"
)

type SlidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	hits   []time.Time
}

func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{window: window}
}

func (w *SlidingWindow) Add(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	w.hits = append(w.hits, now)
	return len(w.hits)
}

func (w *SlidingWindow) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	return len(w.hits)
}

func (w *SlidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	idx := 0
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	w.hits = w.hits[idx:]
}

// Debouncer admits one event per key per window. It guards interactive
// submissions against double clicks.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	windows map[string]*SlidingWindow
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window, windows: make(map[string]*SlidingWindow)}
}

// Allow records the attempt and reports whether it is the first in the window.
func (d *Debouncer) Allow(key string, now time.Time) bool {
	if d.window <= 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.windows[key]
	if w == nil {
		w = NewSlidingWindow(d.window)
		d.windows[key] = w
	}
	if w.Count(now) > 0 {
		return false
	}
	w.Add(now)
	return true
}

// Release forgets key so its next attempt is admitted immediately.
func (d *Debouncer) Release(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.windows, key)
}

// Sweep drops keys with no hits left in the window.
func (d *Debouncer) Sweep(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, w := range d.windows {
		if w.Count(now) == 0 {
			delete(d.windows, key)
		}
	}
}
