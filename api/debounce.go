package api

import (
	"sync"
	"time"
)

// Debouncer rejects repeated triggers for the same camera inside a fixed
// window. Each camera has its own window; triggers for different cameras
// never block each other.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	last   map[int]time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		last:   make(map[int]time.Time),
	}
}

// TryAccept reports whether a trigger for the camera is allowed at the given
// instant. An accepted trigger opens a new window; a rejected one does not
// extend it.
func (d *Debouncer) TryAccept(cameraID int, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.last[cameraID]; ok && now.Sub(last) < d.window {
		return false
	}
	d.last[cameraID] = now
	return true
}
