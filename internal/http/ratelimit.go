package http

import (
	"sync"
	"time"
)

const (
	writeLimit    = 60 // writes per client per window
	limitWindow   = time.Minute
	staleCutoff   = 10 * time.Minute
	sweepInterval = 5 * time.Minute
)

// rateLimiter caps write requests per client IP with a fixed one-minute
// window. Reads are never limited.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string]*writeWindow

	stopSweep chan struct{}
	stopOnce  sync.Once
}

// writeWindow counts writes since its start. A window older than limitWindow
// is reset on the next request instead of being tracked by a timer.
type writeWindow struct {
	start time.Time
	count int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		windows:   make(map[string]*writeWindow),
		stopSweep: make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[clientIP]
	if !ok || now.Sub(w.start) > limitWindow {
		rl.windows[clientIP] = &writeWindow{start: now, count: 1}
		return true
	}

	w.count++
	return w.count <= writeLimit
}

// sweepLoop drops windows for clients that have gone quiet, so the map does
// not grow with every IP ever seen.
func (rl *rateLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.dropStale()
		case <-rl.stopSweep:
			return
		}
	}
}

func (rl *rateLimiter) dropStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-staleCutoff)
	for ip, w := range rl.windows {
		if w.start.Before(cutoff) {
			delete(rl.windows, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.stopSweep) })
}
