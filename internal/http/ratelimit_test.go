package http

import (
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < writeLimit; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request beyond the limit should be denied")
	}

	// Other clients keep their own window.
	if !rl.allow("10.0.0.2") {
		t.Error("separate client should not share the window")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < writeLimit+1; i++ {
		rl.allow("10.0.0.1")
	}

	// Age the window past its span so the next request starts a fresh one.
	rl.mu.Lock()
	rl.windows["10.0.0.1"].start = time.Now().Add(-2 * limitWindow)
	rl.mu.Unlock()

	if !rl.allow("10.0.0.1") {
		t.Error("request after the window expired should be allowed")
	}
}

func TestRateLimiterDropStale(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	rl.allow("10.0.0.1")
	rl.mu.Lock()
	rl.windows["10.0.0.1"].start = time.Now().Add(-staleCutoff - time.Minute)
	rl.mu.Unlock()

	rl.dropStale()

	rl.mu.Lock()
	_, ok := rl.windows["10.0.0.1"]
	rl.mu.Unlock()
	if ok {
		t.Error("stale client window should be dropped")
	}
}
