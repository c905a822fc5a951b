package cache

import (
	"sync"
	"time"
)

// Cache is the read/write surface shared by cache implementations.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)

	// DeletePrefix removes every key with the given prefix and returns
	// how many entries were dropped.
	DeletePrefix(prefix string) int

	Size() int
}

// Cleaner is implemented by caches whose expired entries need periodic
// removal. Lazy expiry on Get covers hot keys; the sweeper covers the rest.
type Cleaner interface {
	CleanExpired() int
}

// Sweeper runs CleanExpired on its registered caches at a fixed interval.
type Sweeper struct {
	interval time.Duration
	caches   []Cleaner

	started  bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewSweeper(interval time.Duration) *Sweeper {
	return &Sweeper{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register adds a cache to the sweep set. Not safe to call after Start.
func (s *Sweeper) Register(c Cleaner) {
	s.caches = append(s.caches, c)
}

func (s *Sweeper) Start() {
	s.started = true
	go s.run()
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, c := range s.caches {
				c.CleanExpired()
			}
		case <-s.stop:
			return
		}
	}
}

// Stop halts the sweep loop and waits for it to exit. Safe to call more
// than once, and safe even if Start never ran.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started {
		<-s.done
	}
}
