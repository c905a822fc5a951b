package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[string](3, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")

	if got, ok := c.Get("a"); !ok || got != "1" {
		t.Errorf("Get(a) = %q, %v, want %q, true", got, ok, "1")
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should report a miss")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // refresh so b becomes the eviction candidate
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry should be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry should survive eviction")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheTTL(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expired entry should not be returned")
	}
	if n := c.CleanExpired(); n != 0 {
		// Get already dropped it.
		t.Errorf("CleanExpired() = %d, want 0", n)
	}
}

func TestSweeper(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)

	s := NewSweeper(20 * time.Millisecond)
	s.Register(c)
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(time.Second)
	for c.Size() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expired entries still present, Size() = %d", c.Size())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSweeperStopWithoutStart(t *testing.T) {
	s := NewSweeper(time.Minute)
	s.Stop()
	s.Stop() // second call must not panic or block
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	for d := 1; d <= 3; d++ {
		c.Set(fmt.Sprintf("monthly:2024-06:%d", d), d)
	}
	c.Set("monthly:2024-07:1", 99)

	if n := c.DeletePrefix("monthly:2024-06"); n != 3 {
		t.Errorf("DeletePrefix() = %d, want 3", n)
	}
	if _, ok := c.Get("monthly:2024-07:1"); !ok {
		t.Error("entries outside the prefix should survive")
	}
}
