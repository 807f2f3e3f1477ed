package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func TestLRUCacheExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](4, 15*time.Second).WithClock(clk.Now)

	c.Set("ledger", "snapshot")
	if v, ok := c.Get("ledger"); !ok || v != "snapshot" {
		t.Fatalf("expected cached value, got %q ok=%v", v, ok)
	}

	clk.Advance(15 * time.Second)
	if _, ok := c.Get("ledger"); ok {
		t.Fatalf("expected entry to expire at TTL")
	}
	if c.Size() != 0 {
		t.Fatalf("expired entry should be removed on access, size=%d", c.Size())
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("least recently used key should be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("recently used key should survive")
	}
}

func TestLRUCachePurgeAndClean(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	c := NewLRUCache[int](8, time.Second).WithClock(clk.Now)
	c.Set("a", 1)
	c.Set("b", 2)
	clk.Advance(2 * time.Second)
	c.Set("c", 3)

	if n := c.CleanExpired(); n != 2 {
		t.Fatalf("expected 2 expired entries, got %d", n)
	}
	c.Purge()
	if c.Size() != 0 {
		t.Fatalf("purge should empty the cache")
	}
}

func TestLRUCacheDisabled(t *testing.T) {
	c := NewLRUCache[int](8, 0)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("zero TTL must disable caching")
	}
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager()
	m.Register(NewLRUCache[int](1, time.Second))
	m.Stop()

	m.StartCleanup(time.Millisecond)
	m.Stop()
}
