package cache

import (
	"testing"
	"time"
)

func TestSetGetClear(t *testing.T) {
	c := New[string](time.Minute, time.Hour)
	defer c.Close()

	c.Set("a", "alpha")
	c.Set("b", "beta")

	if v, ok := c.Get("a"); !ok || v != "alpha" {
		t.Errorf("Expected alpha, got %q (found=%v)", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Expected size 2, got %d", c.Size())
	}

	c.Clear()
	if c.Size() != 0 {
		t.Errorf("Expected empty cache after Clear, got %d", c.Size())
	}
}

func TestExpiration(t *testing.T) {
	c := New[int](time.Minute, time.Hour)
	defer c.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", 42)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("Expected fresh entry to be found")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("Expected expired entry to be hidden")
	}
	if c.Size() != 1 {
		t.Errorf("Expected expired entry to stay until swept, got size %d", c.Size())
	}

	c.sweep()
	if c.Size() != 0 {
		t.Errorf("Expected sweep to evict expired entry, got size %d", c.Size())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New[bool](time.Minute, 0)
	c.Close()
	c.Close()

	c.Set("still", true)
	if v, ok := c.Get("still"); !ok || !v {
		t.Error("Expected cache to stay usable after Close")
	}
}
