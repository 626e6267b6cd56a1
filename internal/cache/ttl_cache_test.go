package cache

import (
	"context"
	"testing"
	"time"
)

func TestTTLCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	c := NewTTLCache()
	c.now = func() time.Time { return now }

	if err := c.SetBytes(ctx, "a", []byte("1"), time.Minute); err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	if err := c.SetBytes(ctx, "forever", []byte("2"), 0); err != nil {
		t.Fatalf("SetBytes: %v", err)
	}

	if b, ok, _ := c.GetBytes(ctx, "a"); !ok || string(b) != "1" {
		t.Errorf("GetBytes(a) = %q, %v", b, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.GetBytes(ctx, "a"); ok {
		t.Error("expired entry returned")
	}
	if _, ok, _ := c.GetBytes(ctx, "forever"); !ok {
		t.Error("entry without ttl expired")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}
