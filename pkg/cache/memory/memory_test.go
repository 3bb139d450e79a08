package memory

import (
	"context"
	"testing"
	"time"
)

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	c := New()

	c.Set(ctx, "k", "v", 0)
	if v, ok := c.Get(ctx, "k"); !ok || v != "v" {
		t.Fatalf("Get = %q, %v; want v, true", v, ok)
	}

	c.Del(ctx, "k")
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("Get after Del must miss")
	}
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := New()

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(ctx, "k", "v", 5*time.Second)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("value must be present before expiry")
	}

	now = now.Add(6 * time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("value must expire after TTL")
	}
}

func TestMGet(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.Set(ctx, "a", "1", 0)
	c.Set(ctx, "c", "3", 0)

	out := c.MGet(ctx, []string{"a", "b", "c"})
	if out[0] == nil || *out[0] != "1" {
		t.Fatalf("slot 0 = %v, want 1", out[0])
	}
	if out[1] != nil {
		t.Fatal("slot 1 must be nil")
	}
	if out[2] == nil || *out[2] != "3" {
		t.Fatalf("slot 2 = %v, want 3", out[2])
	}
}
