package cache

import (
	"strings"
	"testing"
	"time"
)

func TestTTLCache(t *testing.T) {
	c := NewTTLCache[int](time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("BTCUSDT:1h:200", 1)
	c.Set("ETHUSDT:1h:200", 2)
	if v, ok := c.Get("BTCUSDT:1h:200"); !ok || v != 1 {
		t.Fatalf("Get = %v, %v", v, ok)
	}

	c.Invalidate(func(k string) bool { return strings.HasPrefix(k, "ETHUSDT:") })
	if _, ok := c.Get("ETHUSDT:1h:200"); ok || c.Len() != 1 {
		t.Fatalf("invalidate failed, len %d", c.Len())
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("BTCUSDT:1h:200"); ok || c.Len() != 0 {
		t.Fatalf("expired entry returned")
	}

	off := NewTTLCache[int](0)
	off.Set("k", 1)
	if _, ok := off.Get("k"); ok {
		t.Fatalf("zero ttl should disable caching")
	}
}
