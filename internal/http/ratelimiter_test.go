package httpapi

import (
	"testing"
	"time"
)

func TestSlidingWindowLimiter(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewSlidingWindowLimiter(time.Minute, 2, func() time.Time { return now })

	if !limiter.Allow() || !limiter.Allow() {
		t.Fatal("expected first two calls to be allowed")
	}
	if limiter.Allow() {
		t.Fatal("expected third call to be denied")
	}

	now = now.Add(30 * time.Second)
	if limiter.Allow() {
		t.Fatal("expected call within window to still be denied")
	}

	now = now.Add(31 * time.Second)
	if !limiter.Allow() {
		t.Fatal("expected limiter to permit call after window passes")
	}
}

func TestSlidingWindowLimiterDisabled(t *testing.T) {
	if !NewSlidingWindowLimiter(0, 0, nil).Allow() {
		t.Fatal("limiter with zero configuration should allow")
	}
}

func TestKeyedLimiterTracksClientsSeparately(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewKeyedLimiter(time.Minute, 1, func() time.Time { return now })

	if !limiter.AllowKey("10.0.0.1") || !limiter.AllowKey("10.0.0.2") {
		t.Fatal("expected the first call per client to be allowed")
	}
	if limiter.AllowKey("10.0.0.1") {
		t.Fatal("expected a second call from the same client to be denied")
	}
	if limiter.Keys() != 2 {
		t.Fatalf("expected two tracked clients, got %d", limiter.Keys())
	}

	now = now.Add(2 * time.Minute)
	if !limiter.AllowKey("10.0.0.1") {
		t.Fatal("expected the client to be allowed after the window")
	}
	if limiter.Keys() != 1 {
		t.Fatalf("expected idle clients to be pruned, got %d", limiter.Keys())
	}
}

func TestKeyedLimiterDisabled(t *testing.T) {
	limiter := NewKeyedLimiter(0, 0, nil)
	for i := 0; i < 5; i++ {
		if !limiter.AllowKey("any") {
			t.Fatal("expected disabled limiter to allow all calls")
		}
	}
	var nilLimiter *KeyedLimiter
	if !nilLimiter.AllowKey("any") {
		t.Fatal("expected nil limiter to allow")
	}
}
