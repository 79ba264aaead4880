package utils

import (
	"testing"
	"time"
)

func TestSlidingWindowAdd(t *testing.T) {
	window := NewSlidingWindow(2 * time.Second)
	now := time.Now()
	if count := window.Add(now); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	window.Add(now.Add(500 * time.Millisecond))
	if count := window.Count(now.Add(1 * time.Second)); count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
	if count := window.Count(now.Add(3 * time.Second)); count != 0 {
		t.Fatalf("expected 0, got %d", count)
	}
}

func TestDebouncer(t *testing.T) {
	debounce := NewDebouncer(5 * time.Second)
	now := time.Now()
	if !debounce.Allow("g1:u1", now) {
		t.Fatalf("expected first submit to pass")
	}
	if debounce.Allow("g1:u1", now.Add(time.Second)) {
		t.Fatalf("expected double submit to be rejected")
	}
	if !debounce.Allow("g1:u2", now.Add(time.Second)) {
		t.Fatalf("expected other user to pass")
	}
	if !debounce.Allow("g1:u1", now.Add(6*time.Second)) {
		t.Fatalf("expected submit after window to pass")
	}
	debounce.Sweep(now.Add(time.Minute))
	if len(debounce.windows) != 0 {
		t.Fatalf("expected sweep to drop idle keys, got %d", len(debounce.windows))
	}
}

func TestDebouncerRelease(t *testing.T) {
	debounce := NewDebouncer(5 * time.Second)
	now := time.Now()
	debounce.Allow("g1:u1", now)
	debounce.Release("g1:u1")
	if !debounce.Allow("g1:u1", now.Add(time.Second)) {
		t.Fatalf("expected released key to pass")
	}
	if debounce.Allow("g1:u1", now.Add(2*time.Second)) {
		t.Fatalf("expected key to be held again after the new attempt")
	}
	debounce.Release("unknown")
}
