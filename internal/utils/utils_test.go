package utils

import (
	"context"
	"testing"
	"time"
)

func TestWaitForReturnsOnContextCancel(t *testing.T) {
	originalSleep := sleep
	sleep = func(time.Duration) { select {} }
	defer func() { sleep = originalSleep }()

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()

	if err := WaitFor(ctx, time.Hour); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitForZeroDuration(t *testing.T) {
	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestJitterBounds(t *testing.T) {
	if got := Jitter(0); got != 0 {
		t.Fatalf("expected zero jitter, got %v", got)
	}

	max := 50 * time.Millisecond
	for i := 0; i < 100; i++ {
		got := Jitter(max)
		if got < 0 || got > max {
			t.Fatalf("jitter %v out of [0, %v]", got, max)
		}
	}
}

func TestTruncateForLog(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		limit    int
		expected string
	}{
		{name: "short", input: "hello", limit: 10, expected: "hello"},
		{name: "exact", input: "hello", limit: 5, expected: "hello"},
		{name: "truncated", input: "hello world", limit: 5, expected: "hello..."},
		{name: "zero limit", input: "hello", limit: 0, expected: ""},
		{name: "trims", input: "  hi  ", limit: 10, expected: "hi"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TruncateForLog(tc.input, tc.limit); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}
