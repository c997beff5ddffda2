package app

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestForEachOrdered(t *testing.T) {
	defer goleak.VerifyNone(t)

	const n = 12
	var inFlight, maxSeen int32
	var emitted []int

	err := forEachOrdered(context.Background(), n, 4,
		func(ctx context.Context, i int) {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if cur <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, cur) {
					break
				}
			}
			// later indexes finish first
			time.Sleep(time.Duration(n-i) * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		},
		func(i int) {
			emitted = append(emitted, i)
		})

	if err != nil {
		t.Fatalf("forEachOrdered() error = %v", err)
	}
	for i, got := range emitted {
		if got != i {
			t.Fatalf("emitted = %v, want ascending order", emitted)
		}
	}
	if len(emitted) != n {
		t.Errorf("emitted %d indexes, want %d", len(emitted), n)
	}
	if maxSeen > 4 {
		t.Errorf("max concurrency = %d, want <= 4", maxSeen)
	}
}

func TestForEachOrdered_Empty(t *testing.T) {
	defer goleak.VerifyNone(t)

	called := false
	err := forEachOrdered(context.Background(), 0, 0, func(context.Context, int) { called = true }, func(int) { called = true })
	if err != nil || called {
		t.Errorf("forEachOrdered(0) = %v, called = %v", err, called)
	}
}

func TestFileOutput_Flush(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := &fileOutput{}
	out.Printf("Fetching: %s", "u")
	out.Errorf("warning %d", 1)
	out.Printf("Destination: %s", "d")
	out.Flush(&stdout, &stderr)

	if got := stdout.String(); got != "Fetching: u\nDestination: d\n" {
		t.Errorf("stdout = %q", got)
	}
	if got := stderr.String(); got != "warning 1\n" {
		t.Errorf("stderr = %q", got)
	}

	out.Flush(&stdout, &stderr)
	if stdout.Len() != len("Fetching: u\nDestination: d\n") {
		t.Error("Flush must not repeat lines")
	}
}
