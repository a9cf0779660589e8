package timer

import (
	"testing"
	"time"
)

func TestRuntimeNanos(t *testing.T) {
	defer func() { nowFn = time.Now }()

	start := time.Unix(1000, 0)
	now := start
	nowFn = func() time.Time { return now }

	timer := New()
	if got := timer.RuntimeNanos(); got != 0 {
		t.Fatalf("expected runtime to be 0; got %d", got)
	}

	now = start.Add(1500 * time.Millisecond)
	if exp, got := uint64(1500000000), timer.RuntimeNanos(); got != exp {
		t.Fatalf("expected runtime to be %d; got %d", exp, got)
	}

	now = start.Add(-time.Second)
	if got := timer.RuntimeNanos(); got != 0 {
		t.Fatalf("expected runtime for a clock that went backwards to be 0; got %d", got)
	}
}
