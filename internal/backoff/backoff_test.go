package backoff

import (
	"testing"
	"time"
)

func TestNextDelay_DoublesUntilCap(t *testing.T) {
	b := New(time.Second, 8*time.Second)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}

	for i, w := range want {
		if got := b.NextDelay(); got != w {
			t.Errorf("NextDelay() call %d = %v, want %v", i+1, got, w)
		}
	}
}

func TestReset_ReturnsToBase(t *testing.T) {
	b := New(500*time.Millisecond, time.Minute)

	b.NextDelay()
	b.NextDelay()
	b.NextDelay()

	b.Reset()

	if got := b.NextDelay(); got != 500*time.Millisecond {
		t.Errorf("NextDelay() after Reset = %v, want %v", got, 500*time.Millisecond)
	}
}

func TestCurrent_DoesNotAdvance(t *testing.T) {
	b := New(time.Second, time.Minute)

	if got := b.Current(); got != time.Second {
		t.Errorf("Current() = %v, want %v", got, time.Second)
	}
	if got := b.Current(); got != time.Second {
		t.Errorf("second Current() = %v, want %v", got, time.Second)
	}

	b.NextDelay()
	if got := b.Current(); got != 2*time.Second {
		t.Errorf("Current() after one NextDelay = %v, want %v", got, 2*time.Second)
	}
}

func TestNew_Bounds(t *testing.T) {
	b := New(0, 0)
	if got := b.NextDelay(); got != time.Second {
		t.Errorf("NextDelay() with zero base = %v, want %v", got, time.Second)
	}

	// Cap below base is raised to the base.
	b = New(10*time.Second, time.Second)
	if got := b.NextDelay(); got != 10*time.Second {
		t.Errorf("NextDelay() = %v, want %v", got, 10*time.Second)
	}
	if got := b.NextDelay(); got != 10*time.Second {
		t.Errorf("NextDelay() past cap = %v, want %v", got, 10*time.Second)
	}
}

func TestJitter_StaysInRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		d := Jitter(2 * time.Second)
		if d < time.Second || d >= 3*time.Second {
			t.Fatalf("Jitter(2s) = %v, want [1s, 3s)", d)
		}
	}

	if got := Jitter(0); got != 0 {
		t.Errorf("Jitter(0) = %v, want 0", got)
	}
}

func TestIndependentInstances(t *testing.T) {
	a := New(time.Second, time.Minute)
	b := New(time.Second, time.Minute)

	// Exhausting one instance's sequence must not move the other.
	for i := 0; i < 10; i++ {
		a.NextDelay()
	}

	if got := b.NextDelay(); got != time.Second {
		t.Errorf("untouched instance NextDelay() = %v, want %v", got, time.Second)
	}
}
