package gate

import (
	"testing"
	"time"
)

func TestGateBelowThresholdContinues(t *testing.T) {
	g := New(300 * time.Millisecond)

	for _, silence := range []time.Duration{0, 100 * time.Millisecond, 299 * time.Millisecond} {
		if got := g.Evaluate(silence); got != Continue {
			t.Errorf("Evaluate(%v) = %v, want Continue", silence, got)
		}
	}
}

func TestGateEscalatesAtThreshold(t *testing.T) {
	g := New(300 * time.Millisecond)

	if got := g.Evaluate(300 * time.Millisecond); got != Escalate {
		t.Fatalf("Evaluate(300ms) = %v, want Escalate", got)
	}
}

func TestGateFiresOncePerEpisode(t *testing.T) {
	g := New(300 * time.Millisecond)

	if g.Evaluate(350*time.Millisecond) != Escalate {
		t.Fatal("First crossing should escalate")
	}
	// Silence keeps growing: still latched.
	for _, silence := range []time.Duration{400 * time.Millisecond, time.Second, 10 * time.Second} {
		if got := g.Evaluate(silence); got != Continue {
			t.Errorf("Evaluate(%v) after latch = %v, want Continue", silence, got)
		}
	}
}

func TestGateResetReArms(t *testing.T) {
	g := New(300 * time.Millisecond)

	g.Evaluate(350 * time.Millisecond)
	g.Reset()
	if got := g.Evaluate(350 * time.Millisecond); got != Escalate {
		t.Errorf("Evaluate after Reset = %v, want Escalate", got)
	}
}
