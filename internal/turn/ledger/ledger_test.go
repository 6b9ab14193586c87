package ledger

import (
	"fmt"
	"testing"

	"github.com/cadencevoice/cadence/internal/turn/judge"
)

func snapshotFor(candidate string) judge.ContextSnapshot {
	return judge.ContextSnapshot{Candidate: candidate}
}

func TestRecordAppendsAndNeverShrinks(t *testing.T) {
	l := New()

	for i := 0; i < 5; i++ {
		before := l.Len()
		l.Record(snapshotFor(fmt.Sprintf("utterance %d", i)), judge.Complete)
		if l.Len() != before+1 {
			t.Fatalf("Record should grow ledger by one, went %d -> %d", before, l.Len())
		}
	}
}

func TestRecentBoundsAndOrder(t *testing.T) {
	l := New()
	for i := 0; i < 5; i++ {
		l.Record(snapshotFor(fmt.Sprintf("u%d", i)), judge.Incomplete)
	}

	got := l.Recent(3)
	if len(got) != 3 {
		t.Fatalf("Recent(3) returned %d entries", len(got))
	}
	// chronologically latest three, most-recent last
	for i, want := range []string{"u2", "u3", "u4"} {
		if got[i].Context.Candidate != want {
			t.Errorf("Recent(3)[%d] = %q, want %q", i, got[i].Context.Candidate, want)
		}
	}

	if got := l.Recent(100); len(got) != 5 {
		t.Errorf("Recent(100) should cap at ledger size, got %d", len(got))
	}
	if got := l.Recent(0); got != nil {
		t.Errorf("Recent(0) should be empty, got %v", got)
	}
}

func TestRecordRecentRoundTrip(t *testing.T) {
	l := New()
	l.Record(snapshotFor("hello world"), judge.Complete)

	got := l.Recent(1)
	if len(got) != 1 {
		t.Fatalf("Recent(1) returned %d entries", len(got))
	}
	e := got[0]
	if e.Context.Candidate != "hello world" || e.Verdict != judge.Complete {
		t.Errorf("Round trip mismatch: %+v", e)
	}
	if !e.IsCorrect {
		t.Error("New entries default to correct")
	}
}

func TestMarkLastIncorrect(t *testing.T) {
	l := New()

	// No-op on empty history.
	l.MarkLastIncorrect()

	l.Record(snapshotFor("first"), judge.Complete)
	l.Record(snapshotFor("second"), judge.Complete)
	l.MarkLastIncorrect()

	got := l.Recent(2)
	if !got[0].IsCorrect {
		t.Error("Prior entry must be untouched")
	}
	if got[1].IsCorrect {
		t.Error("Most recent entry should be flagged incorrect")
	}
}

func TestSetLastPreReply(t *testing.T) {
	l := New()
	l.SetLastPreReply("ignored on empty")

	l.Record(snapshotFor("order pizza"), judge.Complete)
	l.SetLastPreReply("Sure, which toppings?")

	got := l.Recent(1)
	if got[0].PreReply != "Sure, which toppings?" {
		t.Errorf("PreReply not stored, got %q", got[0].PreReply)
	}
}
