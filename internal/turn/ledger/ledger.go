package ledger

import (
	"sync"
	"time"

	"github.com/cadencevoice/cadence/internal/turn/judge"
)

// Entry is one judge invocation's record: its input context, the raw
// verdict, and the staged pre-reply once known. IsCorrect defaults to true
// and may be flipped exactly once, when the speaker resumes after a commit.
type Entry struct {
	Context    judge.ContextSnapshot `json:"context"`
	Verdict    judge.Verdict         `json:"verdict"`
	PreReply   string                `json:"preReply,omitempty"`
	IsCorrect  bool                  `json:"isCorrect"`
	RecordedAt time.Time             `json:"recordedAt"`
}

// Ledger is the per-session append-only judgment history. Entries are never
// removed, only annotated. The orchestrator goroutine is the sole writer;
// the lock exists for side-effect-free diagnostic reads.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
}

func New() *Ledger {
	return &Ledger{}
}

// Record appends a new entry and returns a copy of it. Prior entries are
// never touched.
func (l *Ledger) Record(snapshot judge.ContextSnapshot, verdict judge.Verdict) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Context:    snapshot,
		Verdict:    verdict,
		IsCorrect:  true,
		RecordedAt: time.Now(),
	}
	l.entries = append(l.entries, entry)
	return entry
}

// Recent returns the last n entries, most-recent last. Never more than n.
func (l *Ledger) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	start := len(l.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]Entry, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// MarkLastIncorrect flips IsCorrect on the most recent entry. No-op when
// the history is empty.
func (l *Ledger) MarkLastIncorrect() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return
	}
	l.entries[len(l.entries)-1].IsCorrect = false
}

// SetLastPreReply annotates the most recent entry with the staged pre-reply
// text once generation finishes.
func (l *Ledger) SetLastPreReply(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return
	}
	l.entries[len(l.entries)-1].PreReply = text
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
