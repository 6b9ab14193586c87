package segment

import (
	"errors"
	"testing"
	"time"

	"github.com/cadencevoice/cadence/internal/types"
)

func frameAt(base time.Time, offsetMs int, speech bool) types.AudioFrame {
	return types.AudioFrame{
		Data:       []byte{0},
		Timestamp:  base.Add(time.Duration(offsetMs) * time.Millisecond),
		SampleRate: 16000,
		Channels:   1,
		HasSpeech:  speech,
	}
}

func TestIngestRejectsOutOfOrderFrames(t *testing.T) {
	base := time.Now()
	a := New(300 * time.Millisecond)

	if _, err := a.Ingest(frameAt(base, 100, true)); err != nil {
		t.Fatalf("First frame failed: %v", err)
	}

	// Duplicate timestamp
	if _, err := a.Ingest(frameAt(base, 100, true)); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("Expected ErrMalformedInput for duplicate, got %v", err)
	}
	// Out of order
	if _, err := a.Ingest(frameAt(base, 50, true)); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("Expected ErrMalformedInput for out-of-order, got %v", err)
	}

	// Session survives: the next in-order frame is accepted.
	if _, err := a.Ingest(frameAt(base, 150, true)); err != nil {
		t.Errorf("In-order frame after malformed input failed: %v", err)
	}
}

func TestSpeechFramesExtendSegment(t *testing.T) {
	base := time.Now()
	a := New(300 * time.Millisecond)

	for i := 0; i < 3; i++ {
		ev, err := a.Ingest(frameAt(base, i*20, true))
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if ev == nil || ev.Kind != SegmentExtended {
			t.Fatalf("Expected SegmentExtended event, got %+v", ev)
		}
	}

	if got := len(a.Current().Frames); got != 3 {
		t.Errorf("Expected 3 frames in segment, got %d", got)
	}
}

func TestSegmentClosesAfterSilenceThreshold(t *testing.T) {
	base := time.Now()
	a := New(300 * time.Millisecond)

	a.Ingest(frameAt(base, 0, true))
	a.Ingest(frameAt(base, 20, true))

	// 100ms of silence: below threshold, no event.
	ev, err := a.Ingest(frameAt(base, 120, false))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if ev != nil {
		t.Errorf("Expected no event below threshold, got %+v", ev)
	}
	if got := a.Silence(base.Add(120 * time.Millisecond)); got != 100*time.Millisecond {
		t.Errorf("Expected 100ms silence, got %v", got)
	}

	// 350ms after last speech: segment closes.
	ev, err = a.Ingest(frameAt(base, 370, false))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if ev == nil || ev.Kind != SegmentClosed {
		t.Fatalf("Expected SegmentClosed, got %+v", ev)
	}
	if !ev.Segment.Closed {
		t.Error("Closed segment must be marked Closed")
	}
	if ev.Segment.EndedAt != base.Add(20*time.Millisecond) {
		t.Errorf("Segment should end at last speech frame, got %v", ev.Segment.EndedAt)
	}

	// Further silence must not close anything again.
	ev, _ = a.Ingest(frameAt(base, 500, false))
	if ev != nil {
		t.Errorf("Expected no second close event, got %+v", ev)
	}
}

func TestLeadingSilenceProducesNothing(t *testing.T) {
	base := time.Now()
	a := New(300 * time.Millisecond)

	ev, err := a.Ingest(frameAt(base, 0, false))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if ev != nil {
		t.Errorf("Leading silence should emit nothing, got %+v", ev)
	}
	if a.Silence(base) != 0 {
		t.Error("Silence before any speech should be zero")
	}
}

func TestResumeReopensClosedSegment(t *testing.T) {
	base := time.Now()
	a := New(300 * time.Millisecond)

	a.Ingest(frameAt(base, 0, true))
	ev, _ := a.Ingest(frameAt(base, 400, false))
	if ev == nil || ev.Kind != SegmentClosed {
		t.Fatal("Expected a closed segment")
	}

	a.Resume(ev.Segment)
	got, err := a.Ingest(frameAt(base, 450, true))
	if err != nil {
		t.Fatalf("Ingest after resume failed: %v", err)
	}
	if got.Kind != SegmentExtended {
		t.Fatalf("Expected SegmentExtended after resume, got %+v", got)
	}
	if len(got.Segment.Frames) != 2 {
		t.Errorf("Resumed segment should keep prior frames, got %d", len(got.Segment.Frames))
	}
}

func TestForceCloseOnCommit(t *testing.T) {
	base := time.Now()
	a := New(300 * time.Millisecond)

	a.Ingest(frameAt(base, 0, true))
	a.Ingest(frameAt(base, 20, true))

	seg := a.ForceClose()
	if seg == nil || !seg.Closed {
		t.Fatal("ForceClose should return a closed segment")
	}
	if a.Current() != nil {
		t.Error("No segment should remain open after ForceClose")
	}
}
