package framebuf

import (
	"testing"
	"time"

	"github.com/cadencevoice/cadence/internal/types"
)

func TestFrameTailRoundTrip(t *testing.T) {
	tail := New(4096)

	if tail.Capacity() != 4096 {
		t.Errorf("Expected capacity 4096, got %d", tail.Capacity())
	}
	if tail.Len() != 0 {
		t.Errorf("Expected empty tail, got length %d", tail.Len())
	}

	frame := types.AudioFrame{
		Data:       []byte{1, 2, 3, 4, 5},
		Timestamp:  time.Now(),
		SampleRate: 16000,
		Channels:   1,
		HasSpeech:  true,
		SpeakerID:  "caller-1",
	}

	if err := tail.Enqueue(frame); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if tail.Len() == 0 {
		t.Error("Tail should not be empty after enqueue")
	}

	got, ok := tail.Dequeue()
	if !ok {
		t.Fatal("Failed to dequeue")
	}
	if len(got.Data) != len(frame.Data) {
		t.Errorf("Expected data length %d, got %d", len(frame.Data), len(got.Data))
	}
	if got.SampleRate != frame.SampleRate {
		t.Errorf("Expected sample rate %d, got %d", frame.SampleRate, got.SampleRate)
	}
	if !got.HasSpeech {
		t.Error("Expected speech flag to survive round trip")
	}
	if got.IsOperator {
		t.Error("Operator flag should be unset")
	}
	if got.SpeakerID != frame.SpeakerID {
		t.Errorf("Expected speaker %q, got %q", frame.SpeakerID, got.SpeakerID)
	}
}

func TestFrameTailEvictsOldest(t *testing.T) {
	tail := New(128)

	for i := 0; i < 20; i++ {
		frame := types.AudioFrame{
			Data:       []byte{byte(i), byte(i), byte(i), byte(i)},
			Timestamp:  time.Now().Add(time.Duration(i) * time.Millisecond),
			SampleRate: 16000,
			Channels:   1,
		}
		if err := tail.Enqueue(frame); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}

	// The first frames must have been evicted, not the newest.
	got, ok := tail.Dequeue()
	if !ok {
		t.Fatal("Tail should hold frames")
	}
	if got.Data[0] == 0 {
		t.Error("Oldest frame should have been evicted")
	}
}

func TestFrameTailPeekDoesNotConsume(t *testing.T) {
	tail := New(1024)
	for i := 0; i < 3; i++ {
		frame := types.AudioFrame{
			Data:       []byte{byte(i)},
			Timestamp:  time.Now().Add(time.Duration(i) * time.Millisecond),
			SampleRate: 16000,
			Channels:   1,
		}
		if err := tail.Enqueue(frame); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	peeked := tail.PeekN(2)
	if len(peeked) != 2 {
		t.Errorf("Expected 2 peeked frames, got %d", len(peeked))
	}
	if tail.Len() == 0 {
		t.Error("Peek must not consume the ring")
	}
}
