package segment

import (
	"errors"
	"time"

	"github.com/cadencevoice/cadence/internal/types"
)

// ErrMalformedInput flags an out-of-order or duplicate frame timestamp. The
// frame is dropped; the session keeps running.
var ErrMalformedInput = errors.New("malformed input: out-of-order or duplicate frame")

type EventKind int

const (
	SegmentExtended EventKind = iota
	SegmentClosed
)

// Event is emitted by Ingest: SegmentExtended on every speech frame,
// SegmentClosed once silence exceeds the threshold.
type Event struct {
	Kind    EventKind
	Segment *types.SpeechSegment
	Silence time.Duration
}

// Assembler groups timestamped frames into contiguous speech segments and
// tracks the running silence since the last speech frame. Owned exclusively
// by one session's orchestrator; not safe for concurrent use.
type Assembler struct {
	silenceThreshold time.Duration

	current      *types.SpeechSegment
	lastTS       time.Time
	lastSpeechAt time.Time
	sawSpeech    bool
}

func New(silenceThreshold time.Duration) *Assembler {
	return &Assembler{silenceThreshold: silenceThreshold}
}

// Ingest accepts the next frame. Timestamps must be strictly increasing.
func (a *Assembler) Ingest(frame types.AudioFrame) (*Event, error) {
	if !a.lastTS.IsZero() && !frame.Timestamp.After(a.lastTS) {
		return nil, ErrMalformedInput
	}
	a.lastTS = frame.Timestamp

	if frame.HasSpeech {
		if a.current == nil || a.current.Closed {
			a.current = &types.SpeechSegment{StartedAt: frame.Timestamp}
		}
		a.current.Frames = append(a.current.Frames, frame)
		a.lastSpeechAt = frame.Timestamp
		a.sawSpeech = true
		return &Event{Kind: SegmentExtended, Segment: a.current}, nil
	}

	// Leading silence before any speech carries no segment to close.
	if !a.sawSpeech {
		return nil, nil
	}

	silence := frame.Timestamp.Sub(a.lastSpeechAt)
	if a.current != nil && !a.current.Closed && silence >= a.silenceThreshold {
		seg := a.closeCurrent()
		return &Event{Kind: SegmentClosed, Segment: seg, Silence: silence}, nil
	}
	return nil, nil
}

// Silence returns the running silence duration at the given instant, zero
// when no speech has been observed yet.
func (a *Assembler) Silence(at time.Time) time.Duration {
	if !a.sawSpeech {
		return 0
	}
	d := at.Sub(a.lastSpeechAt)
	if d < 0 {
		return 0
	}
	return d
}

// ForceClose closes the current segment regardless of accumulated silence,
// used when a turn is committed. Nil when nothing is open.
func (a *Assembler) ForceClose() *types.SpeechSegment {
	if a.current == nil || a.current.Closed {
		seg := a.current
		a.current = nil
		return seg
	}
	return a.closeCurrent()
}

// Resume reopens a previously closed segment after an interruption: the
// speaker continued the same logical turn, so new speech frames extend it.
func (a *Assembler) Resume(seg *types.SpeechSegment) {
	if seg == nil {
		return
	}
	reopened := *seg
	reopened.Closed = false
	reopened.EndedAt = time.Time{}
	a.current = &reopened
}

// Current exposes the open segment for diagnostics.
func (a *Assembler) Current() *types.SpeechSegment {
	return a.current
}

func (a *Assembler) closeCurrent() *types.SpeechSegment {
	seg := a.current
	seg.EndedAt = a.lastSpeechAt
	seg.Closed = true
	a.current = nil
	return seg
}
