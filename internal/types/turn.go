package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AudioFrame is one timestamped slice of raw audio as handed over by the
// transport layer. Speech classification comes from the external VAD signal
// riding on the frame; the core never inspects the payload itself.
type AudioFrame struct {
	Data       []byte    `json:"data"`
	Timestamp  time.Time `json:"timestamp"`
	SampleRate int32     `json:"sampleRate"`
	Channels   int16     `json:"channels"`
	HasSpeech  bool      `json:"hasSpeech"`
	SpeakerID  string    `json:"speakerId,omitempty"`
	IsOperator bool      `json:"isOperator,omitempty"`
}

// SpeechSegment is a contiguous run of frames bounded by silence gaps.
// Frames are index-addressable in arrival order; adjacency is by timestamp,
// never by embedded references. Immutable once Closed.
type SpeechSegment struct {
	Frames    []AudioFrame `json:"frames"`
	StartedAt time.Time    `json:"startedAt"`
	EndedAt   time.Time    `json:"endedAt"`
	Closed    bool         `json:"closed"`
}

func (s *SpeechSegment) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := s.EndedAt
	if end.IsZero() && len(s.Frames) > 0 {
		end = s.Frames[len(s.Frames)-1].Timestamp
	}
	return end.Sub(s.StartedAt)
}

// PartialTranscript is incremental STT output. A session holds at most one
// current partial; each new one replaces the previous, never merges.
type PartialTranscript struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// FinalTranscript is emitted once per confirmed speech segment.
type FinalTranscript struct {
	Text     string        `json:"text"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

const (
	EmotionNeutral = "neutral"
	IntentUnknown  = "unknown"
)

// Emotion is one classification from the emotion/intent collaborator.
type Emotion struct {
	Category   string    `json:"category"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Intent mirrors Emotion for the intent classifier.
type Intent struct {
	IntentType string    `json:"intentType"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

func NeutralEmotion(at time.Time) Emotion {
	return Emotion{Category: EmotionNeutral, Confidence: 0, Timestamp: at}
}

func UnknownIntent(at time.Time) Intent {
	return Intent{IntentType: IntentUnknown, Confidence: 0, Timestamp: at}
}

// UserState is the consolidated snapshot produced exactly once per committed
// turn. TurnID is unique per session and monotonically increasing; it is the
// join key with downstream response generation.
type UserState struct {
	SessionID uuid.UUID         `json:"sessionId"`
	TurnID    uint64            `json:"turnId"`
	Utterance string            `json:"utterance"`
	Emotion   Emotion           `json:"emotion"`
	Intent    Intent            `json:"intent"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// TurnKind tags entries in the dialogue history. Consumers switch on the
// kind instead of doing runtime type checks.
type TurnKind string

const (
	TurnUser      TurnKind = "user"
	TurnAgent     TurnKind = "agent"
	TurnAggregate TurnKind = "aggregate"
)

// TurnEntry is one contribution in the dialogue context. Aggregate entries
// consolidate an interrupted-and-resumed utterance; Parts is only populated
// for that kind.
type TurnEntry struct {
	Kind  TurnKind    `json:"kind"`
	Text  string      `json:"text"`
	At    time.Time   `json:"at"`
	Parts []TurnEntry `json:"parts,omitempty"`
}

// FlatText renders the entry as a single utterance, joining aggregate parts
// in order.
func (t TurnEntry) FlatText() string {
	if t.Kind != TurnAggregate || len(t.Parts) == 0 {
		return t.Text
	}
	parts := make([]string, 0, len(t.Parts))
	for _, p := range t.Parts {
		parts = append(parts, p.FlatText())
	}
	return strings.Join(parts, " ")
}

// IsUserSide reports whether the entry counts as a user contribution when
// bounding the judgment context window.
func (t TurnEntry) IsUserSide() bool {
	return t.Kind == TurnUser || t.Kind == TurnAggregate
}
