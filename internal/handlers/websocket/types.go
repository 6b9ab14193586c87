package websocket

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cadencevoice/cadence/internal/types"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeInit          MessageType = "init"
	MessageTypeTranscript    MessageType = "transcript"
	MessageTypeClassifier    MessageType = "classifier"
	MessageTypeAgentResponse MessageType = "agent_response"
	MessageTypeUserState     MessageType = "user_state"
	MessageTypePreReply      MessageType = "pre_reply"
	MessageTypeError         MessageType = "error"
)

// WSMessage represents the structure of WebSocket messages
type WSMessage struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// TranscriptMessage carries incremental STT output. Each partial replaces
// the previous one for the session.
type TranscriptMessage struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ClassifierMessage carries one emotion or intent classification from the
// external classifier.
type ClassifierMessage struct {
	Kind       string    `json:"kind"` // "emotion" or "intent"
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// AgentResponseMessage reports the reply the agent actually delivered, so
// the dialogue history stays two-sided.
type AgentResponseMessage struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PreReplyMessage carries the speculative reply draft for a committed turn.
type PreReplyMessage struct {
	TurnID uint64 `json:"turnId"`
	Text   string `json:"text"`
}

// ErrorMessage contains error information
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Binary audio frame layout, little endian:
//
//	bytes 0-7   capture timestamp, unix milliseconds
//	bytes 8-11  sample rate
//	bytes 12-13 channels
//	byte  14    flags (bit0 speech, bit1 operator)
//	byte  15    reserved
//	bytes 16-   PCM payload
const frameHeaderSize = 16

const (
	flagHasSpeech  = 1 << 0
	flagIsOperator = 1 << 1
)

func parseBinaryFrame(data []byte) (types.AudioFrame, error) {
	if len(data) < frameHeaderSize {
		return types.AudioFrame{}, fmt.Errorf("audio frame too short: %d bytes", len(data))
	}

	millis := int64(binary.LittleEndian.Uint64(data[0:8]))
	flags := data[14]

	return types.AudioFrame{
		Timestamp:  time.UnixMilli(millis),
		SampleRate: int32(binary.LittleEndian.Uint32(data[8:12])),
		Channels:   int16(binary.LittleEndian.Uint16(data[12:14])),
		HasSpeech:  flags&flagHasSpeech != 0,
		IsOperator: flags&flagIsOperator != 0,
		Data:       data[frameHeaderSize:],
	}, nil
}
