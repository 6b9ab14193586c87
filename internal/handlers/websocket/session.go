package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cadencevoice/cadence/internal/turn/orchestrator"
	"github.com/cadencevoice/cadence/internal/types"
	"github.com/cadencevoice/cadence/pkg/framebuf"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session binds one WebSocket connection to its orchestrator. It is the
// orchestrator's Sink: committed turns and pre-replies go straight back
// down the same connection.
type Session struct {
	SessionID uuid.UUID
	Conn      *websocket.Conn

	Orchestrator *orchestrator.Orchestrator
	Tail         framebuf.FrameTail
	Cancel       context.CancelFunc

	ConnectedAt time.Time
	lastActive  time.Time
	isActive    bool
	mutex       sync.RWMutex
}

func NewSession(sessionID uuid.UUID, conn *websocket.Conn, orch *orchestrator.Orchestrator, tail framebuf.FrameTail, cancel context.CancelFunc) *Session {
	return &Session{
		SessionID:    sessionID,
		Conn:         conn,
		Orchestrator: orch,
		Tail:         tail,
		Cancel:       cancel,
		ConnectedAt:  time.Now(),
		lastActive:   time.Now(),
		isActive:     true,
	}
}

// SendMessage writes an enveloped message to the client. Writes are
// serialized; gorilla allows only one concurrent writer.
func (s *Session) SendMessage(msgType MessageType, data interface{}) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isActive {
		return fmt.Errorf("session %s not active", s.SessionID)
	}

	return s.Conn.WriteJSON(WSMessage{
		Type:      msgType,
		Data:      data,
		SessionID: s.SessionID.String(),
		Timestamp: time.Now(),
	})
}

// SendError sends an error message to the client
func (s *Session) SendError(code, message string) error {
	return s.SendMessage(MessageTypeError, ErrorMessage{Code: code, Message: message})
}

// PublishUserState implements orchestrator.Sink.
func (s *Session) PublishUserState(ctx context.Context, st types.UserState) error {
	return s.SendMessage(MessageTypeUserState, st)
}

// PublishPreReply implements orchestrator.Sink.
func (s *Session) PublishPreReply(ctx context.Context, sessionID uuid.UUID, turnID uint64, text string) error {
	return s.SendMessage(MessageTypePreReply, PreReplyMessage{TurnID: turnID, Text: text})
}

// BufferFrame keeps the raw frame in the bounded tail for diagnostics and
// replay. Overwrite of the oldest frames is expected under pressure.
func (s *Session) BufferFrame(f types.AudioFrame) {
	if s.Tail == nil {
		return
	}
	_ = s.Tail.Enqueue(f)
}

// UpdateLastActive updates the last activity timestamp
func (s *Session) UpdateLastActive() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastActive = time.Now()
}

// LastActive returns the last activity timestamp
func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

// IsExpired checks if the session has expired based on inactivity
func (s *Session) IsExpired(timeout time.Duration) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return time.Since(s.lastActive) > timeout
}

// IsAlive checks if the session is active
func (s *Session) IsAlive() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.isActive
}

// Close stops the orchestrator and closes the connection. Safe to call from
// the cleanup sweep while the read loop is still blocked.
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isActive {
		return nil
	}
	s.isActive = false

	if s.Cancel != nil {
		s.Cancel()
	}
	return s.Conn.Close()
}
