package websocket

import (
	"sync"
	"time"

	"github.com/cadencevoice/cadence/pkg/Logger"
	"github.com/google/uuid"
)

// ConnectionManager tracks the transport side of live sessions and sweeps
// idle ones. The turn registry owns the orchestrators; this layer owns the
// sockets.
type ConnectionManager struct {
	logger         *Logger.Logger
	sessions       map[uuid.UUID]*Session
	mutex          sync.RWMutex
	cleanupTicker  *time.Ticker
	stopCleanup    chan struct{}
	sessionTimeout time.Duration
}

func NewConnectionManager(logger *Logger.Logger) *ConnectionManager {
	cm := &ConnectionManager{
		logger:         logger,
		sessions:       make(map[uuid.UUID]*Session),
		stopCleanup:    make(chan struct{}),
		sessionTimeout: 30 * time.Minute,
	}

	cm.startCleanupRoutine()

	return cm
}

// RegisterConnection registers a new session
func (cm *ConnectionManager) RegisterConnection(session *Session) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.sessions[session.SessionID] = session
	cm.logger.Infof("Registered connection for session %s", session.SessionID)
}

// UnregisterConnection removes a session
func (cm *ConnectionManager) UnregisterConnection(sessionID uuid.UUID) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if session, exists := cm.sessions[sessionID]; exists {
		cm.logger.Infof("Unregistering connection for session %s (connected %v)",
			sessionID, time.Since(session.ConnectedAt))

		if err := session.Close(); err != nil {
			cm.logger.Errorf("Error closing session %s: %v", sessionID, err)
		}

		delete(cm.sessions, sessionID)
	}
}

// GetSession retrieves a session by session ID
func (cm *ConnectionManager) GetSession(sessionID uuid.UUID) (*Session, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	session, exists := cm.sessions[sessionID]
	return session, exists
}

// GetSessionCount returns the number of active sessions
func (cm *ConnectionManager) GetSessionCount() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return len(cm.sessions)
}

// SetSessionTimeout sets the session timeout duration
func (cm *ConnectionManager) SetSessionTimeout(timeout time.Duration) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.sessionTimeout = timeout
}

// startCleanupRoutine starts a goroutine to clean up expired sessions
func (cm *ConnectionManager) startCleanupRoutine() {
	cm.cleanupTicker = time.NewTicker(5 * time.Minute)

	go func() {
		for {
			select {
			case <-cm.cleanupTicker.C:
				cm.cleanupExpiredSessions()
			case <-cm.stopCleanup:
				cm.cleanupTicker.Stop()
				return
			}
		}
	}()
}

// cleanupExpiredSessions closes sessions idle past the timeout. Closing the
// socket unblocks the read loop, which performs the full teardown.
func (cm *ConnectionManager) cleanupExpiredSessions() {
	cm.mutex.RLock()
	expired := make([]*Session, 0)
	for _, session := range cm.sessions {
		if session.IsExpired(cm.sessionTimeout) {
			expired = append(expired, session)
		}
	}
	cm.mutex.RUnlock()

	for _, session := range expired {
		cm.logger.Infof("Closing expired session %s", session.SessionID)
		if err := session.Close(); err != nil {
			cm.logger.Errorf("Error closing expired session %s: %v", session.SessionID, err)
		}
	}

	if len(expired) > 0 {
		cm.logger.Infof("Closed %d expired sessions", len(expired))
	}
}

// Close shuts down the connection manager
func (cm *ConnectionManager) Close() error {
	close(cm.stopCleanup)

	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for sessionID, session := range cm.sessions {
		cm.logger.Infof("Closing session %s", sessionID)
		if err := session.Close(); err != nil {
			cm.logger.Errorf("Error closing session %s: %v", sessionID, err)
		}
	}

	cm.sessions = make(map[uuid.UUID]*Session)

	cm.logger.Infof("Connection manager closed")
	return nil
}

// GetStats returns connection manager statistics
func (cm *ConnectionManager) GetStats() map[string]interface{} {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	sessionStats := make([]map[string]interface{}, 0, len(cm.sessions))
	for _, session := range cm.sessions {
		stat := session.Orchestrator.Stats()
		stat["connected_at"] = session.ConnectedAt
		stat["last_active"] = session.LastActive()
		if session.Tail != nil {
			stat["buffered_frames"] = session.Tail.Len()
		}
		sessionStats = append(sessionStats, stat)
	}

	return map[string]interface{}{
		"active_sessions": len(cm.sessions),
		"session_timeout": cm.sessionTimeout.String(),
		"sessions":        sessionStats,
	}
}
