package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cadencevoice/cadence/internal/config"
	"github.com/cadencevoice/cadence/internal/repository/turnstore"
	"github.com/cadencevoice/cadence/internal/turn/judge"
	"github.com/cadencevoice/cadence/internal/turn/ledger"
	"github.com/cadencevoice/cadence/internal/turn/orchestrator"
	"github.com/cadencevoice/cadence/internal/turn/registry"
	"github.com/cadencevoice/cadence/internal/types"
	"github.com/cadencevoice/cadence/pkg/Logger"
	"github.com/cadencevoice/cadence/pkg/framebuf"
)

// Handler owns the session WebSocket surface: one connection per spoken
// dialogue session, carrying audio frames, transcripts, and classifier
// results in, and committed user states plus pre-replies out.
type Handler struct {
	logger            *Logger.Logger
	config            *config.Settings
	completer         judge.Completer
	store             turnstore.Store
	turnRegistry      *registry.Registry
	connectionManager *ConnectionManager
	upgrader          websocket.Upgrader
}

func NewHandler(
	logger *Logger.Logger,
	cfg *config.Settings,
	completer judge.Completer,
	store turnstore.Store,
	turnRegistry *registry.Registry,
) *Handler {
	return &Handler{
		logger:            logger,
		config:            cfg,
		completer:         completer,
		store:             store,
		turnRegistry:      turnRegistry,
		connectionManager: NewConnectionManager(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: Implement proper origin checking for production
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers WebSocket routes
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	ws := router.Group("/ws")
	{
		ws.GET("/", h.HandleSession)
		ws.GET("/stats", h.HandleStats)
	}
}

// HandleSession upgrades the connection and runs the session until the
// client disconnects or the idle sweep closes the socket.
func (h *Handler) HandleSession(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sessionID := uuid.New()
	if idStr := c.Query("sessionId"); idStr != "" {
		if parsed, err := uuid.Parse(idStr); err == nil {
			sessionID = parsed
		} else {
			h.logger.Warnf("Invalid sessionId %q, generating a new one", idStr)
		}
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	turnCfg := h.config.Turn
	orch := orchestrator.New(
		sessionID,
		orchestrator.Config{
			SilenceThreshold:     turnCfg.SilenceThreshold(),
			ClassifierJoinWindow: turnCfg.ClassifierJoinWindow(),
			RecentJudgmentWindow: turnCfg.RecentJudgmentWindow,
		},
		judge.New(h.completer, turnCfg.JudgeTimeout(), h.logger),
		orchestrator.NewPreReplyStager(h.completer, turnCfg.PreReplyTimeout(), h.logger),
		ledger.New(),
		h.store,
		nil, // sink attached below, the session is the sink
		h.logger,
	)

	tail := framebuf.New(turnCfg.FrameTailBytes)
	session := NewSession(sessionID, conn, orch, tail, cancel)
	orch.AttachSink(session)

	// A reconnecting session picks its dialogue history back up from the
	// turn store so the judge context survives the disconnect.
	if h.store != nil {
		if past, err := h.store.RecentTurns(c.Request.Context(), sessionID, turnCfg.RecentJudgmentWindow); err != nil {
			h.logger.Warnf("Failed to load turn history for session %s: %v", sessionID, err)
		} else {
			orch.SeedDialogue(past)
		}
	}

	if err := h.turnRegistry.Register(orch, cancel); err != nil {
		h.logger.Errorf("Failed to register session %s: %v", sessionID, err)
		session.SendError("SESSION_CONFLICT", "session already exists")
		return
	}
	defer func() {
		if err := h.turnRegistry.Remove(sessionID); err != nil {
			h.logger.Debugf("Session %s already removed: %v", sessionID, err)
		}
	}()

	h.connectionManager.RegisterConnection(session)
	defer h.connectionManager.UnregisterConnection(sessionID)

	go orch.Run(sessionCtx)

	h.logger.Infof("Session %s connected", sessionID)
	session.SendMessage(MessageTypeInit, map[string]interface{}{
		"status":    "connected",
		"sessionId": sessionID.String(),
	})

	h.handleConnection(session)
}

// HandleStats provides session statistics
func (h *Handler) HandleStats(c *gin.Context) {
	stats := h.connectionManager.GetStats()
	stats["registered_orchestrators"] = h.turnRegistry.Count()
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"data":   stats,
	})
}

// handleConnection runs the read loop for one session
func (h *Handler) handleConnection(session *Session) {
	for {
		messageType, data, err := session.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Errorf("WebSocket read error: %v", err)
			} else {
				h.logger.Infof("WebSocket connection closed for session %s", session.SessionID)
			}
			break
		}

		session.UpdateLastActive()

		switch messageType {
		case websocket.TextMessage:
			h.handleTextMessage(session, data)
		case websocket.BinaryMessage:
			h.handleBinaryMessage(session, data)
		}
	}
}

// handleBinaryMessage parses an audio frame and feeds it to the session
func (h *Handler) handleBinaryMessage(session *Session, data []byte) {
	frame, err := parseBinaryFrame(data)
	if err != nil {
		h.logger.Errorf("Bad audio frame from session %s: %v", session.SessionID, err)
		session.SendError("INVALID_FRAME", "malformed audio frame")
		return
	}

	session.BufferFrame(frame)
	session.Orchestrator.IngestFrame(frame)
}

// handleTextMessage processes JSON control messages
func (h *Handler) handleTextMessage(session *Session, data []byte) {
	var wsMsg WSMessage
	if err := json.Unmarshal(data, &wsMsg); err != nil {
		h.logger.Errorf("Failed to unmarshal WebSocket message: %v", err)
		session.SendError("INVALID_MESSAGE", "Invalid message format")
		return
	}

	switch wsMsg.Type {
	case MessageTypeInit:
		session.SendMessage(MessageTypeInit, map[string]interface{}{
			"status":    "connected",
			"sessionId": session.SessionID.String(),
		})

	case MessageTypeTranscript:
		var msg TranscriptMessage
		if !decodeData(wsMsg.Data, &msg) {
			session.SendError("INVALID_MESSAGE", "bad transcript payload")
			return
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		session.Orchestrator.IngestPartial(types.PartialTranscript{Text: msg.Text, At: msg.Timestamp})

	case MessageTypeClassifier:
		var msg ClassifierMessage
		if !decodeData(wsMsg.Data, &msg) {
			session.SendError("INVALID_MESSAGE", "bad classifier payload")
			return
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		switch msg.Kind {
		case "emotion":
			session.Orchestrator.ObserveEmotion(types.Emotion{
				Category:   msg.Label,
				Confidence: msg.Confidence,
				Timestamp:  msg.Timestamp,
			})
		case "intent":
			session.Orchestrator.ObserveIntent(types.Intent{
				IntentType: msg.Label,
				Confidence: msg.Confidence,
				Timestamp:  msg.Timestamp,
			})
		default:
			session.SendError("INVALID_MESSAGE", "unknown classifier kind")
		}

	case MessageTypeAgentResponse:
		var msg AgentResponseMessage
		if !decodeData(wsMsg.Data, &msg) {
			session.SendError("INVALID_MESSAGE", "bad agent response payload")
			return
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		session.Orchestrator.ObserveAgentResponse(msg.Text, msg.Timestamp)

	default:
		h.logger.Warnf("Unknown message type %q from session %s", wsMsg.Type, session.SessionID)
		session.SendError("UNKNOWN_MESSAGE_TYPE", string(wsMsg.Type))
	}
}

// decodeData remarshals the loosely typed envelope payload into its
// concrete message type.
func decodeData(data interface{}, out interface{}) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// Close shuts down the WebSocket handler
func (h *Handler) Close() error {
	return h.connectionManager.Close()
}
