package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/NomadCrew/dojo-portal/config"
	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/middleware"
	"github.com/NomadCrew/dojo-portal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Message types exchanged with badge clients.
const (
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
	MessageTypeVisibility = "visibility"
	MessageTypeRefresh    = "refresh"
	MessageTypeUnread     = "unread"
	MessageTypeEvent      = "event"
	MessageTypeConnected  = "connected"
	MessageTypeError      = "error"
)

// InboxSessions lets a badge connection drive its actor's inbox session.
// *inbox.Registry satisfies it.
type InboxSessions interface {
	SetVisible(actor types.Actor, visible bool) error
	RefreshUnread(ctx context.Context, actor types.Actor) (int, error)
}

// Handler upgrades badge clients and runs their read, write and ping loops.
type Handler struct {
	log            *zap.SugaredLogger
	hub            *Hub
	sessions       InboxSessions
	pingInterval   time.Duration
	writeTimeout   time.Duration
	allowedOrigins []string
	isDevelopment  bool
}

func NewHandler(hub *Hub, serverCfg *config.ServerConfig, sessions InboxSessions) *Handler {
	return &Handler{
		log:            logger.GetLogger().Named("websocket_handler"),
		hub:            hub,
		sessions:       sessions,
		pingInterval:   hub.pingInterval,
		writeTimeout:   hub.writeTimeout,
		allowedOrigins: serverCfg.AllowedOrigins,
		isDevelopment:  serverCfg.Environment == config.EnvDevelopment,
	}
}

// getAcceptOptions allows every origin in development and only the
// configured ones elsewhere.
func (h *Handler) getAcceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	}

	if h.isDevelopment {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = h.allowedOrigins
	}

	return opts
}

// ClientMessage represents a message from the client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage represents a message to the client.
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type visibilityPayload struct {
	Visible *bool `json:"visible"`
}

// HandleWebSocket handles the upgrade and the connection lifecycle.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not logged in"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, h.getAcceptOptions())
	if err != nil {
		h.log.Errorw("Failed to accept WebSocket connection", "actor", actor.Key(), "error", err)
		return
	}

	h.serve(c.Request.Context(), actor, conn)
}

func (h *Handler) serve(parent context.Context, actor types.Actor, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	connection, err := h.hub.Register(ctx, actor.Key(), conn)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "registration failed")
		return
	}

	defer func() {
		// A replaced connection must not hide the page its successor reports.
		if h.hub.Unregister(connection) {
			h.setVisible(actor, false)
		}
	}()

	if err := h.sendMessage(ctx, conn, ServerMessage{
		Type:    MessageTypeConnected,
		Payload: map[string]string{"actor": actor.Key()},
	}); err != nil {
		h.log.Errorw("Failed to send connected message", "actor", actor.Key(), "error", err)
		return
	}

	// An open badge connection means the page is on screen.
	h.setVisible(actor, true)

	errCh := make(chan error, 3)
	go func() { errCh <- h.readLoop(ctx, conn, actor) }()
	go func() { errCh <- h.writeLoop(ctx, conn, connection) }()
	go func() { errCh <- h.pingLoop(ctx, conn) }()

	select {
	case err = <-errCh:
	case <-connection.Done():
		err = nil
	}
	if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
		websocket.CloseStatus(err) != websocket.StatusGoingAway {
		h.log.Warnw("WebSocket connection error", "actor", actor.Key(), "error", err)
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, actor types.Actor) error {
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}
		h.handleClientMessage(ctx, conn, actor, msg)
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, connection *Connection) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-connection.Done():
			return nil
		case event := <-connection.SendChannel():
			if err := h.sendMessage(ctx, conn, ServerMessage{Type: MessageTypeEvent, Payload: event}); err != nil {
				return err
			}
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (h *Handler) handleClientMessage(ctx context.Context, conn *websocket.Conn, actor types.Actor, msg ClientMessage) {
	switch msg.Type {
	case MessageTypePing:
		_ = h.sendMessage(ctx, conn, ServerMessage{Type: MessageTypePong})

	case MessageTypeVisibility:
		var payload visibilityPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Visible == nil {
			_ = h.sendMessage(ctx, conn, ServerMessage{
				Type:  MessageTypeError,
				Error: "Invalid visibility message: visible required",
			})
			return
		}
		h.setVisible(actor, *payload.Visible)

	case MessageTypeRefresh:
		if h.sessions == nil {
			return
		}
		unread, err := h.sessions.RefreshUnread(ctx, actor)
		if err != nil {
			_ = h.sendMessage(ctx, conn, ServerMessage{
				Type:  MessageTypeError,
				Error: "Could not refresh notifications",
			})
			return
		}
		_ = h.sendMessage(ctx, conn, ServerMessage{
			Type:    MessageTypeUnread,
			Payload: map[string]int{"count": unread},
		})

	default:
		h.log.Debugw("Unknown message type from client", "actor", actor.Key(), "type", msg.Type)
	}
}

func (h *Handler) setVisible(actor types.Actor, visible bool) {
	if h.sessions == nil {
		return
	}
	if err := h.sessions.SetVisible(actor, visible); err != nil {
		h.log.Warnw("Failed to update page visibility", "actor", actor.Key(), "visible", visible, "error", err)
	}
}

func (h *Handler) sendMessage(ctx context.Context, conn *websocket.Conn, msg ServerMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}

func (h *Handler) GetHub() *Hub {
	return h.hub
}
