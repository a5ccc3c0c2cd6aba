// Package websocket pushes broadcast signals to badge widgets. Each actor has
// at most one live connection; it receives every event published on the
// actor's topic and reports page visibility back to the inbox session.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Hub tracks one connection per actor key.
type Hub struct {
	log          *zap.SugaredLogger
	subscriber   EventSubscriber
	connections  map[string]*Connection // actor key -> connection
	mu           sync.RWMutex
	shutdownOnce sync.Once
	sendBuffer   int
	pingInterval time.Duration
	writeTimeout time.Duration
}

// EventSubscriber is satisfied by events.Bus and events.RedisPublisher.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string, subscriberID string, filters ...types.EventType) (<-chan types.Event, error)
	Unsubscribe(ctx context.Context, topic string, subscriberID string) error
}

// Connection is one actor's live socket.
type Connection struct {
	ID       string
	ActorKey string
	Conn     *websocket.Conn
	cancel   context.CancelFunc
	sendCh   chan types.Event
	done     chan struct{}
	mu       sync.Mutex
	closed   bool
}

// HubConfig contains configuration options for the Hub.
type HubConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

// DefaultHubConfig returns sensible defaults for Hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
	}
}

func NewHub(subscriber EventSubscriber, cfg ...HubConfig) *Hub {
	config := DefaultHubConfig()
	if len(cfg) > 0 {
		config = cfg[0]
	}
	defaults := DefaultHubConfig()
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	return &Hub{
		log:          logger.GetLogger().Named("websocket_hub"),
		subscriber:   subscriber,
		connections:  make(map[string]*Connection),
		sendBuffer:   config.SendBuffer,
		pingInterval: config.PingInterval,
		writeTimeout: config.WriteTimeout,
	}
}

// Register subscribes a new connection to the actor's topic. An existing
// connection for the same actor is closed and replaced.
func (h *Hub) Register(ctx context.Context, actorKey string, conn *websocket.Conn) (*Connection, error) {
	subCtx, cancel := context.WithCancel(ctx)
	connection := &Connection{
		ID:       uuid.NewString(),
		ActorKey: actorKey,
		Conn:     conn,
		cancel:   cancel,
		sendCh:   make(chan types.Event, h.sendBuffer),
		done:     make(chan struct{}),
	}

	eventCh, err := h.subscriber.Subscribe(subCtx, actorKey, connection.ID)
	if err != nil {
		cancel()
		h.log.Errorw("Failed to subscribe connection to actor topic", "actor", actorKey, "error", err)
		return nil, err
	}

	h.mu.Lock()
	existing := h.connections[actorKey]
	h.connections[actorKey] = connection
	h.mu.Unlock()

	if existing != nil {
		h.closeConnection(existing, "replaced by new connection")
	}

	go h.forward(subCtx, connection, eventCh)

	h.log.Infow("WebSocket connection registered", "actor", actorKey, "connection", connection.ID)
	return connection, nil
}

func (h *Hub) forward(ctx context.Context, conn *Connection, eventCh <-chan types.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.done:
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			select {
			case conn.sendCh <- event:
			default:
				h.log.Warnw("Connection send buffer full, dropping event",
					"actor", conn.ActorKey,
					"eventType", event.Type)
			}
		}
	}
}

// Unregister removes conn if it is still the actor's current connection and
// reports whether it was.
func (h *Hub) Unregister(conn *Connection) bool {
	h.mu.Lock()
	current, ok := h.connections[conn.ActorKey]
	isCurrent := ok && current == conn
	if isCurrent {
		delete(h.connections, conn.ActorKey)
	}
	h.mu.Unlock()

	h.closeConnection(conn, "unregistered")
	return isCurrent
}

func (h *Hub) closeConnection(conn *Connection, reason string) {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return
	}
	conn.closed = true
	close(conn.done)
	conn.mu.Unlock()

	if conn.cancel != nil {
		conn.cancel()
	}
	if h.subscriber != nil {
		_ = h.subscriber.Unsubscribe(context.Background(), conn.ActorKey, conn.ID)
	}
	if conn.Conn != nil {
		_ = conn.Conn.Close(websocket.StatusNormalClosure, reason)
	}

	h.log.Infow("WebSocket connection closed",
		"actor", conn.ActorKey,
		"connection", conn.ID,
		"reason", reason)
}

// BroadcastToActor queues an event on the actor's connection, if any.
func (h *Hub) BroadcastToActor(actorKey string, event types.Event) bool {
	h.mu.RLock()
	conn, ok := h.connections[actorKey]
	h.mu.RUnlock()

	if !ok || conn.IsClosed() {
		return false
	}

	select {
	case conn.sendCh <- event:
		return true
	default:
		h.log.Warnw("Failed to broadcast to actor, buffer full",
			"actor", actorKey,
			"eventType", event.Type)
		return false
	}
}

func (h *Hub) GetConnection(actorKey string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.connections[actorKey]
	return conn, ok
}

func (h *Hub) GetConnectedActors() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	actors := make([]string, 0, len(h.connections))
	for key := range h.connections {
		actors = append(actors, key)
	}
	return actors
}

func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Shutdown closes every connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.mu.Lock()
		connections := make([]*Connection, 0, len(h.connections))
		for _, conn := range h.connections {
			connections = append(connections, conn)
		}
		h.connections = make(map[string]*Connection)
		h.mu.Unlock()

		for _, conn := range connections {
			h.closeConnection(conn, "server shutdown")
		}
	})

	h.log.Info("WebSocket hub shutdown complete")
	return ctx.Err()
}

// SendChannel returns the queue of events waiting to be written.
func (c *Connection) SendChannel() <-chan types.Event {
	return c.sendCh
}

// Done is closed when the connection is closed or replaced.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
