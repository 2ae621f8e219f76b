package live

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/kcrp/rp-dashboard/internal/domain/identity"
	"github.com/kcrp/rp-dashboard/internal/pkg/metrics"
	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// Channel is the Redis channel events fan out on between instances.
const Channel = "live:events"

// EventRolesChanged is sent after a persisted role change.
const EventRolesChanged = "roles_changed"

const sendBuffer = 256

// Event is the frame written to every connected client.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	At   time.Time `json:"at"`
}

// RolesChangedPayload describes a role change.
type RolesChangedPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Before   []string  `json:"before"`
	After    []string  `json:"after"`
	Source   string    `json:"source"`
}

type busMessage struct {
	Event            json.RawMessage `json:"event"`
	SenderInstanceID string          `json:"sender_instance_id"`
}

// Connection is one dashboard socket.
type Connection struct {
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
}

// NewConnection allocates the send buffer for a socket.
func NewConnection(userID uuid.UUID, conn *websocket.Conn) *Connection {
	return &Connection{UserID: userID, Conn: conn, Send: make(chan []byte, sendBuffer)}
}

// Hub fans events out to local connections and, when Redis is configured,
// to every other instance.
type Hub struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	redis  *redis.Client
	pubsub *redis.PubSub

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc

	instanceID string
	now        func() time.Time
}

// NewHub creates a hub. A nil client keeps fan-out local.
func NewHub(redisClient *redis.Client) *Hub {
	return NewHubWithInstanceID(redisClient, uuid.NewString())
}

// NewHubWithInstanceID creates a hub with an explicit instance identifier.
func NewHubWithInstanceID(redisClient *redis.Client, instanceID string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		connections: make(map[*Connection]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  instanceID,
		now:         time.Now,
	}
	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, Channel)
	}
	return h
}

// Run processes registrations until Shutdown (call in goroutine).
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			h.mu.Unlock()
			metrics.LiveConnections.Inc()
			log.Debug().Str("user_id", conn.UserID.String()).Msg("Live client connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
				metrics.LiveConnections.Dec()
			}
			h.mu.Unlock()
			log.Debug().Str("user_id", conn.UserID.String()).Msg("Live client disconnected")
		}
	}
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var bus busMessage
			if err := json.Unmarshal([]byte(msg.Payload), &bus); err != nil {
				log.Warn().Err(err).Msg("Invalid live bus message")
				continue
			}
			if bus.SenderInstanceID == h.instanceID {
				continue
			}
			h.broadcastLocal(bus.Event)
		}
	}
}

// Register adds a connection.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.ctx.Done():
	}
}

// Unregister removes a connection and closes its send channel.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.ctx.Done():
	}
}

// ConnectionCount returns the number of local connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Publish sends an event to local clients and to the other instances.
func (h *Hub) Publish(ctx context.Context, event string, payload any) {
	frame, err := json.Marshal(Event{Type: event, Data: payload, At: h.now().UTC()})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to encode live event")
		return
	}
	h.broadcastLocal(frame)

	if h.redis == nil {
		return
	}
	msg, err := json.Marshal(busMessage{Event: frame, SenderInstanceID: h.instanceID})
	if err != nil {
		return
	}
	if err := h.redis.Publish(ctx, Channel, msg).Err(); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Failed to fan out live event")
	}
}

// RolesChanged publishes a roles_changed event.
func (h *Hub) RolesChanged(ctx context.Context, rec *identity.Record, before roles.Set, source identity.Source) {
	h.Publish(ctx, EventRolesChanged, RolesChangedPayload{
		UserID:   rec.ID,
		Username: rec.DisplayName(),
		Before:   before.Strings(),
		After:    rec.RoleSet().Strings(),
		Source:   string(source),
	})
}

func (h *Hub) broadcastLocal(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.connections {
		select {
		case conn.Send <- frame:
		default:
			metrics.LiveEventsDropped.Inc()
		}
	}
}

// Shutdown stops the hub and closes every connection.
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		_ = h.pubsub.Close()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.connections {
		close(conn.Send)
		delete(h.connections, conn)
		metrics.LiveConnections.Dec()
	}
}
