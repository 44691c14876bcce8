// Package realtime implements the websocket gateway that delivers server
// events to connected users and relays a few client-originated events.
package realtime

import (
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/observability"
)

// userRoomPrefix namespaces per-user rooms so ad-hoc rooms cannot alias them.
const userRoomPrefix = "user:"

// UserRoom is the room every connection of userID joins.
func UserRoom(userID string) string { return userRoomPrefix + userID }

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// Hub owns the in-memory room membership. Nothing in it is durable; it is
// rebuilt as clients reconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}
	users   map[string]int

	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewHub returns an empty hub.
func NewHub(logger *zap.Logger, metrics observability.MetricsRegistry) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		rooms:   make(map[string]map[*client]struct{}),
		users:   make(map[string]int),
		logger:  logger,
		metrics: metrics,
	}
}

// register adds c and joins its user room. It reports whether c is the
// user's first open connection.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.joinLocked(c, UserRoom(c.userID))
	h.users[c.userID]++
	h.metrics.AddRealtimeConnections(1)
	return h.users[c.userID] == 1
}

// unregister removes c from every room. It reports whether c was the user's
// last open connection.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	h.metrics.AddRealtimeConnections(-1)
	h.users[c.userID]--
	if h.users[c.userID] <= 0 {
		delete(h.users, c.userID)
		return true
	}
	return false
}

func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	h.joinLocked(c, room)
	h.mu.Unlock()
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	h.leaveLocked(c, room)
	h.mu.Unlock()
}

func (h *Hub) joinLocked(c *client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// Online reports whether userID has at least one open connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.users[userID] > 0
}

// RoomSize returns the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// EmitToUser sends an event to every connection of userID. It returns false
// when the user is not connected.
func (h *Hub) EmitToUser(userID, event string, payload any) bool {
	return h.EmitToRoom(UserRoom(userID), event, payload, nil) > 0
}

// EmitToRoom sends an event to the members of room except skip and returns
// how many connections it was queued for.
func (h *Hub) EmitToRoom(room, event string, payload any, skip *client) int {
	msg, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("encode realtime frame", zap.String("event", event), zap.Error(err))
		return 0
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != skip {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	return h.sendAll(targets, event, msg)
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(event string, payload any) int {
	msg, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("encode realtime frame", zap.String("event", event), zap.Error(err))
		return 0
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	return h.sendAll(targets, event, msg)
}

func (h *Hub) sendAll(targets []*client, event string, msg []byte) int {
	sent := 0
	for _, c := range targets {
		if c.enqueue(msg) {
			sent++
			continue
		}
		h.logger.Warn("realtime send buffer full, dropping frame",
			zap.String("user_id", c.userID), zap.String("event", event))
	}
	if sent > 0 {
		h.metrics.IncrementRealtimeEvents(event)
	}
	return sent
}

// validRoom rejects names that would alias another user's room.
func validRoom(room string) bool {
	room = strings.TrimSpace(room)
	return room != "" && len(room) <= 128 && !strings.HasPrefix(room, userRoomPrefix)
}
