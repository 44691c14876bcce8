package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/db"
	"github.com/patrickwarner/nest/internal/middleware"
	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/ratelimit"
	"github.com/patrickwarner/nest/internal/token"
)

// Client-originated events.
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventEmergencyAlert = "emergency_alert"
	EventTyping         = "typing"
)

// Server-originated events.
const (
	EventEmergencyNotification = "emergency_notification"
	EventUserTyping            = "user_typing"
	EventError                 = "error"
	EventConnected             = "connected"
)

const storeTimeout = 5 * time.Second

// SessionStore resolves socket session tokens.
type SessionStore interface {
	LookupSession(ctx context.Context, token string) (string, error)
}

// AlertStore keeps emergency alerts for their expiry window.
type AlertStore interface {
	SaveEmergencyAlert(ctx context.Context, a models.EmergencyAlert) error
}

// PresenceStore records whether a user is connected.
type PresenceStore interface {
	SetPresence(ctx context.Context, id string, online bool, at time.Time) error
}

// Gateway upgrades authenticated requests to websockets and dispatches
// client events. Alerts, Presence and Limiter are optional.
type Gateway struct {
	Hub      *Hub
	Sessions SessionStore
	Alerts   AlertStore
	Presence PresenceStore
	Limiter  *ratelimit.UserLimiter
	Logger   *zap.Logger
	// TokenSecret, when set, requires session tokens to carry a valid
	// signature no older than TokenTTL before the session store is consulted.
	TokenSecret []byte
	TokenTTL    time.Duration

	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewGateway builds a gateway around hub. checkOrigin may be nil to accept
// any origin.
func NewGateway(hub *Hub, sessions SessionStore, alerts AlertStore, presence PresenceStore, limiter *ratelimit.UserLimiter, logger *zap.Logger, checkOrigin func(*http.Request) bool) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Gateway{
		Hub:      hub,
		Sessions: sessions,
		Alerts:   alerts,
		Presence: presence,
		Limiter:  limiter,
		Logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		now: time.Now,
	}
}

func sessionToken(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	return middleware.BearerToken(r)
}

// ServeHTTP authenticates the session token, upgrades the connection and
// serves it until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, g.Logger)
	tok := sessionToken(r)
	if tok == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	userID, err := g.authenticate(r.Context(), tok)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) && !errors.Is(err, errTokenRejected) {
			logger.Error("session lookup failed", zap.Error(err))
		}
		http.Error(w, "invalid session", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	c := newClient(conn, userID)
	if g.Hub.register(c) {
		g.setPresence(userID, true)
	}
	logger.Info("realtime client connected", zap.String("user_id", userID))

	go c.writePump()
	c.enqueue(mustFrame(EventConnected, map[string]string{"userId": userID}))
	c.readPump(g.handle)

	if g.Hub.unregister(c) {
		g.setPresence(userID, false)
	}
	logger.Info("realtime client disconnected", zap.String("user_id", userID))
}

var errTokenRejected = errors.New("session token rejected")

// authenticate resolves tok to a user id. A signed token must also name the
// user the session store holds for it.
func (g *Gateway) authenticate(ctx context.Context, tok string) (string, error) {
	var claims token.Claims
	if len(g.TokenSecret) > 0 {
		var err error
		if claims, err = token.Verify(tok, g.TokenSecret, g.TokenTTL); err != nil {
			return "", fmt.Errorf("%w: %w", errTokenRejected, err)
		}
	}
	userID, err := g.Sessions.LookupSession(ctx, tok)
	if err != nil {
		return "", err
	}
	if claims.UserID != "" && claims.UserID != userID {
		return "", fmt.Errorf("%w: user mismatch", errTokenRejected)
	}
	return userID, nil
}

func mustFrame(event string, payload any) []byte {
	b, err := encodeFrame(event, payload)
	if err != nil {
		panic(err)
	}
	return b
}

func (g *Gateway) setPresence(userID string, online bool) {
	if g.Presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := g.Presence.SetPresence(ctx, userID, online, g.now().UTC()); err != nil && !errors.Is(err, models.ErrNotFound) {
		g.Logger.Warn("update presence", zap.String("user_id", userID), zap.Bool("online", online), zap.Error(err))
	}
}

// handle dispatches one inbound frame. A failing or panicking handler is
// logged and the connection stays open.
func (g *Gateway) handle(c *client, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		g.Logger.Warn("malformed realtime frame", zap.String("user_id", c.userID), zap.Error(err))
		return
	}
	logger := g.Logger.With(zap.String("user_id", c.userID), zap.String("event", f.Event))
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("realtime handler panic", zap.Any("panic", rec))
		}
	}()

	var err error
	switch f.Event {
	case EventJoinRoom:
		err = g.onJoinRoom(c, f.Data)
	case EventLeaveRoom:
		err = g.onLeaveRoom(c, f.Data)
	case EventEmergencyAlert:
		err = g.onEmergencyAlert(c, f.Data)
	case EventTyping:
		err = g.onTyping(c, f.Data)
	default:
		logger.Debug("unknown realtime event ignored")
		return
	}
	if err != nil {
		logger.Warn("realtime event rejected", zap.Error(err))
		c.enqueue(mustFrame(EventError, map[string]string{"event": f.Event, "message": err.Error()}))
	}
}

func decodeRoom(data json.RawMessage) (string, error) {
	var room string
	if err := json.Unmarshal(data, &room); err != nil {
		var obj struct {
			Room string `json:"room"`
		}
		if err2 := json.Unmarshal(data, &obj); err2 != nil {
			return "", fmt.Errorf("room must be a string: %w", err)
		}
		room = obj.Room
	}
	room = strings.TrimSpace(room)
	if !validRoom(room) {
		return "", fmt.Errorf("invalid room %q", room)
	}
	return room, nil
}

func (g *Gateway) onJoinRoom(c *client, data json.RawMessage) error {
	room, err := decodeRoom(data)
	if err != nil {
		return err
	}
	g.Hub.join(c, room)
	return nil
}

func (g *Gateway) onLeaveRoom(c *client, data json.RawMessage) error {
	room, err := decodeRoom(data)
	if err != nil {
		return err
	}
	g.Hub.leave(c, room)
	return nil
}

type emergencyPayload struct {
	Location    json.RawMessage `json:"location"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
}

func (g *Gateway) onEmergencyAlert(c *client, data json.RawMessage) error {
	var p emergencyPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("malformed emergency alert: %w", err)
	}
	if strings.TrimSpace(p.Type) == "" {
		return errors.New("emergency alert type is required")
	}
	if !g.Limiter.Allow(c.userID) {
		return errors.New("too many emergency alerts, try again later")
	}

	ts := g.now().UTC()
	alert := models.EmergencyAlert{
		ID:          db.EmergencyKey(ts),
		UserID:      c.userID,
		Type:        p.Type,
		Description: p.Description,
		Location:    p.Location,
		Timestamp:   ts,
	}
	if g.Alerts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := g.Alerts.SaveEmergencyAlert(ctx, alert)
		cancel()
		if err != nil {
			g.Logger.Error("store emergency alert", zap.String("user_id", c.userID), zap.Error(err))
		}
	}
	n := g.Hub.Broadcast(EventEmergencyNotification, alert)
	g.Logger.Info("emergency alert broadcast",
		zap.String("user_id", c.userID), zap.String("type", p.Type), zap.Int("recipients", n))
	return nil
}

type typingPayload struct {
	ChatID   string `json:"chatId"`
	IsTyping bool   `json:"isTyping"`
}

func (g *Gateway) onTyping(c *client, data json.RawMessage) error {
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("malformed typing event: %w", err)
	}
	if !validRoom(p.ChatID) {
		return fmt.Errorf("invalid chat room %q", p.ChatID)
	}
	g.Hub.mu.RLock()
	_, member := c.rooms[p.ChatID]
	g.Hub.mu.RUnlock()
	if !member {
		return fmt.Errorf("not a member of %q", p.ChatID)
	}
	g.Hub.EmitToRoom(p.ChatID, EventUserTyping, map[string]any{
		"userId":   c.userID,
		"chatId":   p.ChatID,
		"isTyping": p.IsTyping,
	}, c)
	return nil
}
