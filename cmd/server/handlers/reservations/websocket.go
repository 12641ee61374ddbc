package reservations

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"wash-sync/cmd/server/ctxkeys"
	"wash-sync/cmd/server/handlers/httperr"
	"wash-sync/internal/logger"
	"wash-sync/internal/services/watch"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	// WSClosePolicyViolation represents WebSocket close code for policy violation
	WSClosePolicyViolation = 1008

	wsWriteTimeout     = 10 * time.Second
	wsPingInterval     = 25 * time.Second
	wsPingWriteTimeout = 5 * time.Second

	msgFailedToCloseWebSocketConnection = "failed to close WebSocket connection"
)

// Hub interface for WebSocket fan-out
type Hub interface {
	Subscribe(connULID ulid.ULID, userID bson.ObjectID) (*watch.Subscriber, func())
	Unsubscribe(connULID ulid.ULID)
}

// SessionManager hands out refcounted per-user watch sessions
type SessionManager interface {
	Acquire(ctx context.Context, userID bson.ObjectID, role watch.Role) (*watch.Session, error)
	Release(userID bson.ObjectID)
}

// WebSocketHandlers contains WebSocket-related handlers
type WebSocketHandlers struct {
	hub           Hub
	manager       SessionManager
	store         watch.Store
	carwashes     watch.CarwashSource
	jwtSecret     string
	maxSessionSec int
}

// NewWebSocketHandlers creates new WebSocket handlers
func NewWebSocketHandlers(hub Hub, manager SessionManager, store watch.Store, carwashes watch.CarwashSource, jwtSecret string, maxSessionSec int) *WebSocketHandlers {
	return &WebSocketHandlers{
		hub:           hub,
		manager:       manager,
		store:         store,
		carwashes:     carwashes,
		jwtSecret:     jwtSecret,
		maxSessionSec: maxSessionSec,
	}
}

// WSUpgrade upgrades HTTP connection to WebSocket for the reservation stream
func (h *WebSocketHandlers) WSUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		// Validate JWT token from query parameter
		token := c.Query("token")
		if token == "" {
			logger.L().Warn("missing token in websocket upgrade", "handler", "WSUpgrade", "path", c.Path())
			return httperr.Fail(httperr.E{
				Status:  401,
				Message: "Missing token",
			})
		}

		userID, role, err := h.validateJWT(token)
		if err != nil {
			logger.L().Error("invalid token in websocket upgrade", "handler", "WSUpgrade", "path", c.Path(), "error", err)
			return httperr.Fail(httperr.E{
				Status:  401,
				Message: "Invalid token",
			})
		}

		// Store user info and context in locals for the WebSocket handler
		c.Locals(ctxkeys.UserIDKey, userID.Hex())
		c.Locals(ctxkeys.UserRoleKey, string(role))
		// Use Fiber's request-bound context so WSReservationsStream gets a real context.Context.
		c.Locals(ctxkeys.ParentCtxKey, c.UserContext())

		return c.Next()
	}

	logger.L().Warn("websocket upgrade required", "handler", "WSUpgrade", "path", c.Path())
	return httperr.Fail(httperr.E{
		Status:  400,
		Message: "WebSocket upgrade required",
	})
}

// WSReservationsStream handles a device connection for real-time reservation
// updates. Each connection joins the hub for fan-out and takes one reference
// on the user's watch session, which drives the actual change feed.
func (h *WebSocketHandlers) WSReservationsStream(c *websocket.Conn) {
	conn, parentCtx, err := h.initializeConnection(c)
	if err != nil {
		h.closeConnection(c)
		return
	}

	ctx, cancelCtx := context.WithCancel(parentCtx)
	defer cancelCtx()

	subscriber, cancel := h.hub.Subscribe(conn.connULID, conn.userID)
	defer cancel()

	session, err := h.manager.Acquire(ctx, conn.userID, conn.role)
	if err != nil {
		logger.L().Error("failed to start watch session", "user_id", conn.userID.Hex(), "conn_id", conn.connID, "error", err)
		h.closeConnection(c)
		return
	}
	defer h.manager.Release(conn.userID)

	logger.L().Info("WebSocket connection established", "user_id", conn.userID.Hex(), "role", string(conn.role), "conn_id", conn.connID)

	// A later device joining an already-live session would otherwise wait for
	// the next change before seeing anything, so every connection gets its own
	// snapshot as the first view frame.
	if h.sendInitialView(c, conn, ctx) != nil {
		h.closeConnection(c)
		return
	}

	sessionTimer := h.startSessionTimer(c, conn, cancelCtx)
	defer h.stopSessionTimer(sessionTimer)

	ping := h.startKeepAlive(c, conn)
	defer ping.Stop()

	go h.handleOutgoingMessages(c, conn, subscriber, ctx)

	h.handleIncomingMessages(c, conn, session, ctx)

	logger.L().Info("WebSocket connection closed", "user_id", conn.userID.Hex(), "conn_id", conn.connID)
	cancelCtx()
}

// wsConnection holds connection-specific data
type wsConnection struct {
	userID   bson.ObjectID
	role     watch.Role
	connULID ulid.ULID
	connID   string
}

// initializeConnection validates and sets up the WebSocket connection
func (h *WebSocketHandlers) initializeConnection(c *websocket.Conn) (*wsConnection, context.Context, error) {
	userIDStr, ok := c.Locals(ctxkeys.UserIDKey).(string)
	if !ok {
		logger.L().Error(ctxkeys.UserIDKey + " not found in WebSocket context")
		return nil, nil, fmt.Errorf(ctxkeys.UserIDKey + " not found")
	}

	userID, err := bson.ObjectIDFromHex(userIDStr)
	if err != nil {
		logger.L().Error("invalid "+ctxkeys.UserIDKey+" in WebSocket context", ctxkeys.UserIDKey, userIDStr, "error", err)
		return nil, nil, fmt.Errorf("invalid %s: %w", ctxkeys.UserIDKey, err)
	}

	roleStr, ok := c.Locals(ctxkeys.UserRoleKey).(string)
	if !ok {
		logger.L().Error(ctxkeys.UserRoleKey + " not found in WebSocket context")
		return nil, nil, fmt.Errorf(ctxkeys.UserRoleKey + " not found")
	}
	role, err := watch.ParseRole(roleStr)
	if err != nil {
		logger.L().Error("invalid role in WebSocket context", "role", roleStr, "error", err)
		return nil, nil, err
	}

	parentCtx, ok := c.Locals(ctxkeys.ParentCtxKey).(context.Context)
	if !ok {
		logger.L().Error(ctxkeys.ParentCtxKey + " not found in WebSocket context")
		return nil, nil, fmt.Errorf(ctxkeys.ParentCtxKey + " not found")
	}

	connULID := ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader)

	conn := &wsConnection{
		userID:   userID,
		role:     role,
		connULID: connULID,
		connID:   connULID.String(),
	}

	return conn, parentCtx, nil
}

// closeConnection safely closes the WebSocket connection
func (h *WebSocketHandlers) closeConnection(c *websocket.Conn) {
	if err := c.Close(); err != nil {
		logger.L().Error(msgFailedToCloseWebSocketConnection, "error", err)
	}
}

// sendInitialView queries the current state and pushes it as a view frame
func (h *WebSocketHandlers) sendInitialView(c *websocket.Conn, conn *wsConnection, ctx context.Context) error {
	snap, err := watch.TakeSnapshot(ctx, h.store, h.carwashes, conn.role, conn.userID)
	if err != nil {
		logger.L().Error("failed to take initial snapshot", "user_id", conn.userID.Hex(), "conn_id", conn.connID, "error", err)
		return err
	}
	return h.sendEvent(c, conn, watch.ViewEvent(snap.Reservations, snap.Badge, snap.Degraded))
}

// startSessionTimer creates and starts the session timeout timer
func (h *WebSocketHandlers) startSessionTimer(c *websocket.Conn, conn *wsConnection, cancelCtx context.CancelFunc) *time.Timer {
	return time.AfterFunc(time.Duration(h.maxSessionSec)*time.Second, func() {
		logger.L().Info("WebSocket session timeout", "user_id", conn.userID.Hex(), "conn_id", conn.connID)
		h.sendCloseMessage(c, conn)
		h.closeConnection(c)
		cancelCtx()
	})
}

// stopSessionTimer safely stops the session timer
func (h *WebSocketHandlers) stopSessionTimer(timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
}

// sendCloseMessage sends a close frame to the client
func (h *WebSocketHandlers) sendCloseMessage(c *websocket.Conn, conn *wsConnection) {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(WSClosePolicyViolation, "session timeout"))
	if err != nil {
		logger.L().Error("failed to send close message", "error", err, "user_id", conn.userID.Hex(), "conn_id", conn.connID)
	}
}

// startKeepAlive starts the keep-alive ping mechanism
func (h *WebSocketHandlers) startKeepAlive(c *websocket.Conn, conn *wsConnection) *time.Ticker {
	ping := time.NewTicker(wsPingInterval)
	go func() {
		for range ping.C {
			if h.sendPing(c, conn) != nil {
				return
			}
		}
	}()
	return ping
}

// sendPing sends a ping message to the client
func (h *WebSocketHandlers) sendPing(c *websocket.Conn, conn *wsConnection) error {
	if err := c.SetWriteDeadline(time.Now().Add(wsPingWriteTimeout)); err != nil {
		logger.L().Error("failed to set write deadline", "error", err, "user_id", conn.userID.Hex(), "conn_id", conn.connID)
		return err
	}
	if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
		logger.L().Warn("failed to write ping message", "error", err, "user_id", conn.userID.Hex(), "conn_id", conn.connID)
		return err
	}
	return nil
}

// handleOutgoingMessages handles events sent to the device
func (h *WebSocketHandlers) handleOutgoingMessages(c *websocket.Conn, conn *wsConnection, subscriber *watch.Subscriber, ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Error("panic in WebSocket sender", "error", r, "user_id", conn.userID.Hex())
		}
	}()

	for {
		select {
		case event, ok := <-subscriber.Ch:
			if !ok {
				return
			}
			if h.sendEvent(c, conn, event) != nil {
				return
			}
		case <-subscriber.Done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sendEvent sends an event to the device
func (h *WebSocketHandlers) sendEvent(c *websocket.Conn, conn *wsConnection, event watch.Event) error {
	if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		logger.L().Error("failed to set write deadline", "error", err, "user_id", conn.userID.Hex(), "conn_id", conn.connID)
		return err
	}
	if err := c.WriteJSON(event); err != nil {
		logger.L().Error("failed to write WebSocket message", "error", err, "user_id", conn.userID.Hex(), "conn_id", conn.connID)
		return err
	}
	return nil
}

// clientCommand is the only inbound frame shape the stream accepts
type clientCommand struct {
	Type string `json:"type"`
}

// handleIncomingMessages reads device frames until the connection dies.
// The single supported command is "reload", which re-queries a degraded
// owner view on demand.
func (h *WebSocketHandlers) handleIncomingMessages(c *websocket.Conn, conn *wsConnection, session *watch.Session, ctx context.Context) {
	for {
		messageType, payload, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.L().Error("WebSocket error", "error", err, "user_id", conn.userID.Hex(), "conn_id", conn.connID)
			}
			break
		}

		switch messageType {
		case websocket.PingMessage:
			if h.sendPong(c, conn) != nil {
				return
			}
		case websocket.TextMessage:
			h.handleCommand(conn, session, ctx, payload)
		}
	}
}

// handleCommand dispatches one inbound text frame
func (h *WebSocketHandlers) handleCommand(conn *wsConnection, session *watch.Session, ctx context.Context, payload []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		logger.L().Warn("unparseable client frame", "user_id", conn.userID.Hex(), "conn_id", conn.connID, "error", err)
		return
	}

	switch cmd.Type {
	case "reload":
		if err := session.Reload(ctx); err != nil {
			logger.L().Warn("reload failed", "user_id", conn.userID.Hex(), "conn_id", conn.connID, "error", err)
		}
	default:
		logger.L().Warn("unknown client command", "type", cmd.Type, "user_id", conn.userID.Hex(), "conn_id", conn.connID)
	}
}

// sendPong sends a pong message in response to a ping
func (h *WebSocketHandlers) sendPong(c *websocket.Conn, conn *wsConnection) error {
	if err := c.WriteMessage(websocket.PongMessage, nil); err != nil {
		logger.L().Error("failed to send pong", "error", err, "user_id", conn.userID.Hex())
		return err
	}
	return nil
}

// validateJWT validates the JWT token and extracts user id and role
func (h *WebSocketHandlers) validateJWT(tokenString string) (bson.ObjectID, watch.Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.jwtSecret), nil
	})

	if err != nil {
		return bson.ObjectID{}, "", err
	}

	if !token.Valid {
		return bson.ObjectID{}, "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return bson.ObjectID{}, "", fmt.Errorf("invalid claims")
	}

	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return bson.ObjectID{}, "", fmt.Errorf("missing user_id")
	}

	roleStr, ok := claims["role"].(string)
	if !ok {
		return bson.ObjectID{}, "", fmt.Errorf("missing role")
	}
	role, err := watch.ParseRole(roleStr)
	if err != nil {
		return bson.ObjectID{}, "", err
	}

	userID, err := bson.ObjectIDFromHex(userIDStr)
	if err != nil {
		return bson.ObjectID{}, "", fmt.Errorf("invalid user_id: %w", err)
	}

	return userID, role, nil
}

// LogWSConnections logs every WebSocket upgrade attempt.
// It verifies the token with jwtSecret so the logged user_id can't be spoofed.
func LogWSConnections(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			token := c.Query("token")
			userInfo := extractUserIDFromToken(token, jwtSecret)
			logger.L().Info("WebSocket upgrade attempt", "ip", c.IP(), "user", userInfo)
		}
		return c.Next()
	}
}

// extractUserIDFromToken extracts and validates user ID from JWT token
func extractUserIDFromToken(token, jwtSecret string) string {
	if token == "" {
		return ""
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !parsed.Valid {
		return ""
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	userID, _ := mapClaims["user_id"].(string)
	return userID
}
