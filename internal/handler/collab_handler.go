package handler

import (
	"context"

	"novelsync-be/internal/pkg/logger"
	"novelsync-be/internal/pkg/serverutils"
	internalWS "novelsync-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type CollabHandler struct {
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewCollabHandler(hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *CollabHandler {
	return &CollabHandler{
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

// ServeWs authenticates the handshake and upgrades it to the collaboration
// socket.
func (h *CollabHandler) ServeWs(c *fiber.Ctx) error {
	// Priority 1: Query Param (Browser standard)
	tokenStr := c.Query("token")

	// Priority 2: Authorization Header (Tooling/Non-browser standard)
	if tokenStr == "" {
		tokenStr = serverutils.BearerToken(c.Get("Authorization"))
	}

	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token (Query 'token' or Header 'Authorization')"})
	}

	claims, err := serverutils.ParseToken(tokenStr, h.jwtSecret)
	if err != nil {
		h.logger.Warn("CollabHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	identity := internalWS.Identity{
		UserID:   claims.UserID,
		UserName: claims.Name,
		Email:    claims.Email,
	}

	// Upgrade via Fiber WebSocket Middleware
	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("CollabHandler", "Starting WebSocket session", map[string]interface{}{"user_id": identity.UserID})
			internalWS.ServeWs(context.Background(), h.hub, conn, identity)
			h.logger.Info("CollabHandler", "WebSocket session ended", map[string]interface{}{"user_id": identity.UserID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// RegisterRoutes registers the socket route.
func (h *CollabHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/collab/v1/ws", h.ServeWs)
}
