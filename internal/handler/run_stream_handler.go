package handler

import (
	"strings"

	"insight-assistant-be/internal/pkg/logger"
	"insight-assistant-be/internal/pkg/serverutils"
	"insight-assistant-be/internal/service"
	internalWS "insight-assistant-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RunStreamHandler upgrades authenticated clients to a websocket that
// receives every run event of one session.
type RunStreamHandler struct {
	service service.IAssistantService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewRunStreamHandler(service service.IAssistantService, hub *internalWS.Hub, log logger.ILogger) *RunStreamHandler {
	return &RunStreamHandler{
		service: service,
		hub:     hub,
		logger:  log,
	}
}

func (h *RunStreamHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/assistant/v1/sessions/:id/ws", h.ServeWs)
}

func (h *RunStreamHandler) ServeWs(c *fiber.Ctx) error {
	// Browsers cannot set headers on a websocket handshake, so the query wins.
	tokenStr := c.Query("token")
	if tokenStr == "" {
		if authHeader := c.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (query 'token' or header 'Authorization')"))
	}

	userID, err := serverutils.ParseUserID(tokenStr)
	if err != nil {
		h.logger.Warn("RunStreamHandler", "Invalid token in websocket handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	sessionID := c.Params("id")
	if _, err := h.service.GetSession(c.UserContext(), userID, sessionID); err != nil {
		return err
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("RunStreamHandler", "Run stream opened", map[string]interface{}{"session_id": sessionID})
			internalWS.ServeWs(h.hub, conn, sessionID, userID)
			h.logger.Info("RunStreamHandler", "Run stream closed", map[string]interface{}{"session_id": sessionID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}
