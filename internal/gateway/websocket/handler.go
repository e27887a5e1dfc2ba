package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/auth"
	"github.com/taskloop/taskloop/internal/common/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens at the CORS layer; tokens gate the
	// upgrade itself.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler upgrades authenticated requests to websocket connections.
type Handler struct {
	hub    *Hub
	logger *logger.Logger
}

// RegisterRoutes registers GET /ws. Browsers cannot set headers on upgrade
// requests, so the middleware also accepts the token as a query parameter.
func RegisterRoutes(router *gin.Engine, hub *Hub, tokens *auth.TokenManager, log *logger.Logger) {
	h := &Handler{
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws-handler")),
	}
	router.GET("/ws", auth.RequireAuth(tokens), h.serve)
}

func (h *Handler) serve(c *gin.Context) {
	userID, err := auth.UserIDFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(userID, conn, h.hub, h.logger)
	h.hub.register(client)

	go client.writePump()
	go client.readPump()
}
