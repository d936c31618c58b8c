package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/thereayou/sellboard/internal/logging"
	ws "github.com/thereayou/sellboard/internal/websocket"
)

// WebSocketHandler подключает браузеры к живой ленте
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleFeed upgrades the connection; the feed is public so no identity is needed.
func (h *WebSocketHandler) HandleFeed(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.FromContext(c).WithError(err).Debug("feed upgrade failed")
		return
	}

	if err := h.hub.Serve(conn); err != nil {
		logging.FromContext(c).WithError(err).Warn("feed client refused")
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the database answers within a second.
func Health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			logging.FromContext(c).WithError(err).Error("health check")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
