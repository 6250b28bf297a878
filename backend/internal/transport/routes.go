package transport

import (
	"net/http"

	"concierge/backend/internal/state"
	"concierge/backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Demo app accepts any origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RegisterRoutes wires the WebSocket endpoint and health/status routes
// onto the router.
func RegisterRoutes(router *gin.Engine, hub *Hub) {
	log := logger.Get()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ws", func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			userID = uuid.NewString()
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error("WebSocket upgrade failed", zap.Error(err))
			return
		}

		hub.Attach(state.UserID(userID), conn)
	})

	// Read-only view of a user's engagement state, handy for debugging
	router.GET("/api/users/:id/state", func(c *gin.Context) {
		snap, ok := hub.orch.Store().Snapshot(state.UserID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no state for user"})
			return
		}
		c.JSON(http.StatusOK, snap)
	})
}
