package websocket

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/niwla23/containerpanel/internal/api/middleware"
	"github.com/niwla23/containerpanel/internal/docker"
	"github.com/niwla23/containerpanel/internal/lifecycle"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LogStreamHandler upgrades the connection and follows the server's
// container logs until the client goes away. The follow is cancelled
// through the request context, so a dropped session never leaks the
// engine stream and never blocks other operations.
func LogStreamHandler(c *gin.Context, m *lifecycle.Manager, engine *docker.Client) {
	serverID := c.Query("server_id")
	if serverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server_id required"})
		return
	}

	server, err := m.GetAuthorized(serverID, middleware.CurrentUser(c))
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotAuthorized) {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	handle, err := engine.Resolve(c.Request.Context(), server.ContainerName())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !handle.Resolved() {
		c.JSON(http.StatusConflict, gin.H{"error": docker.ErrContainerUnavailable.Error()})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("failed to upgrade websocket")
		return
	}
	defer wsConn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Drain the read side so close frames cancel the stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := wsConn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = engine.StreamLogs(ctx, handle, func(line docker.LogLine) error {
		return wsConn.WriteJSON(line)
	})
	if err != nil && ctx.Err() == nil {
		log.WithError(err).WithField("server", server.ServerID).Warn("log stream ended")
	}
}
