package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"github.com/niwla23/containerpanel/internal/api/middleware"
	"github.com/niwla23/containerpanel/internal/docker"
	"github.com/niwla23/containerpanel/internal/lifecycle"
	"github.com/niwla23/containerpanel/internal/store"
	"github.com/niwla23/containerpanel/internal/template"
)

const (
	statsCacheKeyPrefix = "state_server_"
	statsCacheTTL       = 5 * time.Second
	statsCacheCleanup   = time.Minute
)

// Cache for server runtime state, so dashboards polling several servers
// do not hammer the engine's stats endpoint.
var statsCache = cache.New(statsCacheTTL, statsCacheCleanup)

// writeError maps the typed error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	var validationErr *lifecycle.ValidationError
	var pathErr *lifecycle.PathConflictError
	var renderErr *template.RenderError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &pathErr):
		c.JSON(http.StatusConflict, gin.H{"error": pathErr.Error()})
	case errors.Is(err, lifecycle.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": lifecycle.ErrNotAuthorized.Error()})
	case errors.Is(err, template.ErrNotFound), errors.Is(err, store.ErrServerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, docker.ErrInvalidAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": docker.ErrInvalidAction.Error()})
	case errors.Is(err, docker.ErrContainerUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": docker.ErrContainerUnavailable.Error()})
	case errors.As(err, &renderErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": renderErr.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ListServers returns all servers for elevated callers, otherwise only
// the servers whose allowed list contains the caller.
func ListServers(servers *store.Servers) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)

		if user.Elevated() {
			all, err := servers.List()
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, all)
			return
		}

		allowed, err := servers.ListForUser(user.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, allowed)
	}
}

// GetServer returns a single server record after authorization.
func GetServer(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, err := m.GetAuthorized(c.Param("id"), middleware.CurrentUser(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, server)
	}
}

// CreateServer provisions a new server from a template.
func CreateServer(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name         string            `json:"name" binding:"required"`
			Description  string            `json:"description"`
			Template     string            `json:"template" binding:"required"`
			Port         int               `json:"port" binding:"required"`
			SFTPPort     int               `json:"sftp_port" binding:"required"`
			AllowedUsers []uint            `json:"allowed_users"`
			Options      map[string]string `json:"options"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		server, err := m.Create(c.Request.Context(), lifecycle.CreateInput{
			Name:         input.Name,
			Description:  input.Description,
			Template:     input.Template,
			Port:         input.Port,
			SFTPPort:     input.SFTPPort,
			AllowedUsers: usersFromIDs(input.AllowedUsers),
			Options:      input.Options,
		})
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, server)
	}
}

// DeleteServer tears down a server's containers, deployment directory
// and record.
func DeleteServer(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := m.Destroy(c.Request.Context(), id, middleware.CurrentUser(c)); err != nil {
			writeError(c, err)
			return
		}
		statsCache.Delete(statsCacheKeyPrefix + id)
		c.JSON(http.StatusOK, gin.H{"message": "server removed"})
	}
}

// GetServerState returns running/cpu/memory for a server. Absent
// containers report not running with zero usage.
func GetServerState(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, err := m.GetAuthorized(c.Param("id"), middleware.CurrentUser(c))
		if err != nil {
			writeError(c, err)
			return
		}

		cacheKey := statsCacheKeyPrefix + server.ServerID
		if cached, found := statsCache.Get(cacheKey); found {
			c.JSON(http.StatusOK, cached)
			return
		}

		state, err := m.State(c.Request.Context(), server)
		if err != nil {
			writeError(c, err)
			return
		}

		statsCache.Set(cacheKey, state, statsCacheTTL)
		c.JSON(http.StatusOK, state)
	}
}

// PowerAction performs start/stop/restart/kill on a server's container.
func PowerAction(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Action string `json:"action" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		action, err := docker.ParseAction(input.Action)
		if err != nil {
			writeError(c, err)
			return
		}

		server, err := m.PowerAction(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c), action)
		if err != nil {
			writeError(c, err)
			return
		}

		statsCache.Delete(statsCacheKeyPrefix + server.ServerID)
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("action %s performed", action)})
	}
}

// ExecCommand runs a command inside the server's container, prefixed
// with the template's command prefix.
func ExecCommand(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Command string `json:"command" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := m.Exec(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c), input.Command)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// GetServerLogs returns the last n log lines of a server's container.
func GetServerLogs(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, err := m.GetAuthorized(c.Param("id"), middleware.CurrentUser(c))
		if err != nil {
			writeError(c, err)
			return
		}

		lines, err := strconv.Atoi(c.DefaultQuery("lines", "50"))
		if err != nil || lines < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lines must be a positive integer"})
			return
		}

		logs, err := m.Logs(c.Request.Context(), server, lines)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": logs})
	}
}
