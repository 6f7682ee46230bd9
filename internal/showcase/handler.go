package showcase

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bazaar-live/backend/internal/livesession"
	"github.com/bazaar-live/backend/internal/middleware"
	"github.com/bazaar-live/backend/internal/models"
	"github.com/bazaar-live/backend/pkg/response"
)

// StartRequest is the body for POST /sessions/:id/showcase/start.
type StartRequest struct {
	IntervalSec int `json:"interval_sec"` // 0 uses the configured default
}

// Handler exposes rotation control to the session host.
type Handler struct {
	registry        *Registry
	coord           Highlighter
	defaultInterval int
	logger          *zap.Logger
}

// NewHandler creates a showcase handler.
func NewHandler(registry *Registry, coord Highlighter, defaultIntervalSec int, logger *zap.Logger) *Handler {
	return &Handler{registry: registry, coord: coord, defaultInterval: defaultIntervalSec, logger: logger}
}

// Start handles POST /sessions/:id/showcase/start (host).
func (h *Handler) Start(c *gin.Context) {
	s, ok := h.hostedSession(c)
	if !ok {
		return
	}
	if s.State != models.SessionLive {
		response.Conflict(c, "session is not live")
		return
	}
	if len(s.Catalog) == 0 {
		response.BadRequest(c, "session has no products to rotate")
		return
	}

	var req StartRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	interval := req.IntervalSec
	if interval <= 0 {
		interval = h.defaultInterval
	}

	h.registry.Start(s.ID, s.HostID, h.coord, interval, h.logger)
	response.OK(c, gin.H{"session_id": s.ID, "rotating": true, "interval_sec": interval})
}

// Stop handles POST /sessions/:id/showcase/stop (host).
func (h *Handler) Stop(c *gin.Context) {
	s, ok := h.hostedSession(c)
	if !ok {
		return
	}
	h.registry.Stop(s.ID)
	response.OK(c, gin.H{"session_id": s.ID, "rotating": false})
}

// Status handles GET /sessions/:id/showcase.
func (h *Handler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	response.OK(c, gin.H{"session_id": id, "rotating": h.registry.Running(id)})
}

func (h *Handler) hostedSession(c *gin.Context) (*models.LiveSession, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	s, err := h.coord.GetSession(c.Request.Context(), id)
	if errors.Is(err, livesession.ErrNotFound) {
		response.NotFound(c, "session not found")
		return nil, false
	}
	if err != nil {
		response.Internal(c, "failed to load session")
		return nil, false
	}
	if s.HostID != userID {
		response.Forbidden(c, "only the host can control rotation")
		return nil, false
	}
	return s, true
}
