package analytics

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bazaar-live/backend/internal/models"
	"github.com/bazaar-live/backend/pkg/response"
)

// Handler handles session stats HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Get handles GET /sessions/:id/stats. Returns zeroed stats when no
// activity has been recorded yet.
func (h *Handler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.repo.Get(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("load session stats failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		response.Internal(c, "failed to load stats")
		return
	}
	if s == nil {
		s = &models.SessionStats{SessionID: sessionID}
	}
	response.OK(c, s)
}
