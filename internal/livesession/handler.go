package livesession

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bazaar-live/backend/internal/middleware"
	"github.com/bazaar-live/backend/pkg/response"
)

// CreateSessionRequest is the body for POST /sessions.
type CreateSessionRequest struct {
	Title       string     `json:"title" binding:"required"`
	Catalog     []string   `json:"catalog"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	AllowChat   *bool      `json:"allow_chat"`
	IsPublic    *bool      `json:"is_public"`
}

// ChatRequest is the body for POST /sessions/:id/chat.
type ChatRequest struct {
	Content string `json:"content" binding:"required"`
}

// HighlightRequest is the body for POST /sessions/:id/highlight.
type HighlightRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

// Handler exposes coordinator operations over HTTP.
type Handler struct {
	coord  *Coordinator
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a live-session handler.
func NewHandler(coord *Coordinator, repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{coord: coord, repo: repo, logger: logger}
}

// writeError maps coordinator error kinds to HTTP statuses. Every
// precondition failure stays distinguishable through the error message.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrChatDisabled):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrInvalidSchedule), errors.Is(err, ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrMediaTransport):
		response.BadGateway(c, err.Error())
	case errors.Is(err, ErrUnavailable):
		response.ServiceUnavailable(c, err.Error())
	default:
		response.Internal(c, "unexpected error")
	}
}

// Create handles POST /sessions (vendor/admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	hostID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	catalog := make([]uuid.UUID, 0, len(req.Catalog))
	for _, raw := range req.Catalog {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid product id in catalog: "+raw)
			return
		}
		catalog = append(catalog, id)
	}

	allowChat, isPublic := true, true
	if req.AllowChat != nil {
		allowChat = *req.AllowChat
	}
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	s, err := h.coord.CreateSession(c.Request.Context(), CreateParams{
		HostID:      hostID,
		Title:       req.Title,
		Catalog:     catalog,
		ScheduledAt: req.ScheduledAt,
		AllowChat:   allowChat,
		IsPublic:    isPublic,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, s)
}

// List handles GET /sessions (public storefront listing).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.ListPublic(c.Request.Context(), 50)
	if err != nil {
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, gin.H{"sessions": list})
}

// Get handles GET /sessions/:id.
func (h *Handler) Get(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	s, err := h.coord.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, s)
}

// Start handles POST /sessions/:id/start (host goes live).
func (h *Handler) Start(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	hostID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	s, err := h.coord.StartSession(c.Request.Context(), sessionID, hostID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, s)
}

// End handles POST /sessions/:id/end.
func (h *Handler) End(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	hostID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	s, err := h.coord.EndSession(c.Request.Context(), sessionID, hostID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, s)
}

// Join handles POST /sessions/:id/join. Returns the session snapshot and a
// media access token for the caller.
func (h *Handler) Join(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	res, err := h.coord.JoinSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, res)
}

// Leave handles POST /sessions/:id/leave. Safe to call repeatedly.
func (h *Handler) Leave(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if err := h.coord.LeaveSession(c.Request.Context(), sessionID, userID); err != nil {
		writeError(c, err)
		return
	}
	response.NoContent(c)
}

// PostChat handles POST /sessions/:id/chat.
func (h *Handler) PostChat(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	senderName, _ := c.MustGet(middleware.ContextUserName).(string)

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.coord.PostChatMessage(c.Request.Context(), sessionID, userID, senderName, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, m)
}

// ListChat handles GET /sessions/:id/chat?limit=&before=.
func (h *Handler) ListChat(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(c, "before must be RFC3339")
			return
		}
		before = &t
	}
	msgs, err := h.coord.ListChatMessages(c.Request.Context(), sessionID, limit, before)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"messages": msgs})
}

// Highlight handles POST /sessions/:id/highlight.
func (h *Handler) Highlight(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	hostID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req HighlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		response.BadRequest(c, "invalid product id")
		return
	}
	s, err := h.coord.HighlightProduct(c.Request.Context(), sessionID, hostID, productID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, s)
}

// ClearHighlight handles DELETE /sessions/:id/highlight.
func (h *Handler) ClearHighlight(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	hostID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	s, err := h.coord.ClearHighlight(c.Request.Context(), sessionID, hostID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, s)
}

// ViewerCount handles GET /sessions/:id/viewers.
func (h *Handler) ViewerCount(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	response.OK(c, gin.H{"count": h.coord.GetViewerCount(c.Request.Context(), sessionID)})
}

func (h *Handler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}
