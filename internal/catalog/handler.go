package catalog

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bazaar-live/backend/internal/livesession"
	"github.com/bazaar-live/backend/internal/middleware"
	"github.com/bazaar-live/backend/internal/models"
	"github.com/bazaar-live/backend/pkg/response"
	"github.com/bazaar-live/backend/pkg/storage"
)

// CreateRequest is the body for POST /products.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	PriceCents  int    `json:"price_cents" binding:"required,min=1"`
	Currency    string `json:"currency"`
}

// UpdateRequest is the body for PATCH /products/:id. Nil fields are left unchanged.
type UpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	PriceCents  *int    `json:"price_cents"`
	Currency    *string `json:"currency"`
	Active      *bool   `json:"active"`
}

// SessionResolver loads the live session whose catalog is being resolved.
type SessionResolver interface {
	GetSession(ctx context.Context, sessionID uuid.UUID) (*models.LiveSession, error)
}

// Handler handles product HTTP endpoints.
type Handler struct {
	repo     *Repository
	sessions SessionResolver
	s3       *storage.S3
	logger   *zap.Logger
}

// NewHandler creates a catalog handler. s3 may be nil, in which case
// image endpoints report unavailable.
func NewHandler(repo *Repository, sessions SessionResolver, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, sessions: sessions, s3: s3, logger: logger}
}

// Create handles POST /products (vendor).
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	p := &models.Product{
		VendorID:    userID,
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Currency:    currency,
	}
	if err := h.repo.Create(c.Request.Context(), p); err != nil {
		h.logger.Error("create product failed", zap.Error(err))
		response.Internal(c, "failed to create product")
		return
	}
	response.Created(c, p)
}

// Get handles GET /products/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid product id")
		return
	}
	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load product")
		return
	}
	if p == nil {
		response.NotFound(c, "product not found")
		return
	}
	response.OK(c, p)
}

// ListMine handles GET /products (vendor). Returns the caller's products.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByVendor(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list products")
		return
	}
	response.OK(c, list)
}

// ListSessionProducts handles GET /sessions/:id/products. Returns the
// session's catalog resolved to full products, in catalog order.
func (h *Handler) ListSessionProducts(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.sessions.GetSession(c.Request.Context(), id)
	if errors.Is(err, livesession.ErrNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	list, err := h.repo.GetMany(c.Request.Context(), s.Catalog)
	if err != nil {
		response.Internal(c, "failed to load products")
		return
	}
	response.OK(c, gin.H{"session_id": s.ID, "products": list})
}

// Update handles PATCH /products/:id (owning vendor).
func (h *Handler) Update(c *gin.Context) {
	p, ok := h.ownedProduct(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			response.BadRequest(c, "price_cents must be positive")
			return
		}
		p.PriceCents = *req.PriceCents
	}
	if req.Currency != nil {
		p.Currency = *req.Currency
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	if err := h.repo.Update(c.Request.Context(), p); err != nil {
		response.Internal(c, "failed to update product")
		return
	}
	response.OK(c, p)
}

// Delete handles DELETE /products/:id (owning vendor). Products are
// deactivated rather than removed so session catalogs keep resolving.
func (h *Handler) Delete(c *gin.Context) {
	p, ok := h.ownedProduct(c)
	if !ok {
		return
	}
	if err := h.repo.Deactivate(c.Request.Context(), p.ID); err != nil {
		response.Internal(c, "failed to delete product")
		return
	}
	response.OK(c, gin.H{"id": p.ID, "active": false})
}

// UploadImage handles POST /products/:id/image (owning vendor, multipart).
func (h *Handler) UploadImage(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "image storage not configured")
		return
	}
	p, ok := h.ownedProduct(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		response.BadRequest(c, "image file required")
		return
	}
	defer file.Close()

	if header.Size > storage.MaxProductImageSize {
		response.BadRequest(c, "image exceeds maximum size")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !storage.ValidateImageType(contentType, header.Filename) {
		response.BadRequest(c, "unsupported image type")
		return
	}
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(header.Filename)
	}

	key := storage.ProductImageKey(p.ID.String(), header.Filename)
	url, err := h.s3.Upload(c.Request.Context(), h.s3.ProductMediaBucket(), key, contentType, file, header.Size, true)
	if err != nil {
		h.logger.Error("product image upload failed", zap.Error(err), zap.String("product_id", p.ID.String()))
		response.Internal(c, "failed to upload image")
		return
	}
	if err := h.repo.SetImage(c.Request.Context(), p.ID, url, key); err != nil {
		response.Internal(c, "failed to save image")
		return
	}
	response.OK(c, gin.H{"id": p.ID, "image_url": url})
}

// PresignImageUpload handles POST /products/:id/image/presign (owning vendor).
// Returns a pre-signed PUT URL so large images can go straight to S3; the
// client calls ConfirmImage once the upload finishes.
func (h *Handler) PresignImageUpload(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "image storage not configured")
		return
	}
	p, ok := h.ownedProduct(c)
	if !ok {
		return
	}

	var req struct {
		Filename string `json:"filename" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	contentType := storage.ContentTypeForFilename(req.Filename)
	if !storage.ValidateImageType(contentType, req.Filename) {
		response.BadRequest(c, "unsupported image type")
		return
	}

	key := storage.ProductImageKey(p.ID.String(), req.Filename)
	url, err := h.s3.GeneratePresignedUploadURL(c.Request.Context(), h.s3.ProductMediaBucket(), key, contentType, h.s3.PresignExpire())
	if err != nil {
		response.Internal(c, "failed to presign upload")
		return
	}
	response.OK(c, gin.H{"upload_url": url, "key": key, "content_type": contentType})
}

// ConfirmImage handles POST /products/:id/image/confirm (owning vendor)
// after a pre-signed upload completed.
func (h *Handler) ConfirmImage(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "image storage not configured")
		return
	}
	p, ok := h.ownedProduct(c)
	if !ok {
		return
	}
	var req struct {
		Key string `json:"key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	url := h.s3.PublicObjectURL(h.s3.ProductMediaBucket(), req.Key)
	if err := h.repo.SetImage(c.Request.Context(), p.ID, url, req.Key); err != nil {
		response.Internal(c, "failed to save image")
		return
	}
	response.OK(c, gin.H{"id": p.ID, "image_url": url})
}

// ownedProduct loads the :id product and checks the caller owns it
// (admins pass). Writes the error response itself on failure.
func (h *Handler) ownedProduct(c *gin.Context) (*models.Product, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid product id")
		return nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.MustGet(middleware.ContextUserRole).(string)

	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load product")
		return nil, false
	}
	if p == nil {
		response.NotFound(c, "product not found")
		return nil, false
	}
	if p.VendorID != userID && role != string(models.RoleAdmin) {
		response.Forbidden(c, "not your product")
		return nil, false
	}
	return p, true
}
