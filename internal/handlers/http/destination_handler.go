package http

import (
	"net/http"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"
	"omnicast/internal/core/services"
	"omnicast/pkg/errors"
	"omnicast/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DestinationHandler manages the user's saved streaming destinations.
// Mutations are rejected while a session is live to keep the routing
// table stable.
type DestinationHandler struct {
	repo     ports.DestinationRepository
	pipeline *services.PipelineService
}

func NewDestinationHandler(repo ports.DestinationRepository, pipeline *services.PipelineService) *DestinationHandler {
	return &DestinationHandler{
		repo:     repo,
		pipeline: pipeline,
	}
}

func (h *DestinationHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/destinations")
	{
		api.GET("", h.List)
		api.POST("", h.Create)
		api.GET("/:id", h.Get)
		api.PUT("/:id", h.Update)
		api.DELETE("/:id", h.Delete)
		api.POST("/:id/toggle", h.Toggle)
	}
}

type DestinationRequest struct {
	Name      string `json:"name" binding:"required,max=100"`
	Platform  string `json:"platform" binding:"required,max=20"`
	StreamKey string `json:"stream_key" binding:"required,max=256"`
	ServerURL string `json:"server_url" binding:"max=512"`
	Enabled   *bool  `json:"enabled"`
}

func (h *DestinationHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	destinations, err := h.repo.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to list destinations", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{"destinations": destinations})
}

func (h *DestinationHandler) Create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	var req DestinationRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if err := h.validate(&req); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	dest := &domain.Destination{
		ID:        domain.DestinationID(uuid.New().String()),
		UserID:    user.ID,
		Name:      req.Name,
		Platform:  domain.Platform(req.Platform),
		StreamKey: req.StreamKey,
		ServerURL: req.ServerURL,
		Enabled:   enabled,
	}

	if err := h.repo.Create(c.Request.Context(), dest); err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to create destination", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"destination": dest})
}

func (h *DestinationHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	dest, err := h.fetchOwned(c, user)
	if err != nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{"destination": dest})
}

func (h *DestinationHandler) Update(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	if h.sessionActive() {
		c.Error(errors.NewInvalidStateError(domain.ErrDestinationLocked.Error()))
		return
	}

	dest, err := h.fetchOwned(c, user)
	if err != nil {
		return
	}

	var req DestinationRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	if err := h.validate(&req); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	dest.Name = req.Name
	dest.Platform = domain.Platform(req.Platform)
	dest.StreamKey = req.StreamKey
	dest.ServerURL = req.ServerURL
	if req.Enabled != nil {
		dest.Enabled = *req.Enabled
	}

	if err := h.repo.Update(c.Request.Context(), dest); err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to update destination", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{"destination": dest})
}

func (h *DestinationHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	if h.sessionActive() {
		c.Error(errors.NewInvalidStateError(domain.ErrDestinationLocked.Error()))
		return
	}

	dest, err := h.fetchOwned(c, user)
	if err != nil {
		return
	}

	if err := h.repo.Delete(c.Request.Context(), dest.ID); err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to delete destination", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": dest.ID})
}

// Toggle flips the enabled flag. Allowed while offline only, same as the
// other mutations.
func (h *DestinationHandler) Toggle(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	if h.sessionActive() {
		c.Error(errors.NewInvalidStateError(domain.ErrDestinationLocked.Error()))
		return
	}

	dest, err := h.fetchOwned(c, user)
	if err != nil {
		return
	}

	dest.Enabled = !dest.Enabled
	if err := h.repo.Update(c.Request.Context(), dest); err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to update destination", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{"destination": dest})
}

func (h *DestinationHandler) validate(req *DestinationRequest) error {
	if err := validation.ValidateDestinationName(req.Name); err != nil {
		return err
	}
	if err := validation.ValidatePlatform(req.Platform); err != nil {
		return err
	}
	if err := validation.ValidateStreamKey(req.StreamKey); err != nil {
		return err
	}
	// Known platforms ship their own ingest URLs; only custom requires one.
	if req.ServerURL == "" && domain.Platform(req.Platform) != domain.PlatformCustom {
		return nil
	}
	return validation.ValidateServerURL(req.ServerURL)
}

// fetchOwned loads the destination and enforces ownership. Writes the error
// response itself and returns nil on failure.
func (h *DestinationHandler) fetchOwned(c *gin.Context, user *domain.User) (*domain.Destination, error) {
	id := domain.DestinationID(c.Param("id"))

	dest, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if err == domain.ErrDestinationNotFound {
			c.Error(errors.NewNotFoundError("destination"))
		} else {
			c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to load destination", http.StatusInternalServerError))
		}
		return nil, err
	}

	if dest.UserID != user.ID {
		c.Error(errors.NewForbiddenError("destination belongs to another user"))
		return nil, domain.ErrDestinationNotFound
	}

	return dest, nil
}

func (h *DestinationHandler) sessionActive() bool {
	state := h.pipeline.State()
	return state.Status == domain.PipelineLive || state.Status == domain.PipelineConnecting
}
