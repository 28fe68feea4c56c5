package http

import (
	"net/http"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"
	"omnicast/internal/core/services"
	"omnicast/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionHandler drives the streaming pipeline: validation, initialize,
// start/stop, and the read-side snapshots (connections, bitrate, health,
// audit log).
type SessionHandler struct {
	pipeline    *services.PipelineService
	router      *services.RouterService
	bitrate     *services.BitrateService
	health      *services.HealthService
	enforcement *services.EnforcementService
	destRepo    ports.DestinationRepository
	usageRepo   ports.UsageRepository
}

func NewSessionHandler(
	pipeline *services.PipelineService,
	router *services.RouterService,
	bitrate *services.BitrateService,
	health *services.HealthService,
	enforcement *services.EnforcementService,
	destRepo ports.DestinationRepository,
	usageRepo ports.UsageRepository,
) *SessionHandler {
	return &SessionHandler{
		pipeline:    pipeline,
		router:      router,
		bitrate:     bitrate,
		health:      health,
		enforcement: enforcement,
		destRepo:    destRepo,
		usageRepo:   usageRepo,
	}
}

func (h *SessionHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		session := api.Group("/session")
		{
			session.POST("/validate", h.Validate)
			session.POST("/initialize", h.Initialize)
			session.POST("/start", h.Start)
			session.POST("/stop", h.Stop)
			session.GET("", h.State)
			session.GET("/connections", h.Connections)
			session.POST("/destinations/:id/reconnect", h.Reconnect)
		}

		bitrate := api.Group("/bitrate")
		{
			bitrate.GET("", h.BitrateStatus)
			bitrate.POST("/override", h.BitrateOverride)
			bitrate.POST("/auto", h.BitrateAuto)
		}

		api.GET("/health", h.HealthSnapshot)
		api.GET("/audit", h.AuditLog)
	}
}

type ValidateRequest struct {
	Mode string `json:"mode" binding:"required,oneof=local cloud"`
}

// Validate runs the enforcement check without touching pipeline state, so
// the client can show limits before going live.
func (h *SessionHandler) Validate(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	var req ValidateRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	destinations, err := h.destRepo.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to list destinations", http.StatusInternalServerError))
		return
	}

	enabled := 0
	for _, d := range destinations {
		if d.Enabled {
			enabled++
		}
	}

	hoursUsed, err := h.usageRepo.CloudHoursUsed(c.Request.Context(), user.ID)
	if err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to read usage", http.StatusInternalServerError))
		return
	}

	result := h.enforcement.ValidateStreamRequest(c.Request.Context(), domain.EnforcementContext{
		UserID:         user.ID,
		Plan:           user.Plan,
		Mode:           domain.StreamMode(req.Mode),
		RequestedCount: enabled,
		CloudHoursUsed: hoursUsed,
	})

	c.JSON(http.StatusOK, gin.H{"result": result})
}

type InitializeSessionRequest struct {
	Mode   string `json:"mode" binding:"required,oneof=local cloud"`
	Stream struct {
		ID     string `json:"id"`
		Tracks []struct {
			ID    string `json:"id"`
			Kind  string `json:"kind" binding:"required,oneof=video audio"`
			Label string `json:"label"`
		} `json:"tracks" binding:"required,min=1"`
	} `json:"stream" binding:"required"`
}

func (h *SessionHandler) Initialize(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	var req InitializeSessionRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	stream := domain.MediaStream{ID: req.Stream.ID}
	if stream.ID == "" {
		stream.ID = uuid.New().String()
	}
	for _, t := range req.Stream.Tracks {
		track := domain.MediaTrack{ID: t.ID, Kind: domain.TrackKind(t.Kind), Label: t.Label}
		if track.ID == "" {
			track.ID = uuid.New().String()
		}
		stream.Tracks = append(stream.Tracks, track)
	}

	err := h.pipeline.Initialize(c.Request.Context(), services.InitializeRequest{
		Mode:   domain.StreamMode(req.Mode),
		Stream: stream,
		User:   user,
	})
	if err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodePolicyViolation, err.Error(), http.StatusForbidden))
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": h.pipeline.State()})
}

func (h *SessionHandler) Start(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}

	stored, err := h.destRepo.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to list destinations", http.StatusInternalServerError))
		return
	}

	destinations := make([]domain.Destination, 0, len(stored))
	for _, d := range stored {
		destinations = append(destinations, *d)
	}

	if err := h.pipeline.Start(c.Request.Context(), destinations); err != nil {
		switch err {
		case domain.ErrNotInitialized, domain.ErrAlreadyLive:
			c.Error(errors.NewInvalidStateError(err.Error()))
		case domain.ErrNoEnabledDestinations, domain.ErrNoDestinationsAllowed:
			c.Error(errors.NewPolicyViolationError(err.Error()))
		default:
			c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to start session", http.StatusInternalServerError))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": h.pipeline.State()})
}

func (h *SessionHandler) Stop(c *gin.Context) {
	if err := h.pipeline.Stop(c.Request.Context()); err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to stop session", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": h.pipeline.State()})
}

func (h *SessionHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":            h.pipeline.State(),
		"session_duration": h.pipeline.SessionDuration(),
	})
}

func (h *SessionHandler) Connections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connections":  h.router.Connections(),
		"active_count": h.router.ActiveCount(),
	})
}

func (h *SessionHandler) Reconnect(c *gin.Context) {
	id := domain.DestinationID(c.Param("id"))

	if err := h.router.Reconnect(c.Request.Context(), id); err != nil {
		if err == domain.ErrDestinationNotFound {
			c.Error(errors.NewNotFoundError("destination"))
		} else {
			c.Error(errors.NewConnectionFailedError(err.Error()))
		}
		return
	}

	conn, _ := h.router.Connection(id)
	c.JSON(http.StatusOK, gin.H{"connection": conn})
}

func (h *SessionHandler) BitrateStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"current_kbps":    h.bitrate.CurrentBitrate(),
		"target_kbps":     h.bitrate.TargetBitrate(),
		"profile":         h.bitrate.CurrentProfile(),
		"stability_score": h.bitrate.StabilityScore(),
		"predicted_kbps":  h.bitrate.PredictNextBitrate(),
	})
}

type BitrateOverrideRequest struct {
	BitrateKbps int `json:"bitrate_kbps" binding:"required,min=1"`
}

func (h *SessionHandler) BitrateOverride(c *gin.Context) {
	var req BitrateOverrideRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	h.bitrate.SetManualOverride(req.BitrateKbps)
	c.JSON(http.StatusOK, gin.H{
		"current_kbps": h.bitrate.CurrentBitrate(),
		"adaptation":   false,
	})
}

func (h *SessionHandler) BitrateAuto(c *gin.Context) {
	h.bitrate.EnableAdaptation()
	c.JSON(http.StatusOK, gin.H{
		"current_kbps": h.bitrate.CurrentBitrate(),
		"adaptation":   true,
	})
}

func (h *SessionHandler) HealthSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"aggregate":    h.health.AggregateStatus(),
		"destinations": h.health.Snapshot(),
	})
}

func (h *SessionHandler) AuditLog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.enforcement.AuditLog()})
}
