package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/services"
	httphandlers "omnicast/internal/handlers/http"
	"omnicast/internal/infrastructure/events"
	"omnicast/internal/infrastructure/middleware"
	"omnicast/internal/infrastructure/monitoring"
	repositories "omnicast/internal/infrastructure/repositories"
	"omnicast/internal/infrastructure/reliability"
	"omnicast/internal/infrastructure/streaming"
	"omnicast/internal/infrastructure/transport"
	"omnicast/pkg/circuitbreaker"
	"omnicast/pkg/config"
	"omnicast/pkg/logger"
	"omnicast/pkg/retry"
	"omnicast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/omnicast/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "omnicast",
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		Environment: "production",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tp.Shutdown(ctx)
		}()
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	destRepo := repoFactory.CreateDestinationRepository()
	usageRepo := repoFactory.CreateUsageRepository()

	// Initialize services
	policyService := services.NewPolicyService()
	enforcementService := services.NewEnforcementService(policyService, log)

	connector := transport.NewSimulatedConnector(500*time.Millisecond, log)
	guardedConnector := reliability.NewConnectorWrapper(connector, circuitbreaker.DefaultConfig(), log)

	routerService := services.NewRouterService(
		services.RouterConfig{ConnectionHealthInterval: cfg.Routing.ConnectionHealthInterval},
		policyService,
		guardedConnector,
		log,
	)

	bitrateService := services.NewBitrateService(services.BitrateConfig{
		MinBitrate:      cfg.Bitrate.MinKbps,
		MaxBitrate:      cfg.Bitrate.MaxKbps,
		InitialBitrate:  cfg.Bitrate.InitialKbps,
		StabilityWindow: cfg.Bitrate.WindowSize,
		Level:           domain.AdaptationLevel(cfg.Bitrate.Level),
		RampUpSpeed:     cfg.Bitrate.RampUpSpeed,
		RampDownSpeed:   cfg.Bitrate.RampDownSpeed,
		LossThreshold:   cfg.Bitrate.LossThreshold,
		AdaptInterval:   cfg.Bitrate.AdaptInterval,
	}, log)

	telemetry := transport.NewSimulatedTelemetry(time.Now().UnixNano())

	healthConfig := services.DefaultHealthConfig()
	healthConfig.Interval = cfg.Health.Interval
	healthConfig.AutoAdjust = cfg.Health.AutoAdjust
	healthConfig.AutoReconnect = cfg.Health.AutoReconnect
	healthService := services.NewHealthService(healthConfig, telemetry, log)

	watermarkRenderer := streaming.NewOverlayRenderer(log)

	pipelineService := services.NewPipelineService(
		services.PipelineConfig{CloudMonitorInterval: cfg.Pipeline.CloudMonitorInterval},
		enforcementService,
		policyService,
		routerService,
		usageRepo,
		watermarkRenderer,
		log,
	)

	authService := services.NewAuthService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	remediation := services.NewRemediationExecutor(routerService, bitrateService, retry.DefaultConfig(), log)

	// Initialize monitoring and event fan-out
	collector := monitoring.NewPrometheusCollector()
	hub := events.NewWebSocketHub(log)

	var publisher *events.RedisPublisher
	if client := repoFactory.RedisClient(); client != nil {
		publisher = events.NewRedisPublisher(client, uuid.New().String(), log)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	emit := func(event *events.Event) {
		hub.Broadcast(event)
		if publisher != nil {
			if err := publisher.Publish(appCtx, event); err != nil {
				log.Debugw("event publish failed", "type", event.Type, "error", err)
			}
		}
	}

	enforcementService.OnDecision(func(ec domain.EnforcementContext, result *domain.EnforcementResult) {
		if ec.Mode == domain.ModeCloud && result.RemainingCloudHours != domain.UnlimitedCloudHours {
			collector.UpdateCloudHoursRemaining(ec.UserID, result.RemainingCloudHours)
		}
		if result.Allowed {
			return
		}

		collector.RecordEnforcementDenial(result.Reason)
		payload, _ := json.Marshal(events.EnforcementDeniedPayload{
			Plan:   ec.Plan,
			Mode:   ec.Mode,
			Reason: result.Reason,
		})
		emit(&events.Event{Type: events.EventEnforcementDenied, Payload: payload})
	})

	routerService.OnReconnect(func(id domain.DestinationID, platform domain.Platform) {
		collector.RecordReconnect(platform)
	})

	guardedConnector.OnConnectDone(func(platform domain.Platform, duration time.Duration, err error) {
		collector.RecordConnectDuration(duration)
	})

	routerService.OnStatusChange(func(id domain.DestinationID, status domain.DestinationStatus, errMsg string) {
		conn, ok := routerService.Connection(id)
		if ok {
			collector.UpdateDestination(&conn)
		}
		collector.SetLiveCount(routerService.ActiveCount())

		switch status {
		case domain.StatusLive:
			healthService.Track(id)
		case domain.StatusOffline, domain.StatusError:
			healthService.Untrack(id)
		}
		if status == domain.StatusOffline {
			collector.RemoveDestination(id)
		}

		payload, _ := json.Marshal(events.DestinationStatusPayload{
			Platform: conn.Destination.Platform,
			Status:   status,
			Error:    errMsg,
		})
		emit(&events.Event{
			Type:          events.EventDestinationStatus,
			DestinationID: id,
			Payload:       payload,
		})
	})

	bitrateService.OnBitrateChange(func(bitrate int, profile domain.BitrateProfile) {
		collector.RecordBitrateChange(bitrate, bitrateService.TargetBitrate())

		payload, _ := json.Marshal(events.BitrateChangedPayload{NewBitrate: bitrate})
		emit(&events.Event{Type: events.EventBitrateChanged, Payload: payload})
	})

	bitrateService.OnQualityChange(func(profile domain.BitrateProfile) {
		payload, _ := json.Marshal(events.QualityChangedPayload{
			Profile: profile.Name,
			Bitrate: profile.Bitrate,
			Width:   profile.Width,
			Height:  profile.Height,
			FPS:     profile.FPS,
		})
		emit(&events.Event{Type: events.EventQualityChanged, Payload: payload})
	})

	healthService.OnHealthChange(func(health domain.StreamHealth) {
		collector.UpdateDestinationHealth(health.DestinationID, &health)

		payload, _ := json.Marshal(events.HealthUpdatedPayload{
			IsHealthy: health.IsHealthy,
			Warnings:  health.Warnings,
		})
		emit(&events.Event{
			Type:          events.EventHealthUpdated,
			DestinationID: health.DestinationID,
			Payload:       payload,
		})
	})

	healthService.OnRecommendation(func(rec domain.Recommendation) {
		payload, _ := json.Marshal(events.RecommendationPayload{
			Action: rec.Action,
			Reason: rec.Reason,
		})
		emit(&events.Event{
			Type:          events.EventRecommendation,
			DestinationID: rec.DestinationID,
			Payload:       payload,
		})

		go func() {
			if err := remediation.Handle(appCtx, rec); err != nil {
				log.Warnw("remediation failed",
					"destination_id", rec.DestinationID,
					"action", rec.Action,
					"error", err,
				)
			}
		}()
	})

	pipelineService.OnStateChange(func(state domain.PipelineState) {
		switch state.Status {
		case domain.PipelineLive:
			collector.RecordSessionStarted()
		case domain.PipelineStopping:
			collector.RecordSessionStopped()
		}

		payload, _ := json.Marshal(events.PipelineStatePayload{
			Status: state.Status,
			Error:  state.LastError,
		})
		emit(&events.Event{
			Type:      events.EventPipelineState,
			SessionID: state.CloudSessionID,
			Payload:   payload,
		})
	})

	// Start background engines
	bitrateService.Start(appCtx)
	healthService.StartMonitoring(appCtx)
	go feedNetworkSamples(appCtx, bitrateService, collector, cfg.Bitrate.AdaptInterval)

	// Mirror events published by sibling instances to local dashboard clients.
	if publisher != nil {
		go func() {
			err := publisher.Subscribe(appCtx, func(event *events.Event) error {
				hub.Broadcast(event)
				return nil
			})
			if err != nil && appCtx.Err() == nil {
				log.Warnw("event subscription ended", "error", err)
			}
		}()
	}

	// Health checker for readiness probing
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("repositories", repoFactory.HealthCheck, 2*time.Second)

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService)
	destinationHandler := httphandlers.NewDestinationHandler(destRepo, pipelineService)
	sessionHandler := httphandlers.NewSessionHandler(
		pipelineService,
		routerService,
		bitrateService,
		healthService,
		enforcementService,
		destRepo,
		usageRepo,
	)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	// Public auth routes
	authHandler.SetupRoutes(router)

	// Authenticated API
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	{
		destinations := api.Group("/destinations")
		{
			destinations.GET("", destinationHandler.List)
			destinations.POST("", destinationHandler.Create)
			destinations.GET("/:id", destinationHandler.Get)
			destinations.PUT("/:id", destinationHandler.Update)
			destinations.DELETE("/:id", destinationHandler.Delete)
			destinations.POST("/:id/toggle", destinationHandler.Toggle)
		}

		session := api.Group("/session")
		{
			session.POST("/validate", sessionHandler.Validate)
			session.POST("/initialize", sessionHandler.Initialize)
			session.POST("/start", sessionHandler.Start)
			session.POST("/stop", sessionHandler.Stop)
			session.GET("", sessionHandler.State)
			session.GET("/connections", sessionHandler.Connections)
			session.POST("/destinations/:id/reconnect", sessionHandler.Reconnect)
		}

		bitrate := api.Group("/bitrate")
		{
			bitrate.GET("", sessionHandler.BitrateStatus)
			bitrate.POST("/override", sessionHandler.BitrateOverride)
			bitrate.POST("/auto", sessionHandler.BitrateAuto)
		}

		api.GET("/health", sessionHandler.HealthSnapshot)
		api.GET("/audit", sessionHandler.AuditLog)
	}

	// Event stream for dashboards
	router.GET("/ws/events", func(c *gin.Context) {
		hub.HandleWebSocket(c.Writer, c.Request)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	// Readiness endpoint with dependency checks
	router.GET("/ready", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := 200
		if status.Status != "healthy" {
			code = 503
		}
		c.JSON(code, status)
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting Omnicast control plane on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down Omnicast control plane...")

	// Stop any running session so cloud hours are settled before exit.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := pipelineService.Stop(stopCtx); err != nil {
		log.Warnw("error stopping pipeline during shutdown", "error", err)
	}
	stopCancel()

	bitrateService.Stop()
	healthService.StopMonitoring()
	appCancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		// Force close if graceful shutdown fails
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if publisher != nil {
		publisher.Close()
	}

	// Close repository factory
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("Omnicast control plane stopped")
}

// feedNetworkSamples synthesizes uplink measurements for the adaptation
// engine until a real transport supplies them.
func feedNetworkSamples(ctx context.Context, bitrate *services.BitrateService, collector *monitoring.PrometheusCollector, interval time.Duration) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jitter := func(v, spread float64) float64 {
				return v * (1 + (rng.Float64()*2-1)*spread)
			}
			cond := domain.NetworkConditions{
				Bandwidth:  int(jitter(6000, 0.1)),
				RTT:        time.Duration(jitter(float64(60*time.Millisecond), 0.2)),
				PacketLoss: rng.Float64() * 0.01,
				Jitter:     time.Duration(jitter(float64(5*time.Millisecond), 0.5)),
				Timestamp:  time.Now(),
			}
			bitrate.AddSample(cond)
			collector.RecordNetworkRTT(cond.RTT)
		}
	}
}
