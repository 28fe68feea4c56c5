package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PipelineConfig tunes the pipeline orchestrator.
type PipelineConfig struct {
	CloudMonitorInterval time.Duration
}

// DefaultPipelineConfig returns the pipeline defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		CloudMonitorInterval: 30 * time.Second,
	}
}

// InitializeRequest binds a captured stream to a mode and a subscriber.
type InitializeRequest struct {
	Mode   domain.StreamMode
	Stream domain.MediaStream
	User   *domain.User
}

// PipelineService is the top-level orchestrator: it legalizes a session
// request, applies the watermark transform when the plan requires it, starts
// and stops the router, and tracks wall-clock session duration for billing.
type PipelineService struct {
	config      PipelineConfig
	enforcement ports.Enforcement
	policy      ports.PolicyProvider
	router      ports.Router
	usage       ports.UsageRepository
	watermark   ports.WatermarkRenderer
	logger      *zap.SugaredLogger

	mu          sync.RWMutex
	state       domain.PipelineState
	user        *domain.User
	output      domain.MediaStream
	initialized bool
	cloudCancel context.CancelFunc

	onStateChange func(state domain.PipelineState)

	now func() time.Time
}

func NewPipelineService(
	config PipelineConfig,
	enforcement ports.Enforcement,
	policy ports.PolicyProvider,
	router ports.Router,
	usage ports.UsageRepository,
	watermark ports.WatermarkRenderer,
	logger *zap.SugaredLogger,
) *PipelineService {
	return &PipelineService{
		config:      config,
		enforcement: enforcement,
		policy:      policy,
		router:      router,
		usage:       usage,
		watermark:   watermark,
		logger:      logger,
		state:       domain.PipelineState{Status: domain.PipelineIdle},
		now:         time.Now,
	}
}

// OnStateChange registers the pipeline state callback.
func (p *PipelineService) OnStateChange(fn func(state domain.PipelineState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStateChange = fn
}

// Initialize re-validates cloud eligibility and prepares the output stream,
// burning in the watermark for plans that require it. Audio passes through
// unmodified.
func (p *PipelineService) Initialize(ctx context.Context, req InitializeRequest) error {
	if req.User == nil {
		return fmt.Errorf("initialize: user is required")
	}

	p.transition(func(s *domain.PipelineState) {
		s.Mode = req.Mode
		s.Status = domain.PipelineInitializing
		s.LastError = ""
	})

	hoursUsed, err := p.usage.CloudHoursUsed(ctx, req.User.ID)
	if err != nil {
		p.fail(fmt.Sprintf("usage lookup failed: %v", err))
		return fmt.Errorf("initialize: read cloud hours: %w", err)
	}

	result := p.enforcement.ValidateStreamRequest(ctx, domain.EnforcementContext{
		UserID:         req.User.ID,
		Plan:           req.User.Plan,
		Mode:           req.Mode,
		CloudHoursUsed: hoursUsed,
	})
	if !result.Allowed {
		p.fail(result.Reason)
		return fmt.Errorf("initialize: %s", result.Reason)
	}

	output := req.Stream
	watermarked := false
	if result.RequiresWatermark {
		banner := p.policy.UpgradeMessage(req.User.Plan, domain.LimitWatermark).Message
		output, err = p.watermark.Apply(ctx, req.Stream, banner)
		if err != nil {
			p.fail(fmt.Sprintf("watermark render failed: %v", err))
			return fmt.Errorf("initialize: apply watermark: %w", err)
		}
		watermarked = true
	}

	p.mu.Lock()
	p.user = req.User
	p.output = output
	p.initialized = true
	p.mu.Unlock()

	p.transition(func(s *domain.PipelineState) {
		s.Status = domain.PipelineIdle
		s.WatermarkApplied = watermarked
	})

	p.logger.Infow("pipeline initialized",
		"user_id", req.User.ID,
		"mode", req.Mode,
		"watermarked", watermarked,
	)
	return nil
}

// Start routes the prepared output stream to the given destinations and
// transitions the pipeline to live. Requires prior initialization and at
// least one enabled destination.
func (p *PipelineService) Start(ctx context.Context, destinations []domain.Destination) error {
	p.mu.RLock()
	initialized := p.initialized
	user := p.user
	output := p.output
	mode := p.state.Mode
	active := p.state.SessionStart != nil
	p.mu.RUnlock()

	if !initialized {
		return domain.ErrNotInitialized
	}
	if active {
		return domain.ErrAlreadyLive
	}

	enabled := 0
	for _, d := range destinations {
		if d.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return domain.ErrNoEnabledDestinations
	}

	p.transition(func(s *domain.PipelineState) {
		s.Status = domain.PipelineConnecting
	})

	if err := p.router.Route(ctx, output, user, destinations); err != nil {
		p.fail(err.Error())
		return fmt.Errorf("start: %w", err)
	}

	start := p.now()
	var sessionID domain.SessionID
	if mode == domain.ModeCloud {
		sessionID = domain.SessionID(uuid.NewString())
		if err := p.usage.SetActiveSession(ctx, user.ID, sessionID, start); err != nil {
			p.logger.Warnw("active session bookkeeping failed", "user_id", user.ID, "error", err)
		}
	}

	p.mu.Lock()
	p.state.Status = domain.PipelineLive
	p.state.SessionStart = &start
	p.state.CloudSessionID = sessionID
	p.state.ActiveDestinations = p.router.ActiveCount()
	state := p.state
	notify := p.onStateChange
	p.mu.Unlock()

	if mode == domain.ModeCloud {
		monitorCtx, cancel := context.WithCancel(context.Background())
		p.mu.Lock()
		p.cloudCancel = cancel
		p.mu.Unlock()
		go p.monitorCloudHours(monitorCtx, user, start)
	}

	if notify != nil {
		notify(state)
	}
	p.logger.Infow("session started",
		"user_id", user.ID,
		"mode", mode,
		"destinations", state.ActiveDestinations,
		"cloud_session_id", sessionID,
	)
	return nil
}

// Stop tears down the session deterministically: cloud monitoring, watermark
// tracks, router connections. Session duration is written to the usage ledger
// exactly once. Safe to call repeatedly, including before a full start.
func (p *PipelineService) Stop(ctx context.Context) error {
	p.mu.Lock()
	start := p.state.SessionStart
	user := p.user
	mode := p.state.Mode
	output := p.output
	watermarked := p.state.WatermarkApplied
	cancel := p.cloudCancel
	p.cloudCancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if start != nil {
		p.transition(func(s *domain.PipelineState) {
			s.Status = domain.PipelineStopping
		})
	}

	if watermarked && output.ID != "" {
		if err := p.watermark.Release(ctx, output.ID); err != nil {
			p.logger.Warnw("watermark release failed", "stream_id", output.ID, "error", err)
		}
	}

	p.router.DisconnectAll(ctx)

	if start != nil {
		duration := p.now().Sub(*start)
		hours := duration.Hours()
		if mode == domain.ModeCloud && user != nil {
			if err := p.usage.AddCloudHours(ctx, user.ID, hours); err != nil {
				p.logger.Errorw("cloud hours write failed", "user_id", user.ID, "hours", hours, "error", err)
			}
			if err := p.usage.ClearActiveSession(ctx, user.ID); err != nil {
				p.logger.Warnw("active session cleanup failed", "user_id", user.ID, "error", err)
			}
		}
		p.logger.Infow("session stopped",
			"duration", duration,
			"hours", hours,
			"mode", mode,
		)
	}

	// Replace the state wholesale.
	p.mu.Lock()
	p.state = domain.PipelineState{Status: domain.PipelineIdle}
	p.initialized = false
	p.output = domain.MediaStream{}
	state := p.state
	notify := p.onStateChange
	p.mu.Unlock()

	if notify != nil {
		notify(state)
	}
	return nil
}

// SessionDuration returns the wall-clock hours of the active session, zero
// when none is running.
func (p *PipelineService) SessionDuration() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.state.SessionStart == nil {
		return 0
	}
	return p.now().Sub(*p.state.SessionStart).Hours()
}

// State returns a copy of the pipeline state.
func (p *PipelineService) State() domain.PipelineState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// monitorCloudHours polls the cutoff projection while a cloud session is
// live. The cutoff itself is advisory; this loop is the caller that acts on
// it by terminating the session.
func (p *PipelineService) monitorCloudHours(ctx context.Context, user *domain.User, start time.Time) {
	ticker := time.NewTicker(p.config.CloudMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hoursUsed, err := p.usage.CloudHoursUsed(ctx, user.ID)
			if err != nil {
				p.logger.Warnw("usage lookup failed during monitoring", "user_id", user.ID, "error", err)
				continue
			}
			cutoff := p.enforcement.CheckCloudHoursCutoff(ctx, user.ID, user.Plan, start, hoursUsed)
			if cutoff.ShouldCutoff {
				p.logger.Warnw("terminating session at cloud hour limit",
					"user_id", user.ID,
					"reason", cutoff.Reason,
				)
				if err := p.Stop(context.Background()); err != nil {
					p.logger.Errorw("cutoff stop failed", "user_id", user.ID, "error", err)
				}
				return
			}
		}
	}
}

func (p *PipelineService) transition(mutate func(s *domain.PipelineState)) {
	p.mu.Lock()
	mutate(&p.state)
	state := p.state
	notify := p.onStateChange
	p.mu.Unlock()

	if notify != nil {
		notify(state)
	}
}

func (p *PipelineService) fail(reason string) {
	p.transition(func(s *domain.PipelineState) {
		s.Status = domain.PipelineError
		s.LastError = reason
	})
}
