package services

import (
	"context"
	"testing"
	"time"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"
	"omnicast/internal/infrastructure/repositories/memory"
	"omnicast/internal/infrastructure/streaming"
	"omnicast/internal/infrastructure/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pipelineFixture struct {
	pipeline *PipelineService
	router   *RouterService
	usage    ports.UsageRepository
}

func newPipeline() *pipelineFixture {
	logger := zap.NewNop().Sugar()
	policy := NewPolicyService()
	enforcement := NewEnforcementService(policy, logger)
	connector := transport.NewSimulatedConnector(0, logger)
	router := NewRouterService(DefaultRouterConfig(), policy, connector, logger)
	usage := memory.NewMemoryUsageRepository()
	watermark := streaming.NewOverlayRenderer(logger)

	return &pipelineFixture{
		pipeline: NewPipelineService(DefaultPipelineConfig(), enforcement, policy, router, usage, watermark, logger),
		router:   router,
		usage:    usage,
	}
}

func capturedStream() domain.MediaStream {
	return domain.MediaStream{
		ID: "capture-1",
		Tracks: []domain.MediaTrack{
			{ID: "v1", Kind: domain.TrackVideo, Label: "camera"},
			{ID: "a1", Kind: domain.TrackAudio, Label: "mic"},
		},
	}
}

func initRequest(plan domain.Plan, mode domain.StreamMode) InitializeRequest {
	return InitializeRequest{
		Mode:   mode,
		Stream: capturedStream(),
		User:   &domain.User{ID: "u1", Username: "alice", Plan: plan},
	}
}

func TestStartBeforeInitialize(t *testing.T) {
	f := newPipeline()

	err := f.pipeline.Start(context.Background(), []domain.Destination{dest("d1", domain.PlatformTwitch)})
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	assert.Equal(t, domain.PipelineIdle, f.pipeline.State().Status)
}

func TestInitializeLocalSession(t *testing.T) {
	f := newPipeline()

	require.NoError(t, f.pipeline.Initialize(context.Background(), initRequest(domain.PlanCreator, domain.ModeLocal)))

	state := f.pipeline.State()
	assert.Equal(t, domain.PipelineIdle, state.Status)
	assert.Equal(t, domain.ModeLocal, state.Mode)
	assert.False(t, state.WatermarkApplied)
}

func TestInitializeAppliesWatermarkOnFreePlan(t *testing.T) {
	f := newPipeline()

	require.NoError(t, f.pipeline.Initialize(context.Background(), initRequest(domain.PlanFree, domain.ModeLocal)))
	assert.True(t, f.pipeline.State().WatermarkApplied)
}

func TestInitializeDeniesCloudOnFreePlan(t *testing.T) {
	f := newPipeline()

	err := f.pipeline.Initialize(context.Background(), initRequest(domain.PlanFree, domain.ModeCloud))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloud streaming is not available")

	state := f.pipeline.State()
	assert.Equal(t, domain.PipelineError, state.Status)
	assert.NotEmpty(t, state.LastError)

	// A denied pipeline cannot start.
	startErr := f.pipeline.Start(context.Background(), []domain.Destination{dest("d1", domain.PlatformTwitch)})
	assert.ErrorIs(t, startErr, domain.ErrNotInitialized)
}

func TestInitializeDeniesCloudWhenHoursExhausted(t *testing.T) {
	f := newPipeline()
	require.NoError(t, f.usage.AddCloudHours(context.Background(), "u1", 10))

	err := f.pipeline.Initialize(context.Background(), initRequest(domain.PlanCreator, domain.ModeCloud))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloud hours exhausted")
}

func TestStartRequiresEnabledDestination(t *testing.T) {
	f := newPipeline()
	require.NoError(t, f.pipeline.Initialize(context.Background(), initRequest(domain.PlanCreator, domain.ModeLocal)))

	disabled := dest("d1", domain.PlatformTwitch)
	disabled.Enabled = false

	err := f.pipeline.Start(context.Background(), []domain.Destination{disabled})
	assert.ErrorIs(t, err, domain.ErrNoEnabledDestinations)
}

func TestStartGoesLive(t *testing.T) {
	f := newPipeline()
	require.NoError(t, f.pipeline.Initialize(context.Background(), initRequest(domain.PlanCreator, domain.ModeLocal)))

	require.NoError(t, f.pipeline.Start(context.Background(), destList(2)))

	state := f.pipeline.State()
	assert.Equal(t, domain.PipelineLive, state.Status)
	require.NotNil(t, state.SessionStart)
	assert.Equal(t, 2, state.ActiveDestinations)
	assert.Empty(t, state.CloudSessionID)
	assert.Equal(t, 2, f.router.ActiveCount())
}

func TestStartTwiceFails(t *testing.T) {
	f := newPipeline()
	require.NoError(t, f.pipeline.Initialize(context.Background(), initRequest(domain.PlanCreator, domain.ModeLocal)))
	require.NoError(t, f.pipeline.Start(context.Background(), destList(1)))

	err := f.pipeline.Start(context.Background(), destList(1))
	assert.ErrorIs(t, err, domain.ErrAlreadyLive)
}

func TestCloudStartRegistersActiveSession(t *testing.T) {
	f := newPipeline()
	require.NoError(t, f.pipeline.Initialize(context.Background(), initRequest(domain.PlanCreator, domain.ModeCloud)))
	require.NoError(t, f.pipeline.Start(context.Background(), destList(1)))

	state := f.pipeline.State()
	assert.NotEmpty(t, state.CloudSessionID)

	sessionID, _, err := f.usage.ActiveSession(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, state.CloudSessionID, sessionID)

	require.NoError(t, f.pipeline.Stop(context.Background()))
	_, _, err = f.usage.ActiveSession(context.Background(), "u1")
	assert.Error(t, err)
}

func TestStopSettlesCloudHoursExactlyOnce(t *testing.T) {
	f := newPipeline()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.pipeline.now = func() time.Time { return base }

	require.NoError(t, f.pipeline.Initialize(context.Background(), initRequest(domain.PlanCreator, domain.ModeCloud)))
	require.NoError(t, f.pipeline.Start(context.Background(), destList(1)))

	// 90 minutes of wall clock pass.
	f.pipeline.now = func() time.Time { return base.Add(90 * time.Minute) }
	require.NoError(t, f.pipeline.Stop(context.Background()))

	hours, err := f.usage.CloudHoursUsed(context.Background(), "u1")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, hours, 1e-9)

	state := f.pipeline.State()
	assert.Equal(t, domain.PipelineIdle, state.Status)
	assert.Nil(t, state.SessionStart)
	assert.Zero(t, f.router.ActiveCount())

	// A second stop must not double-bill.
	require.NoError(t, f.pipeline.Stop(context.Background()))
	hours, _ = f.usage.CloudHoursUsed(context.Background(), "u1")
	assert.InDelta(t, 1.5, hours, 1e-9)
}

func TestLocalStopWritesNoCloudHours(t *testing.T) {
	f := newPipeline()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.pipeline.now = func() time.Time { return base }

	require.NoError(t, f.pipeline.Initialize(context.Background(), initRequest(domain.PlanCreator, domain.ModeLocal)))
	require.NoError(t, f.pipeline.Start(context.Background(), destList(1)))

	f.pipeline.now = func() time.Time { return base.Add(2 * time.Hour) }
	require.NoError(t, f.pipeline.Stop(context.Background()))

	hours, err := f.usage.CloudHoursUsed(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, hours)
}

func TestSessionDuration(t *testing.T) {
	f := newPipeline()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.pipeline.now = func() time.Time { return base }

	assert.Zero(t, f.pipeline.SessionDuration())

	require.NoError(t, f.pipeline.Initialize(context.Background(), initRequest(domain.PlanCreator, domain.ModeLocal)))
	require.NoError(t, f.pipeline.Start(context.Background(), destList(1)))

	f.pipeline.now = func() time.Time { return base.Add(30 * time.Minute) }
	assert.InDelta(t, 0.5, f.pipeline.SessionDuration(), 1e-9)
}

func TestStateChangeCallbackSequence(t *testing.T) {
	f := newPipeline()

	var statuses []domain.PipelineStatus
	f.pipeline.OnStateChange(func(s domain.PipelineState) {
		statuses = append(statuses, s.Status)
	})

	require.NoError(t, f.pipeline.Initialize(context.Background(), initRequest(domain.PlanCreator, domain.ModeLocal)))
	require.NoError(t, f.pipeline.Start(context.Background(), destList(1)))
	require.NoError(t, f.pipeline.Stop(context.Background()))

	assert.Equal(t, []domain.PipelineStatus{
		domain.PipelineInitializing,
		domain.PipelineIdle,
		domain.PipelineConnecting,
		domain.PipelineLive,
		domain.PipelineStopping,
		domain.PipelineIdle,
	}, statuses)
}

func TestStopWithoutSessionSkipsStoppingState(t *testing.T) {
	f := newPipeline()

	var statuses []domain.PipelineStatus
	f.pipeline.OnStateChange(func(s domain.PipelineState) {
		statuses = append(statuses, s.Status)
	})

	require.NoError(t, f.pipeline.Stop(context.Background()))
	assert.Equal(t, []domain.PipelineStatus{domain.PipelineIdle}, statuses)
}
