package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"omnicast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEnforcement() *EnforcementService {
	return NewEnforcementService(NewPolicyService(), zap.NewNop().Sugar())
}

func TestValidateWithinLimitsAllows(t *testing.T) {
	svc := newEnforcement()

	result := svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID:         "u1",
		Plan:           domain.PlanCreator,
		Mode:           domain.ModeLocal,
		RequestedCount: 3,
	})

	assert.True(t, result.Allowed)
	assert.Equal(t, 3, result.AllowedCount)
	assert.Zero(t, result.RejectedCount)
	assert.False(t, result.RequiresWatermark)
	assert.Empty(t, result.Upgrades)
}

func TestValidateDestinationOverflowPartialAllowLocal(t *testing.T) {
	svc := newEnforcement()

	result := svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID:         "u1",
		Plan:           domain.PlanCreator,
		Mode:           domain.ModeLocal,
		RequestedCount: 5,
	})

	// Local overflow still proceeds with the plan's quota.
	assert.True(t, result.Allowed)
	assert.Equal(t, 3, result.AllowedCount)
	assert.Equal(t, 2, result.RejectedCount)
	require.Len(t, result.Upgrades, 1)
	assert.Equal(t, domain.LimitDestinations, result.Upgrades[0].Limit)
}

func TestValidateFreePlanWatermarkAndSingleDestination(t *testing.T) {
	svc := newEnforcement()

	result := svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID:         "u1",
		Plan:           domain.PlanFree,
		Mode:           domain.ModeLocal,
		RequestedCount: 1,
	})

	assert.True(t, result.Allowed)
	assert.True(t, result.RequiresWatermark)
}

func TestValidateCloudDeniedOnFreePlan(t *testing.T) {
	svc := newEnforcement()

	result := svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID:         "u1",
		Plan:           domain.PlanFree,
		Mode:           domain.ModeCloud,
		RequestedCount: 1,
	})

	assert.False(t, result.Allowed)
	assert.Zero(t, result.AllowedCount)
	assert.Equal(t, 1, result.RejectedCount)
	assert.Contains(t, result.Reason, "cloud streaming is not available")
}

func TestValidateCloudHoursExhausted(t *testing.T) {
	svc := newEnforcement()

	result := svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID:         "u1",
		Plan:           domain.PlanCreator,
		Mode:           domain.ModeCloud,
		RequestedCount: 1,
		CloudHoursUsed: 10,
	})

	assert.False(t, result.Allowed)
	assert.Zero(t, result.RemainingCloudHours)
	assert.Contains(t, result.Reason, "cloud hours exhausted")
}

func TestValidateCloudLowHoursWarnsButAllows(t *testing.T) {
	svc := newEnforcement()

	result := svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID:         "u1",
		Plan:           domain.PlanCreator,
		Mode:           domain.ModeCloud,
		RequestedCount: 1,
		CloudHoursUsed: 9.5,
	})

	assert.True(t, result.Allowed)
	assert.InDelta(t, 0.5, result.RemainingCloudHours, 1e-9)
	assert.Contains(t, result.Reason, "less than one cloud hour remaining")
}

func TestValidateCloudOverflowDeniesOutright(t *testing.T) {
	svc := newEnforcement()

	// Overflow plus cloud exhaustion: no partial allow in cloud mode.
	result := svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID:         "u1",
		Plan:           domain.PlanCreator,
		Mode:           domain.ModeCloud,
		RequestedCount: 5,
		CloudHoursUsed: 10,
	})

	assert.False(t, result.Allowed)
	assert.Zero(t, result.AllowedCount)
	assert.Equal(t, 5, result.RejectedCount)
}

func TestValidateEnterpriseUnlimitedDestinations(t *testing.T) {
	svc := newEnforcement()

	result := svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID:         "u1",
		Plan:           domain.PlanEnterprise,
		Mode:           domain.ModeLocal,
		RequestedCount: 40,
	})

	assert.True(t, result.Allowed)
	assert.Equal(t, 40, result.AllowedCount)
}

func TestCheckCloudHoursCutoff(t *testing.T) {
	svc := newEnforcement()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	// 8 historical hours + 1.5h elapsed < 10h limit.
	cutoff := svc.CheckCloudHoursCutoff(context.Background(), "u1", domain.PlanCreator, base.Add(-90*time.Minute), 8)
	assert.False(t, cutoff.ShouldCutoff)
	assert.InDelta(t, 0.5, cutoff.HoursRemaining, 1e-9)

	// 9 historical hours + 1.5h elapsed >= 10h limit.
	cutoff = svc.CheckCloudHoursCutoff(context.Background(), "u1", domain.PlanCreator, base.Add(-90*time.Minute), 9)
	assert.True(t, cutoff.ShouldCutoff)
	assert.Zero(t, cutoff.HoursRemaining)
	assert.Contains(t, cutoff.Reason, "cloud hour limit reached")
}

func TestCheckCloudHoursCutoffEnterpriseLongSession(t *testing.T) {
	svc := newEnforcement()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	// A 1.5 hour session well inside the 50 hour ceiling.
	cutoff := svc.CheckCloudHoursCutoff(context.Background(), "u1", domain.PlanEnterprise, base.Add(-90*time.Minute), 0)
	assert.False(t, cutoff.ShouldCutoff)
	assert.InDelta(t, 48.5, cutoff.HoursRemaining, 1e-9)
}

func TestOnDecisionCallbackSeesEveryVerdict(t *testing.T) {
	svc := newEnforcement()

	type verdict struct {
		mode      domain.StreamMode
		allowed   bool
		remaining float64
	}
	var verdicts []verdict
	svc.OnDecision(func(ec domain.EnforcementContext, result *domain.EnforcementResult) {
		verdicts = append(verdicts, verdict{ec.Mode, result.Allowed, result.RemainingCloudHours})
	})

	svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID: "u1", Plan: domain.PlanCreator, Mode: domain.ModeLocal, RequestedCount: 1,
	})
	svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID: "u1", Plan: domain.PlanCreator, Mode: domain.ModeCloud, RequestedCount: 1, CloudHoursUsed: 8,
	})
	svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID: "u1", Plan: domain.PlanFree, Mode: domain.ModeCloud, RequestedCount: 1,
	})

	require.Len(t, verdicts, 3)
	assert.Equal(t, verdict{domain.ModeLocal, true, domain.UnlimitedCloudHours}, verdicts[0])
	assert.Equal(t, verdict{domain.ModeCloud, true, 2}, verdicts[1])
	assert.False(t, verdicts[2].allowed)
}

func TestAuditLogRecordsDecisions(t *testing.T) {
	svc := newEnforcement()

	svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID: "u1", Plan: domain.PlanFree, Mode: domain.ModeLocal, RequestedCount: 1,
	})
	svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
		UserID: "u1", Plan: domain.PlanFree, Mode: domain.ModeCloud, RequestedCount: 1,
	})

	entries := svc.AuditLog()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Allowed)
	assert.False(t, entries[1].Allowed)
	assert.Equal(t, domain.AuditValidateStream, entries[1].Action)
	assert.NotEmpty(t, entries[1].ID)
}

func TestAuditLogBounded(t *testing.T) {
	svc := newEnforcement()

	for i := 0; i < auditLogCap+50; i++ {
		svc.ValidateStreamRequest(context.Background(), domain.EnforcementContext{
			UserID:         domain.UserID(fmt.Sprintf("u%d", i)),
			Plan:           domain.PlanFree,
			Mode:           domain.ModeLocal,
			RequestedCount: 1,
		})
	}

	entries := svc.AuditLog()
	assert.Len(t, entries, auditLogCap)
	// Oldest entries were evicted.
	assert.Equal(t, domain.UserID("u50"), entries[0].UserID)
}
