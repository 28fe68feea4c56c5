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

const auditLogCap = 1000

// EnforcementService is the policy gatekeeper invoked before and during a
// session. Every decision is journaled to a bounded append-only audit log.
type EnforcementService struct {
	policy ports.PolicyProvider
	logger *zap.SugaredLogger

	auditMu  sync.RWMutex
	auditLog []domain.AuditEntry

	onDecision func(ec domain.EnforcementContext, result *domain.EnforcementResult)

	now func() time.Time
}

func NewEnforcementService(policy ports.PolicyProvider, logger *zap.SugaredLogger) *EnforcementService {
	return &EnforcementService{
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

var _ ports.Enforcement = (*EnforcementService)(nil)

// OnDecision registers a callback fired after every validation verdict, for
// metrics and event fan-out.
func (s *EnforcementService) OnDecision(fn func(ec domain.EnforcementContext, result *domain.EnforcementResult)) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.onDecision = fn
}

// ValidateStreamRequest checks the destination-count limit, cloud eligibility
// and the watermark obligation for one session request. The result is allowed
// when there are no violations, or when the only violation is destination
// overflow in local mode with at least one destination still permitted.
func (s *EnforcementService) ValidateStreamRequest(ctx context.Context, ec domain.EnforcementContext) *domain.EnforcementResult {
	ec.Timestamp = s.now()

	result := &domain.EnforcementResult{
		AllowedCount:        ec.RequestedCount,
		RequiresWatermark:   s.policy.RequiresWatermark(ec.Plan),
		RemainingCloudHours: domain.UnlimitedCloudHours,
	}

	var destinationOverflow, cloudViolation bool

	maxDest := s.policy.MaxDestinations(ec.Plan)
	if maxDest != domain.UnlimitedDestinations && ec.RequestedCount > maxDest {
		destinationOverflow = true
		result.AllowedCount = maxDest
		result.RejectedCount = ec.RequestedCount - maxDest
		result.Reason = fmt.Sprintf("plan %s allows %d destination(s), %d requested", ec.Plan, maxDest, ec.RequestedCount)
		result.Upgrades = append(result.Upgrades, s.policy.UpgradeMessage(ec.Plan, domain.LimitDestinations))
	}

	if ec.Mode == domain.ModeCloud {
		limit := s.policy.CloudHoursLimit(ec.Plan)
		switch {
		case limit == 0:
			cloudViolation = true
			result.Reason = fmt.Sprintf("cloud streaming is not available on the %s plan", ec.Plan)
			result.Upgrades = append(result.Upgrades, s.policy.UpgradeMessage(ec.Plan, domain.LimitCloudHours))
		case limit == domain.UnlimitedCloudHours:
			result.RemainingCloudHours = domain.UnlimitedCloudHours
		default:
			remaining := limit - ec.CloudHoursUsed
			result.RemainingCloudHours = remaining
			if remaining <= 0 {
				cloudViolation = true
				result.RemainingCloudHours = 0
				result.Reason = fmt.Sprintf("cloud hours exhausted: %.1f of %.1f used", ec.CloudHoursUsed, limit)
				result.Upgrades = append(result.Upgrades, s.policy.UpgradeMessage(ec.Plan, domain.LimitCloudHours))
			} else if remaining < 1 {
				result.Reason = fmt.Sprintf("less than one cloud hour remaining (%.2f)", remaining)
			}
		}
	}

	switch {
	case !destinationOverflow && !cloudViolation:
		result.Allowed = true
	case destinationOverflow && !cloudViolation && ec.Mode == domain.ModeLocal && result.AllowedCount >= 1:
		// Partial allow: the session proceeds with the first N destinations.
		result.Allowed = true
	default:
		result.Allowed = false
		result.AllowedCount = 0
		if cloudViolation {
			result.RejectedCount = ec.RequestedCount
		}
	}

	s.appendAudit(domain.AuditEntry{
		ID:        uuid.NewString(),
		UserID:    ec.UserID,
		Action:    domain.AuditValidateStream,
		Allowed:   result.Allowed,
		Reason:    result.Reason,
		Context:   ec,
		Timestamp: ec.Timestamp,
	})

	s.logger.Infow("stream request validated",
		"user_id", ec.UserID,
		"plan", ec.Plan,
		"mode", ec.Mode,
		"requested", ec.RequestedCount,
		"allowed", result.Allowed,
		"allowed_count", result.AllowedCount,
		"reason", result.Reason,
	)

	s.auditMu.RLock()
	notify := s.onDecision
	s.auditMu.RUnlock()
	if notify != nil {
		notify(ec, result)
	}

	return result
}

// CheckCloudHoursCutoff projects total usage (historical plus the in-progress
// session) against the plan ceiling. Advisory only: the caller terminates the
// session.
func (s *EnforcementService) CheckCloudHoursCutoff(ctx context.Context, userID domain.UserID, plan domain.Plan, sessionStart time.Time, hoursUsed float64) *domain.CloudHoursCutoff {
	limit := s.policy.CloudHoursLimit(plan)
	if limit == domain.UnlimitedCloudHours {
		return &domain.CloudHoursCutoff{ShouldCutoff: false, HoursRemaining: domain.UnlimitedCloudHours}
	}

	elapsed := s.now().Sub(sessionStart).Hours()
	projected := hoursUsed + elapsed

	if projected >= limit {
		cutoff := &domain.CloudHoursCutoff{
			ShouldCutoff:   true,
			HoursRemaining: 0,
			TimeRemaining:  0,
			Reason:         fmt.Sprintf("cloud hour limit reached: %.2f of %.1f used", projected, limit),
		}
		s.appendAudit(domain.AuditEntry{
			ID:      uuid.NewString(),
			UserID:  userID,
			Action:  domain.AuditCloudCutoff,
			Allowed: false,
			Reason:  cutoff.Reason,
			Context: domain.EnforcementContext{
				UserID:         userID,
				Plan:           plan,
				Mode:           domain.ModeCloud,
				CloudHoursUsed: projected,
				Timestamp:      s.now(),
			},
			Timestamp: s.now(),
		})
		s.logger.Warnw("cloud hours cutoff triggered",
			"user_id", userID,
			"plan", plan,
			"projected_hours", projected,
			"limit", limit,
		)
		return cutoff
	}

	remaining := limit - projected
	return &domain.CloudHoursCutoff{
		ShouldCutoff:   false,
		HoursRemaining: remaining,
		TimeRemaining:  time.Duration(remaining * float64(time.Hour)),
	}
}

// AuditLog returns a snapshot of the journal, oldest entry first.
func (s *EnforcementService) AuditLog() []domain.AuditEntry {
	s.auditMu.RLock()
	defer s.auditMu.RUnlock()

	out := make([]domain.AuditEntry, len(s.auditLog))
	copy(out, s.auditLog)
	return out
}

func (s *EnforcementService) appendAudit(entry domain.AuditEntry) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	s.auditLog = append(s.auditLog, entry)
	if len(s.auditLog) > auditLogCap {
		s.auditLog = s.auditLog[len(s.auditLog)-auditLogCap:]
	}
}
