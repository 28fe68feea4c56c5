package services

import (
	"context"
	"fmt"

	"omnicast/internal/core/domain"
	"omnicast/pkg/retry"

	"go.uber.org/zap"
)

// RemediationExecutor acts on the health monitor's advisory recommendations.
// It is deliberately separate from the monitor so remediation policy can be
// swapped without touching monitoring logic; hosts that want a different
// policy replace this component.
type RemediationExecutor struct {
	router      *RouterService
	bitrate     *BitrateService
	retryConfig retry.Config
	logger      *zap.SugaredLogger
}

func NewRemediationExecutor(router *RouterService, bitrate *BitrateService, retryConfig retry.Config, logger *zap.SugaredLogger) *RemediationExecutor {
	return &RemediationExecutor{
		router:      router,
		bitrate:     bitrate,
		retryConfig: retryConfig,
		logger:      logger,
	}
}

// Handle executes one recommendation.
func (e *RemediationExecutor) Handle(ctx context.Context, rec domain.Recommendation) error {
	e.logger.Infow("executing recommendation",
		"destination_id", rec.DestinationID,
		"action", rec.Action,
		"reason", rec.Reason,
	)

	switch rec.Action {
	case domain.ActionReconnect:
		return retry.Retry(ctx, e.retryConfig, func() error {
			return e.router.Reconnect(ctx, rec.DestinationID)
		})
	case domain.ActionAdjustBitrate:
		e.bitrate.AdaptNow()
		return nil
	case domain.ActionReduceQuality:
		profile := e.bitrate.StepDown()
		e.logger.Infow("quality stepped down", "profile", profile.Name, "bitrate", profile.Bitrate)
		return nil
	default:
		return fmt.Errorf("unknown remediation action: %s", rec.Action)
	}
}
