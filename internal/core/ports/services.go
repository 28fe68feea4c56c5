package ports

import (
	"context"
	"time"

	"omnicast/internal/core/domain"
)

// PolicyProvider answers plan-limit lookups. Pure lookup; carries no state of
// its own inside the core.
type PolicyProvider interface {
	MaxDestinations(plan domain.Plan) int
	CloudHoursLimit(plan domain.Plan) float64
	RequiresWatermark(plan domain.Plan) bool
	UpgradeMessage(plan domain.Plan, limit domain.LimitKind) domain.UpgradeRecommendation
}

// StreamConnector is the transport extension point. The control plane decides
// what should be connected; the connector performs the actual wire-level push
// (or simulates it until the media-relay backend exists).
type StreamConnector interface {
	Connect(ctx context.Context, dest *domain.Destination) error
	Disconnect(ctx context.Context, id domain.DestinationID) error
}

// TelemetrySource supplies per-destination encoder/network metrics each
// monitoring cycle.
type TelemetrySource interface {
	Sample(ctx context.Context, id domain.DestinationID) (domain.DestinationTelemetry, error)
}

// WatermarkRenderer derives a watermarked stream from a captured one. Video
// tracks are re-rendered with the overlay; audio passes through unmodified.
type WatermarkRenderer interface {
	Apply(ctx context.Context, stream domain.MediaStream, bannerText string) (domain.MediaStream, error)
	Release(ctx context.Context, streamID string) error
}

// Router owns the set of destination connections for the active stream.
type Router interface {
	Validate(ctx context.Context, user *domain.User, destinations []domain.Destination) (*domain.RoutingDecision, error)
	Route(ctx context.Context, stream domain.MediaStream, user *domain.User, destinations []domain.Destination) error
	AddDestination(ctx context.Context, user *domain.User, dest domain.Destination) error
	RemoveDestination(ctx context.Context, id domain.DestinationID) error
	DisconnectAll(ctx context.Context)
	Connections() []domain.DestinationConnection
	ActiveCount() int
}

// Enforcement is the single source of truth for "is this operation allowed".
type Enforcement interface {
	ValidateStreamRequest(ctx context.Context, ec domain.EnforcementContext) *domain.EnforcementResult
	CheckCloudHoursCutoff(ctx context.Context, userID domain.UserID, plan domain.Plan, sessionStart time.Time, hoursUsed float64) *domain.CloudHoursCutoff
	AuditLog() []domain.AuditEntry
}
