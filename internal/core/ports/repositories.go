package ports

import (
	"context"
	"time"

	"omnicast/internal/core/domain"
)

// DestinationRepository stores a creator's configured destinations.
type DestinationRepository interface {
	Create(ctx context.Context, dest *domain.Destination) error
	GetByID(ctx context.Context, id domain.DestinationID) (*domain.Destination, error)
	Update(ctx context.Context, dest *domain.Destination) error
	Delete(ctx context.Context, id domain.DestinationID) error
	ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.Destination, error)
}

// UsageRepository is the external cloud-hours ledger the core reports to.
type UsageRepository interface {
	CloudHoursUsed(ctx context.Context, userID domain.UserID) (float64, error)
	AddCloudHours(ctx context.Context, userID domain.UserID, hours float64) error
	SetActiveSession(ctx context.Context, userID domain.UserID, sessionID domain.SessionID, startedAt time.Time) error
	ClearActiveSession(ctx context.Context, userID domain.UserID) error
	ActiveSession(ctx context.Context, userID domain.UserID) (domain.SessionID, time.Time, error)
}
