package memory

import (
	"context"
	"sync"
	"time"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"
)

type activeSession struct {
	id        domain.SessionID
	startedAt time.Time
}

type MemoryUsageRepository struct {
	mu       sync.RWMutex
	hours    map[domain.UserID]float64
	sessions map[domain.UserID]activeSession
}

func NewMemoryUsageRepository() ports.UsageRepository {
	return &MemoryUsageRepository{
		hours:    make(map[domain.UserID]float64),
		sessions: make(map[domain.UserID]activeSession),
	}
}

func (r *MemoryUsageRepository) CloudHoursUsed(ctx context.Context, userID domain.UserID) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hours[userID], nil
}

func (r *MemoryUsageRepository) AddCloudHours(ctx context.Context, userID domain.UserID, hours float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hours[userID] += hours
	return nil
}

func (r *MemoryUsageRepository) SetActiveSession(ctx context.Context, userID domain.UserID, sessionID domain.SessionID, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = activeSession{id: sessionID, startedAt: startedAt}
	return nil
}

func (r *MemoryUsageRepository) ClearActiveSession(ctx context.Context, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
	return nil
}

func (r *MemoryUsageRepository) ActiveSession(ctx context.Context, userID domain.UserID) (domain.SessionID, time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[userID]
	if !exists {
		return "", time.Time{}, domain.ErrNoActiveSession
	}
	return s.id, s.startedAt, nil
}
