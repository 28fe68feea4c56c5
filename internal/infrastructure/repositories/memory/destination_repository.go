package memory

import (
	"context"
	"sync"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"
)

type MemoryDestinationRepository struct {
	destinations map[domain.DestinationID]*domain.Destination
	mu           sync.RWMutex
}

func NewMemoryDestinationRepository() ports.DestinationRepository {
	return &MemoryDestinationRepository{
		destinations: make(map[domain.DestinationID]*domain.Destination),
	}
}

func (r *MemoryDestinationRepository) Create(ctx context.Context, dest *domain.Destination) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[dest.ID]; exists {
		return domain.ErrDestinationExists
	}

	copied := *dest
	r.destinations[dest.ID] = &copied
	return nil
}

func (r *MemoryDestinationRepository) GetByID(ctx context.Context, id domain.DestinationID) (*domain.Destination, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dest, exists := r.destinations[id]
	if !exists {
		return nil, domain.ErrDestinationNotFound
	}

	copied := *dest
	return &copied, nil
}

func (r *MemoryDestinationRepository) Update(ctx context.Context, dest *domain.Destination) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[dest.ID]; !exists {
		return domain.ErrDestinationNotFound
	}

	copied := *dest
	r.destinations[dest.ID] = &copied
	return nil
}

func (r *MemoryDestinationRepository) Delete(ctx context.Context, id domain.DestinationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[id]; !exists {
		return domain.ErrDestinationNotFound
	}

	delete(r.destinations, id)
	return nil
}

func (r *MemoryDestinationRepository) ListByUser(ctx context.Context, userID domain.UserID) ([]*domain.Destination, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Destination
	for _, dest := range r.destinations {
		if dest.UserID == userID {
			copied := *dest
			out = append(out, &copied)
		}
	}

	return out, nil
}
