package memory

import (
	"context"
	"testing"
	"time"

	"omnicast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudHoursAccumulate(t *testing.T) {
	repo := NewMemoryUsageRepository()
	ctx := context.Background()

	hours, err := repo.CloudHoursUsed(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, hours)

	require.NoError(t, repo.AddCloudHours(ctx, "u1", 1.5))
	require.NoError(t, repo.AddCloudHours(ctx, "u1", 0.25))

	hours, err = repo.CloudHoursUsed(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 1.75, hours, 1e-9)

	// Other users are unaffected.
	other, err := repo.CloudHoursUsed(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestActiveSessionLifecycle(t *testing.T) {
	repo := NewMemoryUsageRepository()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, _, err := repo.ActiveSession(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	require.NoError(t, repo.SetActiveSession(ctx, "u1", "sess-1", start))

	id, startedAt, err := repo.ActiveSession(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("sess-1"), id)
	assert.Equal(t, start, startedAt)

	// A new session replaces the old one.
	require.NoError(t, repo.SetActiveSession(ctx, "u1", "sess-2", start.Add(time.Hour)))
	id, _, err = repo.ActiveSession(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("sess-2"), id)

	require.NoError(t, repo.ClearActiveSession(ctx, "u1"))
	_, _, err = repo.ActiveSession(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	// Clearing an absent session is a no-op.
	assert.NoError(t, repo.ClearActiveSession(ctx, "u1"))
}
