package streaming

import (
	"context"
	"testing"

	"omnicast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestApplyDerivesWatermarkedStream(t *testing.T) {
	r := NewOverlayRenderer(zap.NewNop().Sugar())

	source := domain.MediaStream{
		ID: "capture-1",
		Tracks: []domain.MediaTrack{
			{ID: "v1", Kind: domain.TrackVideo, Label: "camera"},
			{ID: "a1", Kind: domain.TrackAudio, Label: "mic"},
		},
	}

	out, err := r.Apply(context.Background(), source, "Upgrade to remove the watermark.")
	require.NoError(t, err)

	assert.True(t, out.Watermarked)
	assert.NotEqual(t, source.ID, out.ID)
	assert.Equal(t, source.ID, out.SourceID)
	require.Len(t, out.Tracks, 2)

	// Video tracks are re-rendered under new ids; audio passes through.
	video := out.VideoTracks()
	require.Len(t, video, 1)
	assert.NotEqual(t, "v1", video[0].ID)
	assert.Equal(t, "camera (watermarked)", video[0].Label)

	audio := out.AudioTracks()
	require.Len(t, audio, 1)
	assert.Equal(t, "a1", audio[0].ID)
	assert.Equal(t, "mic", audio[0].Label)
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := NewOverlayRenderer(zap.NewNop().Sugar())

	out, err := r.Apply(context.Background(), domain.MediaStream{ID: "capture-1"}, "banner")
	require.NoError(t, err)

	assert.NoError(t, r.Release(context.Background(), out.ID))
	assert.NoError(t, r.Release(context.Background(), out.ID))
	assert.NoError(t, r.Release(context.Background(), "never-derived"))
}
