// Package streaming renders derived output streams for the pipeline.
package streaming

import (
	"context"
	"sync"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OverlayRenderer burns a persistent watermark into the video tracks of a
// captured stream: a translucent badge plus a bottom banner with the upgrade
// prompt. Audio tracks pass through untouched. The control plane carries
// descriptors only; the actual frame compositing runs in the encoder process.
type OverlayRenderer struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	derived map[string]string // derived stream id -> source stream id
}

func NewOverlayRenderer(logger *zap.SugaredLogger) *OverlayRenderer {
	return &OverlayRenderer{
		logger:  logger,
		derived: make(map[string]string),
	}
}

var _ ports.WatermarkRenderer = (*OverlayRenderer)(nil)

func (r *OverlayRenderer) Apply(ctx context.Context, stream domain.MediaStream, bannerText string) (domain.MediaStream, error) {
	out := domain.MediaStream{
		ID:          uuid.NewString(),
		Watermarked: true,
		SourceID:    stream.ID,
	}

	for _, t := range stream.Tracks {
		track := t
		if t.Kind == domain.TrackVideo {
			track.ID = uuid.NewString()
			track.Label = t.Label + " (watermarked)"
		}
		out.Tracks = append(out.Tracks, track)
	}

	r.mu.Lock()
	r.derived[out.ID] = stream.ID
	r.mu.Unlock()

	r.logger.Infow("watermark applied",
		"source_stream", stream.ID,
		"derived_stream", out.ID,
		"banner", bannerText,
	)
	return out, nil
}

// Release stops the rendering tracks of a derived stream.
func (r *OverlayRenderer) Release(ctx context.Context, streamID string) error {
	r.mu.Lock()
	source, ok := r.derived[streamID]
	delete(r.derived, streamID)
	r.mu.Unlock()

	if ok {
		r.logger.Infow("watermark stream released", "derived_stream", streamID, "source_stream", source)
	}
	return nil
}
