package domain

import "time"

// PipelineStatus is the lifecycle state of the streaming pipeline.
type PipelineStatus string

const (
	PipelineIdle         PipelineStatus = "idle"
	PipelineInitializing PipelineStatus = "initializing"
	PipelineConnecting   PipelineStatus = "connecting"
	PipelineLive         PipelineStatus = "live"
	PipelineStopping     PipelineStatus = "stopping"
	PipelineError        PipelineStatus = "error"
)

// PipelineState is the full state of the active session. Replaced wholesale
// on stop.
type PipelineState struct {
	Mode               StreamMode     `json:"mode"`
	Status             PipelineStatus `json:"status"`
	SessionStart       *time.Time     `json:"session_start,omitempty"`
	CloudSessionID     SessionID      `json:"cloud_session_id,omitempty"`
	ActiveDestinations int            `json:"active_destinations"`
	WatermarkApplied   bool           `json:"watermark_applied"`
	LastError          string         `json:"last_error,omitempty"`
}

type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// MediaTrack describes one track of a captured stream.
type MediaTrack struct {
	ID    string    `json:"id"`
	Kind  TrackKind `json:"kind"`
	Label string    `json:"label"`
}

// MediaStream describes a captured or rendered stream. The control plane only
// carries descriptors; actual media flows through the transport layer.
type MediaStream struct {
	ID          string       `json:"id"`
	Tracks      []MediaTrack `json:"tracks"`
	Watermarked bool         `json:"watermarked"`
	SourceID    string       `json:"source_id,omitempty"` // original stream when derived
}

// VideoTracks returns the video track descriptors.
func (m MediaStream) VideoTracks() []MediaTrack {
	var out []MediaTrack
	for _, t := range m.Tracks {
		if t.Kind == TrackVideo {
			out = append(out, t)
		}
	}
	return out
}

// AudioTracks returns the audio track descriptors.
func (m MediaStream) AudioTracks() []MediaTrack {
	var out []MediaTrack
	for _, t := range m.Tracks {
		if t.Kind == TrackAudio {
			out = append(out, t)
		}
	}
	return out
}
