package events

import (
	"encoding/json"
	"time"

	"omnicast/internal/core/domain"
)

// EventType represents the type of control-plane event
type EventType string

const (
	EventDestinationStatus EventType = "destination.status"
	EventBitrateChanged    EventType = "bitrate.changed"
	EventQualityChanged    EventType = "quality.changed"
	EventHealthUpdated     EventType = "health.updated"
	EventRecommendation    EventType = "health.recommendation"
	EventPipelineState     EventType = "pipeline.state"
	EventSessionStarted    EventType = "session.started"
	EventSessionStopped    EventType = "session.stopped"
	EventEnforcementDenied EventType = "enforcement.denied"
)

// Event is the envelope broadcast to subscribers and published to Redis.
type Event struct {
	Type          EventType            `json:"type"`
	InstanceID    string               `json:"instance_id,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
	SessionID     domain.SessionID     `json:"session_id,omitempty"`
	DestinationID domain.DestinationID `json:"destination_id,omitempty"`
	Payload       json.RawMessage      `json:"payload,omitempty"`
}

type DestinationStatusPayload struct {
	Platform domain.Platform          `json:"platform"`
	Status   domain.DestinationStatus `json:"status"`
	Error    string                   `json:"error,omitempty"`
}

type BitrateChangedPayload struct {
	OldBitrate int `json:"old_bitrate_kbps"`
	NewBitrate int `json:"new_bitrate_kbps"`
}

type QualityChangedPayload struct {
	Profile string `json:"profile"`
	Bitrate int    `json:"bitrate_kbps"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	FPS     int    `json:"fps"`
}

type HealthUpdatedPayload struct {
	IsHealthy bool                   `json:"is_healthy"`
	Warnings  []domain.HealthWarning `json:"warnings,omitempty"`
}

type RecommendationPayload struct {
	Action domain.RemediationAction `json:"action"`
	Reason string                   `json:"reason"`
}

type PipelineStatePayload struct {
	Status domain.PipelineStatus `json:"status"`
	Error  string                `json:"error,omitempty"`
}

type EnforcementDeniedPayload struct {
	Plan   domain.Plan       `json:"plan"`
	Mode   domain.StreamMode `json:"mode"`
	Reason string            `json:"reason"`
}
