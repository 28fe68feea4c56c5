package domain

import (
	"time"
)

type DestinationID string
type SessionID string

// Platform identifies a supported egress platform.
type Platform string

const (
	PlatformTwitch   Platform = "twitch"
	PlatformYouTube  Platform = "youtube"
	PlatformFacebook Platform = "facebook"
	PlatformKick     Platform = "kick"
	PlatformCustom   Platform = "custom"
)

// DestinationStatus is the connection lifecycle state of a destination.
type DestinationStatus string

const (
	StatusOffline    DestinationStatus = "offline"
	StatusConnecting DestinationStatus = "connecting"
	StatusLive       DestinationStatus = "live"
	StatusError      DestinationStatus = "error"
)

// Destination is one configured egress target owned by a creator.
type Destination struct {
	ID          DestinationID     `json:"id"`
	UserID      UserID            `json:"user_id"`
	Platform    Platform          `json:"platform"`
	Name        string            `json:"name"`
	StreamKey   string            `json:"stream_key"`
	ServerURL   string            `json:"server_url,omitempty"` // required for custom platforms
	Enabled     bool              `json:"enabled"`
	Status      DestinationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// DestinationConnection wraps a routed destination with its live connection state.
// Owned by the router; callers only ever see copies.
type DestinationConnection struct {
	Destination Destination
	Status      DestinationStatus
	ConnectedAt *time.Time
	BytesSent   int64
	Error       string
}

// RoutingDecision is the outcome of validating a requested destination set
// against the subscriber's plan. Order of Allowed matches the request order.
type RoutingDecision struct {
	Allowed  []Destination `json:"allowed"`
	Rejected []Destination `json:"rejected"`
	Message  string        `json:"message,omitempty"`
}
