package domain

import "time"

// NetworkConditions is one sampled view of the uplink.
type NetworkConditions struct {
	Bandwidth  int           `json:"bandwidth"` // kbps, estimated available
	RTT        time.Duration `json:"rtt"`
	PacketLoss float64       `json:"packet_loss"` // 0.0-1.0
	Jitter     time.Duration `json:"jitter"`
	Timestamp  time.Time     `json:"timestamp"`
}

// BitrateProfile is a named quality tier the encoder can target.
type BitrateProfile struct {
	Name         string `json:"name"`
	Bitrate      int    `json:"bitrate"` // kbps
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FPS          int    `json:"fps"`
	MinBandwidth int    `json:"min_bandwidth"` // kbps floor to select this profile
}

// AdaptationLevel controls how much safety margin the bitrate engine keeps
// below the estimated bandwidth.
type AdaptationLevel string

const (
	AdaptationConservative AdaptationLevel = "conservative"
	AdaptationBalanced     AdaptationLevel = "balanced"
	AdaptationAggressive   AdaptationLevel = "aggressive"
)
