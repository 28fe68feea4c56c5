package domain

import "time"

// StreamMode selects where the egress runs.
type StreamMode string

const (
	ModeLocal StreamMode = "local"
	ModeCloud StreamMode = "cloud"
)

// EnforcementContext captures a single validation request. Immutable after
// creation.
type EnforcementContext struct {
	UserID            UserID     `json:"user_id"`
	Plan              Plan       `json:"plan"`
	Mode              StreamMode `json:"mode"`
	RequestedCount    int        `json:"requested_count"` // enabled destinations requested
	CloudHoursUsed    float64    `json:"cloud_hours_used"`
	Timestamp         time.Time  `json:"timestamp"`
}

// EnforcementResult is the verdict for one validation request. Immutable after
// creation; every validation produces a fresh result.
type EnforcementResult struct {
	Allowed             bool                    `json:"allowed"`
	AllowedCount        int                     `json:"allowed_count"`
	RejectedCount       int                     `json:"rejected_count"`
	RequiresWatermark   bool                    `json:"requires_watermark"`
	RemainingCloudHours float64                 `json:"remaining_cloud_hours"` // UnlimitedCloudHours when uncapped
	Reason              string                  `json:"reason"`
	Upgrades            []UpgradeRecommendation `json:"upgrades,omitempty"`
}

// CloudHoursCutoff is the advisory returned by the cutoff projection. The
// caller, not the enforcement service, terminates the session.
type CloudHoursCutoff struct {
	ShouldCutoff   bool          `json:"should_cutoff"`
	HoursRemaining float64       `json:"hours_remaining"`
	TimeRemaining  time.Duration `json:"time_remaining"`
	Reason         string        `json:"reason,omitempty"`
}

// AuditAction names the enforcement decision kind being journaled.
type AuditAction string

const (
	AuditValidateStream AuditAction = "validate_stream"
	AuditCloudCutoff    AuditAction = "cloud_cutoff"
)

// AuditEntry is one append-only journal record of an enforcement decision.
type AuditEntry struct {
	ID        string             `json:"id"`
	UserID    UserID             `json:"user_id"`
	Action    AuditAction        `json:"action"`
	Allowed   bool               `json:"allowed"`
	Reason    string             `json:"reason"`
	Context   EnforcementContext `json:"context"`
	Timestamp time.Time          `json:"timestamp"`
}
