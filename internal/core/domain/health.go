package domain

import "time"

// DestinationTelemetry is the raw per-destination metric set refreshed each
// monitoring cycle. Sourced from the transport layer in a real deployment.
type DestinationTelemetry struct {
	Bitrate        int           `json:"bitrate"` // kbps
	TargetBitrate  int           `json:"target_bitrate"`
	FPS            float64       `json:"fps"`
	TargetFPS      float64       `json:"target_fps"`
	DroppedFrames  int64         `json:"dropped_frames"`
	TotalFrames    int64         `json:"total_frames"`
	RTT            time.Duration `json:"rtt"`
	PacketLoss     float64       `json:"packet_loss"` // 0.0-1.0
	Jitter         time.Duration `json:"jitter"`
	Bandwidth      int           `json:"bandwidth"` // kbps
	CPUUsage       float64       `json:"cpu_usage"` // 0.0-1.0
	MemoryUsage    float64       `json:"memory_usage"`
	EncoderLoad    float64       `json:"encoder_load"`
	Timestamp      time.Time     `json:"timestamp"`
}

// DroppedFrameRatio returns dropped/total, zero when no frames were produced.
func (t DestinationTelemetry) DroppedFrameRatio() float64 {
	if t.TotalFrames == 0 {
		return 0
	}
	return float64(t.DroppedFrames) / float64(t.TotalFrames)
}

type WarningSeverity string

const (
	SeverityInfo     WarningSeverity = "info"
	SeverityWarning  WarningSeverity = "warning"
	SeverityCritical WarningSeverity = "critical"
)

type WarningCategory string

const (
	CategoryBitrate     WarningCategory = "bitrate"
	CategoryFPS         WarningCategory = "fps"
	CategoryFrames      WarningCategory = "frames"
	CategoryRTT         WarningCategory = "rtt"
	CategoryPacketLoss  WarningCategory = "packet_loss"
	CategoryCPU         WarningCategory = "cpu"
	CategoryMemory      WarningCategory = "memory"
	CategoryEncoder     WarningCategory = "encoder"
)

// HealthWarning is one threshold breach. Warnings are replaced wholesale each
// evaluation cycle, never accumulated.
type HealthWarning struct {
	Severity  WarningSeverity `json:"severity"`
	Category  WarningCategory `json:"category"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// StreamHealth is the evaluated health record for one destination.
type StreamHealth struct {
	DestinationID DestinationID        `json:"destination_id"`
	Telemetry     DestinationTelemetry `json:"telemetry"`
	IsHealthy     bool                 `json:"is_healthy"`
	Warnings      []HealthWarning      `json:"warnings"`
	EvaluatedAt   time.Time            `json:"evaluated_at"`
}

// RemediationAction is an advisory signal the monitor emits; it is never
// executed by the monitor itself.
type RemediationAction string

const (
	ActionReconnect     RemediationAction = "reconnect"
	ActionAdjustBitrate RemediationAction = "adjust-bitrate"
	ActionReduceQuality RemediationAction = "reduce-quality"
)

// Recommendation pairs a remediation action with the destination it targets.
type Recommendation struct {
	DestinationID DestinationID     `json:"destination_id"`
	Action        RemediationAction `json:"action"`
	Reason        string            `json:"reason"`
	Timestamp     time.Time         `json:"timestamp"`
}

// AggregateStatus is the 5-point scale across all monitored destinations.
type AggregateStatus string

const (
	AggregateExcellent AggregateStatus = "excellent"
	AggregateGood      AggregateStatus = "good"
	AggregateFair      AggregateStatus = "fair"
	AggregatePoor      AggregateStatus = "poor"
	AggregateCritical  AggregateStatus = "critical"
)
