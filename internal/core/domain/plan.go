package domain

// Plan is a subscription tier defining resource ceilings.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanCreator    Plan = "creator"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// UnlimitedDestinations marks a plan with no destination ceiling.
const UnlimitedDestinations = -1

// UnlimitedCloudHours marks a plan with no cloud-hour ceiling.
const UnlimitedCloudHours = -1

// PlanLimits are the resource ceilings of a tier.
type PlanLimits struct {
	MaxDestinations   int     `json:"max_destinations"` // UnlimitedDestinations for no cap
	CloudHours        float64 `json:"cloud_hours"`      // UnlimitedCloudHours for no cap
	RequiresWatermark bool    `json:"requires_watermark"`
}

// LimitKind names the resource a limit applies to, for upgrade guidance.
type LimitKind string

const (
	LimitDestinations LimitKind = "destinations"
	LimitCloudHours   LimitKind = "cloud_hours"
	LimitWatermark    LimitKind = "watermark"
)

// UpgradeRecommendation describes the next tier that would lift a denied limit.
type UpgradeRecommendation struct {
	CurrentPlan Plan      `json:"current_plan"`
	TargetPlan  Plan      `json:"target_plan,omitempty"`
	Limit       LimitKind `json:"limit"`
	Message     string    `json:"message"`
}
