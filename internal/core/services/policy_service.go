package services

import (
	"fmt"

	"omnicast/internal/core/domain"
	"omnicast/internal/core/ports"
)

// PolicyService is the static plan-limit catalog. Billing owns which plan a
// user is on; this service only answers what a plan permits.
type PolicyService struct {
	limits map[domain.Plan]domain.PlanLimits
}

func NewPolicyService() *PolicyService {
	return &PolicyService{
		limits: map[domain.Plan]domain.PlanLimits{
			domain.PlanFree: {
				MaxDestinations:   1,
				CloudHours:        0,
				RequiresWatermark: true,
			},
			domain.PlanCreator: {
				MaxDestinations:   3,
				CloudHours:        10,
				RequiresWatermark: false,
			},
			domain.PlanPro: {
				MaxDestinations:   5,
				CloudHours:        25,
				RequiresWatermark: false,
			},
			domain.PlanEnterprise: {
				MaxDestinations:   domain.UnlimitedDestinations,
				CloudHours:        50,
				RequiresWatermark: false,
			},
		},
	}
}

var _ ports.PolicyProvider = (*PolicyService)(nil)

// planOrder is the upgrade ladder, lowest tier first.
var planOrder = []domain.Plan{
	domain.PlanFree,
	domain.PlanCreator,
	domain.PlanPro,
	domain.PlanEnterprise,
}

func (p *PolicyService) Limits(plan domain.Plan) domain.PlanLimits {
	if l, ok := p.limits[plan]; ok {
		return l
	}
	// Unknown plans get free-tier limits.
	return p.limits[domain.PlanFree]
}

func (p *PolicyService) MaxDestinations(plan domain.Plan) int {
	return p.Limits(plan).MaxDestinations
}

func (p *PolicyService) CloudHoursLimit(plan domain.Plan) float64 {
	return p.Limits(plan).CloudHours
}

func (p *PolicyService) RequiresWatermark(plan domain.Plan) bool {
	return p.Limits(plan).RequiresWatermark
}

// UpgradeMessage returns guidance for the next tier up that lifts the given
// limit. The highest tier returns a terminal message with no target plan.
func (p *PolicyService) UpgradeMessage(plan domain.Plan, limit domain.LimitKind) domain.UpgradeRecommendation {
	next, ok := p.nextPlan(plan)
	if !ok {
		return domain.UpgradeRecommendation{
			CurrentPlan: plan,
			Limit:       limit,
			Message:     "You are already on the highest plan.",
		}
	}

	nextLimits := p.Limits(next)
	var msg string
	switch limit {
	case domain.LimitDestinations:
		if nextLimits.MaxDestinations == domain.UnlimitedDestinations {
			msg = fmt.Sprintf("Upgrade to %s for unlimited destinations.", next)
		} else {
			msg = fmt.Sprintf("Upgrade to %s for up to %d destinations.", next, nextLimits.MaxDestinations)
		}
	case domain.LimitCloudHours:
		msg = fmt.Sprintf("Upgrade to %s for %.0f cloud streaming hours per month.", next, nextLimits.CloudHours)
	case domain.LimitWatermark:
		msg = fmt.Sprintf("Upgrade to %s to remove the watermark.", next)
	default:
		msg = fmt.Sprintf("Upgrade to %s for higher limits.", next)
	}

	return domain.UpgradeRecommendation{
		CurrentPlan: plan,
		TargetPlan:  next,
		Limit:       limit,
		Message:     msg,
	}
}

func (p *PolicyService) nextPlan(plan domain.Plan) (domain.Plan, bool) {
	for i, pl := range planOrder {
		if pl == plan {
			if i == len(planOrder)-1 {
				return "", false
			}
			return planOrder[i+1], true
		}
	}
	return "", false
}
