package replygate

import (
	"fmt"
	"time"
)

// Plan identifiers
const (
	PlanFree     = "free"
	PlanPro      = "pro"
	PlanAdvanced = "advanced"
)

// PlanLimits is the quota and capability envelope of a plan.
// DailyReplies and MaxKeywords use Unlimited (-1) for no ceiling.
type PlanLimits struct {
	ID            string
	DailyReplies  int
	MaxKeywords   int
	ResponseDelay time.Duration

	// AnalyticsRetention is advisory (days); nothing in the engine enforces it
	AnalyticsRetention int

	APIAccess       bool
	PrioritySupport bool
}

// DefaultPlans returns the built-in free, pro and advanced plans
func DefaultPlans() map[string]PlanLimits {
	return map[string]PlanLimits{
		PlanFree: {
			ID:                 PlanFree,
			DailyReplies:       5,
			MaxKeywords:        3,
			ResponseDelay:      5 * time.Second,
			AnalyticsRetention: 7,
		},
		PlanPro: {
			ID:                 PlanPro,
			DailyReplies:       100,
			MaxKeywords:        20,
			ResponseDelay:      2 * time.Second,
			AnalyticsRetention: 30,
			APIAccess:          true,
		},
		PlanAdvanced: {
			ID:                 PlanAdvanced,
			DailyReplies:       Unlimited,
			MaxKeywords:        Unlimited,
			ResponseDelay:      0,
			AnalyticsRetention: 365,
			APIAccess:          true,
			PrioritySupport:    true,
		},
	}
}

// PlanRegistry resolves plan identifiers to limits. It is built once and never mutated.
type PlanRegistry struct {
	plans map[string]PlanLimits
}

// NewPlanRegistry copies plans into an immutable registry. The free plan is required
// because every unknown identifier resolves to it.
func NewPlanRegistry(plans map[string]PlanLimits) (*PlanRegistry, error) {
	if _, ok := plans[PlanFree]; !ok {
		return nil, ErrMissingFreePlan
	}

	copied := make(map[string]PlanLimits, len(plans))
	for id, limits := range plans {
		if limits.ResponseDelay < 0 {
			return nil, fmt.Errorf("plan %q: negative response delay", id)
		}
		if limits.ID == "" {
			limits.ID = id
		}
		copied[id] = limits
	}

	return &PlanRegistry{plans: copied}, nil
}

// Lookup returns the limits for planID, or the free plan when planID is unknown
func (r *PlanRegistry) Lookup(planID string) PlanLimits {
	if limits, ok := r.plans[planID]; ok {
		return limits
	}
	return r.plans[PlanFree]
}
