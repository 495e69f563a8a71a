package entitlements

import (
	"strings"

	"github.com/Chrismelgar17/tipzy-sub000/app/models"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// ForSubscription derives the effective plan from the mirrored subscription
// state. past_due keeps access during the provider's grace period; the
// provider tells us via webhook when that changes.
func ForSubscription(sub *models.Subscription) Plan {
	if sub == nil || !IsEntitlingStatus(sub.Status) {
		return PlanFree
	}
	return PlanPro
}

// IsEntitlingStatus reports whether a subscription status grants access.
func IsEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrialing, models.SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// Features returns the feature toggles for a plan.
func Features(plan Plan) (customTipGoals, venueInsights, prioritySupport bool) {
	switch plan {
	case PlanPro:
		return true, true, true
	default:
		return false, false, false
	}
}
