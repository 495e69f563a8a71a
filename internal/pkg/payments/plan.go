package payments

import (
	"strings"

	"github.com/Chrismelgar17/tipzy-sub000/internal/pkg/env"
)

// Plan describes a catalog entry: the provider price reference the
// subscription is created against and the trial length granted on signup.
type Plan struct {
	Key       string
	PriceEnv  string
	TrialDays int64
}

const (
	PlanProMonthly = "tipzy_pro_monthly"
	PlanProYearly  = "tipzy_pro_yearly"
)

// The catalog is static and compiled in; only the provider price ids come
// from the environment so test and live mode can differ per deployment.
var planCatalog = map[string]Plan{
	PlanProMonthly: {Key: PlanProMonthly, PriceEnv: "STRIPE_PRICE_PRO_MONTHLY", TrialDays: 30},
	PlanProYearly:  {Key: PlanProYearly, PriceEnv: "STRIPE_PRICE_PRO_YEARLY", TrialDays: 30},
}

// ResolvePlan maps a plan key to its provider price reference and trial
// length. Unknown or unpriced plans are configuration errors, not user
// errors: the catalog and environment are operator-owned.
func ResolvePlan(planKey string) (Plan, string, error) {
	key := strings.ToLower(strings.TrimSpace(planKey))
	plan, ok := planCatalog[key]
	if !ok {
		return Plan{}, "", configurationError("unknown plan %q", planKey)
	}
	priceRef := strings.TrimSpace(env.GetEnv(plan.PriceEnv, ""))
	if priceRef == "" {
		return Plan{}, "", configurationError("plan %q has no provider price configured (%s)", key, plan.PriceEnv)
	}
	return plan, priceRef, nil
}

// KnownPlanKeys lists the catalog keys, for request validation messages.
func KnownPlanKeys() []string {
	keys := make([]string, 0, len(planCatalog))
	for k := range planCatalog {
		keys = append(keys, k)
	}
	return keys
}
