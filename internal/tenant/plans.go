package tenant

// Plan IDs for the built-in catalogue.
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// DefaultPlans is the built-in plan catalogue. The migration seeds these
// rows; the memory store starts from this map.
var DefaultPlans = map[string]Plan{
	PlanFree: {
		ID:           PlanFree,
		Name:         "Free",
		RateLimit:    "10/minute",
		MonthlyQuota: 100,
	},
	PlanPro: {
		ID:           PlanPro,
		Name:         "Pro",
		RateLimit:    "100/minute",
		MonthlyQuota: 10000,
	},
	PlanEnterprise: {
		ID:           PlanEnterprise,
		Name:         "Enterprise",
		RateLimit:    "1000/minute",
		MonthlyQuota: 100000,
	},
}

// ValidPlan returns true if the plan ID is in the built-in catalogue.
func ValidPlan(id string) bool {
	_, ok := DefaultPlans[id]
	return ok
}
