package core

// BudgetPolicy describes the metered search API's pricing and daily ceiling.
type BudgetPolicy struct {
	CostPerThousand  float64
	DailyCap         float64
	WarningThreshold float64 // fraction of the cap, e.g. 0.8
}

// ComputeUsage derives today's SearchUsage from the number of queries already
// issued. Usage is always recomputed from the dated log, never accumulated in
// place, so a date rollover resets it for free.
func ComputeUsage(queriesToday int, policy BudgetPolicy) SearchUsage {
	cost := float64(queriesToday) * policy.CostPerThousand / 1000.0
	remaining := policy.DailyCap - cost
	if remaining < 0 {
		remaining = 0
	}
	warning := false
	if policy.WarningThreshold > 0 && policy.DailyCap > 0 {
		warning = cost >= policy.DailyCap*policy.WarningThreshold
	}
	return SearchUsage{
		Queries:     queriesToday,
		Cost:        cost,
		Remaining:   remaining,
		CanContinue: cost < policy.DailyCap,
		Warning:     warning,
	}
}
