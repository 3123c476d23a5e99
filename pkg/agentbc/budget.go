package agentbc

// ModelCost is a model identifier's per-token pricing.
type ModelCost struct {
	InputPerToken  float64
	OutputPerToken float64
}

// ModelCostTable maps model identifiers to their pricing.
type ModelCostTable map[string]ModelCost

// EstimateCost computes tokens·costPerToken.
func EstimateCost(tokens int, costPerToken float64) float64 {
	return float64(tokens) * costPerToken
}

// BudgetTracker is one agent's daily spend accounting. agentbc only does
// the arithmetic; it neither persists CurrentSpend nor resets it daily.
type BudgetTracker struct {
	AgentID        string
	DailyBudget    float64
	CurrentSpend   float64
	AlertThreshold float64 // fraction of DailyBudget, default 0.8
}

// BudgetDecision is checkBudget's discriminated result.
type BudgetDecision struct {
	Allowed         bool
	RemainingBudget float64
	AtAlertThreshold bool

	Denied       bool
	Reason       string
	CurrentSpend float64
	DailyBudget  float64
}

// CheckBudget reports whether estimatedCost fits within the tracker's
// remaining daily budget, without mutating CurrentSpend — the caller
// applies the spend only after the command it is gating actually runs.
func CheckBudget(tracker BudgetTracker, estimatedCost float64) BudgetDecision {
	if tracker.CurrentSpend+estimatedCost > tracker.DailyBudget {
		return BudgetDecision{
			Denied:       true,
			Reason:       "budget_exceeded",
			CurrentSpend: tracker.CurrentSpend,
			DailyBudget:  tracker.DailyBudget,
		}
	}
	threshold := tracker.AlertThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	return BudgetDecision{
		Allowed:          true,
		RemainingBudget:  tracker.DailyBudget - tracker.CurrentSpend - estimatedCost,
		AtAlertThreshold: tracker.CurrentSpend >= threshold*tracker.DailyBudget,
	}
}
