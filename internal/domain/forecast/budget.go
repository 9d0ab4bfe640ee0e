package forecast

import (
	"github.com/shopspring/decimal"
)

// Factor bounds for the what-if projection slider
var (
	FactorMin = decimal.NewFromFloat(0.5)
	FactorMax = decimal.NewFromFloat(2.0)

	hundred = decimal.NewFromInt(100)
)

// SimulationState drives the budget-ceiling what-if view. It is transient:
// recomputed per view request, never persisted.
type SimulationState struct {
	Enabled           bool             `json:"enabled"`
	BudgetTotal       decimal.Decimal  `json:"budget_total"`
	Factor            decimal.Decimal  `json:"factor"`
	EstimatedOverride *decimal.Decimal `json:"estimated_override,omitempty"`
}

// IsValidSimulationState reports whether a state can be applied: disabled
// states are trivially valid, enabled ones need a positive budget total.
func IsValidSimulationState(s SimulationState) bool {
	return !s.Enabled || s.BudgetTotal.GreaterThan(decimal.Zero)
}

// Metrics aggregates a project's forecast axis, optionally layered with
// budget-ceiling figures.
type Metrics struct {
	TotalPlanned  decimal.Decimal `json:"total_planned"`
	TotalForecast decimal.Decimal `json:"total_forecast"`
	TotalActual   decimal.Decimal `json:"total_actual"`

	BudgetTotal             decimal.Decimal `json:"budget_total"`
	BudgetVariancePlanned   decimal.Decimal `json:"budget_variance_planned"`
	BudgetVarianceProjected decimal.Decimal `json:"budget_variance_projected"`
	PctUsedActual           decimal.Decimal `json:"pct_used_actual"`
	BudgetUtilization       decimal.Decimal `json:"budget_utilization"`
}

// SplitBudget distributes total evenly over months, truncating every
// period to the cent and letting the last period absorb the remainder so
// that the parts reconstitute the total exactly. months < 1 yields nil.
func SplitBudget(total decimal.Decimal, months int) []decimal.Decimal {
	if months < 1 {
		return nil
	}

	parts := make([]decimal.Decimal, months)
	per := total.Div(decimal.NewFromInt(int64(months))).RoundFloor(2)
	sum := decimal.Zero
	for i := 0; i < months-1; i++ {
		parts[i] = per
		sum = sum.Add(per)
	}
	parts[months-1] = total.Sub(sum)
	return parts
}

// ClampFactor bounds a projection factor to [0.5, 2.0]
func ClampFactor(f decimal.Decimal) decimal.Decimal {
	if f.LessThan(FactorMin) {
		return FactorMin
	}
	if f.GreaterThan(FactorMax) {
		return FactorMax
	}
	return f
}

// EstimatedProjection scales the remaining planned spend by factor on top
// of the actuals already burned. A zero planned base cannot be scaled, so
// the current forecast passes through unchanged.
func EstimatedProjection(actual, planned, forecast, factor decimal.Decimal) decimal.Decimal {
	if planned.IsZero() {
		return forecast
	}
	remaining := planned.Sub(actual)
	return actual.Add(remaining.Mul(ClampFactor(factor)))
}

// BudgetMetrics layers budget-ceiling figures over base totals. A zero
// budget zeroes utilization and percent-used rather than dividing by it.
func BudgetMetrics(base Metrics, budgetTotal decimal.Decimal) Metrics {
	out := base
	out.BudgetTotal = budgetTotal
	if budgetTotal.IsZero() {
		out.BudgetVariancePlanned = decimal.Zero
		out.BudgetVarianceProjected = decimal.Zero
		out.PctUsedActual = decimal.Zero
		out.BudgetUtilization = decimal.Zero
		return out
	}

	out.BudgetVarianceProjected = budgetTotal.Sub(base.TotalForecast)
	out.BudgetVariancePlanned = budgetTotal.Sub(base.TotalPlanned)
	out.PctUsedActual = base.TotalActual.Div(budgetTotal).Mul(hundred)
	out.BudgetUtilization = base.TotalForecast.Div(budgetTotal).Mul(hundred)
	return out
}

// ApplySimulation modulates base metrics with a simulation state. Disabled
// states return the base with budget fields zeroed. Enabled states replace
// the forecast total with the estimated override when one is provided,
// otherwise with the factor projection, then layer in the budget figures.
func ApplySimulation(base Metrics, state SimulationState) Metrics {
	if !state.Enabled {
		out := base
		out.BudgetTotal = decimal.Zero
		out.BudgetVariancePlanned = decimal.Zero
		out.BudgetVarianceProjected = decimal.Zero
		out.PctUsedActual = decimal.Zero
		out.BudgetUtilization = decimal.Zero
		return out
	}

	out := base
	if state.EstimatedOverride != nil {
		out.TotalForecast = *state.EstimatedOverride
	} else {
		out.TotalForecast = EstimatedProjection(base.TotalActual, base.TotalPlanned, base.TotalForecast, state.Factor)
	}
	return BudgetMetrics(out, state.BudgetTotal)
}
