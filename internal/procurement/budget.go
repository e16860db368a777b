package procurement

import (
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/procura/internal/entity"
)

var (
	// NearThresholdPercent marks the start of the warning band.
	NearThresholdPercent = decimal.NewFromInt(80)
	// OverBudgetPercent is the utilisation at which orders need approval.
	OverBudgetPercent = decimal.NewFromInt(100)

	hundred = decimal.NewFromInt(100)
)

// BudgetFigures are the current numbers of a project budget.
type BudgetFigures struct {
	TotalBudget     decimal.Decimal
	CommittedAmount decimal.Decimal
	SpentAmount     decimal.Decimal
}

// BudgetImpact is the projected utilisation after admitting an order.
type BudgetImpact struct {
	PercentAfter  decimal.Decimal
	NearThreshold bool
	OverBudget    bool
}

// EvaluateBudget projects utilisation of budget once estimate is committed.
// A nil budget means the project has no budget configured: the impact is zero
// and carries no flags. A non-positive total budget is treated the same way.
func EvaluateBudget(budget *BudgetFigures, estimate decimal.Decimal) BudgetImpact {
	if budget == nil || !budget.TotalBudget.IsPositive() {
		return BudgetImpact{PercentAfter: decimal.Zero}
	}

	committedAfter := budget.CommittedAmount.Add(estimate)
	percent := committedAfter.Mul(hundred).Div(budget.TotalBudget)

	return BudgetImpact{
		PercentAfter:  percent,
		NearThreshold: percent.GreaterThanOrEqual(NearThresholdPercent) && percent.LessThan(OverBudgetPercent),
		OverBudget:    percent.GreaterThanOrEqual(OverBudgetPercent),
	}
}

// InitialStatus is the status a new order starts in given its budget impact.
func InitialStatus(impact BudgetImpact) entity.OrderStatus {
	if impact.OverBudget {
		return entity.OrderStatusPendingApproval
	}
	return entity.OrderStatusDraft
}
