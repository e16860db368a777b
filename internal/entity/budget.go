package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// ProjectBudget tracks how much of a project's budget is committed and spent.
type ProjectBudget struct {
	bun.BaseModel `bun:"table:project_budgets,alias:pb"`

	ProjectID       uuid.UUID       `bun:"project_id,pk,type:uuid"`
	TotalBudget     decimal.Decimal `bun:"total_budget,type:numeric(18,4),notnull"`
	CommittedAmount decimal.Decimal `bun:"committed_amount,type:numeric(18,4),notnull"`
	SpentAmount     decimal.Decimal `bun:"spent_amount,type:numeric(18,4),notnull"`
	UpdatedAt       time.Time       `bun:"updated_at,nullzero"`
}

// OrderCounter holds the last order sequence number issued for a project.
type OrderCounter struct {
	bun.BaseModel `bun:"table:project_order_counters,alias:poc"`

	ProjectID  uuid.UUID `bun:"project_id,pk,type:uuid"`
	LastNumber int64     `bun:"last_number,notnull"`
}
