package dto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProjectResponse represents a project visible to the caller.
type ProjectResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description *string   `json:"description,omitempty"`
	Phase       string    `json:"phase"`
	Location    *string   `json:"location,omitempty"`
	StartDate   *string   `json:"start_date,omitempty"`
	EndDate     *string   `json:"end_date,omitempty"`
	IsActive    bool      `json:"is_active"`
}

// BudgetResponse exposes a project's budget figures.
type BudgetResponse struct {
	ProjectID       uuid.UUID       `json:"project_id"`
	TotalBudget     decimal.Decimal `json:"total_budget"`
	CommittedAmount decimal.Decimal `json:"committed_amount"`
	SpentAmount     decimal.Decimal `json:"spent_amount"`
	Remaining       decimal.Decimal `json:"remaining"`
	PercentUsed     float64         `json:"percent_used"`
}

// MaterialResponse is a catalog entry suggested for a project phase.
type MaterialResponse struct {
	ID            uuid.UUID `json:"id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	UnitOfMeasure string    `json:"unit_of_measure"`
	PhaseHint     *string   `json:"phase_hint,omitempty"`
}

// CreateProjectRequest is the payload accepted when registering a project.
type CreateProjectRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Code        string          `json:"code" validate:"required,max=32"`
	Phase       string          `json:"phase" validate:"required,max=64"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=2000"`
	Location    *string         `json:"location,omitempty" validate:"omitempty,max=200"`
	StartDate   string          `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string          `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	TotalBudget decimal.Decimal `json:"total_budget" validate:"nonnegative_decimal,max_scale=4"`
}
