package dto

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// CreateOrderRequest is the payload accepted by the create-order endpoint.
type CreateOrderRequest struct {
	ProjectID     uuid.UUID                `json:"project_id" validate:"required"`
	RequiredDate  string                   `json:"required_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes         *string                  `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Currency      string                   `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	RequestedByID *uuid.UUID               `json:"requested_by_id,omitempty"`
	Items         []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateOrderItemRequest is one requested line of a new order.
type CreateOrderItemRequest struct {
	MaterialID uuid.UUID        `json:"material_id" validate:"required"`
	Quantity   decimal.Decimal  `json:"quantity" validate:"positive_decimal,max_scale=4"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty" validate:"omitempty,nonnegative_decimal,max_scale=4"`
	Attributes json.RawMessage  `json:"attributes,omitempty" validate:"omitempty,json_object"`
}

// ParsedRequiredDate returns the requested delivery date, if any. Callers are
// expected to have validated the request first.
func (r CreateOrderRequest) ParsedRequiredDate() (*time.Time, error) {
	if r.RequiredDate == "" {
		return nil, nil
	}
	d, err := time.Parse(DateLayout, r.RequiredDate)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// NormalizedAttributes returns the item attributes, treating a JSON null as absent.
func (i CreateOrderItemRequest) NormalizedAttributes() json.RawMessage {
	raw := bytes.TrimSpace(i.Attributes)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID             uuid.UUID           `json:"id"`
	ProjectID      uuid.UUID           `json:"project_id"`
	Number         string              `json:"number"`
	Status         string              `json:"status"`
	RequiredDate   *string             `json:"required_date,omitempty"`
	TotalEstimated decimal.Decimal     `json:"total_estimated"`
	TotalReceived  decimal.Decimal     `json:"total_received"`
	Currency       string              `json:"currency"`
	Notes          *string             `json:"notes,omitempty"`
	CreatedByID    uuid.UUID           `json:"created_by_id"`
	RequestedByID  *uuid.UUID          `json:"requested_by_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Items          []OrderItemResponse `json:"items,omitempty"`
}

// OrderItemResponse is one persisted order line.
type OrderItemResponse struct {
	ID         uuid.UUID        `json:"id"`
	MaterialID uuid.UUID        `json:"material_id"`
	Position   int              `json:"position"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
	LineTotal  decimal.Decimal  `json:"line_total"`
	Currency   string           `json:"currency"`
	Attributes json.RawMessage  `json:"attributes,omitempty"`
}

// BudgetImpactResponse reports the effect of an order on its project budget.
type BudgetImpactResponse struct {
	PercentAfter  float64 `json:"percent_after"`
	NearThreshold bool    `json:"near_threshold"`
	OverBudget    bool    `json:"over_budget"`
}

// CreateOrderResponse is returned after an order has been admitted.
type CreateOrderResponse struct {
	Order        OrderResponse        `json:"order"`
	BudgetImpact BudgetImpactResponse `json:"budget_impact"`
}
