package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// OrderStatus enumerates the lifecycle states of a purchase order.
type OrderStatus string

const (
	OrderStatusDraft             OrderStatus = "DRAFT"
	OrderStatusPendingApproval   OrderStatus = "PENDING_APPROVAL"
	OrderStatusApproved          OrderStatus = "APPROVED"
	OrderStatusRejected          OrderStatus = "REJECTED"
	OrderStatusOrdered           OrderStatus = "ORDERED"
	OrderStatusPartiallyReceived OrderStatus = "PARTIALLY_RECEIVED"
	OrderStatusCompleted         OrderStatus = "COMPLETED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
)

// Order represents a purchase order raised against a project.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID             uuid.UUID       `bun:"id,pk,type:uuid"`
	ProjectID      uuid.UUID       `bun:"project_id,type:uuid,notnull"`
	CreatedByID    uuid.UUID       `bun:"created_by_id,type:uuid,notnull"`
	RequestedByID  *uuid.UUID      `bun:"requested_by_id,type:uuid"`
	Number         string          `bun:"order_number,notnull"`
	Status         OrderStatus     `bun:"status,notnull"`
	RequiredDate   *time.Time      `bun:"required_date,type:date"`
	TotalEstimated decimal.Decimal `bun:"total_estimated,type:numeric(18,4),notnull"`
	TotalReceived  decimal.Decimal `bun:"total_received,type:numeric(18,4),notnull"`
	Currency       string          `bun:"currency,notnull"`
	Notes          *string         `bun:"notes"`
	CreatedAt      time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time       `bun:"updated_at,nullzero"`
	DeletedAt      *time.Time      `bun:"deleted_at"`

	Items []OrderItem `bun:"rel:has-many,join:id=order_id"`
}

// OrderItem is a single material line owned by an Order.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID         uuid.UUID        `bun:"id,pk,type:uuid"`
	OrderID    uuid.UUID        `bun:"order_id,type:uuid,notnull"`
	MaterialID uuid.UUID        `bun:"material_id,type:uuid,notnull"`
	Position   int              `bun:"position,notnull"`
	Quantity   decimal.Decimal  `bun:"quantity,type:numeric(18,4),notnull"`
	UnitPrice  *decimal.Decimal `bun:"unit_price,type:numeric(18,4)"`
	Currency   string           `bun:"currency,notnull"`
	Attributes json.RawMessage  `bun:"attributes,type:jsonb,nullzero"`
	LineTotal  decimal.Decimal  `bun:"line_total,type:numeric(18,4),notnull"`
	CreatedAt  time.Time        `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
