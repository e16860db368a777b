package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/cache"
	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/dto"
	"github.com/Additional-Code/procura/internal/entity"
	"github.com/Additional-Code/procura/internal/messaging"
	"github.com/Additional-Code/procura/internal/observability"
	"github.com/Additional-Code/procura/internal/procurement"
	repo "github.com/Additional-Code/procura/internal/repository/order"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

const instrumentationName = "github.com/Additional-Code/procura/service/order"

var serviceTracer = otel.Tracer(instrumentationName)

// Admission messages returned with a created order.
const (
	MessageCreated       = "Order created"
	MessageNearThreshold = "Order created (warning: approaching budget limit)"
	MessageOverBudget    = "Order created and flagged for approval (budget exceeded)"
)

// Store is the persistence the order service depends on.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]entity.Order, error)
}

// ProjectDirectory resolves projects and the principal's access to them.
type ProjectDirectory interface {
	GetProject(ctx context.Context, id uuid.UUID) (*entity.Project, error)
	HasProjectAccess(ctx context.Context, p auth.Principal, projectID uuid.UUID) (bool, error)
}

// Service encapsulates business logic around orders.
type Service struct {
	store     Store
	projects  ProjectDirectory
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
	rules     admissionRules
	metrics   serviceMetrics
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

type admissionRules struct {
	currency  string
	prefix    string
	width     int
	txTimeout time.Duration
}

type serviceMetrics struct {
	created      metric.Int64Counter
	failed       metric.Int64Counter
	percentAfter metric.Float64Histogram
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store     Store
	Projects  ProjectDirectory
	Cache     cache.Store
	Config    config.Config
	Logger    *zap.Logger
	Publisher messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) (*Service, error) {
	metrics, err := newServiceMetrics()
	if err != nil {
		return nil, err
	}

	rules := admissionRules{
		currency:  p.Config.Procurement.DefaultCurrency,
		prefix:    p.Config.Procurement.OrderPrefix,
		width:     p.Config.Procurement.OrderWidth,
		txTimeout: p.Config.Procurement.TxTimeout,
	}
	if rules.currency == "" {
		rules.currency = "USD"
	}
	if rules.prefix == "" {
		rules.prefix = procurement.DefaultOrderPrefix
	}
	if rules.width <= 0 {
		rules.width = procurement.DefaultOrderWidth
	}

	return &Service{
		store:     p.Store,
		projects:  p.Projects,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    p.Logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
		rules:   rules,
		metrics: metrics,
	}, nil
}

func newServiceMetrics() (serviceMetrics, error) {
	meter := otel.Meter(instrumentationName)

	created, err := meter.Int64Counter("procurement.orders.created",
		metric.WithDescription("Orders admitted, by initial status."))
	if err != nil {
		return serviceMetrics{}, fmt.Errorf("orders created counter: %w", err)
	}
	failed, err := meter.Int64Counter("procurement.orders.failed",
		metric.WithDescription("Rejected or failed order creations, by error kind."))
	if err != nil {
		return serviceMetrics{}, fmt.Errorf("orders failed counter: %w", err)
	}
	percent, err := meter.Float64Histogram(observability.BudgetPercentInstrument,
		metric.WithDescription("Budget consumption after admitting an order."),
		metric.WithUnit("%"))
	if err != nil {
		return serviceMetrics{}, fmt.Errorf("percent after histogram: %w", err)
	}
	return serviceMetrics{created: created, failed: failed, percentAfter: percent}, nil
}

// CreateResult is an admitted order together with its budget effect.
type CreateResult struct {
	Order   *entity.Order
	Impact  procurement.BudgetImpact
	Message string
}

// Get retrieves an order by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, p, order.ProjectID); err != nil {
		return nil, err
	}
	return order, nil
}

// ListByProject returns a project's orders, newest first.
func (s *Service) ListByProject(ctx context.Context, p auth.Principal, projectID uuid.UUID) ([]entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.ListByProject", trace.WithAttributes(attribute.String("project.id", projectID.String())))
	defer span.End()

	if _, err := s.projects.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, p, projectID); err != nil {
		return nil, err
	}

	orders, err := s.store.ListByProject(ctx, projectID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	return orders, nil
}

// Create admits a new order: items are totalled, the budget impact decides
// the initial status, a project-scoped number is allocated and the project's
// committed amount grows, all in one transaction.
func (s *Service) Create(ctx context.Context, p auth.Principal, req dto.CreateOrderRequest) (*CreateResult, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(
		attribute.String("project.id", req.ProjectID.String()),
		attribute.Int("order.items", len(req.Items)),
	))
	defer span.End()

	result, err := s.create(ctx, p, req)
	if err != nil {
		appErr := errorbank.From(err)
		s.metrics.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(appErr.Kind()))))
		span.RecordError(err)
		span.SetStatus(codes.Error, appErr.Message())
		return nil, appErr
	}

	s.metrics.created.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(result.Order.Status))))
	s.metrics.percentAfter.Record(ctx, result.Impact.PercentAfter.InexactFloat64())
	span.SetAttributes(
		attribute.String("order.number", result.Order.Number),
		attribute.String("order.status", string(result.Order.Status)),
	)
	s.logger.Info("order created",
		zap.Stringer("order_id", result.Order.ID),
		zap.Stringer("project_id", result.Order.ProjectID),
		zap.String("number", result.Order.Number),
		zap.String("status", string(result.Order.Status)),
		zap.String("total_estimated", result.Order.TotalEstimated.String()),
		zap.String("percent_after", result.Impact.PercentAfter.StringFixed(2)),
	)

	if err := cache.SetJSON(ctx, s.cache, cache.Key(cache.KindOrder, result.Order.ID), result.Order, s.cacheTTL); err != nil {
		s.logger.Warn("orders cache write failed", zap.Stringer("id", result.Order.ID), zap.Error(err))
	}
	s.publishOrderCreated(ctx, result)
	return result, nil
}

func (s *Service) create(ctx context.Context, p auth.Principal, req dto.CreateOrderRequest) (*CreateResult, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	inputs := toItemInputs(req.Items)
	if _, err := procurement.Assemble(inputs); err != nil {
		return nil, invalidItem(err)
	}
	requiredDate, err := req.ParsedRequiredDate()
	if err != nil {
		return nil, errorbank.BadRequest("required_date must be formatted as YYYY-MM-DD", errorbank.WithCause(err))
	}

	if !p.CanCreateOrders() {
		return nil, errorbank.Forbidden("role is not allowed to create orders", errorbank.WithDetail("role", p.Role))
	}
	if _, err := s.projects.GetProject(ctx, req.ProjectID); err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, p, req.ProjectID); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.rules.currency
	}

	if s.rules.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.rules.txTimeout)
		defer cancel()
	}

	var result *CreateResult
	err = s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var figures *procurement.BudgetFigures
		budget, err := tx.LockBudget(ctx, req.ProjectID)
		switch {
		case errors.Is(err, repo.ErrNoBudget):
		case err != nil:
			return err
		default:
			figures = &procurement.BudgetFigures{
				TotalBudget:     budget.TotalBudget,
				CommittedAmount: budget.CommittedAmount,
				SpentAmount:     budget.SpentAmount,
			}
		}

		assembly, err := procurement.Assemble(inputs)
		if err != nil {
			return err
		}
		impact := procurement.EvaluateBudget(figures, assembly.TotalEstimated)

		seq, err := tx.NextOrderNumber(ctx, req.ProjectID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		order := &entity.Order{
			ID:             uuid.New(),
			ProjectID:      req.ProjectID,
			CreatedByID:    p.UserID,
			RequestedByID:  req.RequestedByID,
			Number:         procurement.FormatOrderNumber(s.rules.prefix, s.rules.width, seq),
			Status:         procurement.InitialStatus(impact),
			RequiredDate:   requiredDate,
			TotalEstimated: assembly.TotalEstimated,
			TotalReceived:  decimal.Zero,
			Currency:       currency,
			Notes:          req.Notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		items := make([]entity.OrderItem, 0, len(assembly.Lines))
		for i, line := range assembly.Lines {
			items = append(items, entity.OrderItem{
				ID:         uuid.New(),
				OrderID:    order.ID,
				MaterialID: line.MaterialID,
				Position:   i,
				Quantity:   line.Quantity,
				UnitPrice:  line.UnitPrice,
				Currency:   currency,
				Attributes: line.Attributes,
				LineTotal:  line.LineTotal,
				CreatedAt:  now,
			})
		}
		if err := tx.InsertItems(ctx, items); err != nil {
			return err
		}
		order.Items = items

		if figures != nil {
			if err := tx.IncreaseCommitted(ctx, req.ProjectID, assembly.TotalEstimated); err != nil {
				return err
			}
		}

		result = &CreateResult{Order: order, Impact: impact, Message: AdmissionMessage(impact)}
		return nil
	})
	if err != nil {
		return nil, s.transactionError(err)
	}
	return result, nil
}

// AdmissionMessage describes how an order was admitted given its budget impact.
func AdmissionMessage(impact procurement.BudgetImpact) string {
	switch {
	case impact.OverBudget:
		return MessageOverBudget
	case impact.NearThreshold:
		return MessageNearThreshold
	default:
		return MessageCreated
	}
}

func (s *Service) transactionError(err error) error {
	switch {
	case errors.Is(err, procurement.ErrInvalidItem):
		return invalidItem(err)
	case errors.Is(err, repo.ErrAllocation):
		return errorbank.Unavailable("order number could not be allocated, please retry",
			errorbank.WithCause(err), errorbank.WithRetryable())
	case errors.Is(err, context.DeadlineExceeded):
		return errorbank.Unavailable("order creation timed out, please retry",
			errorbank.WithCause(err), errorbank.WithRetryable())
	default:
		s.logger.Error("order transaction failed", zap.Error(err))
		return errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}
}

func invalidItem(err error) error {
	var itemErr *procurement.InvalidItemError
	if !errors.As(err, &itemErr) {
		return errorbank.BadRequest("invalid order items", errorbank.WithCause(err))
	}
	details := map[string]any{"reason": itemErr.Reason}
	if itemErr.Index >= 0 {
		details["index"] = itemErr.Index
		details["field"] = fmt.Sprintf("items[%d].%s", itemErr.Index, itemErr.Field)
	} else {
		details["field"] = itemErr.Field
	}
	return errorbank.BadRequest(itemErr.Error(), errorbank.WithCause(err), errorbank.WithDetails(details))
}

func toItemInputs(items []dto.CreateOrderItemRequest) []procurement.ItemInput {
	inputs := make([]procurement.ItemInput, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, procurement.ItemInput{
			MaterialID: item.MaterialID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Attributes: item.NormalizedAttributes(),
		})
	}
	return inputs
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	var cached entity.Order
	err := cache.GetJSON(ctx, s.cache, cache.Key(cache.KindOrder, id), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.Stringer("id", id), zap.Error(err))
	}

	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if err := cache.SetJSON(ctx, s.cache, cache.Key(cache.KindOrder, id), order, s.cacheTTL); err != nil {
		s.logger.Warn("orders cache write failed", zap.Stringer("id", id), zap.Error(err))
	}
	return order, nil
}

func (s *Service) requireAccess(ctx context.Context, p auth.Principal, projectID uuid.UUID) error {
	ok, err := s.projects.HasProjectAccess(ctx, p, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return errorbank.Forbidden("no access to this project")
	}
	return nil
}

func (s *Service) publishOrderCreated(ctx context.Context, result *CreateResult) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	order := result.Order
	event := OrderCreatedEvent{
		ID:             order.ID,
		ProjectID:      order.ProjectID,
		Number:         order.Number,
		Status:         string(order.Status),
		TotalEstimated: order.TotalEstimated.String(),
		Currency:       order.Currency,
		PercentAfter:   result.Impact.PercentAfter.Round(2).InexactFloat64(),
		OverBudget:     result.Impact.OverBudget,
		NearThreshold:  result.Impact.NearThreshold,
		CreatedAt:      order.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order created", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(order.ProjectID.String()), payload); err != nil {
		s.logger.Error("publish order created", zap.Stringer("order_id", order.ID), zap.String("topic", s.messaging.topic), zap.Error(err))
	}
}

// OrderCreatedEvent is emitted when a new order is persisted. It is keyed by
// project so a project's events stay ordered on one partition.
type OrderCreatedEvent struct {
	ID             uuid.UUID `json:"id"`
	ProjectID      uuid.UUID `json:"project_id"`
	Number         string    `json:"number"`
	Status         string    `json:"status"`
	TotalEstimated string    `json:"total_estimated"`
	Currency       string    `json:"currency"`
	PercentAfter   float64   `json:"percent_after"`
	OverBudget     bool      `json:"over_budget"`
	NearThreshold  bool      `json:"near_threshold"`
	CreatedAt      time.Time `json:"created_at"`
}
