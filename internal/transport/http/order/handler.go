package order

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/dto"
	"github.com/Additional-Code/procura/internal/entity"
	"github.com/Additional-Code/procura/internal/presentation/http/response"
	"github.com/Additional-Code/procura/internal/procurement"
	service "github.com/Additional-Code/procura/internal/service/order"
	projectsvc "github.com/Additional-Code/procura/internal/service/project"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/procura/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc      *service.Service
	projects *projectsvc.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service, projects *projectsvc.Service) *Handler {
	return &Handler{svc: svc, projects: projects}
}

// Register routes with provided Echo instance under /orders.
func Register(e *echo.Echo, h *Handler, mws ...echo.MiddlewareFunc) {
	g := e.Group("/orders", mws...)
	g.POST("", h.create)
	g.GET("", h.listByProject)
	g.GET("/suggestions/by-phase", h.suggestions)
	g.GET("/:id", h.getByID)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Require(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(
		attribute.String("project.id", payload.ProjectID.String()),
	))
	defer span.End()

	result, err := h.svc.Create(ctx, p, payload)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).
		WithData(dto.CreateOrderResponse{
			Order:        toDTO(result.Order),
			BudgetImpact: toImpactDTO(result.Impact),
		}).
		WithMessage(result.Message).
		WithHeader(echo.HeaderLocation, "/orders/"+result.Order.ID.String()).
		Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Require(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	order, err := h.svc.Get(ctx, p, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) listByProject(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Require(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}
	projectID, err := projectParam(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.listByProject", trace.WithAttributes(attribute.String("project.id", projectID.String())))
	defer span.End()

	orders, err := h.svc.ListByProject(ctx, p, projectID)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toDTO(&orders[i]))
	}
	return b.WithData(out).WithMeta("count", len(out)).Build()
}

func (h *Handler) suggestions(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Require(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}
	projectID, err := projectParam(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.suggestions", trace.WithAttributes(attribute.String("project.id", projectID.String())))
	defer span.End()

	materials, err := h.projects.SuggestedMaterials(ctx, p, projectID)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := make([]dto.MaterialResponse, 0, len(materials))
	for _, m := range materials {
		out = append(out, dto.MaterialResponse{
			ID:            m.ID,
			SKU:           m.SKU,
			Name:          m.Name,
			Category:      m.Category,
			UnitOfMeasure: m.UnitOfMeasure,
			PhaseHint:     m.PhaseHint,
		})
	}
	return b.WithData(out).Build()
}

func projectParam(c echo.Context) (uuid.UUID, error) {
	raw := c.QueryParam("project_id")
	if raw == "" {
		return uuid.Nil, errorbank.BadRequest("project_id is required", errorbank.WithDetail("field", "project_id"))
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errorbank.BadRequest("invalid project_id", errorbank.WithCause(err), errorbank.WithDetail("field", "project_id"))
	}
	return id, nil
}

func toDTO(order *entity.Order) dto.OrderResponse {
	out := dto.OrderResponse{
		ID:             order.ID,
		ProjectID:      order.ProjectID,
		Number:         order.Number,
		Status:         string(order.Status),
		TotalEstimated: order.TotalEstimated,
		TotalReceived:  order.TotalReceived,
		Currency:       order.Currency,
		Notes:          order.Notes,
		CreatedByID:    order.CreatedByID,
		RequestedByID:  order.RequestedByID,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
	if order.RequiredDate != nil {
		d := order.RequiredDate.Format(dto.DateLayout)
		out.RequiredDate = &d
	}
	for _, item := range order.Items {
		out.Items = append(out.Items, dto.OrderItemResponse{
			ID:         item.ID,
			MaterialID: item.MaterialID,
			Position:   item.Position,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			LineTotal:  item.LineTotal,
			Currency:   item.Currency,
			Attributes: item.Attributes,
		})
	}
	return out
}

func toImpactDTO(impact procurement.BudgetImpact) dto.BudgetImpactResponse {
	return dto.BudgetImpactResponse{
		PercentAfter:  impact.PercentAfter.Round(2).InexactFloat64(),
		NearThreshold: impact.NearThreshold,
		OverBudget:    impact.OverBudget,
	}
}
