package project

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/dto"
	"github.com/Additional-Code/procura/internal/entity"
	"github.com/Additional-Code/procura/internal/presentation/http/response"
	service "github.com/Additional-Code/procura/internal/service/project"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/procura/transport/http/project")

// Handler exposes project endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a project Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance under /projects.
func Register(e *echo.Echo, h *Handler, mws ...echo.MiddlewareFunc) {
	g := e.Group("/projects", mws...)
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.getByID)
	g.GET("/:id/budget", h.budget)
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Require(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "projects.list")
	defer span.End()

	projects, err := h.svc.List(ctx, p)
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.ProjectResponse, 0, len(projects))
	for i := range projects {
		out = append(out, toDTO(&projects[i]))
	}
	return b.WithData(out).WithMeta("count", len(out)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Require(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload dto.CreateProjectRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := dto.Validate(payload); err != nil {
		return b.WithError(err).Build()
	}
	start, err := parseDate(payload.StartDate)
	if err != nil {
		return b.WithError(err).Build()
	}
	end, err := parseDate(payload.EndDate)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "projects.create", trace.WithAttributes(attribute.String("project.code", payload.Code)))
	defer span.End()

	project, err := h.svc.Create(ctx, p, service.CreateInput{
		Name:        payload.Name,
		Code:        payload.Code,
		Phase:       payload.Phase,
		Description: payload.Description,
		Location:    payload.Location,
		StartDate:   start,
		EndDate:     end,
		TotalBudget: payload.TotalBudget,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).
		WithData(toDTO(project)).
		WithMessage("Project created").
		WithHeader(echo.HeaderLocation, "/projects/"+project.ID.String()).
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

	ctx, span := httpTracer.Start(c.Request().Context(), "projects.getByID", trace.WithAttributes(attribute.String("project.id", id.String())))
	defer span.End()

	project, err := h.svc.Get(ctx, p, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(project)).Build()
}

func (h *Handler) budget(c echo.Context) error {
	b := response.New(c)

	p, err := auth.Require(c.Request().Context())
	if err != nil {
		return b.WithError(err).Build()
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "projects.budget", trace.WithAttributes(attribute.String("project.id", id.String())))
	defer span.End()

	budget, err := h.svc.Budget(ctx, p, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := dto.BudgetResponse{
		ProjectID:       budget.ProjectID,
		TotalBudget:     budget.TotalBudget,
		CommittedAmount: budget.CommittedAmount,
		SpentAmount:     budget.SpentAmount,
		Remaining:       budget.TotalBudget.Sub(budget.CommittedAmount),
	}
	if budget.TotalBudget.IsPositive() {
		out.PercentUsed = budget.CommittedAmount.Mul(hundred).Div(budget.TotalBudget).Round(2).InexactFloat64()
	}
	return b.WithData(out).Build()
}

var hundred = decimal.NewFromInt(100)

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(dto.DateLayout, raw)
	if err != nil {
		return nil, errorbank.BadRequest("dates must be formatted as YYYY-MM-DD", errorbank.WithCause(err))
	}
	return &d, nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dto.DateLayout)
	return &s
}

func toDTO(project *entity.Project) dto.ProjectResponse {
	return dto.ProjectResponse{
		ID:          project.ID,
		Name:        project.Name,
		Code:        project.Code,
		Description: project.Description,
		Phase:       project.Phase,
		Location:    project.Location,
		StartDate:   formatDate(project.StartDate),
		EndDate:     formatDate(project.EndDate),
		IsActive:    project.IsActive,
	}
}
