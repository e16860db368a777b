package project

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/cache"
	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/entity"
	repo "github.com/Additional-Code/procura/internal/repository/project"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/procura/service/project")

// SuggestionLimit caps the number of materials suggested for a phase.
const SuggestionLimit = 50

// Service exposes project reads scoped to the calling principal.
type Service struct {
	repo     *repo.Repository
	cache    cache.Store
	cacheTTL time.Duration
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:     p.Repository,
		cache:    p.Cache,
		cacheTTL: p.Config.Cache.DefaultTTL,
		logger:   p.Logger,
	}
}

// CreateInput describes a new project and its initial budget.
type CreateInput struct {
	Name        string
	Code        string
	Phase       string
	Description *string
	Location    *string
	StartDate   *time.Time
	EndDate     *time.Time
	TotalBudget decimal.Decimal
}

// GetProject returns an active project regardless of the caller.
func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (*entity.Project, error) {
	ctx, span := serviceTracer.Start(ctx, "ProjectService.GetProject", trace.WithAttributes(attribute.String("project.id", id.String())))
	defer span.End()

	var cached entity.Project
	err := cache.GetJSON(ctx, s.cache, cache.Key(cache.KindProject, id), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("projects cache read failed", zap.Stringer("id", id), zap.Error(err))
	}

	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("project not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load project", errorbank.WithCause(err))
	}

	if err := cache.SetJSON(ctx, s.cache, cache.Key(cache.KindProject, id), project, s.cacheTTL); err != nil {
		s.logger.Warn("projects cache write failed", zap.Stringer("id", id), zap.Error(err))
	}
	return project, nil
}

// HasProjectAccess reports whether the principal may act on the project.
// Admins see every project; everyone else needs a membership row.
func (s *Service) HasProjectAccess(ctx context.Context, p auth.Principal, projectID uuid.UUID) (bool, error) {
	if p.IsAdmin() {
		return true, nil
	}
	ok, err := s.repo.IsMember(ctx, p.UserID, projectID)
	if err != nil {
		return false, errorbank.Internal("failed to check project access", errorbank.WithCause(err))
	}
	return ok, nil
}

// List returns the active projects visible to the principal.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]entity.Project, error) {
	ctx, span := serviceTracer.Start(ctx, "ProjectService.List", trace.WithAttributes(attribute.String("auth.role", p.Role)))
	defer span.End()

	var (
		projects []entity.Project
		err      error
	)
	if p.IsAdmin() {
		projects, err = s.repo.ListActive(ctx)
	} else {
		projects, err = s.repo.ListForUser(ctx, p.UserID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list projects", errorbank.WithCause(err))
	}
	return projects, nil
}

// Get returns a project the principal has access to.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*entity.Project, error) {
	project, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, p, id); err != nil {
		return nil, err
	}
	return project, nil
}

// Budget returns the project's current budget figures.
func (s *Service) Budget(ctx context.Context, p auth.Principal, id uuid.UUID) (*entity.ProjectBudget, error) {
	ctx, span := serviceTracer.Start(ctx, "ProjectService.Budget", trace.WithAttributes(attribute.String("project.id", id.String())))
	defer span.End()

	if _, err := s.Get(ctx, p, id); err != nil {
		return nil, err
	}
	budget, err := s.repo.GetBudget(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNoBudget) {
			return nil, errorbank.NotFound("project budget not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load project budget", errorbank.WithCause(err))
	}
	return budget, nil
}

// SuggestedMaterials lists catalog entries matching the project's current phase.
func (s *Service) SuggestedMaterials(ctx context.Context, p auth.Principal, projectID uuid.UUID) ([]entity.Material, error) {
	ctx, span := serviceTracer.Start(ctx, "ProjectService.SuggestedMaterials", trace.WithAttributes(attribute.String("project.id", projectID.String())))
	defer span.End()

	project, err := s.Get(ctx, p, projectID)
	if err != nil {
		return nil, err
	}
	materials, err := s.repo.SuggestedMaterials(ctx, project.Phase, SuggestionLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load material suggestions", errorbank.WithCause(err))
	}
	return materials, nil
}

// Create registers a new project with a zero-committed budget. Admin only.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (*entity.Project, error) {
	ctx, span := serviceTracer.Start(ctx, "ProjectService.Create", trace.WithAttributes(attribute.String("project.code", in.Code)))
	defer span.End()

	if !p.CanManageProjects() {
		return nil, errorbank.Forbidden("only administrators can create projects")
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Phase = strings.ToUpper(strings.TrimSpace(in.Phase))
	if in.Name == "" || in.Code == "" || in.Phase == "" {
		return nil, errorbank.BadRequest("name, code and phase are required")
	}
	if in.TotalBudget.IsNegative() {
		return nil, errorbank.BadRequest("total_budget must not be negative", errorbank.WithDetail("field", "total_budget"))
	}

	taken, err := s.repo.CodeExists(ctx, in.Code)
	if err != nil {
		return nil, errorbank.Internal("failed to create project", errorbank.WithCause(err))
	}
	if taken {
		return nil, errorbank.Conflict("project code already in use", errorbank.WithDetail("code", in.Code))
	}

	now := time.Now().UTC()
	project := &entity.Project{
		ID:          uuid.New(),
		Name:        in.Name,
		Code:        in.Code,
		Description: in.Description,
		Phase:       in.Phase,
		Location:    in.Location,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		IsActive:    true,
		CreatedAt:   now,
	}
	budget := &entity.ProjectBudget{
		TotalBudget:     in.TotalBudget,
		CommittedAmount: decimal.Zero,
		SpentAmount:     decimal.Zero,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, project, budget); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create project", errorbank.WithCause(err))
	}

	s.logger.Info("project created", zap.Stringer("project_id", project.ID), zap.String("code", project.Code))
	return project, nil
}

func (s *Service) requireAccess(ctx context.Context, p auth.Principal, projectID uuid.UUID) error {
	ok, err := s.HasProjectAccess(ctx, p, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return errorbank.Forbidden("no access to this project")
	}
	return nil
}
