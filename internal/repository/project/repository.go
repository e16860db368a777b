package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/procura/internal/database"
	"github.com/Additional-Code/procura/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/procura/repository/project")

var (
	// ErrNotFound is returned when a project is missing or deleted.
	ErrNotFound = errors.New("project not found")
	// ErrNoBudget is returned when a project has no budget row.
	ErrNoBudget = errors.New("project budget not found")
)

// Repository reads projects, memberships, budgets and the material catalog.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Create inserts a project together with its budget row.
func (r *Repository) Create(ctx context.Context, project *entity.Project, budget *entity.ProjectBudget) error {
	ctx, span := repoTracer.Start(ctx, "ProjectRepository.Create", trace.WithAttributes(attribute.String("project.code", project.Code)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(project).Exec(ctx); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		if budget == nil {
			return nil
		}
		budget.ProjectID = project.ID
		if _, err := tx.NewInsert().Model(budget).Exec(ctx); err != nil {
			return fmt.Errorf("insert project budget: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// CodeExists reports whether a non-deleted project already uses code.
func (r *Repository) CodeExists(ctx context.Context, code string) (bool, error) {
	return r.reader.NewSelect().
		Model((*entity.Project)(nil)).
		Where("p.code = ?", code).
		Where("p.deleted_at IS NULL").
		Exists(ctx)
}

// GetByID returns a non-deleted project.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Project, error) {
	ctx, span := repoTracer.Start(ctx, "ProjectRepository.GetByID", trace.WithAttributes(attribute.String("project.id", id.String())))
	defer span.End()

	project := new(entity.Project)
	err := r.reader.NewSelect().
		Model(project).
		Where("p.id = ?", id).
		Where("p.deleted_at IS NULL").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return project, nil
}

// ListActive returns every active project ordered by name.
func (r *Repository) ListActive(ctx context.Context) ([]entity.Project, error) {
	ctx, span := repoTracer.Start(ctx, "ProjectRepository.ListActive")
	defer span.End()

	projects := make([]entity.Project, 0)
	err := r.reader.NewSelect().
		Model(&projects).
		Where("p.deleted_at IS NULL").
		Where("p.is_active = ?", true).
		Order("p.name ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return projects, nil
}

// ListForUser returns the active projects the user is assigned to.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]entity.Project, error) {
	ctx, span := repoTracer.Start(ctx, "ProjectRepository.ListForUser", trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer span.End()

	projects := make([]entity.Project, 0)
	err := r.reader.NewSelect().
		Model(&projects).
		Join("JOIN user_projects AS up ON up.project_id = p.id").
		Where("up.user_id = ?", userID).
		Where("p.deleted_at IS NULL").
		Where("p.is_active = ?", true).
		Order("p.name ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return projects, nil
}

// IsMember reports whether the user is assigned to the project.
func (r *Repository) IsMember(ctx context.Context, userID, projectID uuid.UUID) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "ProjectRepository.IsMember")
	defer span.End()

	ok, err := r.reader.NewSelect().
		Model((*entity.UserProject)(nil)).
		Where("up.user_id = ?", userID).
		Where("up.project_id = ?", projectID).
		Exists(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return false, err
	}
	return ok, nil
}

// GetBudget returns the project's current budget figures without locking.
func (r *Repository) GetBudget(ctx context.Context, projectID uuid.UUID) (*entity.ProjectBudget, error) {
	ctx, span := repoTracer.Start(ctx, "ProjectRepository.GetBudget", trace.WithAttributes(attribute.String("project.id", projectID.String())))
	defer span.End()

	budget := new(entity.ProjectBudget)
	err := r.reader.NewSelect().Model(budget).Where("pb.project_id = ?", projectID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBudget
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return budget, nil
}

// SuggestedMaterials lists active catalog entries for a phase, including
// entries with no phase hint.
func (r *Repository) SuggestedMaterials(ctx context.Context, phase string, limit int) ([]entity.Material, error) {
	ctx, span := repoTracer.Start(ctx, "ProjectRepository.SuggestedMaterials", trace.WithAttributes(attribute.String("project.phase", phase)))
	defer span.End()

	materials := make([]entity.Material, 0)
	err := r.reader.NewSelect().
		Model(&materials).
		Where("m.is_active = ?", true).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("m.phase_hint = ?", phase).WhereOr("m.phase_hint IS NULL")
		}).
		Order("m.category ASC", "m.name ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return materials, nil
}
