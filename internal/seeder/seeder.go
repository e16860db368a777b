package seeder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/database"
	"github.com/Additional-Code/procura/internal/entity"
)

// Module exposes the seeder to Fx.
var Module = fx.Provide(New)

// seedNamespace derives stable ids so seeding twice inserts nothing new.
var seedNamespace = uuid.MustParse("7f1c8a52-3d0e-4b8e-9c55-1a2b3c4d5e6f")

// ID returns the stable id used for the seeded record with the given key.
func ID(key string) uuid.UUID {
	return uuid.NewSHA1(seedNamespace, []byte(key))
}

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// All seeds users, projects, memberships, budgets and the material catalog in
// one transaction. Existing rows are left untouched.
func (s *Seeder) All(ctx context.Context) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		steps := []struct {
			name string
			fn   func(context.Context, bun.Tx) (int, error)
		}{
			{"users", s.users},
			{"projects", s.projects},
			{"memberships", s.memberships},
			{"budgets", s.budgets},
			{"materials", s.materials},
		}
		for _, step := range steps {
			n, err := step.fn(ctx, tx)
			if err != nil {
				return err
			}
			if s.logger != nil {
				s.logger.Info("seeded "+step.name, zap.Int("count", n))
			}
		}
		return nil
	})
}

func (s *Seeder) users(ctx context.Context, tx bun.Tx) (int, error) {
	now := time.Now().UTC()
	users := []entity.User{
		{ID: ID("user:admin"), Username: "admin", FullName: "System Administrator", Role: auth.RoleAdmin},
		{ID: ID("user:engineer"), Username: "s.engineer", FullName: "Site Engineer", Role: auth.RoleSiteEngineer},
		{ID: ID("user:manager"), Username: "p.manager", FullName: "Project Manager", Role: auth.RoleProjectManager},
		{ID: ID("user:procurement"), Username: "p.officer", FullName: "Procurement Officer", Role: auth.RoleProcurement},
	}
	for i := range users {
		users[i].IsActive = true
		users[i].CreatedAt = now
	}
	return insertIgnore(ctx, tx, &users)
}

func (s *Seeder) projects(ctx context.Context, tx bun.Tx) (int, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	projects := []entity.Project{
		{ID: ID("project:harbour"), Name: "Harbour View Residences", Code: "HVR-01", Phase: "FOUNDATION", Location: ptr("Dock Road")},
		{ID: ID("project:depot"), Name: "North Depot Extension", Code: "NDE-02", Phase: "STRUCTURE", Location: ptr("Industrial Park")},
	}
	for i := range projects {
		projects[i].IsActive = true
		projects[i].StartDate = &start
		projects[i].CreatedAt = now
	}
	return insertIgnore(ctx, tx, &projects)
}

func (s *Seeder) memberships(ctx context.Context, tx bun.Tx) (int, error) {
	links := []entity.UserProject{
		{UserID: ID("user:engineer"), ProjectID: ID("project:harbour")},
		{UserID: ID("user:manager"), ProjectID: ID("project:harbour")},
		{UserID: ID("user:manager"), ProjectID: ID("project:depot")},
		{UserID: ID("user:procurement"), ProjectID: ID("project:depot")},
	}
	return insertIgnore(ctx, tx, &links)
}

func (s *Seeder) budgets(ctx context.Context, tx bun.Tx) (int, error) {
	now := time.Now().UTC()
	budgets := []entity.ProjectBudget{
		{ProjectID: ID("project:harbour"), TotalBudget: decimal.NewFromInt(250000)},
		{ProjectID: ID("project:depot"), TotalBudget: decimal.NewFromInt(1000)},
	}
	for i := range budgets {
		budgets[i].CommittedAmount = decimal.Zero
		budgets[i].SpentAmount = decimal.Zero
		budgets[i].UpdatedAt = now
	}
	return insertIgnore(ctx, tx, &budgets)
}

func (s *Seeder) materials(ctx context.Context, tx bun.Tx) (int, error) {
	materials := []entity.Material{
		{SKU: "CEM-OPC-50", Name: "Portland cement 50kg", Category: "Cement", UnitOfMeasure: "bag", PhaseHint: ptr("FOUNDATION")},
		{SKU: "AGG-SAND-M3", Name: "Washed sand", Category: "Aggregates", UnitOfMeasure: "m3", PhaseHint: ptr("FOUNDATION")},
		{SKU: "AGG-GRAV-20", Name: "Gravel 20mm", Category: "Aggregates", UnitOfMeasure: "m3", PhaseHint: ptr("FOUNDATION")},
		{SKU: "STL-REB-12", Name: "Rebar 12mm", Category: "Steel", UnitOfMeasure: "m", PhaseHint: ptr("STRUCTURE")},
		{SKU: "STL-MESH-A142", Name: "Welded mesh A142", Category: "Steel", UnitOfMeasure: "sheet", PhaseHint: ptr("STRUCTURE")},
		{SKU: "TMB-PLY-18", Name: "Formwork plywood 18mm", Category: "Timber", UnitOfMeasure: "sheet", PhaseHint: ptr("STRUCTURE")},
		{SKU: "ELE-CBL-2.5", Name: "Cable 2.5mm2", Category: "Electrical", UnitOfMeasure: "m", PhaseHint: ptr("FINISHING")},
		{SKU: "FIN-PNT-WHT", Name: "Interior paint white", Category: "Finishes", UnitOfMeasure: "l", PhaseHint: ptr("FINISHING")},
		{SKU: "GEN-GLV-PR", Name: "Work gloves", Category: "Safety", UnitOfMeasure: "pair"},
	}
	for i := range materials {
		materials[i].ID = ID("material:" + materials[i].SKU)
		materials[i].IsActive = true
	}
	return insertIgnore(ctx, tx, &materials)
}

func insertIgnore(ctx context.Context, tx bun.Tx, rows any) (int, error) {
	res, err := tx.NewInsert().Model(rows).Ignore().Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func ptr(s string) *string { return &s }
