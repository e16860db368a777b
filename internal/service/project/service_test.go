package project

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/database"
	"github.com/Additional-Code/procura/internal/database/sqlitetest"
	"github.com/Additional-Code/procura/internal/entity"
	repo "github.com/Additional-Code/procura/internal/repository/project"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

type fixture struct {
	svc      *Service
	conns    *database.Connections
	admin    auth.Principal
	engineer auth.Principal
	outsider auth.Principal
	project  *entity.Project
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conns := sqlitetest.New(t)
	svc := NewService(Params{
		Repository: repo.NewRepository(conns),
		Config:     config.Config{},
		Logger:     zap.NewNop(),
	})

	f := fixture{
		svc:      svc,
		conns:    conns,
		admin:    auth.Principal{UserID: uuid.New(), Role: auth.RoleAdmin},
		engineer: auth.Principal{UserID: uuid.New(), Role: auth.RoleSiteEngineer},
		outsider: auth.Principal{UserID: uuid.New(), Role: auth.RoleSiteEngineer},
		project: &entity.Project{
			ID:        uuid.New(),
			Name:      "Harbour Tower",
			Code:      "HBT",
			Phase:     "FOUNDATION",
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		},
	}
	ctx := context.Background()
	_, err := conns.Writer.NewInsert().Model(f.project).Exec(ctx)
	require.NoError(t, err)
	_, err = conns.Writer.NewInsert().Model(&entity.UserProject{UserID: f.engineer.UserID, ProjectID: f.project.ID}).Exec(ctx)
	require.NoError(t, err)
	return f
}

func TestAccessRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, p := range []auth.Principal{f.admin, f.engineer} {
		ok, err := f.svc.HasProjectAccess(ctx, p, f.project.ID)
		require.NoError(t, err)
		assert.True(t, ok, p.Role)

		got, err := f.svc.Get(ctx, p, f.project.ID)
		require.NoError(t, err)
		assert.Equal(t, "HBT", got.Code)
	}

	ok, err := f.svc.HasProjectAccess(ctx, f.outsider, f.project.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Get(ctx, f.outsider, f.project.ID)
	assert.True(t, errorbank.IsKind(err, errorbank.KindForbidden))

	_, err = f.svc.Get(ctx, f.admin, uuid.New())
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestListScopesToMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := &entity.Project{ID: uuid.New(), Name: "Airport", Code: "APT", Phase: "STRUCTURE", IsActive: true, CreatedAt: time.Now().UTC()}
	_, err := f.conns.Writer.NewInsert().Model(other).Exec(ctx)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.List(ctx, f.engineer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.project.ID, mine[0].ID)

	none, err := f.svc.List(ctx, f.outsider)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Budget(ctx, f.engineer, f.project.ID)
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))

	_, err = f.conns.Writer.NewInsert().Model(&entity.ProjectBudget{
		ProjectID:       f.project.ID,
		TotalBudget:     decimal.NewFromInt(1000),
		CommittedAmount: decimal.NewFromInt(250),
		SpentAmount:     decimal.Zero,
	}).Exec(ctx)
	require.NoError(t, err)

	budget, err := f.svc.Budget(ctx, f.engineer, f.project.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(250).Equal(budget.CommittedAmount))

	_, err = f.svc.Budget(ctx, f.outsider, f.project.ID)
	assert.True(t, errorbank.IsKind(err, errorbank.KindForbidden))
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := CreateInput{Name: " Ring Road ", Code: "rng", Phase: "earthworks", TotalBudget: decimal.NewFromInt(90000)}

	_, err := f.svc.Create(ctx, f.engineer, in)
	assert.True(t, errorbank.IsKind(err, errorbank.KindForbidden))

	created, err := f.svc.Create(ctx, f.admin, in)
	require.NoError(t, err)
	assert.Equal(t, "Ring Road", created.Name)
	assert.Equal(t, "RNG", created.Code)
	assert.Equal(t, "EARTHWORKS", created.Phase)

	budget, err := f.svc.Budget(ctx, f.admin, created.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(90000).Equal(budget.TotalBudget))
	assert.True(t, budget.CommittedAmount.IsZero())

	_, err = f.svc.Create(ctx, f.admin, in)
	assert.True(t, errorbank.IsKind(err, errorbank.KindConflict))

	_, err = f.svc.Create(ctx, f.admin, CreateInput{Name: "x", Code: "Y", Phase: "Z", TotalBudget: decimal.NewFromInt(-1)})
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
}

func TestSuggestedMaterialsUsesProjectPhase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	phase := "FOUNDATION"
	other := "FINISHING"
	for _, m := range []*entity.Material{
		{ID: uuid.New(), SKU: "A", Name: "Rebar", Category: "STEEL", UnitOfMeasure: "t", PhaseHint: &phase, IsActive: true},
		{ID: uuid.New(), SKU: "B", Name: "Paint", Category: "FINISHING", UnitOfMeasure: "l", PhaseHint: &other, IsActive: true},
	} {
		_, err := f.conns.Writer.NewInsert().Model(m).Exec(ctx)
		require.NoError(t, err)
	}

	got, err := f.svc.SuggestedMaterials(ctx, f.engineer, f.project.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Rebar", got[0].Name)

	_, err = f.svc.SuggestedMaterials(ctx, f.outsider, f.project.ID)
	assert.True(t, errorbank.IsKind(err, errorbank.KindForbidden))
}
