package migration

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/database"
	"github.com/Additional-Code/procura/internal/entity"
)

func newSQLiteConns(t *testing.T) *database.Connections {
	t.Helper()
	sqldb, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "procura.db"))
	require.NoError(t, err)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return &database.Connections{Writer: db, Reader: db}
}

func TestGooseDialect(t *testing.T) {
	tests := []struct {
		driver  string
		dialect string
		dir     string
		wantErr bool
	}{
		{driver: "postgres", dialect: "postgres", dir: "postgres"},
		{driver: "sqlite", dialect: "sqlite3", dir: "sqlite"},
		{driver: "mysql", dialect: "mysql", dir: ""},
		{driver: "oracle", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			dialect, dir, err := gooseDialect(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, dialect)
			assert.Equal(t, tt.dir, dir)
		})
	}
}

func TestMigratorUpAndDownOnSQLite(t *testing.T) {
	ctx := context.Background()
	conns := newSQLiteConns(t)

	mig, err := New(config.Config{Database: config.Database{Driver: "sqlite"}}, conns, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, mig.Up(ctx))
	require.NoError(t, mig.Up(ctx))

	version, err := mig.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	projectID := uuid.New()
	now := time.Now().UTC()
	order := &entity.Order{
		ID:             uuid.New(),
		ProjectID:      projectID,
		CreatedByID:    uuid.New(),
		Number:         "PO-0001",
		Status:         entity.OrderStatusDraft,
		TotalEstimated: decimal.NewFromInt(10),
		TotalReceived:  decimal.Zero,
		Currency:       "USD",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err = conns.Writer.NewInsert().Model(order).Exec(ctx)
	require.NoError(t, err)

	dup := *order
	dup.ID = uuid.New()
	_, err = conns.Writer.NewInsert().Model(&dup).Exec(ctx)
	assert.Error(t, err, "order numbers are unique per project")

	require.NoError(t, mig.Down(ctx, 0, true))
	_, err = conns.Writer.NewSelect().Model((*entity.Order)(nil)).Count(ctx)
	assert.Error(t, err)
}

func TestMigratorWithoutBundledMigrations(t *testing.T) {
	ctx := context.Background()
	conns := newSQLiteConns(t)

	mig := &Migrator{db: conns.Writer, logger: zap.NewNop()}
	require.NoError(t, mig.Up(ctx))

	count, err := conns.Writer.NewSelect().Model((*entity.Project)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.Error(t, mig.Down(ctx, 1, false))
}
