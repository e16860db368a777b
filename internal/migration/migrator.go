package migration

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/database"
)

//go:embed sql/postgres/*.sql sql/sqlite/*.sql
var migrations embed.FS

// Module exposes the migrator to Fx.
var Module = fx.Provide(New)

// Migrator wraps goose operations over the migrations bundled for the
// configured driver. MySQL has no bundled migrations; Up creates the schema
// from the table models instead.
type Migrator struct {
	db     *bun.DB
	dir    string
	logger *zap.Logger
}

// New constructs a goose-backed migrator.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	dialect, dir, err := gooseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	if dir != "" {
		sub, err := fs.Sub(migrations, "sql")
		if err != nil {
			return nil, err
		}
		goose.SetBaseFS(sub)
		goose.SetLogger(zapGooseLogger{logger: logger.Sugar()})
		if err := goose.SetDialect(dialect); err != nil {
			return nil, err
		}
	}

	return &Migrator{
		db:     conns.Writer,
		dir:    dir,
		logger: logger,
	}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	if m.dir == "" {
		if err := database.CreateSchema(ctx, m.db); err != nil {
			return err
		}
		m.logger.Info("schema created from models")

		return nil
	}

	if err := goose.UpContext(ctx, m.db.DB, m.dir); err != nil {
		if isNoMigrationErr(err) {
			m.logger.Info("no migrations to apply")

			return nil
		}
		return err
	}

	m.logger.Info("migrations applied", zap.String("dir", m.dir))

	return nil
}

// Down rolls back migrations. Steps <=0 defaults to 1; all=true rolls everything back.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	if m.dir == "" {
		return errors.New("rollback is not supported without bundled migrations")
	}

	if all {
		if err := goose.DownToContext(ctx, m.db.DB, m.dir, 0); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
		m.logger.Info("migrations rolled back", zap.String("mode", "all"))

		return nil
	}

	if steps <= 0 {
		steps = 1
	}

	for i := 0; i < steps; i++ {
		if err := goose.DownContext(ctx, m.db.DB, m.dir); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to rollback")

				return nil
			}
			return err
		}
	}

	m.logger.Info("migrations rolled back", zap.Int("steps", steps))

	return nil
}

// Version reports the latest applied migration version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	if m.dir == "" {
		return 0, nil
	}
	return goose.GetDBVersionContext(ctx, m.db.DB)
}

func gooseDialect(driver string) (dialect string, dir string, err error) {
	switch driver {
	case "postgres", "pg":
		return "postgres", "postgres", nil
	case "sqlite", "sqlite3":
		return "sqlite3", "sqlite", nil
	case "mysql":
		return "mysql", "", nil
	default:
		return "", "", fmt.Errorf("unsupported goose dialect for driver %s", driver)
	}
}

func isNoMigrationErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "no migrations")
}

type zapGooseLogger struct {
	logger *zap.SugaredLogger
}

func (l zapGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l zapGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatalf(strings.TrimSuffix(format, "\n"), v...)
}
