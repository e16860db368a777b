package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/database"
	"github.com/Additional-Code/procura/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/procura/repository/order")

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrNoBudget is returned when a project has no budget row.
	ErrNoBudget = errors.New("project budget not found")
	// ErrAllocation is returned when an order number or the budget lock
	// cannot be obtained. The whole transaction must be abandoned.
	ErrAllocation = errors.New("order number allocation failed")
)

const (
	pgLockNotAvailable    = "55P03"
	mysqlLockWaitTimeout  = 1205
	maxAllocationAttempts = 2
)

// Tx is the set of writes available inside one order-creation unit of work.
type Tx interface {
	// LockBudget reads the project's budget row and holds it locked until the
	// transaction ends. It returns ErrNoBudget when the project has none.
	LockBudget(ctx context.Context, projectID uuid.UUID) (*entity.ProjectBudget, error)
	// NextOrderNumber atomically increments and returns the project's counter.
	NextOrderNumber(ctx context.Context, projectID uuid.UUID) (int64, error)
	InsertOrder(ctx context.Context, order *entity.Order) error
	InsertItems(ctx context.Context, items []entity.OrderItem) error
	IncreaseCommitted(ctx context.Context, projectID uuid.UUID, amount decimal.Decimal) error
}

// Repository encapsulates read/write access for orders.
type Repository struct {
	writer      *bun.DB
	reader      *bun.DB
	lockTimeout time.Duration
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections, cfg config.Config) *Repository {
	return &Repository{
		writer:      conns.Writer,
		reader:      conns.Reader,
		lockTimeout: cfg.Database.LockTimeout,
	}
}

// InTx runs fn inside a single database transaction on the writer. The
// transaction commits only when fn returns nil; any error or panic rolls back
// every write fn made.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.InTx")
	defer span.End()

	err := r.writer.RunInTx(ctx, r.txOptions(), func(ctx context.Context, btx bun.Tx) error {
		set, reset := lockTimeoutStatements(btx.Dialect().Name(), r.lockTimeout)
		if set != "" {
			if _, err := btx.ExecContext(ctx, set); err != nil {
				return fmt.Errorf("set lock timeout: %w", err)
			}
		}
		if reset != "" {
			// Session settings outlive the transaction on the pooled connection.
			defer func() { _, _ = btx.ExecContext(context.WithoutCancel(ctx), reset) }()
		}
		return fn(ctx, &txStore{tx: btx})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction rolled back")
	}
	return err
}

// GetByID fetches an order and its items using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().
		Model(order).
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("oi.position ASC")
		}).
		Where("o.id = ?", id).
		Where("o.deleted_at IS NULL").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// ListByProject returns the project's orders, newest first, without items.
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListByProject", trace.WithAttributes(attribute.String("project.id", projectID.String())))
	defer span.End()

	orders := make([]entity.Order, 0)
	err := r.reader.NewSelect().
		Model(&orders).
		Where("o.project_id = ?", projectID).
		Where("o.deleted_at IS NULL").
		Order("o.created_at DESC", "o.order_number DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

func (r *Repository) txOptions() *sql.TxOptions {
	switch r.writer.Dialect().Name() {
	case dialect.PG, dialect.MySQL:
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	default:
		return nil
	}
}

// lockTimeoutStatements returns the statement bounding lock waits for the
// dialect and, when the setting is session scoped, the one restoring it.
func lockTimeoutStatements(name dialect.Name, timeout time.Duration) (set, reset string) {
	if timeout <= 0 {
		return "", ""
	}
	switch name {
	case dialect.PG:
		return fmt.Sprintf("SET LOCAL lock_timeout = %d", timeout.Milliseconds()), ""
	case dialect.MySQL:
		seconds := max(int64(timeout/time.Second), 1)
		return fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", seconds),
			"SET SESSION innodb_lock_wait_timeout = DEFAULT"
	default:
		return "", ""
	}
}

type txStore struct {
	tx bun.Tx
}

func (s *txStore) LockBudget(ctx context.Context, projectID uuid.UUID) (*entity.ProjectBudget, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.LockBudget", trace.WithAttributes(attribute.String("project.id", projectID.String())))
	defer span.End()

	budget := new(entity.ProjectBudget)
	q := s.tx.NewSelect().Model(budget).Where("pb.project_id = ?", projectID)
	if supportsRowLocks(s.tx.Dialect().Name()) {
		q = q.For("UPDATE")
	}

	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBudget
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock failed")
		if isLockTimeout(err) {
			return nil, fmt.Errorf("%w: budget lock: %w", ErrAllocation, err)
		}
		return nil, fmt.Errorf("lock budget: %w", err)
	}
	return budget, nil
}

func (s *txStore) NextOrderNumber(ctx context.Context, projectID uuid.UUID) (int64, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.NextOrderNumber", trace.WithAttributes(attribute.String("project.id", projectID.String())))
	defer span.End()

	for attempt := 0; attempt < maxAllocationAttempts; attempt++ {
		res, err := s.tx.NewUpdate().
			Model((*entity.OrderCounter)(nil)).
			Set("last_number = last_number + 1").
			Where("project_id = ?", projectID).
			Exec(ctx)
		if err != nil {
			span.RecordError(err)
			return 0, fmt.Errorf("%w: increment counter: %w", ErrAllocation, err)
		}
		n, err := affected(res)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		if n > 0 {
			return s.readCounter(ctx, projectID)
		}

		// First order of the project. A concurrent first insert makes this a
		// no-op, in which case the next update finds the row.
		counter := &entity.OrderCounter{ProjectID: projectID, LastNumber: 1}
		res, err = s.tx.NewInsert().Model(counter).Ignore().Exec(ctx)
		if err != nil {
			span.RecordError(err)
			return 0, fmt.Errorf("%w: create counter: %w", ErrAllocation, err)
		}
		n, err = affected(res)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		if n > 0 {
			return 1, nil
		}
	}

	span.SetStatus(codes.Error, "counter unavailable")
	return 0, fmt.Errorf("%w: counter for project %s unavailable", ErrAllocation, projectID)
}

func (s *txStore) readCounter(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var last int64
	err := s.tx.NewSelect().
		Model((*entity.OrderCounter)(nil)).
		Column("last_number").
		Where("project_id = ?", projectID).
		Scan(ctx, &last)
	if err != nil {
		return 0, fmt.Errorf("%w: read counter: %w", ErrAllocation, err)
	}
	return last, nil
}

func (s *txStore) InsertOrder(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.InsertOrder", trace.WithAttributes(attribute.String("order.number", order.Number)))
	defer span.End()

	if _, err := s.tx.NewInsert().Model(order).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *txStore) InsertItems(ctx context.Context, items []entity.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.InsertItems", trace.WithAttributes(attribute.Int("order.items", len(items))))
	defer span.End()

	if _, err := s.tx.NewInsert().Model(&items).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (s *txStore) IncreaseCommitted(ctx context.Context, projectID uuid.UUID, amount decimal.Decimal) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.IncreaseCommitted", trace.WithAttributes(attribute.String("project.id", projectID.String())))
	defer span.End()

	_, err := s.tx.NewUpdate().
		Model((*entity.ProjectBudget)(nil)).
		Set("committed_amount = committed_amount + ?", amount).
		Set("updated_at = ?", time.Now().UTC()).
		Where("project_id = ?", projectID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return fmt.Errorf("increase committed amount: %w", err)
	}
	return nil
}

func supportsRowLocks(name dialect.Name) bool {
	return name == dialect.PG || name == dialect.MySQL
}

func isLockTimeout(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == pgLockNotAvailable
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlLockWaitTimeout
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
