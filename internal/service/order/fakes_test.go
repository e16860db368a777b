package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/entity"
	"github.com/Additional-Code/procura/internal/messaging"
	repo "github.com/Additional-Code/procura/internal/repository/order"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

// memStore keeps committed state in maps and stages each transaction's
// writes separately, applying them only when the callback succeeds.
type memStore struct {
	mu       sync.Mutex
	budgets  map[uuid.UUID]entity.ProjectBudget
	counters map[uuid.UUID]int64
	orders   map[uuid.UUID]*entity.Order
	txCalls  int

	failItems   error
	failCounter error
}

func newMemStore() *memStore {
	return &memStore{
		budgets:  make(map[uuid.UUID]entity.ProjectBudget),
		counters: make(map[uuid.UUID]int64),
		orders:   make(map[uuid.UUID]*entity.Order),
	}
}

func (m *memStore) setBudget(projectID uuid.UUID, total, committed int64) {
	m.budgets[projectID] = entity.ProjectBudget{
		ProjectID:       projectID,
		TotalBudget:     decimal.NewFromInt(total),
		CommittedAmount: decimal.NewFromInt(committed),
		SpentAmount:     decimal.Zero,
	}
}

func (m *memStore) committed(projectID uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.budgets[projectID].CommittedAmount
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCalls++

	tx := &memTx{
		store:    m,
		budgets:  make(map[uuid.UUID]entity.ProjectBudget),
		counters: make(map[uuid.UUID]int64),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for k, v := range tx.budgets {
		m.budgets[k] = v
	}
	for k, v := range tx.counters {
		m.counters[k] = v
	}
	for _, o := range tx.orders {
		m.orders[o.ID] = o
	}
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) ListByProject(_ context.Context, projectID uuid.UUID) ([]entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.Order, 0)
	for _, o := range m.orders {
		if o.ProjectID == projectID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, nil
}

type memTx struct {
	store    *memStore
	budgets  map[uuid.UUID]entity.ProjectBudget
	counters map[uuid.UUID]int64
	orders   []*entity.Order
}

func (t *memTx) budget(projectID uuid.UUID) (entity.ProjectBudget, bool) {
	if b, ok := t.budgets[projectID]; ok {
		return b, true
	}
	b, ok := t.store.budgets[projectID]
	return b, ok
}

func (t *memTx) LockBudget(_ context.Context, projectID uuid.UUID) (*entity.ProjectBudget, error) {
	b, ok := t.budget(projectID)
	if !ok {
		return nil, repo.ErrNoBudget
	}
	return &b, nil
}

func (t *memTx) NextOrderNumber(_ context.Context, projectID uuid.UUID) (int64, error) {
	if t.store.failCounter != nil {
		return 0, fmt.Errorf("%w: %w", repo.ErrAllocation, t.store.failCounter)
	}
	n, ok := t.counters[projectID]
	if !ok {
		n = t.store.counters[projectID]
	}
	n++
	t.counters[projectID] = n
	return n, nil
}

func (t *memTx) InsertOrder(_ context.Context, order *entity.Order) error {
	for _, o := range t.store.orders {
		if o.ProjectID == order.ProjectID && o.Number == order.Number {
			return errors.New("duplicate order number")
		}
	}
	cp := *order
	t.orders = append(t.orders, &cp)
	return nil
}

func (t *memTx) InsertItems(_ context.Context, items []entity.OrderItem) error {
	if t.store.failItems != nil {
		return t.store.failItems
	}
	for _, o := range t.orders {
		for _, item := range items {
			if item.OrderID == o.ID {
				o.Items = append(o.Items, item)
			}
		}
	}
	return nil
}

func (t *memTx) IncreaseCommitted(_ context.Context, projectID uuid.UUID, amount decimal.Decimal) error {
	b, ok := t.budget(projectID)
	if !ok {
		return errors.New("no budget row")
	}
	b.CommittedAmount = b.CommittedAmount.Add(amount)
	t.budgets[projectID] = b
	return nil
}

type fakeDirectory struct {
	projects map[uuid.UUID]*entity.Project
	members  map[[2]uuid.UUID]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		projects: make(map[uuid.UUID]*entity.Project),
		members:  make(map[[2]uuid.UUID]bool),
	}
}

func (d *fakeDirectory) addProject(members ...uuid.UUID) uuid.UUID {
	id := uuid.New()
	d.projects[id] = &entity.Project{ID: id, Name: "Project " + id.String()[:8], Code: id.String()[:6], Phase: "FOUNDATION", IsActive: true}
	for _, m := range members {
		d.members[[2]uuid.UUID{m, id}] = true
	}
	return id
}

func (d *fakeDirectory) GetProject(_ context.Context, id uuid.UUID) (*entity.Project, error) {
	p, ok := d.projects[id]
	if !ok {
		return nil, errorbank.NotFound("project not found")
	}
	return p, nil
}

func (d *fakeDirectory) HasProjectAccess(_ context.Context, p auth.Principal, projectID uuid.UUID) (bool, error) {
	return p.IsAdmin() || d.members[[2]uuid.UUID{p.UserID, projectID}], nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages [][]byte
	keys     [][]byte
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, key []byte, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.messages = append(f.messages, value)
	return nil
}

func (f *fakePublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakePublisher) Topic() string { return "procurement.orders" }
