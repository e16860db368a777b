package order

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/database/sqlitetest"
	"github.com/Additional-Code/procura/internal/dto"
	"github.com/Additional-Code/procura/internal/entity"
	repo "github.com/Additional-Code/procura/internal/repository/order"
)

func TestConcurrentCreationsAgainstDatabase(t *testing.T) {
	for _, tc := range []struct {
		name      string
		workers   int
		estimate  string
		committed string
	}{
		{name: "two orders of 400", workers: 2, estimate: "400", committed: "800"},
		{name: "ten small orders", workers: 10, estimate: "15", committed: "150"},
		{name: "sixty-four orders", workers: 64, estimate: "10", committed: "640"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			conns := sqlitetest.NewFile(t)
			ctx := context.Background()

			dir := newFakeDirectory()
			engineer := auth.Principal{UserID: uuid.New(), Role: auth.RoleSiteEngineer}
			projectID := dir.addProject(engineer.UserID)

			_, err := conns.Writer.NewInsert().Model(&entity.ProjectBudget{
				ProjectID:       projectID,
				TotalBudget:     decimal.NewFromInt(1000),
				CommittedAmount: decimal.Zero,
				SpentAmount:     decimal.Zero,
			}).Exec(ctx)
			require.NoError(t, err)

			svc := newTestService(t, repo.NewRepository(conns, config.Config{}), dir, &fakePublisher{})

			results := make(chan *CreateResult, tc.workers)
			var wg sync.WaitGroup
			for i := 0; i < tc.workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					req := dto.CreateOrderRequest{ProjectID: projectID, Items: []dto.CreateOrderItemRequest{item("1", tc.estimate)}}
					res, err := svc.Create(ctx, engineer, req)
					if assert.NoError(t, err) {
						results <- res
					}
				}()
			}
			wg.Wait()
			close(results)

			numbers := make(map[string]bool)
			for res := range results {
				assert.False(t, numbers[res.Order.Number], "number %s issued twice", res.Order.Number)
				numbers[res.Order.Number] = true
			}
			assert.Len(t, numbers, tc.workers)

			budget := new(entity.ProjectBudget)
			require.NoError(t, conns.Reader.NewSelect().Model(budget).Where("pb.project_id = ?", projectID).Scan(ctx))
			assert.True(t, decimal.RequireFromString(tc.committed).Equal(budget.CommittedAmount), "committed %s", budget.CommittedAmount)

			count, err := conns.Reader.NewSelect().Model((*entity.Order)(nil)).Where("project_id = ?", projectID).Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.workers, count)
		})
	}
}
