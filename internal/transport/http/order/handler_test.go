package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/auth"
	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/database/sqlitetest"
	"github.com/Additional-Code/procura/internal/entity"
	orderrepo "github.com/Additional-Code/procura/internal/repository/order"
	projectrepo "github.com/Additional-Code/procura/internal/repository/project"
	service "github.com/Additional-Code/procura/internal/service/order"
	projectsvc "github.com/Additional-Code/procura/internal/service/project"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Meta    map[string]any  `json:"meta"`
	Error   struct {
		Kind    string         `json:"kind"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type api struct {
	e         *echo.Echo
	engineer  uuid.UUID
	projectID uuid.UUID
}

func newAPI(t *testing.T) *api {
	t.Helper()
	cfg := config.Config{
		Auth: config.Auth{UserHeader: "X-User-ID", RoleHeader: "X-User-Role"},
		Procurement: config.Procurement{
			DefaultCurrency: "USD",
			OrderPrefix:     "PO-",
			OrderWidth:      4,
			TxTimeout:       5 * time.Second,
		},
	}
	conns := sqlitetest.New(t)
	ctx := context.Background()

	a := &api{engineer: uuid.New(), projectID: uuid.New()}
	phase := "FOUNDATION"
	seed := []any{
		&entity.Project{ID: a.projectID, Name: "Harbour Tower", Code: "HBT", Phase: phase, IsActive: true, CreatedAt: time.Now().UTC()},
		&entity.UserProject{UserID: a.engineer, ProjectID: a.projectID},
		&entity.ProjectBudget{
			ProjectID:       a.projectID,
			TotalBudget:     decimal.NewFromInt(1000),
			CommittedAmount: decimal.NewFromInt(700),
			SpentAmount:     decimal.Zero,
		},
		&entity.Material{ID: uuid.New(), SKU: "RB-12", Name: "Rebar 12mm", Category: "STEEL", UnitOfMeasure: "t", PhaseHint: &phase, IsActive: true},
	}
	for _, m := range seed {
		_, err := conns.Writer.NewInsert().Model(m).Exec(ctx)
		require.NoError(t, err)
	}

	projects := projectsvc.NewService(projectsvc.Params{
		Repository: projectrepo.NewRepository(conns),
		Config:     cfg,
		Logger:     zap.NewNop(),
	})
	orders, err := service.NewService(service.Params{
		Store:    orderrepo.NewRepository(conns, cfg),
		Projects: projects,
		Config:   cfg,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	a.e = echo.New()
	Register(a.e, NewHandler(orders, projects), auth.Middleware(cfg.Auth))
	return a
}

func (a *api) do(t *testing.T, method, target, role, body string) (int, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if role != "" {
		req.Header.Set("X-User-ID", a.engineer.String())
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var out apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func (a *api) createBody() string {
	return `{
		"project_id": "` + a.projectID.String() + `",
		"notes": "north gate",
		"items": [
			{"material_id": "` + uuid.NewString() + `", "quantity": 2, "unit_price": "50", "attributes": {"grade": "B500"}},
			{"material_id": "` + uuid.NewString() + `", "quantity": "1", "unit_price": 50}
		]
	}`
}

func TestCreateOrderEndpoint(t *testing.T) {
	a := newAPI(t)

	code, res := a.do(t, http.MethodPost, "/orders", auth.RoleSiteEngineer, a.createBody())
	require.Equal(t, http.StatusCreated, code, res.Error.Message)
	assert.True(t, res.Success)
	assert.Equal(t, service.MessageNearThreshold, res.Message)

	var data struct {
		Order struct {
			ID             uuid.UUID `json:"id"`
			Number         string    `json:"number"`
			Status         string    `json:"status"`
			TotalEstimated string    `json:"total_estimated"`
			Currency       string    `json:"currency"`
			Items          []struct {
				Position   int             `json:"position"`
				LineTotal  string          `json:"line_total"`
				Attributes json.RawMessage `json:"attributes"`
			} `json:"items"`
		} `json:"order"`
		BudgetImpact struct {
			PercentAfter  float64 `json:"percent_after"`
			NearThreshold bool    `json:"near_threshold"`
			OverBudget    bool    `json:"over_budget"`
		} `json:"budget_impact"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &data))
	assert.Equal(t, "PO-0001", data.Order.Number)
	assert.Equal(t, string(entity.OrderStatusDraft), data.Order.Status)
	assert.Equal(t, "150", data.Order.TotalEstimated)
	assert.Equal(t, "USD", data.Order.Currency)
	require.Len(t, data.Order.Items, 2)
	assert.Equal(t, "100", data.Order.Items[0].LineTotal)
	assert.JSONEq(t, `{"grade":"B500"}`, string(data.Order.Items[0].Attributes))
	assert.InDelta(t, 85.0, data.BudgetImpact.PercentAfter, 0.001)
	assert.True(t, data.BudgetImpact.NearThreshold)
	assert.False(t, data.BudgetImpact.OverBudget)

	code, res = a.do(t, http.MethodGet, "/orders/"+data.Order.ID.String(), auth.RoleSiteEngineer, "")
	require.Equal(t, http.StatusOK, code)
	var fetched struct {
		Number string            `json:"number"`
		Items  []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &fetched))
	assert.Equal(t, "PO-0001", fetched.Number)
	assert.Len(t, fetched.Items, 2)

	code, res = a.do(t, http.MethodPost, "/orders", auth.RoleSiteEngineer, a.createBody())
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, service.MessageOverBudget, res.Message)

	code, res = a.do(t, http.MethodGet, "/orders?project_id="+a.projectID.String(), auth.RoleSiteEngineer, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), res.Meta["count"])
}

func TestCreateOrderEndpointErrors(t *testing.T) {
	a := newAPI(t)

	cases := []struct {
		name string
		role string
		body string
		code int
		kind string
	}{
		{name: "no principal", body: a.createBody(), code: http.StatusUnauthorized, kind: "unauthorized"},
		{name: "role not allowed", role: auth.RoleProjectManager, body: a.createBody(), code: http.StatusForbidden, kind: "forbidden"},
		{name: "malformed json", role: auth.RoleSiteEngineer, body: `{"project_id":`, code: http.StatusBadRequest, kind: "bad_request"},
		{
			name: "empty items",
			role: auth.RoleSiteEngineer,
			body: `{"project_id":"` + a.projectID.String() + `","items":[]}`,
			code: http.StatusBadRequest,
			kind: "bad_request",
		},
		{
			name: "unknown project",
			role: auth.RoleSiteEngineer,
			body: `{"project_id":"` + uuid.NewString() + `","items":[{"material_id":"` + uuid.NewString() + `","quantity":1}]}`,
			code: http.StatusNotFound,
			kind: "not_found",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, res := a.do(t, http.MethodPost, "/orders", tc.role, tc.body)
			assert.Equal(t, tc.code, code)
			assert.False(t, res.Success)
			assert.Equal(t, tc.kind, res.Error.Kind)
		})
	}

	code, res := a.do(t, http.MethodGet, "/orders?project_id="+a.projectID.String(), auth.RoleSiteEngineer, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), res.Meta["count"], "rejected requests must not persist anything")
}

func TestReadEndpointsValidateParams(t *testing.T) {
	a := newAPI(t)

	code, res := a.do(t, http.MethodGet, "/orders", auth.RoleSiteEngineer, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "project_id", res.Error.Details["field"])

	code, _ = a.do(t, http.MethodGet, "/orders?project_id=nope", auth.RoleSiteEngineer, "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodGet, "/orders/nope", auth.RoleSiteEngineer, "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodGet, "/orders/"+uuid.NewString(), auth.RoleSiteEngineer, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSuggestionsEndpoint(t *testing.T) {
	a := newAPI(t)

	code, res := a.do(t, http.MethodGet, "/orders/suggestions/by-phase?project_id="+a.projectID.String(), auth.RoleSiteEngineer, "")
	require.Equal(t, http.StatusOK, code)

	var materials []struct {
		SKU  string `json:"sku"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &materials))
	require.Len(t, materials, 1)
	assert.Equal(t, "RB-12", materials[0].SKU)
}
