package project

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
	projectrepo "github.com/Additional-Code/procura/internal/repository/project"
	service "github.com/Additional-Code/procura/internal/service/project"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Meta    map[string]any  `json:"meta"`
	Error   struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

type api struct {
	e         *echo.Echo
	member    uuid.UUID
	projectID uuid.UUID
	otherID   uuid.UUID
}

func newAPI(t *testing.T) *api {
	t.Helper()
	cfg := config.Config{Auth: config.Auth{UserHeader: "X-User-ID", RoleHeader: "X-User-Role"}}
	conns := sqlitetest.New(t)
	ctx := context.Background()

	a := &api{member: uuid.New(), projectID: uuid.New(), otherID: uuid.New()}
	now := time.Now().UTC()
	seed := []any{
		&entity.Project{ID: a.projectID, Name: "Harbour Tower", Code: "HBT", Phase: "FOUNDATION", IsActive: true, CreatedAt: now},
		&entity.Project{ID: a.otherID, Name: "Airport Link", Code: "APL", Phase: "STRUCTURE", IsActive: true, CreatedAt: now},
		&entity.UserProject{UserID: a.member, ProjectID: a.projectID},
		&entity.ProjectBudget{
			ProjectID:       a.projectID,
			TotalBudget:     decimal.NewFromInt(1000),
			CommittedAmount: decimal.NewFromInt(250),
			SpentAmount:     decimal.Zero,
		},
	}
	for _, m := range seed {
		_, err := conns.Writer.NewInsert().Model(m).Exec(ctx)
		require.NoError(t, err)
	}

	svc := service.NewService(service.Params{
		Repository: projectrepo.NewRepository(conns),
		Config:     cfg,
		Logger:     zap.NewNop(),
	})

	a.e = echo.New()
	Register(a.e, NewHandler(svc), auth.Middleware(cfg.Auth))
	return a
}

func (a *api) do(t *testing.T, method, target, role, body string) (int, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if role != "" {
		req.Header.Set("X-User-ID", a.member.String())
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var out apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestListProjectsByVisibility(t *testing.T) {
	a := newAPI(t)

	code, res := a.do(t, http.MethodGet, "/projects", auth.RoleSiteEngineer, "")
	require.Equal(t, http.StatusOK, code)
	var projects []struct {
		ID   uuid.UUID `json:"id"`
		Code string    `json:"code"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, a.projectID, projects[0].ID)
	assert.EqualValues(t, 1, res.Meta["count"])

	code, res = a.do(t, http.MethodGet, "/projects", auth.RoleAdmin, "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, res.Meta["count"])
}

func TestGetProjectAccess(t *testing.T) {
	a := newAPI(t)

	tests := []struct {
		name   string
		target string
		role   string
		code   int
		kind   string
	}{
		{name: "member", target: "/projects/" + a.projectID.String(), role: auth.RoleSiteEngineer, code: http.StatusOK},
		{name: "non member", target: "/projects/" + a.otherID.String(), role: auth.RoleSiteEngineer, code: http.StatusForbidden, kind: "forbidden"},
		{name: "admin", target: "/projects/" + a.otherID.String(), role: auth.RoleAdmin, code: http.StatusOK},
		{name: "unknown", target: "/projects/" + uuid.NewString(), role: auth.RoleAdmin, code: http.StatusNotFound, kind: "not_found"},
		{name: "bad id", target: "/projects/nope", role: auth.RoleAdmin, code: http.StatusBadRequest, kind: "bad_request"},
		{name: "anonymous", target: "/projects/" + a.projectID.String(), code: http.StatusUnauthorized, kind: "unauthorized"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, res := a.do(t, http.MethodGet, tc.target, tc.role, "")
			assert.Equal(t, tc.code, code)
			if tc.kind != "" {
				assert.Equal(t, tc.kind, res.Error.Kind)
			}
		})
	}
}

func TestProjectBudget(t *testing.T) {
	a := newAPI(t)

	code, res := a.do(t, http.MethodGet, "/projects/"+a.projectID.String()+"/budget", auth.RoleSiteEngineer, "")
	require.Equal(t, http.StatusOK, code)

	var budget struct {
		Remaining   decimal.Decimal `json:"remaining"`
		PercentUsed float64         `json:"percent_used"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &budget))
	assert.True(t, decimal.NewFromInt(750).Equal(budget.Remaining), budget.Remaining.String())
	assert.InDelta(t, 25.0, budget.PercentUsed, 0.001)

	code, res = a.do(t, http.MethodGet, "/projects/"+a.otherID.String()+"/budget", auth.RoleAdmin, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", res.Error.Kind)
}

func TestCreateProject(t *testing.T) {
	a := newAPI(t)
	body := `{"name":"Bridge Repair","code":"brg","phase":"structure","start_date":"2026-01-05","total_budget":"5000"}`

	code, res := a.do(t, http.MethodPost, "/projects", auth.RoleSiteEngineer, body)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", res.Error.Kind)

	code, res = a.do(t, http.MethodPost, "/projects", auth.RoleAdmin, body)
	require.Equal(t, http.StatusCreated, code, res.Error.Message)
	assert.Equal(t, "Project created", res.Message)

	var created struct {
		ID        uuid.UUID `json:"id"`
		Code      string    `json:"code"`
		Phase     string    `json:"phase"`
		StartDate *string   `json:"start_date"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &created))
	assert.Equal(t, "BRG", created.Code)
	assert.Equal(t, "STRUCTURE", created.Phase)
	require.NotNil(t, created.StartDate)
	assert.Equal(t, "2026-01-05", *created.StartDate)

	code, res = a.do(t, http.MethodGet, "/projects/"+created.ID.String()+"/budget", auth.RoleAdmin, "")
	require.Equal(t, http.StatusOK, code)

	code, res = a.do(t, http.MethodPost, "/projects", auth.RoleAdmin, body)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", res.Error.Kind)

	code, res = a.do(t, http.MethodPost, "/projects", auth.RoleAdmin, `{"name":"x","code":"y","phase":"z","total_budget":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_request", res.Error.Kind)
}
