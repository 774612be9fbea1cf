package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentops/reqflow/pkg/flow"
	"github.com/talentops/reqflow/pkg/models"
	"github.com/talentops/reqflow/pkg/persistence/file"
	"github.com/talentops/reqflow/pkg/services"
	"github.com/talentops/reqflow/pkg/web"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := validator.New(validator.WithRequiredStructEnabled())

	registry := flow.NewRegistry(persistence.FlowRepository(), nil, logger)
	executor := flow.NewExecutor(
		persistence.FlowRepository(), persistence.ExecutionRepository(),
		nil,
		flow.StaticResolver{"department_head": &models.UserRef{ID: "user-head", DisplayName: "Head"}},
		flow.NopNotifier{},
		nil,
		logger,
	)

	flowService := services.NewFlowService(persistence, registry, v)
	executionService := services.NewExecutionService(persistence, registry, executor, v)
	handlers := web.NewAPIHandlers(flowService, executionService, v)

	app := fiber.New()

	f := app.Group("/flows")
	f.Get("/", handlers.GetFlows)
	f.Post("/", handlers.CreateFlow)
	f.Get("/active", handlers.GetActiveFlow)
	f.Get("/:id", handlers.GetFlow)
	f.Delete("/:id", handlers.DeleteFlow)
	f.Post("/:id/activate", handlers.ActivateFlow)
	f.Post("/:id/dry-run", handlers.DryRunFlow)
	f.Get("/:id/audit", handlers.GetFlowAudit)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutionsBySubject)
	e.Post("/", handlers.StartExecution)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/steps", handlers.GetExecutionSteps)

	app.Post("/steps/:id/decision", handlers.DecideStep)
	app.Get("/approvals/pending", handlers.GetPendingApprovals)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func intPtr(v int) *int { return &v }

func createFlowBody() web.CreateFlowRequest {
	return web.CreateFlowRequest{
		Name:        "MPR Approval",
		Description: "Routes requisitions for approval",
		Actor:       "user-admin",
		Nodes: []*models.FlowNode{
			{NodeID: "start-1", Type: models.NodeTypeStart},
			{
				NodeID:     "appr-1",
				Type:       models.NodeTypeApproval,
				Properties: models.NodeProperties{ApproverType: "department_head", TimeoutDays: intPtr(3)},
			},
			{NodeID: "end-1", Type: models.NodeTypeEnd},
		},
		Connections: []*models.FlowConnection{
			{ID: "c1", SourceNodeID: "start-1", TargetNodeID: "appr-1", Type: models.ConnectionTypeOutput},
			{ID: "c2", SourceNodeID: "appr-1", TargetNodeID: "end-1", Type: models.ConnectionTypeOutput},
		},
	}
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out))
}

func createFlow(t *testing.T, app *fiber.App) models.Flow {
	t.Helper()

	resp := postJSON(t, app, "/flows/", createFlowBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Flow

	decodeBody(t, resp, &created)

	return created
}

func activateFlow(t *testing.T, app *fiber.App) models.Flow {
	t.Helper()

	created := createFlow(t, app)

	resp := postJSON(t, app, "/flows/"+created.ID+"/activate", web.ActivateFlowRequest{Actor: "user-admin"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var activated models.Flow

	decodeBody(t, resp, &activated)

	return activated
}

func TestAPIHandlers_CreateFlow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		mutate         func(req *web.CreateFlowRequest)
		requestBody    any
		expectedStatus int
	}{
		{
			name:           "successful creation",
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing actor",
			mutate:         func(req *web.CreateFlowRequest) { req.Actor = "" },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "name too short",
			mutate:         func(req *web.CreateFlowRequest) { req.Name = "ab" },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "no nodes",
			mutate:         func(req *web.CreateFlowRequest) { req.Nodes = nil },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "connection to unknown node",
			mutate: func(req *web.CreateFlowRequest) {
				req.Connections[1].TargetNodeID = "missing-node"
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := setupTestApp(t)

			payload := any(createFlowBody())
			if tt.requestBody != nil {
				payload = tt.requestBody
			} else if tt.mutate != nil {
				body := createFlowBody()
				tt.mutate(&body)
				payload = body
			}

			resp := postJSON(t, app, "/flows/", payload)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestAPIHandlers_GetFlow(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	created := createFlow(t, app)

	req := httptest.NewRequest(http.MethodGet, "/flows/"+created.ID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/flows/unknown-id", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_GetActiveFlow(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/flows/active", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	activated := activateFlow(t, app)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/flows/active", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var active models.Flow

	decodeBody(t, resp, &active)
	assert.Equal(t, activated.ID, active.ID)
	assert.Equal(t, models.FlowStatusActive, active.Status)
}

func TestAPIHandlers_DeleteFlow(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	draft := createFlow(t, app)
	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/flows/"+draft.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	active := activateFlow(t, app)
	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/flows/"+active.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/flows/unknown-id", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_DryRunFlow(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	created := createFlow(t, app)

	resp := postJSON(t, app, "/flows/"+created.ID+"/dry-run", web.DryRunRequest{
		Context: map[string]any{"budget_amount": 80000.0},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result flow.DryRunResult

	decodeBody(t, resp, &result)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, "appr-1", result.Steps[1].NodeID)
}

func TestAPIHandlers_StartExecution(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"id":             "req-1",
		"position_title": "Backend Engineer",
		"headcount":      1,
	}

	t.Run("no active flow", func(t *testing.T) {
		t.Parallel()

		app := setupTestApp(t)
		resp := postJSON(t, app, "/executions/", web.StartExecutionRequest{
			Requisition: payload,
			StartedBy:   "user-1",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("invalid requisition payload", func(t *testing.T) {
		t.Parallel()

		app := setupTestApp(t)
		activateFlow(t, app)

		resp := postJSON(t, app, "/executions/", web.StartExecutionRequest{
			Requisition: map[string]any{"id": "req-1"},
			StartedBy:   "user-1",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("starts and suspends at approval", func(t *testing.T) {
		t.Parallel()

		app := setupTestApp(t)
		activateFlow(t, app)

		resp := postJSON(t, app, "/executions/", web.StartExecutionRequest{
			Requisition: payload,
			StartedBy:   "user-1",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var execution models.FlowExecution

		decodeBody(t, resp, &execution)
		assert.Equal(t, "req-1", execution.SubjectID)
		assert.Equal(t, models.ExecutionStatusInProgress, execution.Status)
	})
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
