package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barela/flowdeck/pkg/clock"
	"github.com/barela/flowdeck/pkg/engine"
	"github.com/barela/flowdeck/pkg/metrics"
	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/persistence/memory"
	"github.com/barela/flowdeck/pkg/registry"
	"github.com/barela/flowdeck/pkg/scheduler"
	"github.com/barela/flowdeck/pkg/services"
	"github.com/barela/flowdeck/pkg/tools/log"
	"github.com/barela/flowdeck/pkg/tools/transform"
	"github.com/barela/flowdeck/pkg/triggers"
	"github.com/barela/flowdeck/pkg/usage"
	"github.com/barela/flowdeck/pkg/web"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.Default()
	store := memory.NewPersistence()
	fakeClock := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	toolRegistry := registry.NewRegistry(logger)
	toolRegistry.RegisterTool(log.NewFactory())
	toolRegistry.RegisterTool(transform.NewFactory())

	runner := registry.NewRunner(logger, toolRegistry, fakeClock)
	tracker := usage.NewTracker(logger, nil)

	executionEngine := engine.NewEngine(logger, store, runner, tracker, nil, fakeClock)
	workflowScheduler := scheduler.NewScheduler(logger, store, executionEngine, nil, fakeClock)
	triggerRegistry := triggers.NewRegistry(logger, store, executionEngine, nil, fakeClock)
	aggregator := metrics.NewAggregator(logger, store)
	workflowService := services.NewWorkflow(logger, store, toolRegistry, fakeClock)

	handlers := web.NewAPIHandlers(workflowService, executionEngine, workflowScheduler, triggerRegistry, aggregator, toolRegistry)

	return web.NewApp(handlers)
}

func createWorkflow(t *testing.T, app *fiber.App, req web.CreateWorkflowRequest) models.Workflow {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewBuffer(body))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(httpReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var workflow models.Workflow
	decodeBody(t, resp, &workflow)

	return workflow
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func validCreateRequest() web.CreateWorkflowRequest {
	return web.CreateWorkflowRequest{
		Name:    "Cleanup Pipeline",
		Enabled: true,
		Steps: []web.StepRequest{
			{ToolID: "log", Order: 0, AutoAdvance: true},
			{ToolID: "transform", Order: 1, AutoAdvance: true},
		},
	}
}

func TestCreateWorkflow(t *testing.T) {
	app := setupTestApp(t)

	workflow := createWorkflow(t, app, validCreateRequest())
	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, "Cleanup Pipeline", workflow.Name)
	assert.Len(t, workflow.Steps, 2)
}

func TestCreateWorkflow_ValidationErrors(t *testing.T) {
	app := setupTestApp(t)

	req := web.CreateWorkflowRequest{
		Name: "x",
		Steps: []web.StepRequest{
			{ToolID: "unknown", Order: 0},
		},
	}

	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/workflows", bytes.NewBuffer(body))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(httpReq)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem map[string]any
	decodeBody(t, resp, &problem)
	assert.Equal(t, "validation_error", problem["type"])
	assert.NotEmpty(t, problem["errors"])
}

func TestGetWorkflow_NotFound(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecuteWorkflow_EndToEnd(t *testing.T) {
	app := setupTestApp(t)

	created := createWorkflow(t, app, web.CreateWorkflowRequest{
		Name:    "Log Then Transform",
		Enabled: true,
		Steps: []web.StepRequest{
			{ToolID: "log", Order: 0, AutoAdvance: true},
			{ToolID: "transform", Order: 1, AutoAdvance: true},
		},
	})

	body := []byte(`{"variables": {"message": "hello", "expression": "{{ .message }}"}}`)
	httpReq := httptest.NewRequest(http.MethodPost, "/workflows/"+created.ID+"/execute", bytes.NewBuffer(body))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(httpReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var execution models.Execution
	decodeBody(t, resp, &execution)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Len(t, execution.StepResults, 2)

	listResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/"+created.ID+"/executions", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	var listing struct {
		Executions []models.Execution `json:"executions"`
	}
	decodeBody(t, listResp, &listing)
	assert.Len(t, listing.Executions, 1)

	metricsResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/"+created.ID+"/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)

	var workflowMetrics models.WorkflowMetrics
	decodeBody(t, metricsResp, &workflowMetrics)
	assert.Equal(t, 1, workflowMetrics.TotalExecutions)
	assert.Equal(t, 1, workflowMetrics.SuccessfulExecutions)
}

func TestPauseResumeCancelFlow(t *testing.T) {
	app := setupTestApp(t)

	created := createWorkflow(t, app, web.CreateWorkflowRequest{
		Name:    "Manual Advance",
		Enabled: true,
		Steps: []web.StepRequest{
			{ToolID: "log", Order: 0, AutoAdvance: false},
			{ToolID: "transform", Order: 1, AutoAdvance: true},
		},
	})

	body := []byte(`{"variables": {"message": "hi", "expression": "done"}}`)
	httpReq := httptest.NewRequest(http.MethodPost, "/workflows/"+created.ID+"/execute", bytes.NewBuffer(body))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(httpReq)
	require.NoError(t, err)

	var execution models.Execution
	decodeBody(t, resp, &execution)
	require.Equal(t, models.ExecutionStatusPaused, execution.Status)

	resumeResp, err := app.Test(httptest.NewRequest(http.MethodPost, "/executions/"+execution.ID+"/resume", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resumeResp.StatusCode)

	var resumed models.Execution
	decodeBody(t, resumeResp, &resumed)
	assert.Equal(t, models.ExecutionStatusCompleted, resumed.Status)

	// Terminal executions reject further lifecycle calls.
	cancelResp, err := app.Test(httptest.NewRequest(http.MethodPost, "/executions/"+execution.ID+"/cancel", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, cancelResp.StatusCode)
}

func TestScheduleEndpoints(t *testing.T) {
	app := setupTestApp(t)

	created := createWorkflow(t, app, validCreateRequest())

	body := []byte(`{"workflow_id": "` + created.ID + `", "type": "interval", "interval_minutes": 30, "enabled": true}`)
	httpReq := httptest.NewRequest(http.MethodPost, "/schedules", bytes.NewBuffer(body))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(httpReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var schedule models.Schedule
	decodeBody(t, resp, &schedule)
	assert.NotEmpty(t, schedule.ID)
	assert.NotNil(t, schedule.NextRun)

	disableResp, err := app.Test(httptest.NewRequest(http.MethodPost, "/schedules/"+schedule.ID+"/disable", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, disableResp.StatusCode)

	getResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/schedules/"+schedule.ID, nil))
	require.NoError(t, err)

	var fetched models.Schedule
	decodeBody(t, getResp, &fetched)
	assert.False(t, fetched.Enabled)
}

func TestTriggerEndpoints(t *testing.T) {
	app := setupTestApp(t)

	created := createWorkflow(t, app, validCreateRequest())

	body := []byte(`{"workflow_id": "` + created.ID + `", "type": "tool_usage", "conditions": {"tool_id": "log"}, "enabled": true}`)
	httpReq := httptest.NewRequest(http.MethodPost, "/triggers", bytes.NewBuffer(body))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(httpReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var trigger models.Trigger
	decodeBody(t, resp, &trigger)
	assert.NotEmpty(t, trigger.ID)

	listResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/triggers", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	deleteResp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/triggers/"+trigger.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, deleteResp.StatusCode)
}

func TestGetTools(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/tools", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Tools []web.ToolResponse `json:"tools"`
	}
	decodeBody(t, resp, &listing)
	assert.Len(t, listing.Tools, 2)
}

func TestHealthEndpoint(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
