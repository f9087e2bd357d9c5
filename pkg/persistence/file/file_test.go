package file

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"testing"
	"time"

	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowRepository_SaveAndGet(t *testing.T) {
	tempDir := t.TempDir()
	p := NewPersistence(tempDir)
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:   "test-workflow",
		Name: "Test Workflow",
		Steps: []*models.Step{
			{ToolID: "text-cleaner", Order: 0, AutoAdvance: true},
		},
		Enabled: true,
	}

	err := p.WorkflowRepository().Save(ctx, workflow)
	require.NoError(t, err)

	loaded, err := p.WorkflowRepository().GetByID(ctx, "test-workflow")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Test Workflow", loaded.Name)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, "text-cleaner", loaded.Steps[0].ToolID)
}

func TestWorkflowRepository_GetByID_Missing(t *testing.T) {
	p := NewPersistence(t.TempDir())

	workflow, err := p.WorkflowRepository().GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, workflow)
}

func TestWorkflowRepository_Delete_Missing(t *testing.T) {
	p := NewPersistence(t.TempDir())

	err := p.WorkflowRepository().Delete(context.Background(), "nope")
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestSavedBlob_CarriesSchemaVersion(t *testing.T) {
	tempDir := t.TempDir()
	p := NewPersistence(tempDir)
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:    "versioned",
		Name:  "Versioned Workflow",
		Steps: []*models.Step{{ToolID: "markdown-formatter", Order: 0}},
	}
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	body, err := os.ReadFile(path.Join(tempDir, "workflows", "versioned.json"))
	require.NoError(t, err)

	var blob persistence.VersionedBlob
	require.NoError(t, json.Unmarshal(body, &blob))
	assert.Equal(t, persistence.SchemaVersion, blob.SchemaVersion)
}

func TestSave_OverwriteLeavesNoTempFiles(t *testing.T) {
	tempDir := t.TempDir()
	p := NewPersistence(tempDir)
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:    "rewritten",
		Name:  "First Name",
		Steps: []*models.Step{{ToolID: "text-cleaner", Order: 0}},
	}
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	workflow.Name = "Second Name"
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	loaded, err := p.WorkflowRepository().GetByID(ctx, "rewritten")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Second Name", loaded.Name)

	entries, err := os.ReadDir(path.Join(tempDir, "workflows"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rewritten.json", entries[0].Name())
}

func TestExecutionRepository_GetByWorkflow(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	workflow := &models.Workflow{
		ID:    "wf-1",
		Name:  "Workflow One",
		Steps: []*models.Step{{ToolID: "text-cleaner", Order: 0}},
	}

	first := models.NewExecution("exec-1", workflow, true, nil, models.ExecutionSourceManual)
	first.StartedAt = time.Now().UTC()
	second := models.NewExecution("exec-2", workflow, true, nil, models.ExecutionSourceSchedule)
	second.StartedAt = time.Now().UTC()

	other := models.NewExecution("exec-3", &models.Workflow{
		ID:    "wf-2",
		Name:  "Workflow Two",
		Steps: []*models.Step{{ToolID: "unit-converter", Order: 0}},
	}, true, nil, models.ExecutionSourceManual)

	require.NoError(t, p.ExecutionRepository().Save(ctx, first))
	require.NoError(t, p.ExecutionRepository().Save(ctx, second))
	require.NoError(t, p.ExecutionRepository().Save(ctx, other))

	executions, err := p.ExecutionRepository().GetByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, executions, 2)
}

func TestTriggerRepository_GetByType(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	usage := &models.Trigger{ID: "trg-1", WorkflowID: "wf-1", Type: models.TriggerTypeToolUsage, Enabled: true}
	external := &models.Trigger{ID: "trg-2", WorkflowID: "wf-1", Type: models.TriggerTypeExternalEvent, Enabled: true}

	require.NoError(t, p.TriggerRepository().Save(ctx, usage))
	require.NoError(t, p.TriggerRepository().Save(ctx, external))

	triggers, err := p.TriggerRepository().GetByType(ctx, models.TriggerTypeToolUsage)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "trg-1", triggers[0].ID)
}

func TestScheduleRepository_RoundTrip(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	schedule := &models.Schedule{
		ID:              "sched-1",
		WorkflowID:      "wf-1",
		Type:            models.ScheduleTypeInterval,
		IntervalMinutes: 15,
		Enabled:         true,
	}
	require.NoError(t, p.ScheduleRepository().Save(ctx, schedule))

	loaded, err := p.ScheduleRepository().GetByID(ctx, "sched-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 15, loaded.IntervalMinutes)

	require.NoError(t, p.ScheduleRepository().Delete(ctx, "sched-1"))

	loaded, err = p.ScheduleRepository().GetByID(ctx, "sched-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestHealthCheck(t *testing.T) {
	p := NewPersistence(t.TempDir())
	assert.NoError(t, p.HealthCheck(context.Background()))

	missing := NewPersistence("/nonexistent/flowdeck-data")
	assert.Error(t, missing.HealthCheck(context.Background()))
}
