package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/persistence"
)

// scanBlob decodes one (schema_version, data) row into a record, applying
// pending blob migrations.
func scanBlob[T any](schemaVersion int, data []byte, migrations persistence.Migrations) (*T, error) {
	blob := &persistence.VersionedBlob{
		SchemaVersion: schemaVersion,
		Payload:       json.RawMessage(data),
	}

	record := new(T)
	if err := persistence.DecodeBlob(blob, record, migrations); err != nil {
		return nil, err
	}

	return record, nil
}

func queryBlobs[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]*T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*T, 0)

	for rows.Next() {
		var (
			schemaVersion int
			data          []byte
		)

		if err := rows.Scan(&schemaVersion, &data); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		record, err := scanBlob[T](schemaVersion, data, nil)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	return records, nil
}

func queryBlob[T any](ctx context.Context, db *sql.DB, query string, args ...any) (*T, error) {
	var (
		schemaVersion int
		data          []byte
	)

	err := db.QueryRowContext(ctx, query, args...).Scan(&schemaVersion, &data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, fmt.Errorf("query failed: %w", err)
	}

	return scanBlob[T](schemaVersion, data, nil)
}

// WorkflowRepository stores workflow definitions in the workflows table.
type WorkflowRepository struct {
	db *sql.DB
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	return queryBlobs[models.Workflow](ctx, r.db, "SELECT schema_version, data FROM workflows")
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	return queryBlob[models.Workflow](ctx, r.db,
		"SELECT schema_version, data FROM workflows WHERE id = $1", id)
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	blob, err := persistence.EncodeBlob(workflow)
	if err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (id, schema_version, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET schema_version = $2, data = $3, updated_at = NOW()
	`, workflow.ID, blob.SchemaVersion, []byte(blob.Payload))
	if err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return persistence.NewStoreError("Delete", "workflow", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", "workflow", id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// ExecutionRepository stores execution records in the executions table.
type ExecutionRepository struct {
	db *sql.DB
}

func (r *ExecutionRepository) GetAll(ctx context.Context) ([]*models.Execution, error) {
	return queryBlobs[models.Execution](ctx, r.db, "SELECT schema_version, data FROM executions")
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	return queryBlob[models.Execution](ctx, r.db,
		"SELECT schema_version, data FROM executions WHERE id = $1", id)
}

func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return queryBlobs[models.Execution](ctx, r.db,
		"SELECT schema_version, data FROM executions WHERE workflow_id = $1", workflowID)
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	blob, err := persistence.EncodeBlob(execution)
	if err != nil {
		return persistence.NewStoreError("Save", "execution", execution.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, schema_version, data, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET schema_version = $3, data = $4, updated_at = NOW()
	`, execution.ID, execution.WorkflowID, blob.SchemaVersion, []byte(blob.Payload))
	if err != nil {
		return persistence.NewStoreError("Save", "execution", execution.ID, err)
	}

	return nil
}

// ScheduleRepository stores schedule configuration in the schedules table.
type ScheduleRepository struct {
	db *sql.DB
}

func (r *ScheduleRepository) GetAll(ctx context.Context) ([]*models.Schedule, error) {
	return queryBlobs[models.Schedule](ctx, r.db, "SELECT schema_version, data FROM schedules")
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	return queryBlob[models.Schedule](ctx, r.db,
		"SELECT schema_version, data FROM schedules WHERE id = $1", id)
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	blob, err := persistence.EncodeBlob(schedule)
	if err != nil {
		return persistence.NewStoreError("Save", "schedule", schedule.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (id, schema_version, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET schema_version = $2, data = $3, updated_at = NOW()
	`, schedule.ID, blob.SchemaVersion, []byte(blob.Payload))
	if err != nil {
		return persistence.NewStoreError("Save", "schedule", schedule.ID, err)
	}

	return nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = $1", id)
	if err != nil {
		return persistence.NewStoreError("Delete", "schedule", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", "schedule", id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Delete", "schedule", id, persistence.ErrScheduleNotFound)
	}

	return nil
}

// TriggerRepository stores trigger configuration in the triggers table.
type TriggerRepository struct {
	db *sql.DB
}

func (r *TriggerRepository) GetAll(ctx context.Context) ([]*models.Trigger, error) {
	return queryBlobs[models.Trigger](ctx, r.db, "SELECT schema_version, data FROM triggers")
}

func (r *TriggerRepository) GetByID(ctx context.Context, id string) (*models.Trigger, error) {
	return queryBlob[models.Trigger](ctx, r.db,
		"SELECT schema_version, data FROM triggers WHERE id = $1", id)
}

func (r *TriggerRepository) GetByType(ctx context.Context, triggerType models.TriggerType) ([]*models.Trigger, error) {
	return queryBlobs[models.Trigger](ctx, r.db,
		"SELECT schema_version, data FROM triggers WHERE trigger_type = $1", string(triggerType))
}

func (r *TriggerRepository) Save(ctx context.Context, trigger *models.Trigger) error {
	blob, err := persistence.EncodeBlob(trigger)
	if err != nil {
		return persistence.NewStoreError("Save", "trigger", trigger.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO triggers (id, trigger_type, schema_version, data, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET trigger_type = $2, schema_version = $3, data = $4, updated_at = NOW()
	`, trigger.ID, string(trigger.Type), blob.SchemaVersion, []byte(blob.Payload))
	if err != nil {
		return persistence.NewStoreError("Save", "trigger", trigger.ID, err)
	}

	return nil
}

func (r *TriggerRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM triggers WHERE id = $1", id)
	if err != nil {
		return persistence.NewStoreError("Delete", "trigger", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", "trigger", id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("Delete", "trigger", id, persistence.ErrTriggerNotFound)
	}

	return nil
}
