// Package postgres provides PostgreSQL persistence for workflows, executions,
// schedules and triggers. Records are stored as versioned JSONB blobs, one
// row per record, with a few extracted columns for indexed lookups.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/barela/flowdeck/pkg/persistence"
	"github.com/barela/flowdeck/pkg/persistence/sqlbase"

	_ "github.com/lib/pq" // postgres driver
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	scheduleRepo  *ScheduleRepository
	triggerRepo   *TriggerRepository
}

// NewPersistence connects to PostgreSQL and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		workflowRepo:  &WorkflowRepository{db: database},
		executionRepo: &ExecutionRepository{db: database},
		scheduleRepo:  &ScheduleRepository{db: database},
		triggerRepo:   &TriggerRepository{db: database},
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.scheduleRepo
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return p.triggerRepo
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				schema_version INTEGER NOT NULL,
				data JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS executions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				schema_version INTEGER NOT NULL,
				data JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions (workflow_id);

			CREATE TABLE IF NOT EXISTS schedules (
				id TEXT PRIMARY KEY,
				schema_version INTEGER NOT NULL,
				data JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS triggers (
				id TEXT PRIMARY KEY,
				trigger_type TEXT NOT NULL,
				schema_version INTEGER NOT NULL,
				data JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_triggers_type ON triggers (trigger_type);
		`,
	}
}
