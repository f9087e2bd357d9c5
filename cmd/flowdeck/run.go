package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/barela/flowdeck/pkg/clock"
	"github.com/barela/flowdeck/pkg/cmd"
	"github.com/barela/flowdeck/pkg/engine"
	"github.com/barela/flowdeck/pkg/log"
	"github.com/barela/flowdeck/pkg/models"
	"github.com/barela/flowdeck/pkg/registry"
	"github.com/barela/flowdeck/pkg/usage"
)

func runOnce(ctx context.Context, command *cli.Command) error {
	workflowID := command.Args().First()
	if workflowID == "" {
		return errors.New("workflow id is required")
	}

	logger := log.WithModule("run")

	store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	wallClock := clock.NewReal()
	toolRegistry := cmd.NewRegistry(logger)
	runner := registry.NewRunner(logger, toolRegistry, wallClock)
	tracker := usage.NewTracker(logger, nil)

	executionEngine := engine.NewEngine(logger, store, runner, tracker, nil, wallClock)

	execution, err := executionEngine.Execute(ctx, workflowID, engine.ExecuteOptions{
		AutoAdvance: !command.Bool("no-auto-advance"),
		Source:      models.ExecutionSourceManual,
	})
	if err != nil {
		return fmt.Errorf("failed to execute workflow %s: %w", workflowID, err)
	}

	encoded, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode execution: %w", err)
	}

	fmt.Fprintln(os.Stdout, string(encoded))

	if execution.Status == models.ExecutionStatusFailed {
		os.Exit(1)
	}

	return nil
}
