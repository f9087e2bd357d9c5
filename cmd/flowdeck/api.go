package main

import (
	"context"
	"strconv"

	cli "github.com/urfave/cli/v3"

	"github.com/barela/flowdeck/pkg/clock"
	"github.com/barela/flowdeck/pkg/cmd"
	"github.com/barela/flowdeck/pkg/engine"
	"github.com/barela/flowdeck/pkg/log"
	"github.com/barela/flowdeck/pkg/metrics"
	"github.com/barela/flowdeck/pkg/otelhelper"
	"github.com/barela/flowdeck/pkg/registry"
	"github.com/barela/flowdeck/pkg/scheduler"
	"github.com/barela/flowdeck/pkg/services"
	"github.com/barela/flowdeck/pkg/triggers"
	"github.com/barela/flowdeck/pkg/usage"
	"github.com/barela/flowdeck/pkg/web"
)

func runAPI(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing Flowdeck API")

	if command.Bool("tracing") {
		if _, err := otelhelper.NewTracer(ctx, "flowdeck-api"); err != nil {
			logger.WarnContext(ctx, "Failed to initialize tracing", "error", err)
		}
	}

	store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	wallClock := clock.NewReal()
	toolRegistry := cmd.NewRegistry(logger)
	runner := registry.NewRunner(logger, toolRegistry, wallClock)
	tracker := usage.NewTracker(logger, eventBus)

	executionEngine := engine.NewEngine(logger, store, runner, tracker, eventBus, wallClock)
	workflowScheduler := scheduler.NewScheduler(logger, store, executionEngine, eventBus, wallClock)
	triggerRegistry := triggers.NewRegistry(logger, store, executionEngine, eventBus, wallClock)
	aggregator := metrics.NewAggregator(logger, store)
	workflowService := services.NewWorkflow(logger, store, toolRegistry, wallClock)

	if err := triggerRegistry.BindToolUsage(eventBus); err != nil {
		return err
	}

	if err := eventBus.Subscribe(ctx); err != nil {
		return err
	}

	if err := workflowScheduler.Start(ctx); err != nil {
		return err
	}
	defer workflowScheduler.Stop()

	handlers := web.NewAPIHandlers(workflowService, executionEngine, workflowScheduler, triggerRegistry, aggregator, toolRegistry)
	app := web.NewApp(handlers)

	return app.Listen(":" + strconv.Itoa(command.Int("port")))
}
