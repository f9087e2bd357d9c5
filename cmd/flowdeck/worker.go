package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/barela/flowdeck/pkg/clock"
	"github.com/barela/flowdeck/pkg/cmd"
	"github.com/barela/flowdeck/pkg/engine"
	"github.com/barela/flowdeck/pkg/log"
	"github.com/barela/flowdeck/pkg/registry"
	"github.com/barela/flowdeck/pkg/scheduler"
	"github.com/barela/flowdeck/pkg/triggers"
	"github.com/barela/flowdeck/pkg/triggers/queue"
	"github.com/barela/flowdeck/pkg/usage"
)

func runWorker(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("worker")
	logger.InfoContext(ctx, "Initializing Flowdeck worker")

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

	if queueName := command.String("queue-name"); queueName != "" {
		cfg, err := queue.ConfigFromMap(map[string]string{
			"addr":  command.String("queue-addr"),
			"queue": queueName,
		})
		if err != nil {
			return err
		}

		source := queue.NewSource(logger, cfg, triggerRegistry)
		if err := source.Start(ctx); err != nil {
			return err
		}

		defer func() {
			if err := source.Stop(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to stop queue source", "error", err)
			}
		}()
	}

	logger.InfoContext(ctx, "Worker running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "Worker shutting down")

	return nil
}
