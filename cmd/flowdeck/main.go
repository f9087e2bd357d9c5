package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/barela/flowdeck/pkg/log"
)

const defaultPort = 9091

func main() {
	root := &cli.Command{
		Name:                  "flowdeck",
		Usage:                 "Create, schedule, and run multi-step workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (file://<dir>, memory://, or postgres://...)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "api",
				Usage: "Start the REST API server with the scheduler and trigger registry",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "Port to run the API server on",
						Value:   defaultPort,
						Sources: cli.EnvVars("PORT"),
					},
					&cli.BoolFlag{
						Name:    "tracing",
						Usage:   "Enable OpenTelemetry tracing",
						Sources: cli.EnvVars("TRACING_ENABLED"),
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return runAPI(ctx, command)
				},
			},
			{
				Name:  "worker",
				Usage: "Start the headless scheduler and external event consumer",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "queue-addr",
						Usage:   "Redis address for the external event queue",
						Sources: cli.EnvVars("QUEUE_ADDR"),
					},
					&cli.StringFlag{
						Name:    "queue-name",
						Usage:   "Redis list to consume external events from",
						Sources: cli.EnvVars("QUEUE_NAME"),
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return runWorker(ctx, command)
				},
			},
			{
				Name:      "run",
				Usage:     "Execute one workflow and print the resulting execution",
				ArgsUsage: "<workflow-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-auto-advance",
						Usage: "Pause after every step instead of advancing automatically",
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return runOnce(ctx, command)
				},
			},
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		log.WithModule("cli").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
