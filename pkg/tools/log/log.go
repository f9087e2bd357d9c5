// Package log provides a tool that writes a message to the structured log.
package log

import (
	"context"
	"log/slog"

	"github.com/barela/flowdeck/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) ID() string {
	return "log"
}

func (*Factory) Name() string {
	return "Log"
}

func (*Factory) Description() string {
	return "Logs a message at a specified level."
}

func (f *Factory) Create(config map[string]any) (protocol.Tool, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewTool(config), nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log.",
				"examples": []string{
					"Workflow step completed successfully",
					"Fetched 42 records",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"required": []string{"message"},
	}
}

type Tool struct {
	message string
	level   string
}

func NewTool(config map[string]any) *Tool {
	message, _ := config["message"].(string)

	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	return &Tool{message: message, level: level}
}

func (t *Tool) Run(ctx context.Context, variables map[string]any) (any, error) {
	logger := slog.Default().With("tool_id", "log")

	switch t.level {
	case "debug":
		logger.DebugContext(ctx, t.message, "variables", variables)
	case "warn":
		logger.WarnContext(ctx, t.message, "variables", variables)
	case "error":
		logger.ErrorContext(ctx, t.message, "variables", variables)
	default:
		logger.InfoContext(ctx, t.message, "variables", variables)
	}

	return map[string]any{
		"message": t.message,
		"level":   t.level,
	}, nil
}
