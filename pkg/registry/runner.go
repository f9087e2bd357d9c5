package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/barela/flowdeck/pkg/protocol"
)

// Runner resolves tool IDs through a Registry and executes them, turning the
// outcome into a ToolResult. A failed tool run yields a non-success result, not
// an error: errors are reserved for the tool being unresolvable or
// misconfigured.
type Runner struct {
	logger   *slog.Logger
	registry *Registry
	clock    protocol.Clock
}

func NewRunner(logger *slog.Logger, registry *Registry, clock protocol.Clock) *Runner {
	return &Runner{
		logger:   logger.With("module", "tool_runner"),
		registry: registry,
		clock:    clock,
	}
}

func (r *Runner) Invoke(ctx context.Context, toolID string, variables map[string]any) (*protocol.ToolResult, error) {
	tool, err := r.registry.CreateTool(toolID, variables)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool '%s': %w", toolID, err)
	}

	started := r.clock.Now()
	output, runErr := tool.Run(ctx, variables)
	duration := r.clock.Now().Sub(started)

	if runErr != nil {
		r.logger.WarnContext(ctx, "Tool run failed", "tool_id", toolID, "error", runErr)

		return &protocol.ToolResult{
			Success:  false,
			Error:    runErr.Error(),
			Duration: duration,
		}, nil
	}

	return &protocol.ToolResult{
		Success:  true,
		Data:     output,
		Duration: duration,
	}, nil
}

var _ protocol.ToolRunner = (*Runner)(nil)
