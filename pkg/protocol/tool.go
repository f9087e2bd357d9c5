// Package protocol defines the contracts the workflow core consumes.
package protocol

import (
	"context"
	"time"
)

// ToolResult is the outcome of one tool invocation.
type ToolResult struct {
	Success  bool          `json:"success"`
	Data     any           `json:"data,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ToolRunner executes a single tool capability. Implementations either
// succeed, producing opaque result data, or return a typed failure with a
// message. The engine treats a returned error the same as a failed result.
type ToolRunner interface {
	Invoke(ctx context.Context, toolID string, variables map[string]any) (*ToolResult, error)
}

// UsageTracker records that a tool was used. Calls are fire-and-forget; the
// engine never rolls back an execution on tracking failure.
type UsageTracker interface {
	RecordUsage(ctx context.Context, toolID string)
}

// Tool is one executable capability held by the tool registry.
type Tool interface {
	Run(ctx context.Context, variables map[string]any) (any, error)
}

// ToolFactory creates tool instances and describes the tool type.
type ToolFactory interface {
	// Create creates a tool instance with the given configuration.
	Create(config map[string]any) (Tool, error)

	// ID returns the unique identifier for this tool type.
	ID() string

	// Name returns the human-readable name for this tool type.
	Name() string

	// Description returns a description of what this tool does.
	Description() string

	// Schema returns the JSON Schema for configuring this tool.
	Schema() map[string]any
}
