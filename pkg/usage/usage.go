// Package usage records tool invocations onto the event bus so that
// tool_usage triggers can react to them.
package usage

import (
	"context"
	"log/slog"

	"github.com/barela/flowdeck/pkg/eventbus"
	"github.com/barela/flowdeck/pkg/events"
	"github.com/barela/flowdeck/pkg/protocol"
)

type Tracker struct {
	logger   *slog.Logger
	eventBus eventbus.EventPublisher
}

func NewTracker(logger *slog.Logger, eventBus eventbus.EventPublisher) *Tracker {
	return &Tracker{
		logger:   logger.With("module", "usage_tracker"),
		eventBus: eventBus,
	}
}

// RecordUsage publishes a tool.used event. Publish failures are logged and
// swallowed: usage tracking never fails an execution.
func (t *Tracker) RecordUsage(ctx context.Context, toolID string) {
	if t.eventBus == nil {
		return
	}

	event := events.ToolUsed{
		BaseEvent: events.NewBaseEvent(events.ToolUsedEvent, ""),
		ToolID:    toolID,
	}

	if err := t.eventBus.Publish(ctx, toolID, event); err != nil {
		t.logger.WarnContext(ctx, "Failed to publish tool usage", "tool_id", toolID, "error", err)
	}
}

var _ protocol.UsageTracker = (*Tracker)(nil)
