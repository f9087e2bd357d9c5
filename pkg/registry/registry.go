// Package registry holds the catalogue of executable tools.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/barela/flowdeck/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

type Registry struct {
	logger        *slog.Logger
	toolFactories map[string]protocol.ToolFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:        logger,
		toolFactories: make(map[string]protocol.ToolFactory),
	}
}

// RegisterTool adds a tool factory under its own ID, replacing any previous
// registration.
func (r *Registry) RegisterTool(factory protocol.ToolFactory) {
	r.toolFactories[factory.ID()] = factory
}

// HasTool reports whether a tool ID resolves to a registered factory.
func (r *Registry) HasTool(toolID string) bool {
	_, ok := r.toolFactories[toolID]

	return ok
}

// AvailableTools returns the IDs of all registered tools.
func (r *Registry) AvailableTools() []string {
	ids := make([]string, 0, len(r.toolFactories))
	for id := range r.toolFactories {
		ids = append(ids, id)
	}

	return ids
}

// Factories returns every registered tool factory.
func (r *Registry) Factories() []protocol.ToolFactory {
	factories := make([]protocol.ToolFactory, 0, len(r.toolFactories))
	for _, factory := range r.toolFactories {
		factories = append(factories, factory)
	}

	return factories
}

// CreateTool validates the configuration against the factory's schema and
// creates a tool instance.
func (r *Registry) CreateTool(toolID string, config map[string]any) (protocol.Tool, error) {
	factory, ok := r.toolFactories[toolID]
	if !ok {
		return nil, fmt.Errorf("tool '%s' not registered", toolID)
	}

	if err := r.validateConfig(factory, config); err != nil {
		return nil, err
	}

	return factory.Create(config)
}

// validateConfig checks config against the factory's JSON Schema.
func (r *Registry) validateConfig(factory protocol.ToolFactory, config map[string]any) error {
	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate config for tool '%s': %w", factory.ID(), err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return fmt.Errorf("invalid config for tool '%s': %v", factory.ID(), messages)
	}

	return nil
}
