package cmd

import (
	"log/slog"

	"github.com/barela/flowdeck/pkg/registry"
	"github.com/barela/flowdeck/pkg/tools/httprequest"
	logtool "github.com/barela/flowdeck/pkg/tools/log"
	"github.com/barela/flowdeck/pkg/tools/transform"
)

// NewRegistry creates a tool registry with the built-in tools registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterTool(logtool.NewFactory())
	reg.RegisterTool(transform.NewFactory())
	reg.RegisterTool(httprequest.NewFactory())

	return reg
}
