// Package cmd provides common initialization for command-line entrypoints.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/barela/flowdeck/pkg/persistence"
	"github.com/barela/flowdeck/pkg/persistence/file"
	"github.com/barela/flowdeck/pkg/persistence/memory"
	"github.com/barela/flowdeck/pkg/persistence/postgres"
)

// NewPersistence selects a persistence driver from the database URL scheme.
// postgres:// connects to PostgreSQL, memory:// keeps everything in process,
// and anything else is treated as a file store root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := postgres.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return store
	case strings.HasPrefix(databaseURL, "memory://"):
		return memory.NewPersistence()
	default:
		return file.NewPersistence(databaseURL)
	}
}
