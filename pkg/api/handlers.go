package api

import (
	"context"
	"log/slog"

	"github.com/adfharrison1/livedb/pkg/indexing"
	"github.com/adfharrison1/livedb/pkg/logger"
	"github.com/adfharrison1/livedb/pkg/realm"
	"github.com/adfharrison1/livedb/pkg/schema"
)

// Executor runs work on the goroutine that owns a realm. *realm.Looper implements it.
type Executor interface {
	Do(ctx context.Context, fn func(r *realm.Realm) error) error
}

// Handler provides HTTP handlers for the database API
type Handler struct {
	exec     Executor
	registry *schema.Registry
	indexes  *indexing.IndexEngine
	logger   *slog.Logger
}

// NewHandler creates a new API handler with dependency injection
func NewHandler(exec Executor, registry *schema.Registry, indexes *indexing.IndexEngine, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Get()
	}
	return &Handler{
		exec:     exec,
		registry: registry,
		indexes:  indexes,
		logger:   log,
	}
}
