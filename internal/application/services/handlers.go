package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/internal/infrastructure/database"
)

// Stage is the point of the pipeline a handler runs at.
type Stage string

const (
	StageBefore     Stage = "before"
	StageAfter      Stage = "after"
	StageAfterError Stage = "afterError"
)

// HandlerContext is what a handler sees of an invocation.
type HandlerContext struct {
	*models.Context
	Module       *models.AutocrudModule
	Transactions *database.TransactionStack
	Logger       *zap.SugaredLogger
}

// Handler runs at a pipeline stage. Returning an error fails the invocation.
type Handler func(ctx context.Context, hc *HandlerContext) error

// Handlers are the resolved handlers of one module, in run order.
type Handlers struct {
	Before     []Handler
	After      []Handler
	AfterError []Handler
}

// HandlerRegistry maps handler paths and stages to handlers. A path is a
// prefix of database/restPath: "" applies to everything, "default" to one
// database, "default/autocrud/things" to one table.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[Stage]map[string][]Handler
}

// NewHandlerRegistry creates a new empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[Stage]map[string][]Handler),
	}
}

// Register adds a handler. Handlers on the same path and stage run in
// registration order.
func (r *HandlerRegistry) Register(path string, stage Stage, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers[stage] == nil {
		r.handlers[stage] = make(map[string][]Handler)
	}
	r.handlers[stage][path] = append(r.handlers[stage][path], handler)
}

// Resolve collects the handlers of a module. Before handlers run from the
// root down to the module, after handlers from the module back up.
func (r *HandlerRegistry) Resolve(module *models.AutocrudModule) Handlers {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := models.HandlerPaths(module.Database + "/" + module.RestPath)
	var resolved Handlers
	for _, p := range paths {
		resolved.Before = append(resolved.Before, r.handlers[StageBefore][p]...)
	}
	for i := len(paths) - 1; i >= 0; i-- {
		resolved.After = append(resolved.After, r.handlers[StageAfter][paths[i]]...)
		resolved.AfterError = append(resolved.AfterError, r.handlers[StageAfterError][paths[i]]...)
	}
	return resolved
}
