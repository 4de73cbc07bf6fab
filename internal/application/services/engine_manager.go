package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/EmbraceSQL/embracesql/internal/config"
	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/internal/infrastructure/database"
	"github.com/EmbraceSQL/embracesql/pkg/errors"
	"github.com/EmbraceSQL/embracesql/pkg/logging"
)

// Engine is one immutable build: every generated module and configured SQL
// module of every database with its pipeline. A reload builds a new Engine rather than changing one.
type Engine struct {
	pipelines map[string]*Pipeline
	modules   []*models.AutocrudModule
}

// Pipeline finds the pipeline of a module by context name.
func (e *Engine) Pipeline(contextName string) (*Pipeline, bool) {
	p, ok := e.pipelines[contextName]
	return p, ok
}

// Modules lists every module ordered by context name.
func (e *Engine) Modules() []*models.AutocrudModule {
	return e.modules
}

type compiledRule struct {
	path    string
	handler Handler
}

// EngineManager owns the database connections and the current Engine.
type EngineManager struct {
	cfg       *config.Configuration
	handlers  *HandlerRegistry
	logger    *zap.SugaredLogger
	rules     []compiledRule
	databases map[string]*database.Database
	names     []string
	current   atomic.Pointer[Engine]
	mu        sync.Mutex
}

// NewEngineManager prepares a manager. Authorization rules that do not
// compile are logged and left out.
func NewEngineManager(cfg *config.Configuration, handlers *HandlerRegistry, logger *zap.SugaredLogger) *EngineManager {
	if handlers == nil {
		handlers = NewHandlerRegistry()
	}
	m := &EngineManager{
		cfg:       cfg,
		handlers:  handlers,
		logger:    logging.OrNop(logger),
		databases: make(map[string]*database.Database),
	}

	compiler := NewRuleCompiler()
	for _, rule := range cfg.Authorization.Rules {
		handler, err := compiler.Compile(rule)
		if err != nil {
			m.logger.Warnw("skipping authorization rule", "path", rule.Path, "when", rule.When, "error", err)
			continue
		}
		m.rules = append(m.rules, compiledRule{path: rule.Path, handler: handler})
	}
	return m
}

// Start opens every configured database and builds the first Engine. A
// database that cannot be opened is logged and left out.
func (m *EngineManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.cfg.Databases))
	for name := range m.cfg.Databases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, open := m.databases[name]; open {
			continue
		}
		db, err := database.Open(ctx, m.cfg.EmbraceSQLRoot, name, m.cfg.Databases[name], m.logger)
		if err != nil {
			m.logger.Warnw("skipping database", "database", name, "error", err)
			continue
		}
		m.databases[name] = db
		m.names = append(m.names, name)
	}

	m.current.Store(m.build(ctx))
	if len(m.names) == 0 && len(names) > 0 {
		return errors.NewInternalError("no database could be opened", nil)
	}
	return nil
}

// Reload re-reads every schema and swaps in a freshly built Engine. Callers
// already holding the previous Engine finish on it undisturbed.
func (m *EngineManager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reload(ctx)
}

// reload swaps in a new Engine even when some refresh fails, the failing
// database keeps its previous catalog.
func (m *EngineManager) reload(ctx context.Context) error {
	var err error
	for _, name := range m.names {
		if refreshErr := m.databases[name].Refresh(ctx); refreshErr != nil {
			m.logger.Warnw("schema refresh failed", "database", name, "error", refreshErr)
			err = multierr.Append(err, refreshErr)
		}
	}
	m.current.Store(m.build(ctx))
	return err
}

func (m *EngineManager) build(ctx context.Context) *Engine {
	engine := &Engine{pipelines: make(map[string]*Pipeline)}
	add := func(op *Operation) {
		if _, taken := engine.pipelines[op.Module.ContextName]; taken {
			m.logger.Warnw("skipping module", "database", op.Module.Database, "restPath", op.Module.RestPath,
				"error", errors.NewModuleGenerationError(op.Module.ContextName, fmt.Errorf("name already in use")))
			return
		}
		engine.pipelines[op.Module.ContextName] = NewPipeline(op, m.resolve(op.Module), m.logger)
		engine.modules = append(engine.modules, op.Module)
	}

	for _, name := range m.names {
		db := m.databases[name]
		generator := NewAutocrudGenerator(db)
		for _, table := range db.Catalog().Tables() {
			ops, errs := generator.Generate(table)
			for _, err := range errs {
				m.logger.Warnw("skipping module", "database", name, "table", table.QualifiedName(), "error", err)
			}
			for _, op := range ops {
				add(op)
			}
		}

		sqlModules := NewSQLModuleGenerator(db)
		for _, sm := range m.cfg.SQLModules {
			if sm.Database != name {
				continue
			}
			op, err := sqlModules.Generate(ctx, sm.Path, sm.SQL)
			if err != nil {
				m.logger.Warnw("skipping module", "database", name, "restPath", sm.Path, "error", err)
				continue
			}
			add(op)
		}
	}
	for _, sm := range m.cfg.SQLModules {
		if _, open := m.databases[sm.Database]; !open {
			m.logger.Warnw("SQL module for unknown database", "database", sm.Database, "restPath", sm.Path)
		}
	}

	sort.Slice(engine.modules, func(i, j int) bool {
		return engine.modules[i].ContextName < engine.modules[j].ContextName
	})
	m.logger.Debugw("engine built", "databases", len(m.names), "modules", len(engine.modules))
	return engine
}

// resolve puts configured rules ahead of registered handlers, so handler
// code has the last word on grants.
func (m *EngineManager) resolve(module *models.AutocrudModule) Handlers {
	handlers := m.handlers.Resolve(module)
	fullPath := module.Database + "/" + module.RestPath

	var rules []Handler
	for _, rule := range m.rules {
		if rule.path == "" || fullPath == rule.path || strings.HasPrefix(fullPath, rule.path+"/") {
			rules = append(rules, rule.handler)
		}
	}
	handlers.Before = append(rules, handlers.Before...)
	return handlers
}

// Engine is the current build, nil before Start.
func (m *EngineManager) Engine() *Engine {
	return m.current.Load()
}

// Database returns an open database by name.
func (m *EngineManager) Database(name string) (*database.Database, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, ok := m.databases[name]
	return db, ok
}

// Databases lists the names of the open databases.
func (m *EngineManager) Databases() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.names...)
}

// Invoke runs a module by context name through its pipeline.
func (m *EngineManager) Invoke(ctx context.Context, contextName string, c *models.Context) error {
	engine := m.Engine()
	if engine == nil {
		return errors.NewInternalError("engine is not started", nil)
	}
	p, ok := engine.Pipeline(contextName)
	if !ok {
		return errors.NewNotFoundError("module", contextName)
	}
	return p.Invoke(ctx, c)
}

// Migrate applies migration files per database name, in the order given,
// then reloads. A failing file stops the rest of its database but not the
// other databases. It reports how many files ran.
func (m *EngineManager) Migrate(ctx context.Context, files map[string][]database.MigrationFile) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		applied int
		err     error
	)
	for _, name := range m.names {
		db := m.databases[name]
		for _, file := range files[name] {
			ran, migrateErr := db.Migrate(ctx, file)
			if migrateErr != nil {
				err = multierr.Append(err, fmt.Errorf("%s/%s: %w", name, file.Name, migrateErr))
				break
			}
			if ran {
				applied++
			}
		}
	}
	for name := range files {
		if _, ok := m.databases[name]; !ok {
			m.logger.Warnw("migrations for unknown database", "database", name)
		}
	}

	return applied, multierr.Append(err, m.reload(ctx))
}

// Close closes every database. The manager is unusable afterwards.
func (m *EngineManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	for _, name := range m.names {
		err = multierr.Append(err, m.databases[name].Close())
	}
	m.databases = make(map[string]*database.Database)
	m.names = nil
	m.current.Store(&Engine{pipelines: make(map[string]*Pipeline)})
	return err
}
