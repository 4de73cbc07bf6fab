package services

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/multierr"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/internal/infrastructure/database"
	"github.com/EmbraceSQL/embracesql/pkg/errors"
)

// SQLModuleGenerator turns parameterized SQL text into operations served
// next to the generated table verbs.
type SQLModuleGenerator struct {
	db *database.Database
}

// NewSQLModuleGenerator creates a generator over one database.
func NewSQLModuleGenerator(db *database.Database) *SQLModuleGenerator {
	return &SQLModuleGenerator{db: db}
}

// Generate parses and analyzes sqlText and binds it as the module at
// restPath. Any failure is a ModuleGenerationError naming the module.
func (g *SQLModuleGenerator) Generate(ctx context.Context, restPath, sqlText string) (*Operation, error) {
	restPath = strings.Trim(path.Clean("/"+restPath), "/")
	contextName := models.ContextName(g.db.Name(), restPath)
	fail := func(err error) (*Operation, error) {
		return nil, errors.NewModuleGenerationError(contextName, err)
	}

	switch {
	case restPath == "":
		return fail(fmt.Errorf("a SQL module needs a path"))
	case restPath == "autocrud" || strings.HasPrefix(restPath, "autocrud/"):
		return fail(fmt.Errorf("path %s is reserved for generated table modules", restPath))
	}

	parsed, err := g.db.Parse(sqlText)
	if err != nil {
		return fail(err)
	}
	if len(parsed.Statements) != 1 {
		return fail(fmt.Errorf("expected one statement, found %d", len(parsed.Statements)))
	}

	resultset, err := g.analyze(ctx, parsed)
	if err != nil {
		return fail(fmt.Errorf("analyzing: %w", err))
	}

	parameters := make([]models.Column, 0, len(parsed.NamedParameters))
	for _, name := range parsed.NamedParameters {
		parameters = append(parameters, models.Column{Name: name, Type: models.TypeString})
	}

	module := &models.AutocrudModule{
		Database:          g.db.Name(),
		RestPath:          restPath,
		ContextName:       contextName,
		NamedParameters:   parameters,
		ResultsetMetadata: resultset,
		CanModifyData:     !parsed.ReturnsRows(),
		SQL:               sqlText,
	}
	names := module.NamedParameterNames()

	op := &Operation{
		Module: module,
		DB:     g.db,
		One: func(ctx context.Context, params models.ParameterSet) ([]models.Row, error) {
			return g.execute(ctx, sqlText, validParameters(names, params))
		},
	}
	if len(names) == 0 {
		op.All = func(ctx context.Context) ([]models.Row, error) {
			return g.execute(ctx, sqlText, nil)
		}
	}
	return op, nil
}

// analyze runs inside a transaction level that is always rolled back, so
// learning the result columns leaves the database as it was.
func (g *SQLModuleGenerator) analyze(ctx context.Context, parsed *database.ParsedQuery) (columns []models.Column, err error) {
	err = g.db.Atomic(ctx, func(ctx context.Context) error {
		txs := g.db.Transactions()
		if err := txs.Begin(ctx); err != nil {
			return err
		}
		var analyzeErr error
		columns, analyzeErr = g.db.Analyze(ctx, parsed)
		return multierr.Append(analyzeErr, txs.Rollback(ctx))
	})
	return columns, err
}

func (g *SQLModuleGenerator) execute(ctx context.Context, sqlText string, params models.ParameterSet) ([]models.Row, error) {
	rows, err := g.db.Execute(ctx, sqlText, params)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.Row{}
	}
	return rows, nil
}
