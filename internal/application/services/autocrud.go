package services

import (
	"context"
	"fmt"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/internal/infrastructure/database"
	"github.com/EmbraceSQL/embracesql/pkg/errors"
	"github.com/EmbraceSQL/embracesql/pkg/query"
)

// RowFunc runs an operation for one parameter set.
type RowFunc func(ctx context.Context, params models.ParameterSet) ([]models.Row, error)

// AllFunc runs an operation without parameters.
type AllFunc func(ctx context.Context) ([]models.Row, error)

// Operation is a generated module bound to the database that runs it.
type Operation struct {
	Module *models.AutocrudModule
	DB     *database.Database
	// One runs a single parameter set.
	One RowFunc
	// All runs without parameters. Nil when parameters are required.
	All AllFunc
	// Singular operations yield exactly one row per parameter set, a single
	// call answers with that row rather than a list.
	Singular bool
}

// AutocrudGenerator derives the CRUD operations of a table.
type AutocrudGenerator struct {
	db *database.Database
}

// NewAutocrudGenerator creates a generator over one database.
func NewAutocrudGenerator(db *database.Database) *AutocrudGenerator {
	return &AutocrudGenerator{db: db}
}

// Generate builds every verb of a table. A verb that cannot be built is
// reported in errs and the others are still returned.
func (g *AutocrudGenerator) Generate(table *models.Table) (ops []*Operation, errs []error) {
	for _, verb := range models.Verbs {
		op, err := g.generate(table, verb)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if op != nil {
			ops = append(ops, op)
		}
	}
	return ops, errs
}

func (g *AutocrudGenerator) generate(table *models.Table, verb models.Verb) (op *Operation, err error) {
	module := g.module(table, verb)

	// metadata from introspection is outside our control
	defer func() {
		if p := recover(); p != nil {
			op, err = nil, errors.NewModuleGenerationError(module.ContextName, fmt.Errorf("%v", p))
		}
	}()

	switch verb {
	case models.VerbCreate:
		return g.create(module), nil
	case models.VerbRead:
		return g.read(module), nil
	case models.VerbUpdate:
		if len(table.Keys) == 0 {
			return nil, errors.NewModuleGenerationError(module.ContextName, fmt.Errorf("table %s has no primary key", table.QualifiedName()))
		}
		return g.update(module), nil
	case models.VerbDelete:
		if len(table.Keys) == 0 {
			return nil, errors.NewModuleGenerationError(module.ContextName, fmt.Errorf("table %s has no primary key", table.QualifiedName()))
		}
		return g.delete(module), nil
	case models.VerbReadWithRelated:
		if len(table.RelatedData) == 0 {
			return nil, nil
		}
		return g.readWithRelated(module), nil
	default:
		return nil, errors.NewModuleGenerationError(module.ContextName, fmt.Errorf("unknown verb %q", verb))
	}
}

func (g *AutocrudGenerator) module(table *models.Table, verb models.Verb) *models.AutocrudModule {
	restPath := models.TableRestPath(table) + "/" + string(verb)
	return &models.AutocrudModule{
		Database:    g.db.Name(),
		Table:       table,
		Verb:        verb,
		RestPath:    restPath,
		ContextName: models.ContextName(g.db.Name(), restPath),
	}
}

func (g *AutocrudGenerator) statements() query.Statements {
	return g.db.Statements()
}

func (g *AutocrudGenerator) target(table *models.Table) string {
	return g.statements().Table(table.Schema, table.Name)
}

// create inserts a row and reads back its keys. Insert and readback share
// one atomic block so a concurrent create cannot move last inserted id.
func (g *AutocrudGenerator) create(module *models.AutocrudModule) *Operation {
	table := module.Table
	module.NamedParameters = table.Writable()
	module.WorkOnTheseColumns = table.Writable()
	module.ResultsetMetadata = table.Keys
	module.CanModifyData = true

	sql := g.db.Dialect().CreateSQL(table)
	names := module.NamedParameterNames()

	return &Operation{
		Module:   module,
		DB:       g.db,
		Singular: true,
		One: func(ctx context.Context, params models.ParameterSet) ([]models.Row, error) {
			bound := validParameters(names, params)
			var key models.Row
			err := g.db.Atomic(ctx, func(ctx context.Context) error {
				rows, err := g.db.Execute(ctx, sql.Create, bound)
				if err != nil {
					return err
				}
				if sql.Readback != "" {
					if rows, err = g.db.Execute(ctx, sql.Readback, bound); err != nil {
						return err
					}
				}
				key = models.Row{}
				if len(rows) > 0 {
					key = normalizeRow(table, rows[0])
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			return []models.Row{key}, nil
		},
	}
}

// read selects every row without parameters, or the rows matching the keys.
func (g *AutocrudGenerator) read(module *models.AutocrudModule) *Operation {
	table := module.Table
	module.NamedParameters = table.Keys
	module.ResultsetMetadata = table.Columns

	s := g.statements()
	all := s.From(g.target(table)).Build()
	byKey := s.From(g.target(table)).WhereKeys(keyFields(table)...).Build()
	names := module.NamedParameterNames()

	return &Operation{
		Module: module,
		DB:     g.db,
		One: func(ctx context.Context, params models.ParameterSet) ([]models.Row, error) {
			rows, err := g.db.Execute(ctx, byKey, validParameters(names, params))
			if err != nil {
				return nil, err
			}
			return normalizeRows(table, rows), nil
		},
		All: func(ctx context.Context) ([]models.Row, error) {
			rows, err := g.db.Execute(ctx, all, nil)
			if err != nil {
				return nil, err
			}
			return normalizeRows(table, rows), nil
		},
	}
}

// update writes every non key column, a null parameter keeps the stored
// value. The result is the parameters used, not a fresh read.
func (g *AutocrudGenerator) update(module *models.AutocrudModule) *Operation {
	table := module.Table
	module.NamedParameters = table.Columns
	module.WorkOnTheseColumns = table.NonKeys()
	module.ResultsetMetadata = table.Columns
	module.CanModifyData = true

	sets := make([]query.Field, 0, len(module.WorkOnTheseColumns))
	for _, c := range module.WorkOnTheseColumns {
		sets = append(sets, query.F(c.Physical(), c.Name))
	}
	sql := g.statements().Update(g.target(table)).SetCoalesce(sets...).WhereKeys(keyFields(table)...).Build()
	names := module.NamedParameterNames()

	return &Operation{
		Module:   module,
		DB:       g.db,
		Singular: true,
		One: func(ctx context.Context, params models.ParameterSet) ([]models.Row, error) {
			bound := validParameters(names, params)
			// a table of nothing but keys has nothing to set
			if len(sets) > 0 {
				if _, err := g.db.Execute(ctx, sql, bound); err != nil {
					return nil, err
				}
			}
			return []models.Row{bound}, nil
		},
	}
}

// delete removes rows by key. Extra parameters are dropped so read output
// can be passed straight in.
func (g *AutocrudGenerator) delete(module *models.AutocrudModule) *Operation {
	table := module.Table
	module.NamedParameters = table.Keys
	module.ResultsetMetadata = table.Keys
	module.CanModifyData = true

	sql := g.statements().Delete(g.target(table)).WhereKeys(keyFields(table)...).Build()
	names := module.NamedParameterNames()

	return &Operation{
		Module:   module,
		DB:       g.db,
		Singular: true,
		One: func(ctx context.Context, params models.ParameterSet) ([]models.Row, error) {
			bound := validParameters(names, params)
			if _, err := g.db.Execute(ctx, sql, bound); err != nil {
				return nil, err
			}
			return []models.Row{bound}, nil
		},
	}
}

// readWithRelated reads by key and nests related rows along the graph.
// There is no read all with related.
func (g *AutocrudGenerator) readWithRelated(module *models.AutocrudModule) *Operation {
	table := module.Table
	module.NamedParameters = table.Keys
	module.ResultsetMetadata = relatedResultset(g.db.Catalog(), table)

	reader := NewNestedReader(g.db)
	names := module.NamedParameterNames()

	return &Operation{
		Module: module,
		DB:     g.db,
		One: func(ctx context.Context, params models.ParameterSet) ([]models.Row, error) {
			return reader.Read(ctx, table, validParameters(names, params))
		},
	}
}

// relatedResultset describes the nested result of a read with related,
// following the graph the same way the reader does.
func relatedResultset(catalog *models.Catalog, root *models.Table) []models.Column {
	visited := map[string]bool{}
	var follow func(table *models.Table) []models.Column
	follow = func(table *models.Table) []models.Column {
		visited[table.QualifiedName()] = true
		columns := append([]models.Column{}, table.Columns...)
		for _, related := range table.RelatedData {
			if visited[related.ToTable] {
				continue
			}
			target, ok := catalog.Table(related.ToTable)
			if !ok {
				continue
			}
			columns = append(columns, models.Column{
				Name:   related.ToTable,
				Type:   models.TypeNested,
				Nested: follow(target),
			})
		}
		return columns
	}
	return follow(root)
}

// validParameters keeps only the named parameters, missing ones bind NULL.
func validParameters(names []string, params models.ParameterSet) models.ParameterSet {
	bound := make(models.ParameterSet, len(names))
	for _, name := range names {
		bound[name] = params[name]
	}
	return bound
}

func keyFields(table *models.Table) []query.Field {
	fields := make([]query.Field, 0, len(table.Keys))
	for _, k := range table.Keys {
		fields = append(fields, query.F(k.Physical(), k.Name))
	}
	return fields
}

// normalizeRow renames physical column names to their normalized names.
func normalizeRow(table *models.Table, row models.Row) models.Row {
	for _, c := range table.Columns {
		if c.SQLName == "" {
			continue
		}
		if v, ok := row[c.SQLName]; ok {
			delete(row, c.SQLName)
			row[c.Name] = v
		}
	}
	return row
}

func normalizeRows(table *models.Table, rows []models.Row) []models.Row {
	for _, row := range rows {
		normalizeRow(table, row)
	}
	if rows == nil {
		rows = []models.Row{}
	}
	return rows
}
