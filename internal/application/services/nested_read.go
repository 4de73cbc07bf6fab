package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/internal/infrastructure/database"
	"github.com/EmbraceSQL/embracesql/pkg/query"
	"github.com/EmbraceSQL/embracesql/pkg/utils"
)

// NestedReader reads rows by key along with every row related to them,
// walking the referential graph depth first.
type NestedReader struct {
	db *database.Database
}

// NewNestedReader creates a reader over one database.
func NewNestedReader(db *database.Database) *NestedReader {
	return &NestedReader{db: db}
}

// Read returns the rows of table matching keys. Related rows hang off each
// row under the related table's qualified name, only when there are any.
func (r *NestedReader) Read(ctx context.Context, table *models.Table, keys models.ParameterSet) ([]models.Row, error) {
	var rows []models.Row
	err := r.db.Atomic(ctx, func(ctx context.Context) (err error) {
		t := &traversal{
			db:      r.db,
			catalog: r.db.Catalog(),
			s:       r.db.Statements(),
			suffix:  utils.ShortID(),
			visited: map[string]bool{},
		}
		defer func() {
			err = multierr.Append(err, t.drop(context.WithoutCancel(ctx)))
		}()

		root, err := t.materializeRoot(ctx, table, keys)
		if err != nil {
			return err
		}
		rows, err = t.follow(ctx, table, root)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// traversal is the state of one read. Temp table names carry a suffix
// unique to the read, so concurrent reads never share a table.
type traversal struct {
	db      *database.Database
	catalog *models.Catalog
	s       query.Statements
	suffix  string
	visited map[string]bool
	temps   []string
}

func (t *traversal) tempName(table *models.Table) string {
	return fmt.Sprintf("_%s_%s", utils.Identifier(table.QualifiedName()), t.suffix)
}

// materializeRoot copies the keyed rows into a temp table. The table is
// created empty and filled by INSERT so no engine sees parameters in DDL.
func (t *traversal) materializeRoot(ctx context.Context, table *models.Table, keys models.ParameterSet) (string, error) {
	name := t.tempName(table)
	source := t.s.Table(table.Schema, table.Name)
	if err := t.createTemp(ctx, name, t.s.From(source).Where("1 = 0").Build()); err != nil {
		return "", err
	}
	fill := fmt.Sprintf("INSERT INTO %s %s", t.s.Quote(name),
		t.s.From(source).WhereKeys(keyFields(table)...).Build())
	if _, err := t.db.Execute(ctx, fill, keys); err != nil {
		return "", err
	}
	return name, nil
}

func (t *traversal) createTemp(ctx context.Context, name, selectSQL string) error {
	if _, err := t.db.Execute(ctx, t.db.Dialect().CreateTempTableSQL(name, selectSQL), nil); err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	t.temps = append(t.temps, name)
	return nil
}

// follow reads the rows staged in temp for table, then stages, reads and
// joins each unvisited neighbour before returning.
func (t *traversal) follow(ctx context.Context, table *models.Table, temp string) ([]models.Row, error) {
	t.visited[table.QualifiedName()] = true

	rows, err := t.db.Execute(ctx, t.s.From(t.s.Quote(temp)).Build(), nil)
	if err != nil {
		return nil, err
	}
	rows = normalizeRows(table, rows)

	for _, related := range table.RelatedData {
		// the graph is undirected, the way back is always there
		if t.visited[related.ToTable] {
			continue
		}
		target, ok := t.catalog.Table(related.ToTable)
		if !ok {
			continue
		}

		targetTemp := t.tempName(target)
		pairs := make([]query.JoinPair, 0, len(related.JoinColumns))
		for i, c := range related.JoinColumns {
			pairs = append(pairs, query.JoinPair{
				Column:      related.ToTableJoinColumns[i].Physical(),
				OtherColumn: c.Physical(),
			})
		}
		stage := t.s.From(t.s.Table(target.Schema, target.Name)).WhereExists(t.s.Quote(temp), pairs...).Build()
		if err := t.createTemp(ctx, targetTemp, stage); err != nil {
			return nil, err
		}

		relatedRows, err := t.follow(ctx, target, targetTemp)
		if err != nil {
			return nil, err
		}
		hashJoin(rows, related, relatedRows)
	}
	return rows, nil
}

func (t *traversal) drop(ctx context.Context) error {
	var err error
	for i := len(t.temps) - 1; i >= 0; i-- {
		if _, dropErr := t.db.Execute(ctx, t.db.Dialect().DropTempTableSQL(t.temps[i]), nil); dropErr != nil {
			err = multierr.Append(err, dropErr)
		}
	}
	t.temps = nil
	return err
}

// hashJoin nests related rows under every row sharing their join key. Both
// sides are multimaps, so many to many joins attach every match. Rows
// without a match are left untouched.
func hashJoin(rows []models.Row, related models.RelatedData, relatedRows []models.Row) {
	byKey := make(map[string][]models.Row)
	for _, row := range relatedRows {
		if key, ok := joinKey(row, related.ToTableJoinColumns); ok {
			byKey[key] = append(byKey[key], row)
		}
	}
	for _, row := range rows {
		key, ok := joinKey(row, related.JoinColumns)
		if !ok {
			continue
		}
		if matches, ok := byKey[key]; ok {
			row[related.ToTable] = matches
		}
	}
}

// joinKey composes the join column values in column order. NULL joins
// nothing.
func joinKey(row models.Row, columns []models.Column) (string, bool) {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		s, ok := utils.ToString(row[c.Name])
		if !ok {
			return "", false
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\x00"), true
}
