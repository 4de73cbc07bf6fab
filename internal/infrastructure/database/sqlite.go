package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/pkg/utils"
)

// SQLite is the primary engine: one file, one connection, savepoints for
// nesting. SQLite has no schemas inside one file so every table has an
// empty schema.
type SQLite struct{}

func (d *SQLite) Name() string       { return "sqlite" }
func (d *SQLite) DriverName() string { return "sqlite" }
func (d *SQLite) BindType() int      { return sqlx.QUESTION }

// DSN accepts sqlite:path, sqlite://path and sqlite::memory:.
func (d *SQLite) DSN(root, connectionURL string) (string, error) {
	_, path, _ := strings.Cut(connectionURL, ":")
	path = strings.TrimPrefix(path, "//")
	if path == "" || path == ":memory:" {
		return ":memory:", nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return "file:" + path, nil
}

func (d *SQLite) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d *SQLite) Setup() []string {
	return []string{"PRAGMA foreign_keys = ON"}
}

func (d *SQLite) BeginSQL() string {
	return "BEGIN IMMEDIATE TRANSACTION"
}

func (d *SQLite) CreateTempTableSQL(name, selectSQL string) string {
	return fmt.Sprintf("CREATE TEMPORARY TABLE %s AS %s", d.Quote(name), selectSQL)
}

func (d *SQLite) DropTempTableSQL(name string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS temp.%s", d.Quote(name))
}

func (d *SQLite) DescribeTemp(ctx context.Context, q Querier, name string) ([]models.Column, error) {
	rows, err := q.Execute(ctx, "SELECT name, type FROM pragma_table_info(:table) ORDER BY cid",
		map[string]any{"table": name})
	if err != nil {
		return nil, err
	}
	return describedColumns(rows), nil
}

// CreateSQL reads the keys back by rowid. Only one statement runs at a time
// on the connection, so last_insert_rowid is this insert's row.
func (d *SQLite) CreateSQL(table *models.Table) CreateStatements {
	s := Statements(d)
	target := s.Table(table.Schema, table.Name)
	keys := make([]string, 0, len(table.Keys))
	for _, k := range table.Keys {
		keys = append(keys, k.Physical())
	}
	return CreateStatements{
		Create:   s.Insert(target).Values(insertFields(table)...).Build(),
		Readback: s.From(target).Select(keys...).Where("ROWID = last_insert_rowid()").Build(),
	}
}

func (d *SQLite) MigrationsTableSQL() string {
	return migrationsTableSQL
}

func (d *SQLite) Introspect(ctx context.Context, q Querier) ([]*models.Table, error) {
	tableRows, err := q.Execute(ctx,
		`SELECT name, sql FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name <> :migrations
		 ORDER BY name`,
		map[string]any{"migrations": MigrationsTable})
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}

	tables := make([]*models.Table, 0, len(tableRows))
	byName := make(map[string]*models.Table, len(tableRows))
	for _, row := range tableRows {
		table := &models.Table{Name: rowString(row, "name")}
		if err := d.describeTable(ctx, q, table); err != nil {
			return nil, err
		}
		if strings.Contains(strings.ToUpper(rowString(row, "sql")), "AUTOINCREMENT") {
			table.AutoColumns = append([]models.Column{}, table.Keys...)
		} else {
			table.AutoColumns = []models.Column{}
		}
		tables = append(tables, table)
		byName[table.Name] = table
	}

	// foreign keys second, a NULL target column means the target's primary key
	for _, table := range tables {
		if err := d.foreignKeys(ctx, q, table, byName); err != nil {
			return nil, err
		}
	}
	return tables, nil
}

func (d *SQLite) describeTable(ctx context.Context, q Querier, table *models.Table) error {
	rows, err := q.Execute(ctx, "SELECT name, type, pk FROM pragma_table_info(:table) ORDER BY cid",
		map[string]any{"table": table.Name})
	if err != nil {
		return fmt.Errorf("describing %s: %w", table.Name, err)
	}

	type keyed struct {
		position int
		column   models.Column
	}
	var keys []keyed
	table.Columns = describedColumns(rows)
	for i, row := range rows {
		position, _ := strconv.Atoi(rowString(row, "pk"))
		if position > 0 {
			keys = append(keys, keyed{position: position, column: table.Columns[i]})
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].position < keys[j].position })

	table.Keys = make([]models.Column, 0, len(keys))
	for _, k := range keys {
		table.Keys = append(table.Keys, k.column)
	}
	return nil
}

func (d *SQLite) foreignKeys(ctx context.Context, q Querier, table *models.Table, byName map[string]*models.Table) error {
	rows, err := q.Execute(ctx,
		`SELECT id, "table" AS target, "from" AS source, "to" AS dest
		 FROM pragma_foreign_key_list(:table) ORDER BY id, seq`,
		map[string]any{"table": table.Name})
	if err != nil {
		return fmt.Errorf("reading foreign keys of %s: %w", table.Name, err)
	}

	table.References = make([]models.Reference, 0)
	var current *models.Reference
	currentID := ""
	for _, row := range rows {
		id := rowString(row, "id")
		if current == nil || id != currentID {
			table.References = append(table.References, models.Reference{
				FromTable: table.Name,
				ToTable:   rowString(row, "target"),
			})
			current = &table.References[len(table.References)-1]
			currentID = id
		}
		current.FromColumns = append(current.FromColumns, rowString(row, "source"))
		if dest, ok := utils.ToString(row["dest"]); ok {
			current.ToColumns = append(current.ToColumns, dest)
		}
	}

	for i := range table.References {
		ref := &table.References[i]
		if len(ref.ToColumns) > 0 {
			continue
		}
		if target, ok := byName[ref.ToTable]; ok {
			for _, k := range target.Keys {
				ref.ToColumns = append(ref.ToColumns, k.Physical())
			}
		}
	}
	return nil
}

// describedColumns turns name/type rows into normalized columns.
func describedColumns(rows []models.Row) []models.Column {
	columns := make([]models.Column, 0, len(rows))
	for _, row := range rows {
		columns = append(columns, physicalColumn(rowString(row, "name"), rowString(row, "type")))
	}
	return columns
}

func physicalColumn(name, sqlType string) models.Column {
	column := models.Column{Name: utils.Identifier(name), Type: NormalizeType(sqlType)}
	if column.Name != name {
		column.SQLName = name
	}
	return column
}
