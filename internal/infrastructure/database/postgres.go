package database

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/pkg/utils"
)

// Postgres has no last inserted row primitive, creates return their keys
// with RETURNING instead of a readback.
type Postgres struct{}

func (d *Postgres) Name() string       { return "postgres" }
func (d *Postgres) DriverName() string { return "pgx" }
func (d *Postgres) BindType() int      { return sqlx.DOLLAR }

// DSN passes postgres:// URLs straight to pgx, which parses them itself.
func (d *Postgres) DSN(_ string, connectionURL string) (string, error) {
	if _, err := parseURL(connectionURL); err != nil {
		return "", err
	}
	return connectionURL, nil
}

func (d *Postgres) Quote(ident string) string {
	return pq.QuoteIdentifier(ident)
}

func (d *Postgres) Setup() []string {
	return nil
}

func (d *Postgres) BeginSQL() string {
	return "BEGIN"
}

func (d *Postgres) CreateTempTableSQL(name, selectSQL string) string {
	return fmt.Sprintf("CREATE TEMPORARY TABLE %s AS %s", d.Quote(name), selectSQL)
}

func (d *Postgres) DropTempTableSQL(name string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS pg_temp.%s", d.Quote(name))
}

func (d *Postgres) DescribeTemp(ctx context.Context, q Querier, name string) ([]models.Column, error) {
	rows, err := q.Execute(ctx,
		`SELECT a.attname AS name, format_type(a.atttypid, a.atttypmod) AS type
		 FROM pg_attribute a
		 WHERE a.attrelid = to_regclass(:table) AND a.attnum > 0 AND NOT a.attisdropped
		 ORDER BY a.attnum`,
		map[string]any{"table": d.Quote(name)})
	if err != nil {
		return nil, err
	}
	return describedColumns(rows), nil
}

func (d *Postgres) CreateSQL(table *models.Table) CreateStatements {
	s := Statements(d)
	keys := make([]string, 0, len(table.Keys))
	for _, k := range table.Keys {
		keys = append(keys, k.Physical())
	}
	insert := s.Insert(s.Table(table.Schema, table.Name)).Values(insertFields(table)...)
	if len(keys) > 0 {
		insert = insert.Returning(keys...)
	}
	return CreateStatements{Create: insert.Build()}
}

func (d *Postgres) MigrationsTableSQL() string {
	return migrationsTableSQL
}

func (d *Postgres) Introspect(ctx context.Context, q Querier) ([]*models.Table, error) {
	columnRows, err := q.Execute(ctx,
		`SELECT c.table_schema, c.table_name, c.column_name, c.data_type,
		        c.column_default, c.is_identity
		 FROM information_schema.columns c
		 JOIN information_schema.tables t
		   ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		 WHERE t.table_type = 'BASE TABLE'
		   AND c.table_schema NOT IN ('pg_catalog', 'information_schema')
		   AND c.table_name <> :migrations
		 ORDER BY c.table_schema, c.table_name, c.ordinal_position`,
		map[string]any{"migrations": MigrationsTable})
	if err != nil {
		return nil, fmt.Errorf("listing columns: %w", err)
	}

	tables := make([]*models.Table, 0)
	byName := make(map[string]*models.Table)
	generated := make(map[string]bool)
	for _, row := range columnRows {
		schema, name := rowString(row, "table_schema"), rowString(row, "table_name")
		key := models.QualifiedName(schema, name)
		table, ok := byName[key]
		if !ok {
			table = &models.Table{
				Schema:      schema,
				Name:        name,
				AutoColumns: []models.Column{},
				Keys:        []models.Column{},
				References:  []models.Reference{},
			}
			byName[key] = table
			tables = append(tables, table)
		}
		column := physicalColumn(rowString(row, "column_name"), rowString(row, "data_type"))
		table.Columns = append(table.Columns, column)
		if utils.ToBool(row["is_identity"]) || strings.HasPrefix(rowString(row, "column_default"), "nextval(") {
			generated[key+"."+column.Physical()] = true
		}
	}

	keyRows, err := q.Execute(ctx,
		`SELECT kcu.table_schema, kcu.table_name, kcu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu
		   ON kcu.constraint_name = tc.constraint_name
		  AND kcu.table_schema = tc.table_schema
		  AND kcu.table_name = tc.table_name
		 WHERE tc.constraint_type = 'PRIMARY KEY'
		 ORDER BY kcu.table_schema, kcu.table_name, kcu.ordinal_position`, nil)
	if err != nil {
		return nil, fmt.Errorf("listing primary keys: %w", err)
	}
	for _, row := range keyRows {
		key := models.QualifiedName(rowString(row, "table_schema"), rowString(row, "table_name"))
		table, ok := byName[key]
		if !ok {
			continue
		}
		column, ok := table.ColumnByPhysical(rowString(row, "column_name"))
		if !ok {
			continue
		}
		table.Keys = append(table.Keys, column)
		if generated[key+"."+column.Physical()] {
			table.AutoColumns = append(table.AutoColumns, column)
		}
	}

	fkRows, err := q.Execute(ctx,
		`SELECT con.conname AS constraint_name,
		        ns.nspname AS table_schema, cl.relname AS table_name, a.attname AS column_name,
		        fns.nspname AS referenced_schema, fcl.relname AS referenced_table,
		        fa.attname AS referenced_column
		 FROM pg_constraint con
		 JOIN pg_class cl ON cl.oid = con.conrelid
		 JOIN pg_namespace ns ON ns.oid = cl.relnamespace
		 JOIN pg_class fcl ON fcl.oid = con.confrelid
		 JOIN pg_namespace fns ON fns.oid = fcl.relnamespace
		 CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, fattnum, ord)
		 JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		 JOIN pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = k.fattnum
		 WHERE con.contype = 'f'
		 ORDER BY ns.nspname, cl.relname, con.conname, k.ord`, nil)
	if err != nil {
		return nil, fmt.Errorf("listing foreign keys: %w", err)
	}
	groupReferences(fkRows, byName)
	return tables, nil
}
