package database

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/internal/domain/schema"
	"github.com/EmbraceSQL/embracesql/pkg/errors"
	"github.com/EmbraceSQL/embracesql/pkg/logging"
	"github.com/EmbraceSQL/embracesql/pkg/query"
)

// Database owns exactly one physical connection. Every caller shares it and
// is serialized through Atomic; Execute is a one statement atomic block.
type Database struct {
	name    string
	dialect Dialect
	db      *sqlx.DB
	conn    *sqlx.Conn
	root    *gate
	txs     *TransactionStack
	catalog atomic.Pointer[models.Catalog]
	logger  *zap.SugaredLogger
}

// Open connects to a database by URL, pins a connection, introspects the
// schema and builds its referential graph. root is the directory relative
// file paths resolve against.
func Open(ctx context.Context, root, name, connectionURL string, logger *zap.SugaredLogger) (*Database, error) {
	dialect, err := DialectFor(connectionURL)
	if err != nil {
		return nil, errors.NewSchemaIntrospectionError(name, err)
	}
	dsn, err := dialect.DSN(root, connectionURL)
	if err != nil {
		return nil, errors.NewSchemaIntrospectionError(name, err)
	}

	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, errors.NewSchemaIntrospectionError(name, fmt.Errorf("failed to open database: %w", err))
	}

	d, err := newDatabase(ctx, name, dialect, db, logger)
	if err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	if err := d.Refresh(ctx); err != nil {
		return nil, multierr.Append(err, d.Close())
	}
	return d, nil
}

// newDatabase pins a connection of db and runs the dialect's setup, without
// introspecting.
func newDatabase(ctx context.Context, name string, dialect Dialect, db *sqlx.DB, logger *zap.SugaredLogger) (*Database, error) {
	conn, err := db.Connx(ctx)
	if err != nil {
		return nil, errors.NewSchemaIntrospectionError(name, fmt.Errorf("failed to connect: %w", err))
	}

	d := &Database{
		name:    name,
		dialect: dialect,
		db:      db,
		conn:    conn,
		root:    newGate(),
		logger:  logging.OrNop(logger).With("database", name),
	}
	d.txs = newTransactionStack(d, dialect.BeginSQL())
	d.catalog.Store(models.NewCatalog(nil))

	for _, statement := range dialect.Setup() {
		if err := d.exec(ctx, statement); err != nil {
			return nil, multierr.Append(
				errors.NewSchemaIntrospectionError(name, fmt.Errorf("connection setup: %w", err)),
				conn.Close())
		}
	}
	return d, nil
}

// Refresh re-reads the schema and swaps in a new catalog. Readers holding the
// previous catalog keep a consistent view.
func (d *Database) Refresh(ctx context.Context) error {
	tables, err := d.dialect.Introspect(ctx, d)
	if err != nil {
		return errors.NewSchemaIntrospectionError(d.name, err)
	}
	catalog := models.NewCatalog(tables)
	for _, problem := range schema.BuildReferentialGraph(catalog) {
		d.logger.Warnw("skipping reference", "error", problem)
	}
	d.catalog.Store(catalog)
	return nil
}

// Name is the configured name of the database.
func (d *Database) Name() string {
	return d.name
}

// Dialect is the engine dialect of the connection.
func (d *Database) Dialect() Dialect {
	return d.dialect
}

// Statements returns a query builder factory quoting for this engine.
func (d *Database) Statements() query.Statements {
	return Statements(d.dialect)
}

// Catalog is the current graph enriched table arena.
func (d *Database) Catalog() *models.Catalog {
	return d.catalog.Load()
}

// Transactions is the savepoint stack of the connection.
func (d *Database) Transactions() *TransactionStack {
	return d.txs
}

// Execute runs one statement. Named `:name` parameters are bound from
// params, every name in the statement must be present in params.
func (d *Database) Execute(ctx context.Context, sql string, params map[string]any) ([]models.Row, error) {
	var results []models.Row
	err := d.Atomic(ctx, func(ctx context.Context) error {
		statement, args, err := d.bind(sql, params)
		if err != nil {
			return err
		}

		rows, err := d.conn.QueryxContext(ctx, statement, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		results, err = query.ScanRows(rows)
		return err
	})
	if err != nil {
		d.logger.Debugw("statement failed", "sql", sql, "error", err)
		return nil, err
	}
	return results, nil
}

// exec runs a statement that returns no rows and takes no parameters.
func (d *Database) exec(ctx context.Context, sql string) error {
	return d.Atomic(ctx, func(ctx context.Context) error {
		_, err := d.conn.ExecContext(ctx, sql)
		return err
	})
}

func (d *Database) bind(sql string, params map[string]any) (string, []any, error) {
	if params == nil {
		return sql, nil, nil
	}
	statement, args, err := sqlx.Named(sql, params)
	if err != nil {
		return "", nil, fmt.Errorf("binding parameters: %w", err)
	}
	return sqlx.Rebind(d.dialect.BindType(), statement), args, nil
}

// Close releases the connection. Open transactions are rolled back by the
// engine when the connection goes away.
func (d *Database) Close() error {
	return multierr.Combine(d.conn.Close(), d.db.Close())
}
