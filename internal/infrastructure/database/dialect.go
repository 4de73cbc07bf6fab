package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/pkg/query"
	"github.com/EmbraceSQL/embracesql/pkg/utils"
)

// Querier runs one statement with named parameters.
type Querier interface {
	Execute(ctx context.Context, sql string, params map[string]any) ([]models.Row, error)
}

// CreateStatements is the SQL behind a create. Readback is empty when Create
// returns the generated keys itself.
type CreateStatements struct {
	Create   string
	Readback string
}

// Dialect is everything that differs between engines. Adding an engine means
// implementing this and registering its URL scheme.
type Dialect interface {
	Name() string
	DriverName() string
	// DSN turns a connection URL into a driver data source name. Relative
	// file paths resolve against root.
	DSN(root, connectionURL string) (string, error)
	BindType() int
	Quote(ident string) string
	// Setup statements run once after the connection is pinned.
	Setup() []string
	Introspect(ctx context.Context, q Querier) ([]*models.Table, error)
	BeginSQL() string
	CreateTempTableSQL(name, selectSQL string) string
	DropTempTableSQL(name string) string
	DescribeTemp(ctx context.Context, q Querier, name string) ([]models.Column, error)
	CreateSQL(table *models.Table) CreateStatements
	MigrationsTableSQL() string
}

var dialects = map[string]func() Dialect{
	"sqlite":     func() Dialect { return &SQLite{} },
	"mysql":      func() Dialect { return &MySQL{} },
	"postgres":   func() Dialect { return &Postgres{} },
	"postgresql": func() Dialect { return &Postgres{} },
}

// DialectFor picks a dialect by the scheme of a connection URL.
func DialectFor(connectionURL string) (Dialect, error) {
	scheme, _, ok := strings.Cut(connectionURL, ":")
	if !ok {
		return nil, fmt.Errorf("connection url %q has no scheme", connectionURL)
	}
	factory, ok := dialects[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("unsupported database scheme %q", scheme)
	}
	return factory(), nil
}

var numberTypes = map[string]bool{
	"int": true, "integer": true, "tinyint": true, "smallint": true, "mediumint": true, "bigint": true,
	"int2": true, "int4": true, "int8": true, "serial": true, "smallserial": true, "bigserial": true,
	"real": true, "numeric": true, "decimal": true, "number": true,
	"float": true, "float4": true, "float8": true, "double": true,
}

// NormalizeType maps an engine column type onto the shared type names.
func NormalizeType(sqlType string) models.TypeName {
	words := strings.FieldsFunc(strings.ToLower(sqlType), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		switch {
		case word == "bool" || word == "boolean":
			return models.TypeBoolean
		case numberTypes[word]:
			return models.TypeNumber
		}
	}
	return models.TypeString
}

// Statements returns a query builder factory quoting for d.
func Statements(d Dialect) query.Statements {
	return query.New(d.Quote)
}

// readbackByKeys selects the key columns of the row matching the key
// parameters just inserted.
func readbackByKeys(d Dialect, schema string, table *models.Table) string {
	s := Statements(d)
	fields := make([]query.Field, 0, len(table.Keys))
	cols := make([]string, 0, len(table.Keys))
	for _, k := range table.Keys {
		fields = append(fields, query.F(k.Physical(), k.Name))
		cols = append(cols, k.Physical())
	}
	return s.From(s.Table(schema, table.Name)).Select(cols...).WhereKeys(fields...).Build()
}

func insertFields(table *models.Table) []query.Field {
	fields := make([]query.Field, 0, len(table.Columns))
	for _, c := range table.Writable() {
		fields = append(fields, query.F(c.Physical(), c.Name))
	}
	return fields
}

func parseURL(connectionURL string) (*url.URL, error) {
	u, err := url.Parse(connectionURL)
	if err != nil {
		return nil, fmt.Errorf("invalid connection url: %w", err)
	}
	return u, nil
}

// rowString reads a text column from an introspection row.
func rowString(row models.Row, column string) string {
	s, _ := utils.ToString(row[column])
	return s
}
