package query

import (
	"fmt"
	"strings"
)

// QueryType represents the type of SQL query
type QueryType string

const (
	QueryTypeSelect QueryType = "SELECT"
	QueryTypeInsert QueryType = "INSERT"
	QueryTypeUpdate QueryType = "UPDATE"
	QueryTypeDelete QueryType = "DELETE"
)

// Quoter renders an identifier safely for one SQL dialect.
type Quoter func(ident string) string

// Field pairs a physical column with the named parameter bound to it.
type Field struct {
	Column string
	Param  string
}

// F is shorthand for a Field.
func F(column, param string) Field {
	return Field{Column: column, Param: param}
}

// JoinPair equates a column of the statement's table with a column of another table.
type JoinPair struct {
	Column      string
	OtherColumn string
}

// Statements creates builders that all quote with the same dialect rules.
type Statements struct {
	quote Quoter
}

// New returns a statement factory for a quoting function.
func New(quote Quoter) Statements {
	return Statements{quote: quote}
}

// Quote quotes a single identifier.
func (s Statements) Quote(ident string) string {
	return s.quote(ident)
}

// Table renders a possibly schema qualified table reference.
func (s Statements) Table(schema, name string) string {
	if schema == "" {
		return s.quote(name)
	}
	return s.quote(schema) + "." + s.quote(name)
}

// Builder is a fluent SQL query builder producing `:name` parameter SQL
type Builder struct {
	quote        Quoter
	queryType    QueryType
	table        string
	fields       []string
	values       []Field
	sets         []Field
	whereClauses []string
	returning    []string
}

// From creates a new SELECT query builder over an already rendered table reference
func (s Statements) From(table string) *Builder {
	return &Builder{quote: s.quote, queryType: QueryTypeSelect, table: table}
}

// Insert creates a new INSERT query builder
func (s Statements) Insert(table string) *Builder {
	return &Builder{quote: s.quote, queryType: QueryTypeInsert, table: table}
}

// Update creates a new UPDATE query builder
func (s Statements) Update(table string) *Builder {
	return &Builder{quote: s.quote, queryType: QueryTypeUpdate, table: table}
}

// Delete creates a new DELETE query builder
func (s Statements) Delete(table string) *Builder {
	return &Builder{quote: s.quote, queryType: QueryTypeDelete, table: table}
}

// Select specifies which columns to select, all columns when never called
func (b *Builder) Select(columns ...string) *Builder {
	if b.queryType != QueryTypeSelect {
		return b
	}
	for _, column := range columns {
		b.fields = append(b.fields, b.quote(column))
	}
	return b
}

// Values sets the columns written by an INSERT
func (b *Builder) Values(fields ...Field) *Builder {
	if b.queryType != QueryTypeInsert {
		return b
	}
	b.values = append(b.values, fields...)
	return b
}

// SetCoalesce writes each column only when its parameter is not null
func (b *Builder) SetCoalesce(fields ...Field) *Builder {
	if b.queryType != QueryTypeUpdate {
		return b
	}
	b.sets = append(b.sets, fields...)
	return b
}

// Returning adds a RETURNING clause to an INSERT
func (b *Builder) Returning(columns ...string) *Builder {
	if b.queryType != QueryTypeInsert {
		return b
	}
	for _, column := range columns {
		b.returning = append(b.returning, b.quote(column))
	}
	return b
}

// Where adds a raw WHERE condition
func (b *Builder) Where(condition string) *Builder {
	if condition != "" {
		b.whereClauses = append(b.whereClauses, condition)
	}
	return b
}

// WhereKeys adds one equality condition per field, ANDed together
func (b *Builder) WhereKeys(fields ...Field) *Builder {
	for _, f := range fields {
		b.whereClauses = append(b.whereClauses, fmt.Sprintf("%s = :%s", b.quote(f.Column), f.Param))
	}
	return b
}

// WhereExists keeps only rows that have at least one match in other.
// A semi-join never multiplies rows, unlike an inner join.
func (b *Builder) WhereExists(other string, pairs ...JoinPair) *Builder {
	if len(pairs) == 0 {
		return b
	}
	on := make([]string, 0, len(pairs))
	for _, p := range pairs {
		on = append(on, fmt.Sprintf("%s.%s = %s.%s", other, b.quote(p.OtherColumn), b.table, b.quote(p.Column)))
	}
	b.whereClauses = append(b.whereClauses,
		fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s)", other, strings.Join(on, " AND ")))
	return b
}

// Build constructs the final SQL query
func (b *Builder) Build() string {
	switch b.queryType {
	case QueryTypeInsert:
		return b.buildInsert()
	case QueryTypeUpdate:
		return b.buildUpdate()
	case QueryTypeDelete:
		return b.buildDelete()
	default:
		return b.buildSelect()
	}
}

func (b *Builder) where() string {
	if len(b.whereClauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.whereClauses, " AND ")
}

func (b *Builder) buildSelect() string {
	fields := "*"
	if len(b.fields) > 0 {
		fields = strings.Join(b.fields, ", ")
	}
	return fmt.Sprintf("SELECT %s FROM %s", fields, b.table) + b.where()
}

func (b *Builder) buildInsert() string {
	if len(b.values) == 0 {
		sql := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", b.table)
		return sql + b.buildReturning()
	}

	cols := make([]string, 0, len(b.values))
	placeholders := make([]string, 0, len(b.values))
	for _, f := range b.values {
		cols = append(cols, b.quote(f.Column))
		placeholders = append(placeholders, ":"+f.Param)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "))
	return sql + b.buildReturning()
}

func (b *Builder) buildReturning() string {
	if len(b.returning) == 0 {
		return ""
	}
	return " RETURNING " + strings.Join(b.returning, ", ")
}

func (b *Builder) buildUpdate() string {
	setClauses := make([]string, 0, len(b.sets))
	for _, f := range b.sets {
		col := b.quote(f.Column)
		setClauses = append(setClauses, fmt.Sprintf("%s = COALESCE(:%s, %s)", col, f.Param, col))
	}
	return fmt.Sprintf("UPDATE %s SET %s", b.table, strings.Join(setClauses, ", ")) + b.where()
}

func (b *Builder) buildDelete() string {
	return fmt.Sprintf("DELETE FROM %s", b.table) + b.where()
}
