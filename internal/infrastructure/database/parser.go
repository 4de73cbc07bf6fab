package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // value expressions for the parser
	"go.uber.org/multierr"

	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/pkg/query"
)

const analyzeTable = "__analyze__"

// ParsedQuery is SQL text with its syntax tree and named parameters.
type ParsedQuery struct {
	SQL             string
	Statements      []ast.StmtNode
	NamedParameters []string
}

// ReturnsRows reports whether the text is a single query producing rows.
func (p *ParsedQuery) ReturnsRows() bool {
	if len(p.Statements) != 1 {
		return false
	}
	switch p.Statements[0].(type) {
	case *ast.SelectStmt, *ast.SetOprStmt:
		return true
	default:
		return false
	}
}

var (
	sqlParser   = parser.New()
	sqlParserMu sync.Mutex
)

// Parse reads SQL text with `:name` parameters into a syntax tree.
func (d *Database) Parse(sqlText string) (*ParsedQuery, error) {
	bound, names := query.ParseNamedParameters(sqlText)

	sqlParserMu.Lock()
	defer sqlParserMu.Unlock()
	statements, _, err := sqlParser.Parse(bound, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}
	return &ParsedQuery{SQL: sqlText, Statements: statements, NamedParameters: names}, nil
}

// Analyze learns the result columns of a query by materializing it, with
// every parameter NULL, into a throwaway temporary table. Statements that do
// not return rows have no columns and are never run.
func (d *Database) Analyze(ctx context.Context, parsed *ParsedQuery) ([]models.Column, error) {
	if !parsed.ReturnsRows() {
		return []models.Column{}, nil
	}

	params := make(map[string]any, len(parsed.NamedParameters))
	for _, name := range parsed.NamedParameters {
		params[name] = nil
	}

	var columns []models.Column
	err := d.Atomic(ctx, func(ctx context.Context) (err error) {
		if err := d.exec(ctx, d.dialect.DropTempTableSQL(analyzeTable)); err != nil {
			return err
		}
		if _, err := d.Execute(ctx, d.dialect.CreateTempTableSQL(analyzeTable, parsed.SQL), params); err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, d.exec(ctx, d.dialect.DropTempTableSQL(analyzeTable)))
		}()
		columns, err = d.dialect.DescribeTemp(ctx, d, analyzeTable)
		return err
	})
	if err != nil {
		return nil, err
	}
	return columns, nil
}
