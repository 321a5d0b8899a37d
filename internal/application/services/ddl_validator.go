package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // value expressions for the parser

	"github.com/nexuscrm/kernel/internal/domain/schema"
	"github.com/nexuscrm/kernel/pkg/errors"
	"github.com/nexuscrm/kernel/pkg/models"
)

// DDLValidator parses synthesized SQL with the TiDB parser before it reaches
// the database. The parser is not safe for concurrent use, hence the mutex.
type DDLValidator struct {
	mu     sync.Mutex
	parser *parser.Parser
}

// NewDDLValidator creates a new DDLValidator
func NewDDLValidator() *DDLValidator {
	return &DDLValidator{parser: parser.New()}
}

func (v *DDLValidator) parseOne(sql string) (ast.StmtNode, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	stmts, _, err := v.parser.Parse(sql, "", "")
	if err != nil {
		return nil, fmt.Errorf("SQL parse error: %w", err)
	}
	if len(stmts) != 1 {
		return nil, fmt.Errorf("expected a single statement, got %d", len(stmts))
	}
	return stmts[0], nil
}

// ValidateCreateTable checks that the DDL for def is exactly one idempotent
// CREATE TABLE for the expected table with the expected columns.
func (v *DDLValidator) ValidateCreateTable(def schema.TableDefinition) error {
	stmt, err := v.parseOne(schema.BuildCreateTableDDL(def))
	if err != nil {
		return errors.NewValidationError(def.TableName, err.Error())
	}

	create, ok := stmt.(*ast.CreateTableStmt)
	if !ok {
		return errors.NewValidationError(def.TableName, "synthesized DDL is not a CREATE TABLE statement")
	}
	if !create.IfNotExists {
		return errors.NewValidationError(def.TableName, "synthesized DDL must use IF NOT EXISTS")
	}
	if create.Table.Name.O != def.TableName {
		return errors.NewValidationError(def.TableName, fmt.Sprintf("synthesized DDL targets table '%s'", create.Table.Name.O))
	}
	if len(create.Cols) != len(def.Columns) {
		return errors.NewValidationError(def.TableName,
			fmt.Sprintf("synthesized DDL declares %d columns, expected %d", len(create.Cols), len(def.Columns)))
	}
	for i, col := range create.Cols {
		if !strings.EqualFold(col.Name.Name.O, def.Columns[i].Name) {
			return errors.NewValidationError(def.Columns[i].Name, fmt.Sprintf("synthesized DDL declares column '%s'", col.Name.Name.O))
		}
	}
	return nil
}

// predicateVisitor counts bind parameters and rejects subqueries.
type predicateVisitor struct {
	params int
	err    error
}

func (p *predicateVisitor) Enter(n ast.Node) (ast.Node, bool) {
	switch n.(type) {
	case ast.ParamMarkerExpr:
		p.params++
	case *ast.SubqueryExpr, *ast.ExistsSubqueryExpr:
		p.err = fmt.Errorf("subqueries are not allowed in row predicates")
		return n, true
	}
	return n, false
}

func (p *predicateVisitor) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}

// ValidatePredicate parses a row-level security predicate as the WHERE clause
// of a query on table and checks its placeholders match the bound arguments.
func (v *DDLValidator) ValidatePredicate(table string, pred models.Predicate) error {
	sql := fmt.Sprintf("SELECT 1 FROM %s WHERE %s", schema.QuoteIdent(table), pred.SQL)
	stmt, err := v.parseOne(sql)
	if err != nil {
		return errors.NewInternalError("invalid row predicate", err)
	}
	sel, ok := stmt.(*ast.SelectStmt)
	if !ok || sel.Where == nil {
		return errors.NewInternalError("invalid row predicate", fmt.Errorf("predicate did not parse as a WHERE clause"))
	}

	visitor := &predicateVisitor{}
	sel.Where.Accept(visitor)
	if visitor.err != nil {
		return errors.NewInternalError("invalid row predicate", visitor.err)
	}
	if visitor.params != len(pred.Args) {
		return errors.NewInternalError("invalid row predicate",
			fmt.Errorf("predicate has %d placeholders but %d arguments", visitor.params, len(pred.Args)))
	}
	return nil
}
