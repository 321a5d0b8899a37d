package expression

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// ColumnFilter decides whether an identifier may be emitted as a column.
type ColumnFilter func(name string) bool

// SQLWalker converts an expr AST to a parameterized SQL boolean expression
type SQLWalker struct {
	builder strings.Builder
	args    []interface{}
	columns ColumnFilter
	err     error
}

// isNilNode checks if a node represents a null/nil value
// In expr-lang, null can be either a NilNode or an IdentifierNode with value "null", "nil", or "NULL"
func isNilNode(node ast.Node) bool {
	if _, ok := node.(*ast.NilNode); ok {
		return true
	}
	if id, ok := node.(*ast.IdentifierNode); ok {
		val := strings.ToLower(id.Value)
		return val == "null" || val == "nil"
	}
	return false
}

// ToSQL converts an expression string to a SQL WHERE clause and arguments.
// Every literal becomes a bind parameter. Identifiers are emitted as quoted
// columns and must pass the column filter when one is given.
func ToSQL(expression string, columns ColumnFilter) (string, []interface{}, error) {
	tree, err := parser.Parse(Normalize(expression))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse expression: %w", err)
	}

	walker := &SQLWalker{
		args:    make([]interface{}, 0),
		columns: columns,
	}
	walker.walk(&tree.Node)

	if walker.err != nil {
		return "", nil, walker.err
	}
	return walker.builder.String(), walker.args, nil
}

func (w *SQLWalker) walk(node *ast.Node) {
	if w.err != nil {
		return
	}
	if node == nil || *node == nil {
		return
	}

	switch v := (*node).(type) {
	case *ast.BinaryNode:
		w.visitBinary(v)
	case *ast.UnaryNode:
		w.visitUnary(v)
	case *ast.IdentifierNode:
		if val, ok := LiteralValue(v.Value); ok {
			if val == nil {
				w.builder.WriteString("NULL")
				return
			}
			w.bind(val)
			return
		}
		w.column(v.Value)
	case *ast.MemberNode:
		root, ok := v.Node.(*ast.IdentifierNode)
		prop, propOK := v.Property.(*ast.StringNode)
		if !ok || !propOK || root.Value != "record" {
			w.err = fmt.Errorf("unsupported member access in SQL expression")
			return
		}
		w.column(prop.Value)
	case *ast.IntegerNode:
		w.bind(v.Value)
	case *ast.FloatNode:
		w.bind(v.Value)
	case *ast.StringNode:
		w.bind(v.Value)
	case *ast.BoolNode:
		w.bind(v.Value)
	case *ast.NilNode:
		w.builder.WriteString("NULL")
	case *ast.ArrayNode:
		w.builder.WriteString("(")
		w.walkArgs(v.Nodes)
		w.builder.WriteString(")")
	case *ast.CallNode:
		w.visitCall(v)
	default:
		w.err = fmt.Errorf("unsupported node type: %T", *node)
	}
}

func (w *SQLWalker) bind(value interface{}) {
	w.builder.WriteString("?")
	w.args = append(w.args, value)
}

func (w *SQLWalker) column(name string) {
	if !isIdentifier(name) {
		w.err = fmt.Errorf("invalid column name '%s'", name)
		return
	}
	if w.columns != nil && !w.columns(name) {
		w.err = fmt.Errorf("unknown field '%s'", name)
		return
	}
	w.builder.WriteString("`")
	w.builder.WriteString(name)
	w.builder.WriteString("`")
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func (w *SQLWalker) visitUnary(node *ast.UnaryNode) {
	switch node.Operator {
	case "!", "not":
		w.builder.WriteString("(NOT ")
		w.walk(&node.Node)
		w.builder.WriteString(")")
	case "-":
		w.builder.WriteString("(-")
		w.walk(&node.Node)
		w.builder.WriteString(")")
	default:
		w.err = fmt.Errorf("unsupported unary operator: %s", node.Operator)
	}
}

func (w *SQLWalker) visitBinary(node *ast.BinaryNode) {
	// Null comparisons need IS NULL / IS NOT NULL
	rightIsNil := isNilNode(node.Right)
	leftIsNil := isNilNode(node.Left)

	if rightIsNil || leftIsNil {
		fieldNode := node.Left
		if leftIsNil {
			fieldNode = node.Right
		}

		w.builder.WriteString("(")
		w.walk(&fieldNode)
		switch node.Operator {
		case "==":
			w.builder.WriteString(" IS NULL")
		case "!=":
			w.builder.WriteString(" IS NOT NULL")
		default:
			w.err = fmt.Errorf("unsupported operator for null comparison: %s", node.Operator)
		}
		w.builder.WriteString(")")
		return
	}

	var op string
	switch node.Operator {
	case "==":
		op = "="
	case "!=", "<", ">", "<=", ">=", "+", "-", "*", "/", "%":
		op = node.Operator
	case "&&", "and":
		op = "AND"
	case "||", "or":
		op = "OR"
	case "in":
		op = "IN"
	default:
		w.err = fmt.Errorf("unsupported operator: %s", node.Operator)
		return
	}

	w.builder.WriteString("(")
	w.walk(&node.Left)
	w.builder.WriteString(" ")
	w.builder.WriteString(op)
	w.builder.WriteString(" ")
	w.walk(&node.Right)
	w.builder.WriteString(")")
}

func (w *SQLWalker) visitCall(node *ast.CallNode) {
	callee, ok := node.Callee.(*ast.IdentifierNode)
	if !ok {
		w.err = fmt.Errorf("unsupported callee type: %T", node.Callee)
		return
	}

	fnName := strings.ToUpper(callee.Value)

	switch fnName {
	case "UPPER", "LOWER", "TRIM":
		w.builder.WriteString(fnName + "(")
		w.walkArgs(node.Arguments)
		w.builder.WriteString(")")

	case "LEN":
		w.builder.WriteString("CHAR_LENGTH(")
		w.walkArgs(node.Arguments)
		w.builder.WriteString(")")

	case "AND", "OR":
		if len(node.Arguments) == 0 {
			w.err = fmt.Errorf("%s requires at least 1 argument", fnName)
			return
		}
		w.builder.WriteString("(")
		for i, arg := range node.Arguments {
			if i > 0 {
				w.builder.WriteString(" " + fnName + " ")
			}
			argNode := arg
			w.walk(&argNode)
		}
		w.builder.WriteString(")")

	case "NOT":
		if len(node.Arguments) != 1 {
			w.err = fmt.Errorf("NOT requires 1 argument")
			return
		}
		w.builder.WriteString("(NOT ")
		arg0 := node.Arguments[0]
		w.walk(&arg0)
		w.builder.WriteString(")")

	case "ISBLANK", "ISNULL":
		if len(node.Arguments) != 1 {
			w.err = fmt.Errorf("%s requires 1 argument", fnName)
			return
		}
		w.builder.WriteString("(")
		arg0 := node.Arguments[0]
		w.walk(&arg0)
		w.builder.WriteString(" IS NULL")
		if fnName == "ISBLANK" {
			w.builder.WriteString(" OR ")
			w.walk(&arg0)
			w.builder.WriteString(" = ''")
		}
		w.builder.WriteString(")")

	case "IF":
		if len(node.Arguments) != 3 {
			w.err = fmt.Errorf("IF requires 3 arguments")
			return
		}
		w.builder.WriteString("IF(")
		w.walkArgs(node.Arguments)
		w.builder.WriteString(")")

	case "TODAY":
		w.builder.WriteString("CURDATE()")

	case "NOW":
		w.builder.WriteString("NOW()")

	case "ADDDAYS", "DATE_ADD":
		if len(node.Arguments) != 2 {
			w.err = fmt.Errorf("%s requires 2 arguments", fnName)
			return
		}
		w.builder.WriteString("DATE_ADD(")
		arg0 := node.Arguments[0]
		w.walk(&arg0)
		w.builder.WriteString(", INTERVAL ")
		arg1 := node.Arguments[1]
		w.walk(&arg1)
		w.builder.WriteString(" DAY)")

	case "CONTAINS":
		w.like(node, "%", "%")

	case "BEGINS", "STARTS_WITH":
		w.like(node, "", "%")

	case "ENDS_WITH":
		w.like(node, "%", "")

	default:
		w.err = fmt.Errorf("unsupported function: %s", callee.Value)
	}
}

// like renders FN(field, 'text') as field LIKE ? with the pattern bound.
func (w *SQLWalker) like(node *ast.CallNode, prefix, suffix string) {
	if len(node.Arguments) != 2 {
		w.err = fmt.Errorf("function requires 2 arguments")
		return
	}
	strArg, ok := node.Arguments[1].(*ast.StringNode)
	if !ok {
		w.err = fmt.Errorf("second argument must be a string literal")
		return
	}
	w.builder.WriteString("(")
	arg0 := node.Arguments[0]
	w.walk(&arg0)
	w.builder.WriteString(" LIKE ")
	w.bind(prefix + escapeLike(strArg.Value) + suffix)
	w.builder.WriteString(")")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Helper to walk multiple args with comma separation
func (w *SQLWalker) walkArgs(args []ast.Node) {
	for i, arg := range args {
		if i > 0 {
			w.builder.WriteString(", ")
		}
		argNode := arg
		w.walk(&argNode)
	}
}
