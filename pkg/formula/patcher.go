package formula

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr/ast"

	"github.com/nexuscrm/kernel/pkg/expression"
)

// patcher rewrites operators into null-tolerant helper calls and upper-cases
// calls to library functions. It runs once per compilation.
type patcher struct {
	functions map[string]Function
	err       error
}

func call(name string, args ...ast.Node) *ast.CallNode {
	return &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: name},
		Arguments: args,
	}
}

func str(s string) *ast.StringNode {
	return &ast.StringNode{Value: s}
}

func isNil(node ast.Node) bool {
	_, ok := node.(*ast.NilNode)
	return ok
}

func (p *patcher) Visit(node *ast.Node) {
	if p.err != nil {
		return
	}

	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if val, ok := expression.LiteralValue(n.Value); ok {
			if b, isBool := val.(bool); isBool {
				ast.Patch(node, &ast.BoolNode{Value: b})
			} else {
				ast.Patch(node, &ast.NilNode{})
			}
		}

	case *ast.BinaryNode:
		switch n.Operator {
		case "+", "-", "*", "/", "%", "**", "^":
			ast.Patch(node, call(fnArith, str(n.Operator), n.Left, n.Right))
		case "==", "!=":
			// explicit null checks keep expr's own semantics
			if isNil(n.Left) || isNil(n.Right) {
				return
			}
			ast.Patch(node, call(fnCompare, str(n.Operator), n.Left, n.Right))
		case "<", ">", "<=", ">=":
			ast.Patch(node, call(fnCompare, str(n.Operator), n.Left, n.Right))
		case "&&", "||", "and", "or":
			n.Left = call(fnBool, n.Left)
			n.Right = call(fnBool, n.Right)
		}

	case *ast.UnaryNode:
		switch n.Operator {
		case "!", "not":
			ast.Patch(node, call(fnNot, n.Node))
		case "-":
			ast.Patch(node, call(fnNeg, n.Node))
		}

	case *ast.ConditionalNode:
		n.Cond = call(fnBool, n.Cond)

	case *ast.CallNode:
		p.visitCall(node, n)
	}
}

func (p *patcher) visitCall(node *ast.Node, n *ast.CallNode) {
	id, ok := n.Callee.(*ast.IdentifierNode)
	if !ok {
		p.err = fmt.Errorf("unsupported function call")
		return
	}

	name := strings.ToUpper(id.Value)
	if alias, ok := aliases[name]; ok {
		name = alias
	}

	switch name {
	case "ISNEW":
		if len(n.Arguments) != 0 {
			p.err = fmt.Errorf("ISNEW takes no arguments")
			return
		}
		ast.Patch(node, &ast.IdentifierNode{Value: varIsNew})
		return
	case "ISCHANGED", "PRIORVALUE":
		if len(n.Arguments) != 1 {
			p.err = fmt.Errorf("%s requires 1 argument", name)
			return
		}
		field, ok := fieldOf(n.Arguments[0])
		if !ok {
			p.err = fmt.Errorf("%s requires a field reference", name)
			return
		}
		if name == "ISCHANGED" {
			ast.Patch(node, call(fnChanged, n.Arguments[0], &ast.IdentifierNode{Value: varPrior}, str(field)))
		} else {
			ast.Patch(node, call(fnPrior, &ast.IdentifierNode{Value: varPrior}, str(field)))
		}
		return
	}

	if _, ok := p.functions[name]; !ok || strings.HasPrefix(name, "_") {
		p.err = fmt.Errorf("unknown function '%s'", id.Value)
		return
	}
	id.Value = name
}

// fieldOf returns the field name of a bare identifier or record.field member.
func fieldOf(node ast.Node) (string, bool) {
	switch n := node.(type) {
	case *ast.IdentifierNode:
		if expression.Scopes[n.Value] {
			return "", false
		}
		return n.Value, true
	case *ast.MemberNode:
		root, ok := n.Node.(*ast.IdentifierNode)
		prop, propOK := n.Property.(*ast.StringNode)
		if ok && propOK && root.Value == scopeRecord {
			return prop.Value, true
		}
	}
	return "", false
}
