package expression

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// Scopes are identifiers that name a whole record rather than a field.
var Scopes = map[string]bool{
	"record": true,
	"prior":  true,
	"user":   true,
}

// Reference is a field an expression reads. Scope is "" for bare identifiers
// and "record", "prior" or "user" for member access on those roots.
type Reference struct {
	Scope string
	Field string
}

type referenceCollector struct {
	idents  []*ast.IdentifierNode
	callees map[*ast.IdentifierNode]bool
	members map[*ast.IdentifierNode]bool
	refs    []Reference
}

func (c *referenceCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.idents = append(c.idents, n)
	case *ast.CallNode:
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.callees[id] = true
		}
	case *ast.MemberNode:
		root, ok := n.Node.(*ast.IdentifierNode)
		if !ok || !Scopes[root.Value] {
			return
		}
		c.members[root] = true
		if prop, ok := n.Property.(*ast.StringNode); ok {
			c.refs = append(c.refs, Reference{Scope: root.Value, Field: prop.Value})
		}
	}
}

// References parses a normalized expression and returns the fields it reads,
// sorted and de-duplicated. Function names are not references.
func References(expression string) ([]Reference, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression: %w", err)
	}

	c := &referenceCollector{
		callees: map[*ast.IdentifierNode]bool{},
		members: map[*ast.IdentifierNode]bool{},
	}
	ast.Walk(&tree.Node, c)

	seen := map[Reference]bool{}
	var refs []Reference
	add := func(r Reference) {
		if !seen[r] {
			seen[r] = true
			refs = append(refs, r)
		}
	}
	for _, id := range c.idents {
		if c.callees[id] || c.members[id] {
			continue
		}
		if _, literal := LiteralValue(id.Value); literal {
			continue
		}
		if Scopes[id.Value] {
			continue
		}
		add(Reference{Field: id.Value})
	}
	for _, r := range c.refs {
		add(r)
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Scope != refs[j].Scope {
			return refs[i].Scope < refs[j].Scope
		}
		return refs[i].Field < refs[j].Field
	})
	return refs, nil
}
