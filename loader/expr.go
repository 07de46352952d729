package loader

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/kbukum/flowkit/graph"
)

// Traversal roots that bind a node input to another node or an entry.
const (
	rootNode  = "node"
	rootInput = "input"
)

var literalContext = &hcl.EvalContext{Functions: graph.Functions()}

// referenceFor reports whether expr is node.<id> or input.<entry> and
// returns the referenced id.
func referenceFor(expr hcl.Expression) (string, bool) {
	tr, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() || len(tr) != 2 {
		return "", false
	}
	switch tr.RootName() {
	case rootNode, rootInput:
	default:
		return "", false
	}
	attr, ok := tr[1].(hcl.TraverseAttr)
	if !ok {
		return "", false
	}
	return attr.Name, true
}

// graphInput converts one authored graph input.
func graphInput(expr hcl.Expression) (graph.InputBinding, error) {
	if id, ok := referenceFor(expr); ok {
		return graph.NodeRef(id), nil
	}
	if vars := expr.Variables(); len(vars) > 0 {
		return graph.InputBinding{}, fmt.Errorf("%s: unsupported reference %q (want node.<id> or input.<entry>)",
			vars[0].SourceRange(), vars[0].RootName())
	}
	v, diags := expr.Value(literalContext)
	if diags.HasErrors() {
		return graph.InputBinding{}, diags
	}
	return graph.Literal(v), nil
}

// macroInput converts one authored macro input. Expressions mentioning
// variables are kept for expansion; Expand checks they only use param.
func macroInput(expr hcl.Expression) (graph.TemplateInput, error) {
	if id, ok := referenceFor(expr); ok {
		return graph.TemplateRef(id), nil
	}
	if len(expr.Variables()) > 0 {
		return graph.TemplateExpr(expr), nil
	}
	v, diags := expr.Value(literalContext)
	if diags.HasErrors() {
		return graph.TemplateInput{}, diags
	}
	return graph.TemplateLiteral(v), nil
}

// portType reads a type constraint; a missing one accepts any value.
func portType(expr hcl.Expression) (cty.Type, error) {
	if expr == nil {
		return cty.DynamicPseudoType, nil
	}
	ty, diags := typeexpr.TypeConstraint(expr)
	if diags.HasErrors() {
		return cty.NilType, diags
	}
	return ty, nil
}

// parseType parses a type constraint written as a string, e.g.
// "list(number)".
func parseType(src, filename string) (cty.Type, error) {
	if src == "" {
		return cty.DynamicPseudoType, nil
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return cty.NilType, diags
	}
	return portType(expr)
}

// parseExpr parses an expression written as a string.
func parseExpr(src, filename string) (hcl.Expression, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	return expr, nil
}

// parseNodeKind defaults an empty kind to block.
func parseNodeKind(s string) (graph.NodeKind, error) {
	if s == "" {
		return graph.KindBlock, nil
	}
	return graph.ParseKind(s)
}
