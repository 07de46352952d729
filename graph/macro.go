package graph

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/validation"
)

// ParamRoot is the variable macro expressions read parameters from.
const ParamRoot = "param"

// ExpansionSuffix is appended to a macro name to name its expansion.
const ExpansionSuffix = "#expansion"

// templateFunctions are callable from macro expressions.
var templateFunctions = map[string]function.Function{
	"abs":      stdlib.AbsoluteFunc,
	"ceil":     stdlib.CeilFunc,
	"coalesce": stdlib.CoalesceFunc,
	"concat":   stdlib.ConcatFunc,
	"floor":    stdlib.FloorFunc,
	"format":   stdlib.FormatFunc,
	"join":     stdlib.JoinFunc,
	"length":   stdlib.LengthFunc,
	"lower":    stdlib.LowerFunc,
	"max":      stdlib.MaxFunc,
	"min":      stdlib.MinFunc,
	"upper":    stdlib.UpperFunc,
}

// TemplateInput is a macro node input: a reference to another node of the
// template, a literal, or an HCL expression over param.<name>.
type TemplateInput struct {
	source string
	expr   hcl.Expression
	value  cty.Value
}

// TemplateRef references another node of the same template.
func TemplateRef(id string) TemplateInput { return TemplateInput{source: id} }

// TemplateLiteral binds a constant value.
func TemplateLiteral(v cty.Value) TemplateInput {
	if v == cty.NilVal {
		v = cty.NullVal(cty.DynamicPseudoType)
	}
	return TemplateInput{value: v}
}

// TemplateExpr binds an expression evaluated at expansion time.
func TemplateExpr(expr hcl.Expression) TemplateInput { return TemplateInput{expr: expr} }

// IsRef reports whether in references another template node.
func (in TemplateInput) IsRef() bool { return in.source != "" }

// IsExpr reports whether in is an expression.
func (in TemplateInput) IsExpr() bool { return in.expr != nil }

// Source returns the referenced node id.
func (in TemplateInput) Source() string { return in.source }

// Expr returns the expression, or nil.
func (in TemplateInput) Expr() hcl.Expression { return in.expr }

// MacroNode is a node of a macro template.
type MacroNode struct {
	ID     string
	Kind   NodeKind
	Ref    Ref
	Inputs []TemplateInput
}

// MacroSpec is a template that expands into a transient GraphSpec.
type MacroSpec struct {
	Name   string
	Params []string
	Output string
	Nodes  []MacroNode
}

func (m *MacroSpec) subject() string { return fmt.Sprintf("macro %q", m.Name) }

func (m *MacroSpec) hasParam(name string) bool {
	for _, p := range m.Params {
		if p == name {
			return true
		}
	}
	return false
}

// Validate checks parameters, template nodes and every expression's
// variables. It does not evaluate expressions.
func (m *MacroSpec) Validate() error {
	v := validation.New(m.subject())

	for i, p := range m.Params {
		v.NodeID(fmt.Sprintf("params[%d]", i), p)
	}
	v.Unique("params", m.Params)

	ids := make(map[string]bool, len(m.Nodes))
	for i := range m.Nodes {
		n := &m.Nodes[i]
		field := fmt.Sprintf("nodes[%d]", i)
		v.NodeID(field+".id", n.ID)
		if ids[n.ID] {
			v.AddErrorf(field+".id", "duplicate node id %q", n.ID)
		}
		ids[n.ID] = true
		if !n.Kind.Valid() {
			v.AddErrorf(field+".kind", "unknown node kind %q", n.Kind)
		}
		if n.Ref.Module == "" || n.Ref.Name == "" {
			v.AddErrorf(field+".ref", "incomplete reference %q", n.Ref.String())
		}
	}

	for i := range m.Nodes {
		n := &m.Nodes[i]
		for j, in := range n.Inputs {
			field := fmt.Sprintf("node %q.inputs[%d]", n.ID, j)
			switch {
			case in.IsRef():
				if !ids[in.source] {
					v.AddErrorf(field, "references unknown node %q", in.source)
				}
			case in.IsExpr():
				for _, problem := range m.checkVariables(in.expr) {
					v.AddError(field, problem)
				}
			}
		}
	}

	if m.Output == "" {
		v.AddError("output", "is required")
	} else if !ids[m.Output] {
		v.AddErrorf("output", "unknown output node %q", m.Output)
	}

	return v.Validate()
}

// checkVariables reports traversals that do not name a declared parameter.
func (m *MacroSpec) checkVariables(expr hcl.Expression) []string {
	var problems []string
	for _, tr := range expr.Variables() {
		root := tr.RootName()
		if root != ParamRoot {
			problems = append(problems, fmt.Sprintf("unknown variable %q", root))
			continue
		}
		if len(tr) < 2 {
			problems = append(problems, "param must be followed by a parameter name")
			continue
		}
		if attr, ok := tr[1].(hcl.TraverseAttr); ok && !m.hasParam(attr.Name) {
			problems = append(problems, fmt.Sprintf("unknown parameter %q", attr.Name))
		}
	}
	return problems
}

// Expand binds args to the parameters positionally and returns the
// transient GraphSpec named "<macro>#expansion". Every failure is an
// EXPANSION_FAILED *errors.AppError.
func (m *MacroSpec) Expand(args []cty.Value) (*GraphSpec, error) {
	if len(args) != len(m.Params) {
		return nil, errors.ExpansionFailed(m.Name,
			fmt.Sprintf("expected %d parameter(s), got %d", len(m.Params), len(args)))
	}

	params := make(map[string]cty.Value, len(m.Params))
	for i, p := range m.Params {
		params[p] = args[i]
	}
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{ParamRoot: cty.ObjectVal(params)},
		Functions: templateFunctions,
	}

	spec := &GraphSpec{
		Name:   m.Name + ExpansionSuffix,
		Output: m.Output,
		Nodes:  make([]Node, 0, len(m.Nodes)),
	}
	for i := range m.Nodes {
		tn := &m.Nodes[i]
		node := Node{ID: tn.ID, Kind: tn.Kind, Ref: tn.Ref, Inputs: make([]InputBinding, 0, len(tn.Inputs))}
		for j, in := range tn.Inputs {
			switch {
			case in.IsRef():
				node.Inputs = append(node.Inputs, NodeRef(in.source))
			case in.IsExpr():
				if problems := m.checkVariables(in.expr); len(problems) > 0 {
					return nil, errors.ExpansionFailed(m.Name,
						fmt.Sprintf("node %q input %d: %s", tn.ID, j, problems[0]))
				}
				val, diags := in.expr.Value(evalCtx)
				if diags.HasErrors() {
					return nil, errors.ExpansionFailed(m.Name,
						fmt.Sprintf("node %q input %d: %s", tn.ID, j, diags.Error())).WithCause(diags)
				}
				node.Inputs = append(node.Inputs, Literal(val))
			default:
				node.Inputs = append(node.Inputs, Literal(in.value))
			}
		}
		spec.Nodes = append(spec.Nodes, node)
	}

	if err := spec.Validate(); err != nil {
		return nil, errors.ExpansionFailed(m.Name, "expansion is not a valid graph").WithCause(err)
	}
	return spec, nil
}

// Functions returns the functions available to macro expressions and to
// literal expressions in authored graphs.
func Functions() map[string]function.Function {
	out := make(map[string]function.Function, len(templateFunctions))
	for name, fn := range templateFunctions {
		out[name] = fn
	}
	return out
}
