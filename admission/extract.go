package admission

import (
	"fmt"
	"text/template/parse"

	"github.com/c360/semblocks/schema"
)

// childrenField is the data key through which nested blocks reach a
// component.
const childrenField = "children"

// fieldUse records how the template reads one top-level field.
type fieldUse struct {
	printed    bool
	condition  bool
	ranged     bool
	hasDefault bool
	def        any
	nested     map[string]struct{}
	line       int
}

type extraction struct {
	schema   schema.ConfigSchema
	children bool
	warnings []Diagnostic
}

// extractor infers a configuration schema from field references reachable
// from the exported template with dot bound to the block configuration.
type extractor struct {
	a        *analysis
	fields   map[string]*fieldUse
	visited  map[string]bool
	warnings []Diagnostic
}

func (a *analysis) extract(name string) (ext extraction) {
	e := &extractor{a: a, fields: make(map[string]*fieldUse), visited: make(map[string]bool)}
	defer func() {
		if r := recover(); r != nil {
			ext = extraction{warnings: []Diagnostic{{
				Code:    CodeExtractionIncomplete,
				Message: fmt.Sprintf("configuration fields could not be inferred: %v", r),
			}}}
		}
	}()
	e.tree(name)
	return e.result()
}

func (e *extractor) tree(name string) {
	if e.visited[name] {
		return
	}
	e.visited[name] = true
	t, ok := e.a.trees[name]
	if !ok || t.Root == nil {
		return
	}
	e.list(t.Root, true)
}

// list walks nodes. scoped reports whether dot is the configuration map.
func (e *extractor) list(l *parse.ListNode, scoped bool) {
	if l == nil {
		return
	}
	for _, n := range l.Nodes {
		e.node(n, scoped)
	}
}

func (e *extractor) node(n parse.Node, scoped bool) {
	switch n := n.(type) {
	case *parse.ActionNode:
		e.pipe(n.Pipe, scoped, usePrint)
	case *parse.IfNode:
		e.pipe(n.Pipe, scoped, useCondition)
		e.list(n.List, scoped)
		e.list(n.ElseList, scoped)
	case *parse.RangeNode:
		e.pipe(n.Pipe, scoped, useRange)
		e.list(n.List, false)
		e.list(n.ElseList, scoped)
	case *parse.WithNode:
		e.pipe(n.Pipe, scoped, usePrint)
		e.list(n.List, false)
		e.list(n.ElseList, scoped)
	case *parse.TemplateNode:
		if n.Pipe == nil {
			return
		}
		e.pipe(n.Pipe, scoped, usePrint)
		if passesDot(n.Pipe) && scoped {
			e.tree(n.Name)
		}
	}
}

type useKind int

const (
	usePrint useKind = iota
	useCondition
	useRange
)

func (e *extractor) pipe(p *parse.PipeNode, scoped bool, kind useKind) {
	if p == nil {
		return
	}
	// A lone field is classified by its context; anything else is an
	// expression whose field operands are printed.
	if len(p.Cmds) == 1 && len(p.Cmds[0].Args) == 1 {
		e.arg(p.Cmds[0].Args[0], scoped, kind)
		return
	}
	for i, cmd := range p.Cmds {
		if isDefaultCall(cmd) {
			e.defaultCall(p, i, scoped)
			continue
		}
		argKind := usePrint
		if kind == useCondition && isLogical(cmd) {
			argKind = useCondition
		}
		for _, arg := range cmd.Args {
			e.arg(arg, scoped, argKind)
		}
	}
}

func (e *extractor) arg(n parse.Node, scoped bool, kind useKind) {
	switch n := n.(type) {
	case *parse.FieldNode:
		if scoped {
			e.use(n.Ident, kind, n.Position())
		}
	case *parse.VariableNode:
		if n.Ident[0] == "$" && len(n.Ident) > 1 {
			e.use(n.Ident[1:], kind, n.Position())
		}
	case *parse.ChainNode:
		e.arg(n.Node, scoped, usePrint)
	case *parse.PipeNode:
		e.pipe(n, scoped, kind)
	}
}

// defaultCall handles both `default "x" .field` and `.field | default "x"`.
func (e *extractor) defaultCall(p *parse.PipeNode, i int, scoped bool) {
	cmd := p.Cmds[i]
	var target parse.Node
	switch {
	case len(cmd.Args) == 3:
		target = cmd.Args[2]
	case len(cmd.Args) == 2 && i > 0 && len(p.Cmds[i-1].Args) == 1:
		target = p.Cmds[i-1].Args[0]
	}
	for _, arg := range cmd.Args[1:] {
		if arg != target {
			e.arg(arg, scoped, usePrint)
		}
	}
	ident := fieldIdent(target, scoped)
	if ident == nil {
		return
	}
	use := e.use(ident, usePrint, target.Position())
	if len(ident) > 1 || len(cmd.Args) < 2 {
		return
	}
	lit, ok := literal(cmd.Args[1])
	if !ok {
		e.warn(target.Position(), "default for %q is not a literal and was not recorded", ident[0])
		return
	}
	if use.hasDefault && use.def != lit {
		e.warn(target.Position(), "field %q has conflicting defaults; keeping the first", ident[0])
		return
	}
	use.hasDefault = true
	use.def = lit
}

func (e *extractor) use(ident []string, kind useKind, pos parse.Pos) *fieldUse {
	name := ident[0]
	u, ok := e.fields[name]
	if !ok {
		u = &fieldUse{line: e.a.line(pos)}
		e.fields[name] = u
	}
	if len(ident) > 1 {
		if u.nested == nil {
			u.nested = make(map[string]struct{})
		}
		u.nested[ident[1]] = struct{}{}
		return u
	}
	switch kind {
	case usePrint:
		u.printed = true
	case useCondition:
		u.condition = true
	case useRange:
		u.ranged = true
	}
	return u
}

func (e *extractor) warn(pos parse.Pos, format string, args ...any) {
	e.warnings = append(e.warnings, Diagnostic{
		Code:    CodeExtractionIncomplete,
		Line:    e.a.line(pos),
		Message: fmt.Sprintf(format, args...),
	})
}

func (e *extractor) result() extraction {
	ext := extraction{
		schema:   schema.ConfigSchema{Properties: make(map[string]schema.PropertySchema, len(e.fields))},
		warnings: e.warnings,
	}
	for _, name := range sortedKeys(e.fields) {
		u := e.fields[name]
		if name == childrenField {
			ext.children = true
			ext.schema.Properties[name] = schema.PropertySchema{
				Name:        name,
				Type:        schema.TypeArray,
				Description: "Nested blocks",
				Default:     []any{},
				Editable:    false,
			}
			continue
		}
		prop := schema.PropertySchema{Name: name, Editable: true, Category: schema.CategoryBasic}
		switch {
		case u.hasDefault:
			prop.Type = literalType(u.def)
			prop.Default = u.def
			if u.ranged || len(u.nested) > 0 {
				ext.warnings = append(ext.warnings, Diagnostic{
					Code:    CodeExtractionIncomplete,
					Line:    u.line,
					Message: fmt.Sprintf("field %q is used inconsistently; typed from its default", name),
				})
			}
		case len(u.nested) > 0:
			prop.Type = schema.TypeObject
			prop.Properties = make(map[string]schema.PropertySchema, len(u.nested))
			for _, sub := range sortedKeys(u.nested) {
				prop.Properties[sub] = schema.PropertySchema{Name: sub, Type: schema.TypeString, Editable: true}
			}
		case u.ranged:
			prop.Type = schema.TypeArray
		case u.printed:
			prop.Type = schema.TypeString
		default:
			prop.Type = schema.TypeBool
			prop.Default = false
		}
		ext.schema.Properties[name] = prop
	}
	return ext
}

func isDefaultCall(cmd *parse.CommandNode) bool {
	if len(cmd.Args) == 0 {
		return false
	}
	id, ok := cmd.Args[0].(*parse.IdentifierNode)
	return ok && id.Ident == "default"
}

func isLogical(cmd *parse.CommandNode) bool {
	if len(cmd.Args) == 0 {
		return false
	}
	id, ok := cmd.Args[0].(*parse.IdentifierNode)
	return ok && (id.Ident == "and" || id.Ident == "or" || id.Ident == "not")
}

func passesDot(p *parse.PipeNode) bool {
	if len(p.Decl) > 0 || len(p.Cmds) != 1 || len(p.Cmds[0].Args) != 1 {
		return false
	}
	switch n := p.Cmds[0].Args[0].(type) {
	case *parse.DotNode:
		return true
	case *parse.VariableNode:
		return len(n.Ident) == 1 && n.Ident[0] == "$"
	}
	return false
}

func fieldIdent(n parse.Node, scoped bool) []string {
	switch n := n.(type) {
	case *parse.FieldNode:
		if scoped {
			return n.Ident
		}
	case *parse.VariableNode:
		if n.Ident[0] == "$" && len(n.Ident) > 1 {
			return n.Ident[1:]
		}
	}
	return nil
}

func literal(n parse.Node) (any, bool) {
	switch n := n.(type) {
	case *parse.StringNode:
		return n.Text, true
	case *parse.BoolNode:
		return n.True, true
	case *parse.NumberNode:
		if n.IsInt {
			return int(n.Int64), true
		}
		if n.IsFloat {
			return n.Float64, true
		}
	}
	return nil, false
}

func literalType(v any) string {
	switch v.(type) {
	case bool:
		return schema.TypeBool
	case int:
		return schema.TypeInt
	case float64:
		return schema.TypeNumber
	default:
		return schema.TypeString
	}
}
