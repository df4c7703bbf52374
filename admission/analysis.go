package admission

import (
	"regexp"
	"sort"
	"strings"
	"text/template/parse"
)

// disallowed markup is reported but not refused: the sanitizer strips it
// from every rendered component.
var disallowed = []struct {
	pattern *regexp.Regexp
	message string
}{
	{regexp.MustCompile(`(?i)<\s*script\b`), "script elements are removed from rendered output"},
	{regexp.MustCompile(`(?i)\son[a-z]+\s*=`), "inline event handler attributes are removed from rendered output"},
	{regexp.MustCompile(`(?i)javascript\s*:`), "javascript: URLs are removed from rendered output"},
}

// analysis holds the parse trees of one submission.
type analysis struct {
	source string
	trees  map[string]*parse.Tree
}

func newAnalysis(source string, trees map[string]*parse.Tree) *analysis {
	return &analysis{source: source, trees: trees}
}

// line converts a byte offset in the source into a 1-based line number.
func (a *analysis) line(pos parse.Pos) int {
	p := int(pos)
	if p > len(a.source) {
		p = len(a.source)
	}
	return 1 + strings.Count(a.source[:p], "\n")
}

// check runs the static checks: export presence, template references,
// disallowed markup, unused definitions, unused variables and empty bodies.
// It returns the name of the template the component renders: the one named
// after the component, or the top-level body when there is none.
func (a *analysis) check(res *Result, name string) string {
	exportName := name
	if _, ok := a.trees[name]; !ok {
		exportName = topLevelName
		res.addWarning(CodeMissingExport, 0,
			"source does not define a template named %q, the top-level content is used", name)
	}
	export := a.trees[exportName]

	referenced := make(map[string]bool)
	for _, treeName := range sortedTreeNames(a.trees) {
		tree := a.trees[treeName]
		if tree.Root == nil {
			continue
		}
		declared := make(map[string]parse.Pos)
		used := make(map[string]bool)
		walk(tree.Root, func(n parse.Node) {
			switch n := n.(type) {
			case *parse.TemplateNode:
				referenced[n.Name] = true
				if _, ok := a.trees[n.Name]; !ok || n.Name == topLevelName {
					res.addError(CodeUndefinedTemplate, a.line(n.Position()),
						"template %q is not defined", n.Name)
				}
			case *parse.TextNode:
				a.checkText(res, n)
			case *parse.PipeNode:
				for _, v := range n.Decl {
					if _, seen := declared[v.Ident[0]]; !seen {
						declared[v.Ident[0]] = v.Position()
					}
				}
			case *parse.VariableNode:
				used[n.Ident[0]] = true
			}
		})
		for _, v := range sortedKeys(declared) {
			if !used[v] {
				res.addWarning(CodeUnusedVariable, a.line(declared[v]), "variable %s is never used", v)
			}
		}
	}

	for _, treeName := range sortedTreeNames(a.trees) {
		if treeName == exportName || treeName == topLevelName || referenced[treeName] {
			continue
		}
		res.addWarning(CodeUnusedTemplate, a.line(a.trees[treeName].Root.Position()),
			"template %q is defined but never used", treeName)
	}

	if exportName != topLevelName {
		if top, ok := a.trees[topLevelName]; ok && top.Root != nil && !parse.IsEmptyTree(top.Root) {
			res.addWarning(CodeOutsideDefine, 0, "content outside {{define}} blocks is ignored")
		}
	}
	if export == nil || export.Root == nil || parse.IsEmptyTree(export.Root) {
		line := 0
		if export != nil && export.Root != nil {
			line = a.line(export.Root.Position())
		}
		res.addWarning(CodeEmptyBody, line, "component %q renders nothing", name)
	}
	return exportName
}

func (a *analysis) checkText(res *Result, n *parse.TextNode) {
	text := string(n.Text)
	for _, rule := range disallowed {
		if loc := rule.pattern.FindStringIndex(text); loc != nil {
			res.addWarning(CodeDisallowedConstruct, a.line(n.Position()+parse.Pos(loc[0])), "%s", rule.message)
		}
	}
}

// walk visits n and every node beneath it in source order. Declared
// variables are not visited; every VariableNode seen is a use.
func walk(n parse.Node, visit func(parse.Node)) {
	if n == nil {
		return
	}
	visit(n)
	switch n := n.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			walk(c, visit)
		}
	case *parse.ActionNode:
		walk(n.Pipe, visit)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, c := range n.Cmds {
			walk(c, visit)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			walk(arg, visit)
		}
	case *parse.ChainNode:
		walk(n.Node, visit)
	case *parse.IfNode:
		walkBranch(&n.BranchNode, visit)
	case *parse.RangeNode:
		walkBranch(&n.BranchNode, visit)
	case *parse.WithNode:
		walkBranch(&n.BranchNode, visit)
	case *parse.TemplateNode:
		walk(n.Pipe, visit)
	}
}

func walkBranch(b *parse.BranchNode, visit func(parse.Node)) {
	walk(b.Pipe, visit)
	walk(b.List, visit)
	if b.ElseList != nil {
		walk(b.ElseList, visit)
	}
}

func sortedTreeNames(trees map[string]*parse.Tree) []string {
	names := make([]string, 0, len(trees))
	for name := range trees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
