package scope

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Alok/autoflake/pkg/parser"
)

// expr walks an expression, recording loads and any bindings introduced by
// walrus operators, lambdas and comprehensions.
func (b *builder) expr(node *sitter.Node) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "identifier":
		b.use(node)
	case "comment":
	case "attribute":
		obj := node.ChildByFieldName("object")
		b.dynamicAttribute(obj, node.ChildByFieldName("attribute"))
		b.expr(obj)
	case "call":
		b.call(node)
	case "keyword_argument":
		b.expr(node.ChildByFieldName("value"))
	case "lambda":
		b.lambda(node)
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		b.comprehension(node)
	case "named_expression":
		b.expr(node.ChildByFieldName("value"))
		if name := node.ChildByFieldName("name"); name != nil {
			b.bindIn(b.walrusOwner(), name, parser.NodeText(name, b.src), BindNamedExpr, int(node.EndByte()))
		}
	case "assignment":
		b.assignment(node, false)
	case "augmented_assignment":
		b.augmented(node)
	default:
		for _, child := range parser.NamedChildren(node) {
			b.expr(child)
		}
	}
}

func (b *builder) dynamicAttribute(obj, attr *sitter.Node) {
	name := parser.NodeText(attr, b.src)
	if name == "__dict__" {
		b.escapeModule()
		return
	}
	if name == "modules" && obj != nil && obj.Type() == "identifier" && parser.NodeText(obj, b.src) == "sys" {
		b.escapeModule()
	}
}

func (b *builder) call(node *sitter.Node) {
	fn := node.ChildByFieldName("function")
	args := node.ChildByFieldName("arguments")

	switch {
	case fn == nil:
	case fn.Type() == "identifier":
		switch parser.NodeText(fn, b.src) {
		case "eval", "exec", "locals", "vars":
			b.escapeChain()
		case "globals":
			b.escapeModule()
		}
	case fn.Type() == "attribute" && b.owner == 0:
		obj := fn.ChildByFieldName("object")
		method := parser.NodeText(fn.ChildByFieldName("attribute"), b.src)
		if parser.NodeText(obj, b.src) == "__all__" && (method == "extend" || method == "append") {
			b.g.HasAll = true
			b.exported(args)
		}
	}

	b.expr(fn)
	b.expr(args)
}

// walrusOwner is the scope an assignment expression binds in: comprehensions
// are transparent to it.
func (b *builder) walrusOwner() int {
	id := b.owner
	for b.g.Scopes[id].Kind == KindComprehension && b.g.Scopes[id].Parent >= 0 {
		id = b.g.Scopes[id].Parent
	}
	for b.g.Scopes[id].Kind == KindHandler {
		id = b.g.Scopes[id].Parent
	}
	return id
}

func (b *builder) lambda(node *sitter.Node) {
	params := node.ChildByFieldName("parameters")
	b.outerParameters(params)
	b.enter(KindFunction, node, func() {
		b.innerParameters(params)
		b.expr(node.ChildByFieldName("body"))
	})
}

// comprehension evaluates its first iterable in the enclosing scope and
// everything else in a scope of its own.
func (b *builder) comprehension(node *sitter.Node) {
	var clauses []*sitter.Node
	for _, child := range parser.NamedChildren(node) {
		if t := child.Type(); t == "for_in_clause" || t == "if_clause" {
			clauses = append(clauses, child)
		}
	}

	first := true
	for _, c := range clauses {
		if c.Type() == "for_in_clause" {
			b.expr(c.ChildByFieldName("right"))
			break
		}
	}

	b.enter(KindComprehension, node, func() {
		for _, c := range clauses {
			if c.Type() == "if_clause" {
				b.expr(c)
				continue
			}
			if !first {
				b.expr(c.ChildByFieldName("right"))
			}
			first = false
			b.target(c.ChildByFieldName("left"), BindLoopTarget, int(c.StartByte()), targetOpts{})
		}
		b.expr(node.ChildByFieldName("body"))
	})
}

type targetOpts struct {
	simple   bool
	unpacked bool
	chained  bool
	value    *sitter.Node
}

// assignment records a plain or annotated assignment. Right-hand sides are
// walked before targets are bound.
func (b *builder) assignment(node *sitter.Node, chained bool) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if typ := node.ChildByFieldName("type"); typ != nil {
		b.annotation(typ)
	}
	if right == nil {
		if left != nil && left.Type() != "identifier" {
			b.expr(left)
		}
		return
	}

	inner := right.Type() == "assignment"
	if inner {
		b.assignment(right, true)
	} else {
		b.expr(right)
	}

	if b.owner == 0 && left != nil && left.Type() == "identifier" && parser.NodeText(left, b.src) == "__all__" {
		b.g.HasAll = true
		b.exported(right)
	}

	opts := targetOpts{
		simple:  left != nil && left.Type() == "identifier" && !chained && !inner,
		chained: chained || inner,
	}
	if !inner {
		opts.value = right
	}
	b.target(left, BindAssignment, b.stmtEnd, opts)
}

func (b *builder) augmented(node *sitter.Node) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	b.expr(right)

	if left == nil || left.Type() != "identifier" {
		b.expr(left)
		return
	}
	name := parser.NodeText(left, b.src)
	if b.owner == 0 && name == "__all__" {
		b.g.HasAll = true
		b.exported(right)
	}
	b.use(left)
	b.bind(left, name, BindAugAssignment, b.stmtEnd)
}

// target binds every name in an assignment target. Attribute and subscript
// targets only load their object.
func (b *builder) target(node *sitter.Node, kind BindingKind, visible int, opts targetOpts) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "identifier":
		bd := b.bind(node, parser.NodeText(node, b.src), kind, visible)
		bd.Simple = opts.simple
		bd.Unpacked = opts.unpacked
		bd.Chained = opts.chained
		if opts.value != nil {
			bd.Value = b.rangeOf(opts.value)
			bd.Pure = isPure(opts.value, b.src)
		}
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "expression_list":
		inner := opts
		inner.simple, inner.unpacked = false, true
		for _, child := range parser.NamedChildren(node) {
			b.target(child, kind, visible, inner)
		}
	case "list_splat_pattern", "list_splat":
		inner := opts
		inner.simple, inner.unpacked = false, true
		for _, child := range parser.NamedChildren(node) {
			b.target(child, kind, visible, inner)
		}
	case "parenthesized_expression":
		for _, child := range parser.NamedChildren(node) {
			b.target(child, kind, visible, opts)
		}
	case "as_pattern_target":
		if isName(node) {
			b.bind(node, parser.NodeText(node, b.src), kind, visible)
			return
		}
		inner := opts
		inner.simple, inner.unpacked = false, true
		for _, child := range parser.NamedChildren(node) {
			b.target(child, kind, visible, inner)
		}
	case "comment":
	default:
		b.expr(node)
	}
}

// annotation walks a type annotation. String annotations are forward
// references and resolve like function bodies.
func (b *builder) annotation(node *sitter.Node) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "string":
		if hasInterpolation(node) {
			b.expr(node)
			return
		}
		for _, name := range identRe.FindAllString(stringContent(node, b.src), -1) {
			b.useName(name, int(node.StartByte()), true)
		}
	case "identifier":
		b.use(node)
	case "attribute":
		b.annotation(node.ChildByFieldName("object"))
	case "keyword_argument":
		b.annotation(node.ChildByFieldName("value"))
	case "call", "lambda", "named_expression",
		"list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		b.expr(node)
	default:
		for _, child := range parser.NamedChildren(node) {
			b.annotation(child)
		}
	}
}

// exported records the string literals of an __all__ expression. Anything
// it cannot read statically marks __all__ dynamic.
func (b *builder) exported(node *sitter.Node) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "string":
		if hasInterpolation(node) {
			b.g.DynamicAll = true
			return
		}
		name := stringContent(node, b.src)
		if identRe.FindString(name) == name && name != "" {
			b.g.Usages = append(b.g.Usages, Usage{
				Name:     name,
				Offset:   int(node.StartByte()),
				Scope:    0,
				Deferred: true,
				FromAll:  true,
			})
		}
	case "list", "tuple", "set", "parenthesized_expression", "binary_operator", "argument_list", "expression_list":
		for _, child := range parser.NamedChildren(node) {
			b.exported(child)
		}
	case "comment":
	case "identifier":
		// __all__ = __all__ + [...] extends the literal already recorded.
		if parser.NodeText(node, b.src) != "__all__" {
			b.g.DynamicAll = true
		}
	default:
		b.g.DynamicAll = true
	}
}

func hasInterpolation(node *sitter.Node) bool {
	for _, child := range parser.NamedChildren(node) {
		if child.Type() == "interpolation" {
			return true
		}
	}
	return false
}

func stringContent(node *sitter.Node, src []byte) string {
	var sb strings.Builder
	found := false
	for _, child := range parser.NamedChildren(node) {
		if child.Type() == "string_content" {
			sb.WriteString(parser.NodeText(child, src))
			found = true
		}
	}
	if found {
		return sb.String()
	}
	text := strings.TrimLeft(parser.NodeText(node, src), "rRbBuUfF")
	return strings.Trim(text, `"'`)
}

// isPure reports whether evaluating node cannot have side effects worth
// keeping: literals, containers of literals, bare names, lambdas and the
// empty dict(), list() and set() calls.
func isPure(node *sitter.Node, src []byte) bool {
	if node == nil {
		return false
	}
	switch node.Type() {
	case "integer", "float", "true", "false", "none", "ellipsis", "identifier", "lambda":
		return true
	case "string":
		return !hasInterpolation(node)
	case "concatenated_string", "list", "tuple", "set", "expression_list", "parenthesized_expression", "dictionary", "pair":
		for _, child := range parser.NamedChildren(node) {
			if child.Type() == "comment" {
				continue
			}
			if !isPure(child, src) {
				return false
			}
		}
		return true
	case "unary_operator":
		arg := node.ChildByFieldName("argument")
		return arg != nil && (arg.Type() == "integer" || arg.Type() == "float")
	case "call":
		fn := node.ChildByFieldName("function")
		args := node.ChildByFieldName("arguments")
		if fn == nil || fn.Type() != "identifier" || args == nil || args.NamedChildCount() != 0 {
			return false
		}
		switch parser.NodeText(fn, src) {
		case "dict", "list", "set":
			return true
		}
	}
	return false
}
