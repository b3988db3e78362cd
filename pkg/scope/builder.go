package scope

import (
	"regexp"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/Alok/autoflake/pkg/parser"
)

var (
	identRe       = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	typeCommentRe = regexp.MustCompile(`^#\s*type:\s*(.*)$`)
	noqaRe        = regexp.MustCompile(`(?i)#\s*noqa\b`)
)

var compoundTypes = map[string]bool{
	"if_statement":         true,
	"for_statement":        true,
	"while_statement":      true,
	"try_statement":        true,
	"with_statement":       true,
	"match_statement":      true,
	"function_definition":  true,
	"class_definition":     true,
	"decorated_definition": true,
}

type builder struct {
	src   []byte
	lines *parser.LineIndex
	g     *Graph

	scope int // where usages originate
	owner int // where bindings land; never a handler scope

	stmt    int
	stmtEnd int

	cond      int
	guard     int
	loopStart int
	loopEnd   int
}

// Build walks a parsed module once and returns its scope graph.
func Build(result *parser.ParseResult) *Graph {
	root := result.Root()
	b := &builder{
		src:   result.Source,
		lines: result.Lines,
		stmt:  -1,
		g: &Graph{
			Source:       result.Source,
			Lines:        result.Lines,
			CommentRows:  roaring.New(),
			NoQARows:     roaring.New(),
			CommentBytes: roaring.New(),
		},
	}

	b.scope = b.newScope(KindModule, -1, 0, len(result.Source))
	b.owner = b.scope
	b.block(root)
	b.comments(root)
	b.finish()
	return b.g
}

func (b *builder) newScope(kind Kind, parent, start, end int) int {
	id := len(b.g.Scopes)
	b.g.Scopes = append(b.g.Scopes, &Scope{
		ID:      id,
		Kind:    kind,
		Parent:  parent,
		Start:   start,
		End:     end,
		Names:   make(map[string][]int),
		Globals: make(map[string]bool),
	})
	if parent >= 0 {
		p := b.g.Scopes[parent]
		p.Children = append(p.Children, id)
	}
	return id
}

// enter runs fn inside a fresh function, class or comprehension scope.
// Only function bodies leave the enclosing loop behind; class bodies and
// comprehensions execute in place.
func (b *builder) enter(kind Kind, node *sitter.Node, fn func()) {
	id := b.newScope(kind, b.scope, int(node.StartByte()), int(node.EndByte()))

	scope, owner := b.scope, b.owner
	cond, guard := b.cond, b.guard
	loopStart, loopEnd := b.loopStart, b.loopEnd

	b.scope, b.owner = id, id
	b.cond, b.guard = 0, 0
	if kind == KindFunction {
		b.loopStart, b.loopEnd = 0, 0
	}

	fn()

	b.scope, b.owner = scope, owner
	b.cond, b.guard = cond, guard
	b.loopStart, b.loopEnd = loopStart, loopEnd
}

func (b *builder) conditional(fn func()) {
	b.cond++
	fn()
	b.cond--
}

func (b *builder) guarded(fn func()) {
	b.guard++
	b.cond++
	fn()
	b.cond--
	b.guard--
}

func (b *builder) loop(node *sitter.Node, fn func()) {
	if b.loopEnd != 0 {
		fn()
		return
	}
	b.loopStart, b.loopEnd = int(node.StartByte()), int(node.EndByte())
	fn()
	b.loopStart, b.loopEnd = 0, 0
}

// block records the statements of a suite and walks each of them.
func (b *builder) block(node *sitter.Node) {
	blk := &Block{ID: len(b.g.Blocks), Scope: b.owner, Module: node.Type() == "module"}
	b.g.Blocks = append(b.g.Blocks, blk)

	savedStmt, savedEnd := b.stmt, b.stmtEnd
	defer func() { b.stmt, b.stmtEnd = savedStmt, savedEnd }()

	var prev *Statement
	for _, child := range parser.NamedChildren(node) {
		if child.Type() == "comment" {
			continue
		}
		st := b.newStatement(child, blk.ID)
		blk.Stmts = append(blk.Stmts, st.ID)

		if prev != nil && !prev.Compound && !st.Compound && prev.LastRow == st.FirstRow {
			st.Group = prev.Group
			b.g.Groups[st.Group] = append(b.g.Groups[st.Group], st.ID)
		} else {
			st.Group = len(b.g.Groups)
			b.g.Groups = append(b.g.Groups, []int{st.ID})
		}
		prev = st

		b.stmt, b.stmtEnd = st.ID, st.End
		b.statement(child)
	}
}

func (b *builder) newStatement(node *sitter.Node, block int) *Statement {
	start, end := int(node.StartByte()), int(node.EndByte())
	last := end - 1
	if last < start {
		last = start
	}
	st := &Statement{
		ID:       len(b.g.Statements),
		Type:     node.Type(),
		Start:    start,
		End:      end,
		FirstRow: b.lines.Position(start).Line,
		LastRow:  b.lines.Position(last).Line,
		Block:    block,
		Compound: compoundTypes[node.Type()],
	}
	b.g.Statements = append(b.g.Statements, st)
	return st
}

func (b *builder) statement(node *sitter.Node) {
	switch node.Type() {
	case "import_statement":
		b.importStatement(node)
	case "import_from_statement":
		b.importFrom(node)
	case "future_import_statement":
		b.futureImport(node)
	case "expression_statement":
		for _, child := range parser.NamedChildren(node) {
			b.expr(child)
		}
	case "function_definition":
		b.function(node, node)
	case "class_definition":
		b.class(node, node)
	case "decorated_definition":
		b.decorated(node)
	case "if_statement":
		b.clauses(node)
	case "for_statement":
		b.forStatement(node)
	case "while_statement":
		b.loop(node, func() { b.clauses(node) })
	case "try_statement":
		b.tryStatement(node)
	case "with_statement":
		b.withStatement(node)
	case "match_statement":
		b.matchStatement(node)
	case "global_statement":
		b.declare(node, 0)
	case "nonlocal_statement":
		b.declare(node, b.enclosingFunction())
	case "exec_statement":
		b.escapeChain()
		b.expr(node)
	default:
		b.expr(node)
	}
}

// clauses walks if/elif/else style statements: expressions in the current
// scope, suites as conditional blocks.
func (b *builder) clauses(node *sitter.Node) {
	for _, child := range parser.NamedChildren(node) {
		switch child.Type() {
		case "block":
			b.conditional(func() { b.block(child) })
		case "elif_clause", "else_clause", "finally_clause":
			b.clauses(child)
		case "comment":
		default:
			b.expr(child)
		}
	}
}

func (b *builder) importStatement(node *sitter.Node) {
	st := b.g.Statements[b.stmt]
	for _, child := range parser.NamedChildren(node) {
		switch child.Type() {
		case "dotted_name":
			path := parser.NodeText(child, b.src)
			top := parser.NodeText(child.NamedChild(0), b.src)
			bd := b.bind(child, top, BindImport, b.stmtEnd)
			bd.Range = b.rangeOf(child)
			bd.Module = path
			bd.Submodule = child.NamedChildCount() > 1
			st.Items = append(st.Items, Item{Start: int(child.StartByte()), End: int(child.EndByte()), Binding: bd.ID})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			bd := b.bind(alias, parser.NodeText(alias, b.src), BindImportAlias, b.stmtEnd)
			bd.Range = b.rangeOf(child)
			bd.Module = parser.NodeText(name, b.src)
			bd.Alias = bd.Name
			st.Items = append(st.Items, Item{Start: int(child.StartByte()), End: int(child.EndByte()), Binding: bd.ID})
		}
	}
}

func (b *builder) importFrom(node *sitter.Node) {
	st := b.g.Statements[b.stmt]
	module := parser.NodeText(node.ChildByFieldName("module_name"), b.src)

	for i, child := range parser.NamedChildren(node) {
		if i == 0 {
			continue // module_name
		}
		var bd *Binding
		switch child.Type() {
		case "dotted_name":
			bd = b.bind(child, parser.NodeText(child, b.src), BindImport, b.stmtEnd)
			bd.Item = bd.Name
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			bd = b.bind(alias, parser.NodeText(alias, b.src), BindImportAlias, b.stmtEnd)
			bd.Item = parser.NodeText(name, b.src)
			bd.Alias = bd.Name
		case "wildcard_import":
			bd = b.bind(child, "*", BindStarImport, b.stmtEnd)
		default:
			continue
		}
		bd.Range = b.rangeOf(child)
		bd.Module = module
		st.Items = append(st.Items, Item{Start: int(child.StartByte()), End: int(child.EndByte()), Binding: bd.ID})
	}
}

func (b *builder) futureImport(node *sitter.Node) {
	st := b.g.Statements[b.stmt]
	for _, child := range parser.NamedChildren(node) {
		var bd *Binding
		switch child.Type() {
		case "dotted_name":
			bd = b.bind(child, parser.NodeText(child, b.src), BindImport, b.stmtEnd)
			bd.Item = bd.Name
		case "aliased_import":
			alias := child.ChildByFieldName("alias")
			bd = b.bind(alias, parser.NodeText(alias, b.src), BindImportAlias, b.stmtEnd)
			bd.Item = parser.NodeText(child.ChildByFieldName("name"), b.src)
			bd.Alias = bd.Name
		default:
			continue
		}
		bd.Range = b.rangeOf(child)
		bd.Module = "__future__"
		bd.Future = true
		st.Items = append(st.Items, Item{Start: int(child.StartByte()), End: int(child.EndByte()), Binding: bd.ID})
	}
}

func (b *builder) decorated(node *sitter.Node) {
	def := node.ChildByFieldName("definition")
	for _, child := range parser.NamedChildren(node) {
		if child.Type() == "decorator" {
			b.expr(child)
		}
	}
	if def == nil {
		return
	}
	switch def.Type() {
	case "function_definition":
		b.function(def, node)
	case "class_definition":
		b.class(def, node)
	}
}

// function binds the function name in the current scope and walks the
// body in a new one. Defaults and annotations belong to the outer scope.
func (b *builder) function(node, outer *sitter.Node) {
	params := node.ChildByFieldName("parameters")
	b.outerParameters(params)
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		b.annotation(ret)
	}
	if tp := node.ChildByFieldName("type_parameters"); tp != nil {
		b.expr(tp)
	}
	if name := node.ChildByFieldName("name"); name != nil {
		b.bind(name, parser.NodeText(name, b.src), BindDefinition, int(outer.EndByte()))
	}

	b.enter(KindFunction, node, func() {
		b.innerParameters(params)
		if body := node.ChildByFieldName("body"); body != nil {
			b.block(body)
		}
	})
}

func (b *builder) class(node, outer *sitter.Node) {
	if sc := node.ChildByFieldName("superclasses"); sc != nil {
		b.expr(sc)
	}
	if tp := node.ChildByFieldName("type_parameters"); tp != nil {
		b.expr(tp)
	}
	if name := node.ChildByFieldName("name"); name != nil {
		b.bind(name, parser.NodeText(name, b.src), BindDefinition, int(outer.EndByte()))
	}

	b.enter(KindClass, node, func() {
		if body := node.ChildByFieldName("body"); body != nil {
			b.block(body)
		}
	})
}

func (b *builder) outerParameters(params *sitter.Node) {
	for _, p := range parser.NamedChildren(params) {
		switch p.Type() {
		case "default_parameter":
			b.expr(p.ChildByFieldName("value"))
		case "typed_parameter":
			b.annotation(p.ChildByFieldName("type"))
		case "typed_default_parameter":
			b.annotation(p.ChildByFieldName("type"))
			b.expr(p.ChildByFieldName("value"))
		}
	}
}

func (b *builder) innerParameters(params *sitter.Node) {
	for _, p := range parser.NamedChildren(params) {
		for _, id := range parameterNames(p) {
			b.bind(id, parser.NodeText(id, b.src), BindParameter, int(id.StartByte()))
		}
	}
}

func parameterNames(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	switch node.Type() {
	case "identifier":
		return []*sitter.Node{node}
	case "default_parameter", "typed_default_parameter":
		return parameterNames(node.ChildByFieldName("name"))
	case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
		if node.NamedChildCount() == 0 {
			return nil
		}
		return parameterNames(node.NamedChild(0))
	case "tuple_pattern", "list_pattern":
		var out []*sitter.Node
		for _, child := range parser.NamedChildren(node) {
			out = append(out, parameterNames(child)...)
		}
		return out
	}
	return nil
}

func (b *builder) forStatement(node *sitter.Node) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	b.expr(right)

	visible := int(node.StartByte())
	if right != nil {
		visible = int(right.EndByte())
	}

	b.loop(node, func() {
		b.conditional(func() {
			b.target(left, BindLoopTarget, visible, targetOpts{})
			if body := node.ChildByFieldName("body"); body != nil {
				b.block(body)
			}
		})
		if alt := node.ChildByFieldName("alternative"); alt != nil {
			b.clauses(alt)
		}
	})
}

func (b *builder) tryStatement(node *sitter.Node) {
	for _, child := range parser.NamedChildren(node) {
		switch child.Type() {
		case "block":
			b.guarded(func() { b.block(child) })
		case "except_clause", "except_group_clause":
			b.handler(child)
		case "else_clause", "finally_clause":
			b.clauses(child)
		}
	}
}

// handler walks an except clause. The optional "as" target lives in its own
// handler scope so it does not shadow the enclosing function's names.
func (b *builder) handler(node *sitter.Node) {
	var (
		body    *sitter.Node
		alias   *sitter.Node
		types   []*sitter.Node
		aliasOK bool
	)
	for i := range int(node.ChildCount()) {
		child := node.Child(i)
		if !child.IsNamed() {
			if t := child.Type(); t == "as" || t == "," {
				aliasOK = true
			}
			continue
		}
		switch {
		case child.Type() == "comment":
		case child.Type() == "block":
			body = child
		case child.Type() == "as_pattern":
			types = append(types, child.NamedChild(0))
			alias = asPatternTarget(child)
		case aliasOK && alias == nil:
			alias = child
		default:
			types = append(types, child)
		}
	}

	for _, t := range types {
		b.expr(t)
	}

	id := b.newScope(KindHandler, b.scope, int(node.StartByte()), int(node.EndByte()))
	saved := b.scope
	b.scope = id

	if isName(alias) && len(types) > 0 {
		bd := b.bindIn(id, alias, parser.NodeText(alias, b.src), BindExceptTarget, int(alias.EndByte()))
		last := types[len(types)-1]
		bd.Cut = b.lines.Range(int(last.EndByte()), int(alias.EndByte()))
	} else if alias != nil {
		b.expr(alias)
	}

	if body != nil {
		b.guarded(func() { b.block(body) })
	}
	b.scope = saved
}

// isName reports whether node is a plain name. Some grammar versions alias
// "as" targets to as_pattern_target.
func isName(node *sitter.Node) bool {
	if node == nil {
		return false
	}
	switch node.Type() {
	case "identifier":
		return true
	case "as_pattern_target":
		return node.NamedChildCount() == 0
	}
	return false
}

func asPatternTarget(node *sitter.Node) *sitter.Node {
	target := node.ChildByFieldName("alias")
	if target == nil && node.NamedChildCount() > 1 {
		target = node.NamedChild(int(node.NamedChildCount()) - 1)
	}
	if target != nil && target.Type() == "as_pattern_target" && target.NamedChildCount() > 0 {
		target = target.NamedChild(0)
	}
	return target
}

func (b *builder) withStatement(node *sitter.Node) {
	for _, child := range parser.NamedChildren(node) {
		switch child.Type() {
		case "with_clause":
			for _, item := range parser.NamedChildren(child) {
				if item.Type() == "with_item" {
					b.withItem(item)
				}
			}
		case "block":
			b.conditional(func() { b.block(child) })
		}
	}
}

func (b *builder) withItem(item *sitter.Node) {
	value := item.ChildByFieldName("value")
	if value == nil && item.NamedChildCount() > 0 {
		value = item.NamedChild(0)
	}
	if value == nil {
		return
	}

	var target *sitter.Node
	if value.Type() == "as_pattern" {
		b.expr(value.NamedChild(0))
		target = asPatternTarget(value)
	} else {
		b.expr(value)
		target = item.ChildByFieldName("alias")
	}
	if target != nil {
		b.conditional(func() {
			b.target(target, BindWithTarget, int(item.EndByte()), targetOpts{})
		})
	}
}

// matchStatement treats every name in a case pattern as a load; capture
// patterns rebinding an import keep that import alive.
func (b *builder) matchStatement(node *sitter.Node) {
	for _, child := range parser.NamedChildren(node) {
		if child.Type() != "block" {
			b.expr(child)
			continue
		}
		for _, clause := range parser.NamedChildren(child) {
			if clause.Type() != "case_clause" {
				b.expr(clause)
				continue
			}
			for _, part := range parser.NamedChildren(clause) {
				if part.Type() == "block" {
					b.conditional(func() { b.block(part) })
				} else {
					b.expr(part)
				}
			}
		}
	}
}

// declare handles global and nonlocal. The declaration counts as a deferred
// load in the scope that owns the name.
func (b *builder) declare(node *sitter.Node, target int) {
	s := b.g.Scopes[b.owner]
	for _, child := range parser.NamedChildren(node) {
		if child.Type() != "identifier" {
			continue
		}
		name := parser.NodeText(child, b.src)
		if s.Kind != KindModule {
			s.Globals[name] = true
		}
		b.g.Usages = append(b.g.Usages, Usage{
			Name:     name,
			Offset:   int(child.StartByte()),
			Scope:    target,
			Deferred: true,
		})
	}
}

func (b *builder) enclosingFunction() int {
	for id := b.g.Scopes[b.owner].Parent; id >= 0; id = b.g.Scopes[id].Parent {
		if b.g.Scopes[id].Kind == KindFunction {
			return id
		}
	}
	return 0
}

func (b *builder) rangeOf(node *sitter.Node) parser.Range {
	return b.lines.Range(int(node.StartByte()), int(node.EndByte()))
}

func (b *builder) bind(node *sitter.Node, name string, kind BindingKind, visible int) *Binding {
	return b.bindIn(b.owner, node, name, kind, visible)
}

func (b *builder) bindIn(scope int, node *sitter.Node, name string, kind BindingKind, visible int) *Binding {
	bd := &Binding{
		ID:          len(b.g.Bindings),
		Name:        name,
		Kind:        kind,
		Scope:       scope,
		Stmt:        b.stmt,
		Range:       b.rangeOf(node),
		Visible:     visible,
		Conditional: b.cond > 0,
		Guarded:     b.guard > 0,
	}
	b.g.Bindings = append(b.g.Bindings, bd)
	s := b.g.Scopes[scope]
	s.Bindings = append(s.Bindings, bd.ID)
	s.Names[name] = append(s.Names[name], bd.ID)
	return bd
}

func (b *builder) use(node *sitter.Node) {
	b.useName(parser.NodeText(node, b.src), int(node.StartByte()), false)
}

func (b *builder) useName(name string, offset int, deferred bool) {
	b.g.Usages = append(b.g.Usages, Usage{
		Name:      name,
		Offset:    offset,
		Scope:     b.scope,
		Deferred:  deferred,
		LoopStart: b.loopStart,
		LoopEnd:   b.loopEnd,
	})
}

// escapeChain marks the current scope and all its ancestors as reachable by
// dynamic lookups.
func (b *builder) escapeChain() {
	for id := b.scope; id >= 0; id = b.g.Scopes[id].Parent {
		b.g.Scopes[id].Escaped = true
	}
}

func (b *builder) escapeModule() {
	b.g.Scopes[0].Escaped = true
}

// comments records comment rows, "# noqa" rows and names mentioned in
// "# type:" comments.
func (b *builder) comments(root *sitter.Node) {
	parser.WalkTyped(root, b.src, func(node *sitter.Node, nodeType string, source []byte) bool {
		if nodeType != "comment" {
			return true
		}
		start, end := int(node.StartByte()), int(node.EndByte())
		row := b.lines.Position(start).Line
		text := parser.NodeText(node, source)

		b.g.CommentRows.Add(uint32(row))
		b.g.CommentBytes.AddRange(uint64(start), uint64(end))
		if noqaRe.MatchString(text) {
			b.g.NoQARows.Add(uint32(row))
		}
		if m := typeCommentRe.FindStringSubmatch(text); m != nil && !strings.HasPrefix(strings.TrimSpace(m[1]), "ignore") {
			scope := b.g.ScopeAt(start)
			for _, name := range identRe.FindAllString(m[1], -1) {
				b.g.Usages = append(b.g.Usages, Usage{Name: name, Offset: start, Scope: scope, Deferred: true})
			}
		}
		return true
	})
}

func (b *builder) finish() {
	for _, s := range b.g.Scopes {
		for name := range s.Globals {
			for _, id := range s.Names[name] {
				b.g.Bindings[id].Declared = true
			}
		}
	}

	for _, st := range b.g.Statements {
		rows := roaring.New()
		rows.AddRange(uint64(st.FirstRow), uint64(st.LastRow)+1)
		st.Comment = rows.Intersects(b.g.CommentRows)
		st.NoQA = rows.Intersects(b.g.NoQARows)
	}
}
