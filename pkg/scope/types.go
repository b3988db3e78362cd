package scope

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Alok/autoflake/pkg/parser"
)

// Kind classifies a lexical scope.
type Kind int

const (
	KindModule Kind = iota
	KindFunction
	KindClass
	KindComprehension
	KindHandler
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	case KindComprehension:
		return "comprehension"
	case KindHandler:
		return "exception-handler"
	default:
		return "unknown"
	}
}

// BindingKind classifies the construct that introduced a name.
type BindingKind int

const (
	BindImport BindingKind = iota
	BindImportAlias
	BindStarImport
	BindAssignment
	BindAugAssignment
	BindLoopTarget
	BindExceptTarget
	BindParameter
	BindDefinition
	BindWithTarget
	BindNamedExpr
)

var bindingKindNames = [...]string{
	BindImport:        "import",
	BindImportAlias:   "import-with-alias",
	BindStarImport:    "star-import",
	BindAssignment:    "assignment",
	BindAugAssignment: "augmented-assignment",
	BindLoopTarget:    "loop-target",
	BindExceptTarget:  "exception-target",
	BindParameter:     "function-parameter",
	BindDefinition:    "definition",
	BindWithTarget:    "with-target",
	BindNamedExpr:     "named-expression",
}

func (k BindingKind) String() string {
	if int(k) < len(bindingKindNames) {
		return bindingKindNames[k]
	}
	return "unknown"
}

// Scope is one node of the per-file scope tree. Parent and Children are
// indices into Graph.Scopes.
type Scope struct {
	ID       int
	Kind     Kind
	Parent   int
	Children []int
	Start    int
	End      int

	// Bindings lists binding IDs in source order.
	Bindings []int
	// Names maps a name to every binding of it in this scope, in source order.
	Names map[string][]int
	// Globals holds names declared global or nonlocal here.
	Globals map[string]bool
	// Escaped is set when eval, locals() and friends can reach this scope.
	Escaped bool
}

// Binding is one name-introducing construct.
type Binding struct {
	ID    int
	Name  string
	Kind  BindingKind
	Scope int
	// Stmt is the statement the binding appears in.
	Stmt int
	// Range covers the bound name, or the whole item for imports
	// ("os.path", "b as c").
	Range parser.Range
	// Visible is the offset from which ordered lookups can see the binding.
	Visible int

	Module string
	Item   string
	Alias  string

	// Value is the right-hand side of an assignment.
	Value parser.Range
	// Pure is set when Value has no side effects.
	Pure bool
	// Cut is the byte range dropped when an exception target goes away.
	Cut parser.Range

	Simple      bool
	Conditional bool
	Guarded     bool
	Unpacked    bool
	Chained     bool
	Declared    bool
	Future      bool
	Submodule   bool
	FromStar    bool
}

// Usage is one name load.
type Usage struct {
	Name   string
	Offset int
	Scope  int
	// Deferred usages resolve against every binding of the name.
	Deferred bool
	// FromAll marks names listed in __all__.
	FromAll bool
	// LoopStart and LoopEnd bound the outermost loop around the usage
	// within its own scope.
	LoopStart int
	LoopEnd   int
}

// Item is one name of an import statement.
type Item struct {
	Start   int
	End     int
	Binding int
}

// Statement is one entry of a block's statement list.
type Statement struct {
	ID       int
	Type     string
	Start    int
	End      int
	FirstRow int
	LastRow  int
	Block    int
	Group    int
	Compound bool
	Comment  bool
	NoQA     bool
	Items    []Item
}

// Block is an indented suite (or the module body).
type Block struct {
	ID     int
	Scope  int
	Module bool
	Stmts  []int
}

// Graph holds everything the builder learned about one file.
type Graph struct {
	Source     []byte
	Lines      *parser.LineIndex
	Scopes     []*Scope
	Bindings   []*Binding
	Usages     []Usage
	Statements []*Statement
	Blocks     []*Block
	// Groups lists statements sharing a line through ";".
	Groups [][]int
	// HasAll is set when the module assigns __all__; DynamicAll when some
	// of its entries are not string literals.
	HasAll     bool
	DynamicAll bool

	CommentRows  *roaring.Bitmap
	NoQARows     *roaring.Bitmap
	CommentBytes *roaring.Bitmap
}

// Module returns the module scope.
func (g *Graph) Module() *Scope {
	return g.Scopes[0]
}

// ScopeAt returns the innermost scope containing offset.
func (g *Graph) ScopeAt(offset int) int {
	best := 0
	for _, s := range g.Scopes {
		if offset < s.Start || offset >= s.End {
			continue
		}
		b := g.Scopes[best]
		if s.End-s.Start <= b.End-b.Start {
			best = s.ID
		}
	}
	return best
}

// HasComment reports whether any comment byte lies in [start, end).
func (g *Graph) HasComment(start, end int) bool {
	if end <= start {
		return false
	}
	r := roaring.New()
	r.AddRange(uint64(start), uint64(end))
	return r.Intersects(g.CommentBytes)
}

// Text returns the source bytes in [start, end).
func (g *Graph) Text(start, end int) string {
	return string(g.Source[start:end])
}

// BindingsOf returns the bindings of the given kinds in source order.
func (g *Graph) BindingsOf(kinds ...BindingKind) []*Binding {
	var out []*Binding
	for _, b := range g.Bindings {
		for _, k := range kinds {
			if b.Kind == k {
				out = append(out, b)
				break
			}
		}
	}
	return out
}
