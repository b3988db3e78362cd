// Package resolve matches name loads to bindings and reports the bindings
// nothing reads.
package resolve

import (
	"github.com/Alok/autoflake/pkg/parser"
	"github.com/Alok/autoflake/pkg/scope"
)

// Tag classifies a dead binding.
type Tag string

const (
	TagUnusedImport     Tag = "unused-import"
	TagUnusedVariable   Tag = "unused-variable"
	TagUnusedStarImport Tag = "unused-star-import"
	TagPartialImport    Tag = "partially-used-multi-import"
)

// Options selects which unused bindings are reported.
type Options struct {
	// AllIsUsage counts names listed in __all__ as loads.
	AllIsUsage bool
	// StarImportsDead allows star-imports to be reported when no load is
	// left unresolved.
	StarImportsDead bool
	RemoveImports   bool
	RemoveVariables bool
	// RemoveGuardedImports allows imports inside try/except to be reported.
	RemoveGuardedImports bool
	// ImportFilter, when set, limits reported imports to modules it accepts.
	ImportFilter func(module string) bool
	// KeepModuleImports protects every module-level import.
	KeepModuleImports bool
}

// DefaultOptions reports unused imports only and honors __all__.
func DefaultOptions() Options {
	return Options{
		AllIsUsage:    true,
		RemoveImports: true,
	}
}

// DeadBinding is a binding with no resolving load.
type DeadBinding struct {
	Binding int               `json:"binding" toon:"binding" yaml:"binding"`
	Name    string            `json:"name" toon:"name" yaml:"name"`
	Kind    scope.BindingKind `json:"-" toon:"-" yaml:"-"`
	Tag     Tag               `json:"tag" toon:"tag" yaml:"tag"`
	Range   parser.Range      `json:"range" toon:"range" yaml:"range"`
}

// Result is the outcome of resolving one graph.
type Result struct {
	Dead []DeadBinding
	// Used is indexed by binding ID.
	Used []bool
	// Unresolved holds loads that matched no binding.
	Unresolved map[string]bool
}

// IsUsed reports whether binding id has at least one resolving load.
func (r *Result) IsUsed(id int) bool {
	return id >= 0 && id < len(r.Used) && r.Used[id]
}

type resolver struct {
	g          *scope.Graph
	used       []bool
	unresolved map[string]bool
}

// Resolve marks every binding reachable from a load and classifies the rest.
func Resolve(g *scope.Graph, opts Options) *Result {
	r := &resolver{
		g:          g,
		used:       make([]bool, len(g.Bindings)),
		unresolved: make(map[string]bool),
	}

	for _, u := range g.Usages {
		if u.FromAll && !opts.AllIsUsage {
			continue
		}
		r.resolve(u)
	}
	for _, s := range g.Scopes {
		if s.Escaped {
			r.markAll(s.Bindings)
		}
	}

	res := &Result{Used: r.used, Unresolved: r.unresolved}
	dead := make(map[int]bool)
	for _, bd := range g.Bindings {
		if r.used[bd.ID] || bd.Declared {
			continue
		}
		tag, ok := r.classify(bd, opts)
		if !ok {
			continue
		}
		dead[bd.ID] = true
		res.Dead = append(res.Dead, DeadBinding{
			Binding: bd.ID,
			Name:    bd.Name,
			Kind:    bd.Kind,
			Tag:     tag,
			Range:   bd.Range,
		})
	}

	for i := range res.Dead {
		d := &res.Dead[i]
		if d.Tag == TagUnusedImport && partiallyUsed(g, g.Bindings[d.Binding], dead) {
			d.Tag = TagPartialImport
		}
	}
	return res
}

// resolve walks from the load's scope outward and marks what it finds in
// the nearest scope that binds the name.
func (r *resolver) resolve(u scope.Usage) {
	deferred := u.Deferred
	crossed := false

	for id := u.Scope; id >= 0; {
		s := r.g.Scopes[id]
		if crossed && s.Kind == scope.KindClass {
			id = s.Parent
			continue
		}

		if ids := s.Names[u.Name]; len(ids) > 0 {
			switch {
			case s.Kind == scope.KindHandler:
				// The handler body may also rebind the name in the
				// enclosing scope, so keep looking.
				r.markAll(ids)
			case deferred || s.Kind == scope.KindFunction || s.Kind == scope.KindComprehension:
				r.markAll(ids)
				return
			default:
				if r.markOrdered(ids, u) {
					return
				}
			}
		}

		switch s.Kind {
		case scope.KindFunction:
			crossed, deferred = true, true
		case scope.KindComprehension:
			crossed = true
		}
		id = s.Parent
	}
	r.unresolved[u.Name] = true
}

// markOrdered handles a direct load at module or class level: only bindings
// made before the load count, the latest one first. Conditional bindings
// keep the search going, and bindings later in the same loop are reachable
// on the next iteration. It reports whether an unconditional binding was
// found.
func (r *resolver) markOrdered(ids []int, u scope.Usage) bool {
	found := false
	for i := len(ids) - 1; i >= 0; i-- {
		bd := r.g.Bindings[ids[i]]
		if bd.Visible > u.Offset {
			if u.LoopEnd > 0 && bd.Visible >= u.LoopStart && bd.Visible <= u.LoopEnd {
				r.used[bd.ID] = true
			}
			continue
		}
		if found {
			// "import a.b" stays next to a later "import a".
			if bd.Submodule {
				r.used[bd.ID] = true
			}
			continue
		}
		r.used[bd.ID] = true
		if !bd.Conditional && !bd.Submodule {
			found = true
		}
	}
	return found
}

func (r *resolver) markAll(ids []int) {
	for _, id := range ids {
		r.used[id] = true
	}
}

func (r *resolver) classify(bd *scope.Binding, opts Options) (Tag, bool) {
	s := r.g.Scopes[bd.Scope]
	switch bd.Kind {
	case scope.BindImport, scope.BindImportAlias:
		if !opts.RemoveImports || bd.Future {
			return "", false
		}
		if s.Kind != scope.KindModule && s.Kind != scope.KindFunction {
			return "", false
		}
		if bd.Guarded && !opts.RemoveGuardedImports {
			return "", false
		}
		if opts.KeepModuleImports && s.Kind == scope.KindModule {
			return "", false
		}
		if opts.ImportFilter != nil && !opts.ImportFilter(bd.Module) {
			return "", false
		}
		return TagUnusedImport, true

	case scope.BindStarImport:
		if !opts.RemoveImports || !opts.StarImportsDead || s.Kind != scope.KindModule {
			return "", false
		}
		if bd.Guarded && !opts.RemoveGuardedImports {
			return "", false
		}
		if opts.ImportFilter != nil && !opts.ImportFilter(bd.Module) {
			return "", false
		}
		for name := range r.unresolved {
			if !builtins[name] {
				return "", false
			}
		}
		return TagUnusedStarImport, true

	case scope.BindAssignment:
		if !opts.RemoveVariables || s.Kind != scope.KindFunction {
			return "", false
		}
		if !bd.Simple || bd.Unpacked || bd.Chained || keptVariables[bd.Name] {
			return "", false
		}
		return TagUnusedVariable, true

	case scope.BindExceptTarget:
		if !opts.RemoveVariables {
			return "", false
		}
		return TagUnusedVariable, true
	}
	return "", false
}

func partiallyUsed(g *scope.Graph, bd *scope.Binding, dead map[int]bool) bool {
	if bd.Stmt < 0 {
		return false
	}
	for _, item := range g.Statements[bd.Stmt].Items {
		if item.Binding != bd.ID && !dead[item.Binding] {
			return true
		}
	}
	return false
}
