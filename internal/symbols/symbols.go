// Package symbols finds the names a Python module exports to star-imports.
package symbols

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Alok/autoflake/pkg/fixer"
	"github.com/Alok/autoflake/pkg/parser"
	"github.com/Alok/autoflake/pkg/scope"
)

var (
	// ErrModuleNotFound is returned when no search path holds the module.
	ErrModuleNotFound = errors.New("module not found")
	// ErrDynamicExports is returned when a module's public names depend on
	// code that only runs at import time.
	ErrDynamicExports = errors.New("exports are not static")
)

type entry struct {
	names []string
	err   error
}

// Lookup resolves modules against a list of source roots. Results are kept
// for the lifetime of the Lookup; it is safe for concurrent use.
type Lookup struct {
	paths []string

	mu    sync.Mutex
	cache map[string]entry
}

// New creates a lookup over the given search paths.
func New(searchPaths []string) *Lookup {
	return &Lookup{
		paths: searchPaths,
		cache: make(map[string]entry),
	}
}

// Exports returns the sorted public names of an absolute module path.
func (l *Lookup) Exports(module string) ([]string, error) {
	return l.exports("", module)
}

// ForFile returns a lookup that also resolves relative imports made by the
// file at path.
func (l *Lookup) ForFile(path string) fixer.SymbolLookup {
	return fileLookup{lookup: l, dir: filepath.Dir(path)}
}

type fileLookup struct {
	lookup *Lookup
	dir    string
}

func (f fileLookup) Exports(module string) ([]string, error) {
	return f.lookup.exports(f.dir, module)
}

func (l *Lookup) exports(dir, module string) ([]string, error) {
	path, err := l.locate(dir, module)
	if err != nil {
		return nil, err
	}
	return l.exportsOf(path, make(map[string]bool))
}

// exportsOf resolves the module at path, following its own star-imports.
// visiting holds the modules on the current chain.
func (l *Lookup) exportsOf(path string, visiting map[string]bool) ([]string, error) {
	l.mu.Lock()
	e, ok := l.cache[path]
	l.mu.Unlock()
	if ok {
		return e.names, e.err
	}
	if visiting[path] {
		return nil, fmt.Errorf("%w: %s star-imports itself", ErrDynamicExports, path)
	}
	visiting[path] = true

	names, err := l.readExports(path, visiting)
	l.mu.Lock()
	l.cache[path] = entry{names: names, err: err}
	l.mu.Unlock()
	return names, err
}

// locate maps a dotted module path to a source file. Leading dots climb
// from dir, one level per dot after the first.
func (l *Lookup) locate(dir, module string) (string, error) {
	rel := strings.TrimLeft(module, ".")
	dots := len(module) - len(rel)

	roots := l.paths
	if dots > 0 {
		if dir == "" {
			return "", fmt.Errorf("%w: relative module %q outside a file", ErrModuleNotFound, module)
		}
		base := dir
		for i := 1; i < dots; i++ {
			base = filepath.Dir(base)
		}
		roots = []string{base}
	}

	var parts string
	if rel != "" {
		parts = filepath.Join(strings.Split(rel, ".")...)
	}
	for _, root := range roots {
		base := filepath.Join(root, parts)
		candidates := []string{filepath.Join(base, "__init__.py"), filepath.Join(base, "__init__.pyi")}
		if parts != "" {
			candidates = append([]string{base + ".py", base + ".pyi"}, candidates...)
		}
		for _, c := range candidates {
			if info, err := os.Stat(c); err == nil && !info.IsDir() {
				return c, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrModuleNotFound, module)
}

func (l *Lookup) readExports(path string, visiting map[string]bool) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text, err := parser.DetectEncoding(raw).Decode(raw)
	if err != nil {
		if text, err = parser.Latin1.Decode(raw); err != nil {
			return nil, err
		}
	}

	psr := parser.New()
	defer psr.Close()
	result, err := psr.Parse(context.Background(), text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	g := scope.Build(result)
	names, err := Exports(g)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if g.HasAll {
		return names, nil
	}

	// Without __all__ the module also re-exports whatever its own
	// star-imports bound.
	for _, bd := range g.BindingsOf(scope.BindStarImport) {
		if bd.Scope != g.Module().ID {
			continue
		}
		if bd.Conditional || bd.Guarded {
			return nil, fmt.Errorf("%w: %s: conditional \"from %s import *\" on line %d", ErrDynamicExports, path, bd.Module, bd.Range.Start.Line)
		}
		sub, err := l.locate(filepath.Dir(path), bd.Module)
		if err == nil {
			var inner []string
			if inner, err = l.exportsOf(sub, visiting); err == nil {
				names = append(names, inner...)
				continue
			}
		}
		return nil, fmt.Errorf("%s: from %s import *: %w", path, bd.Module, err)
	}
	return dedupe(names), nil
}

// Exports lists the names "from m import *" would bind for the module
// described by g, not counting the module's own star-imports: the literal
// entries of __all__ when it is assigned, otherwise every module-level name
// not starting with an underscore. A computed __all__, or one bound by
// anything but assignment, is ErrDynamicExports.
func Exports(g *scope.Graph) ([]string, error) {
	mod := g.Module()
	for _, id := range mod.Names["__all__"] {
		switch g.Bindings[id].Kind {
		case scope.BindAssignment, scope.BindAugAssignment:
		default:
			return nil, fmt.Errorf("%w: __all__ bound by %s", ErrDynamicExports, g.Bindings[id].Kind)
		}
	}
	if g.DynamicAll {
		return nil, fmt.Errorf("%w: __all__ is computed", ErrDynamicExports)
	}

	var names []string
	if g.HasAll {
		for _, u := range g.Usages {
			if u.FromAll {
				names = append(names, u.Name)
			}
		}
		return dedupe(names), nil
	}
	for _, id := range mod.Bindings {
		bd := g.Bindings[id]
		if bd.Kind == scope.BindStarImport || strings.HasPrefix(bd.Name, "_") {
			continue
		}
		names = append(names, bd.Name)
	}
	return dedupe(names), nil
}

func dedupe(names []string) []string {
	sort.Strings(names)
	out := names[:0]
	for i, name := range names {
		if i == 0 || name != names[i-1] {
			out = append(out, name)
		}
	}
	return out
}
