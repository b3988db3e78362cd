package fixer

import (
	"errors"
	"fmt"

	"github.com/Alok/autoflake/pkg/resolve"
)

var (
	// ErrUnresolvableStarImport is matched by *UnresolvableStarImportError.
	ErrUnresolvableStarImport = errors.New("unresolvable star import")
	// ErrUnsafeRewrite means the rewritten text no longer parses.
	ErrUnsafeRewrite = errors.New("rewrite produced invalid source")
)

// SymbolLookup lists the public names of a module for star-import expansion.
type SymbolLookup interface {
	Exports(module string) ([]string, error)
}

// UnresolvableStarImportError is reported when a star-import could not be
// expanded. The import is left as it was.
type UnresolvableStarImportError struct {
	Module string
	Line   int
	Err    error
}

func (e *UnresolvableStarImportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("line %d: cannot expand \"from %s import *\"", e.Line, e.Module)
	}
	return fmt.Sprintf("line %d: cannot expand \"from %s import *\": %v", e.Line, e.Module, e.Err)
}

func (e *UnresolvableStarImportError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrUnresolvableStarImport.
func (e *UnresolvableStarImportError) Is(target error) bool {
	return target == ErrUnresolvableStarImport
}

// Policy selects what the fixer removes.
type Policy struct {
	RemoveUnusedImports   bool
	RemoveUnusedVariables bool
	ExpandStarImports     bool
	// ForceAggressive ignores __all__, removes unused star-imports and
	// imports guarded by try/except.
	ForceAggressive bool
	// StdlibOnly limits import removal to the standard library plus
	// AdditionalImports.
	StdlibOnly        bool
	AdditionalImports []string
	// KeepModuleImports protects module-level imports, used for __init__.py.
	KeepModuleImports bool
	MaxPasses         int
	Lookup            SymbolLookup
}

// DefaultPolicy removes unused imports and nothing else.
func DefaultPolicy() Policy {
	return Policy{
		RemoveUnusedImports: true,
		MaxPasses:           10,
	}
}

func (p Policy) resolveOptions() resolve.Options {
	opts := resolve.Options{
		AllIsUsage:           !p.ForceAggressive,
		StarImportsDead:      p.ForceAggressive,
		RemoveImports:        p.RemoveUnusedImports,
		RemoveVariables:      p.RemoveUnusedVariables,
		RemoveGuardedImports: p.ForceAggressive,
		KeepModuleImports:    p.KeepModuleImports,
	}
	if p.StdlibOnly {
		extra := make(map[string]bool, len(p.AdditionalImports))
		for _, name := range p.AdditionalImports {
			extra[name] = true
		}
		opts.ImportFilter = func(module string) bool {
			return IsStdlib(module) || extra[module] || extra[topLevel(module)]
		}
	}
	return opts
}
