// Package fixer runs the full analysis and rewrite pipeline on one file.
package fixer

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"

	"github.com/Alok/autoflake/pkg/parser"
	"github.com/Alok/autoflake/pkg/resolve"
	"github.com/Alok/autoflake/pkg/rewrite"
	"github.com/Alok/autoflake/pkg/scope"
)

// State is the pipeline stage a file reached.
type State int

const (
	StateParsed State = iota
	StateScopesBuilt
	StateUsagesResolved
	StateEditsPlanned
	StatePatched
	StateUnchanged
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateScopesBuilt:
		return "scopes-built"
	case StateUsagesResolved:
		return "usages-resolved"
	case StateEditsPlanned:
		return "edits-planned"
	case StatePatched:
		return "patched"
	case StateUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// RewriteResult is the outcome of fixing one file. Source is the input as
// given; NewText is the output in the same encoding and equals Source when
// Unchanged is set.
type RewriteResult struct {
	Source    []byte            `json:"-" toon:"-" yaml:"-"`
	NewText   []byte            `json:"-" toon:"-" yaml:"-"`
	Removals  []rewrite.Removal `json:"removals" toon:"removals" yaml:"removals"`
	Skipped   []rewrite.Skip    `json:"skipped,omitempty" toon:"skipped,omitempty" yaml:"skipped,omitempty"`
	Hunks     []rewrite.Hunk    `json:"hunks,omitempty" toon:"hunks,omitempty" yaml:"hunks,omitempty"`
	Unchanged bool              `json:"unchanged" toon:"unchanged" yaml:"unchanged"`
	State     State             `json:"-" toon:"-" yaml:"-"`
	Passes    int               `json:"passes" toon:"passes" yaml:"passes"`
	Warnings  []error           `json:"-" toon:"-" yaml:"-"`
	Encoding  string            `json:"encoding" toon:"encoding" yaml:"encoding"`
	Digest    Digest            `json:"digest" toon:"digest" yaml:"digest"`
}

// Digest holds BLAKE3 hashes of the input and output bytes.
type Digest struct {
	Before string `json:"before" toon:"before" yaml:"before"`
	After  string `json:"after" toon:"after" yaml:"after"`
}

// Diff renders the change as a unified diff labelled with name.
func (r *RewriteResult) Diff(name string) (string, error) {
	if r.Unchanged {
		return "", nil
	}
	return rewrite.UnifiedDiff(name, r.Source, r.NewText)
}

// Fixer applies a Policy. It holds no per-file state and is safe for
// concurrent use; the parser passed to Fix is not.
type Fixer struct {
	policy Policy
}

// New creates a fixer for policy.
func New(policy Policy) *Fixer {
	if policy.MaxPasses <= 0 {
		policy.MaxPasses = DefaultPolicy().MaxPasses
	}
	return &Fixer{policy: policy}
}

// Policy returns the policy the fixer applies.
func (f *Fixer) Policy() Policy {
	return f.policy
}

// AnalyzeAndRewrite removes unused bindings from source under policy.
// It performs no I/O.
func AnalyzeAndRewrite(source []byte, policy Policy) (*RewriteResult, error) {
	psr := parser.New()
	defer psr.Close()
	return New(policy).Fix(context.Background(), psr, source)
}

// Fix runs the pipeline until it stops producing edits. A source that does
// not parse yields a *parser.ParseError; a rewrite that would not parse
// yields ErrUnsafeRewrite. In both cases nothing is returned to write back.
func (f *Fixer) Fix(ctx context.Context, psr *parser.Parser, raw []byte) (*RewriteResult, error) {
	enc := parser.DetectEncoding(raw)
	text, err := enc.Decode(raw)
	if err != nil {
		enc = parser.Latin1
		if text, err = enc.Decode(raw); err != nil {
			return nil, err
		}
	}

	res := &RewriteResult{
		Source:   raw,
		Encoding: enc.String(),
		State:    StateParsed,
		Digest:   Digest{Before: digest(raw)},
	}

	current := text
	orig := newOrigin(text)
	seen := map[uint64]bool{xxhash.Sum64(current): true}
	var expanded map[int]bool
	for pass := 1; pass <= f.policy.MaxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			next []byte
			ops  []rewrite.EditOp
		)
		if pass == 1 && f.policy.ExpandStarImports {
			next, ops, expanded, err = f.expandStars(ctx, psr, current, res)
			if err == nil && next == nil {
				next, ops, err = f.pass(ctx, psr, current, nil, orig, res)
			}
		} else {
			next, ops, err = f.pass(ctx, psr, current, expanded, orig, res)
			expanded = nil
		}
		if err != nil {
			var perr *parser.ParseError
			if pass > 1 && errors.As(err, &perr) {
				return nil, fmt.Errorf("%w: pass %d: %v", ErrUnsafeRewrite, pass, err)
			}
			return nil, err
		}
		if next == nil {
			break
		}

		res.Passes = pass
		orig.record(ops)
		sum := xxhash.Sum64(next)
		current = next
		if seen[sum] {
			res.Warnings = append(res.Warnings, fmt.Errorf("rewrite did not settle after %d passes", pass))
			break
		}
		seen[sum] = true
	}

	if bytes.Equal(current, text) {
		res.NewText = raw
		res.Unchanged = true
		res.State = StateUnchanged
		res.Hunks = nil
		res.Digest.After = res.Digest.Before
		return res, nil
	}

	if _, err := psr.Parse(ctx, current); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeRewrite, err)
	}
	out, err := enc.Encode(current)
	if err != nil {
		return nil, err
	}
	res.NewText = out
	res.State = StatePatched
	res.Digest.After = digest(out)
	return res, nil
}

// pass runs parse, scope building, resolution, planning and patching once.
// It returns nil text when there is nothing to change, otherwise the new
// text and the edits that produced it. Reported positions are rebased onto
// the input through orig.
func (f *Fixer) pass(ctx context.Context, psr *parser.Parser, text []byte, expanded map[int]bool, orig *origin, res *RewriteResult) ([]byte, []rewrite.EditOp, error) {
	parsed, err := psr.Parse(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	res.State = StateParsed

	g := scope.Build(parsed)
	res.State = StateScopesBuilt
	for _, bd := range g.Bindings {
		if bd.Stmt >= 0 && expanded[g.Statements[bd.Stmt].Start] {
			bd.FromStar = true
		}
	}

	resolved := resolve.Resolve(g, f.policy.resolveOptions())
	res.State = StateUsagesResolved
	if len(resolved.Dead) == 0 {
		res.Skipped = nil
		return nil, nil, nil
	}

	plan, err := rewrite.Plan(g, resolved)
	if err != nil {
		return nil, nil, err
	}
	res.State = StateEditsPlanned
	if plan.Edits.Len() == 0 {
		orig.rebase(g.Lines, nil, plan.Skipped, nil)
		res.Skipped = plan.Skipped
		return nil, nil, nil
	}

	ops := plan.Edits.Ops()
	out, hunks, err := rewrite.Apply(text, ops)
	if err != nil {
		return nil, nil, err
	}
	orig.rebase(g.Lines, plan.Removals, plan.Skipped, hunks)
	res.State = StatePatched
	res.Skipped = plan.Skipped
	res.Removals = append(res.Removals, plan.Removals...)
	res.Hunks = append(res.Hunks, hunks...)
	return out, ops, nil
}

// expandStars replaces each module-level "from m import *" with the names m
// exports. It returns the new text, its edits and the start offsets of the
// rewritten statements in the new text, or nil text when nothing was
// expanded. It always runs first, so its positions need no rebasing.
func (f *Fixer) expandStars(ctx context.Context, psr *parser.Parser, text []byte, res *RewriteResult) ([]byte, []rewrite.EditOp, map[int]bool, error) {
	parsed, err := psr.Parse(ctx, text)
	if err != nil {
		return nil, nil, nil, err
	}
	g := scope.Build(parsed)

	edits := &rewrite.EditSet{}
	for _, bd := range g.BindingsOf(scope.BindStarImport) {
		if g.Scopes[bd.Scope].Kind != scope.KindModule {
			continue
		}
		line := bd.Range.Start.Line
		if f.policy.Lookup == nil {
			res.Warnings = append(res.Warnings, &UnresolvableStarImportError{Module: bd.Module, Line: line, Err: errors.New("no symbol lookup configured")})
			continue
		}
		names, err := f.policy.Lookup.Exports(bd.Module)
		if err == nil && len(names) == 0 {
			err = errors.New("module exports no names")
		}
		if err != nil {
			res.Warnings = append(res.Warnings, &UnresolvableStarImportError{Module: bd.Module, Line: line, Err: err})
			continue
		}
		op := rewrite.EditOp{
			Kind:  rewrite.OpReplace,
			Start: bd.Range.Start.Offset,
			End:   bd.Range.End.Offset,
			Text:  strings.Join(names, ", "),
		}
		if err := edits.Add(op); err != nil {
			return nil, nil, nil, err
		}
	}
	if edits.Len() == 0 {
		return nil, nil, nil, nil
	}

	ops := edits.Ops()
	out, hunks, err := rewrite.Apply(text, ops)
	if err != nil {
		return nil, nil, nil, err
	}
	res.Hunks = append(res.Hunks, hunks...)

	starts := make(map[int]bool, len(ops))
	delta := 0
	for _, op := range ops {
		for _, bd := range g.BindingsOf(scope.BindStarImport) {
			if bd.Range.Start.Offset == op.Start {
				starts[g.Statements[bd.Stmt].Start+delta] = true
			}
		}
		delta += len(op.Text) - (op.End - op.Start)
	}
	return out, ops, starts, nil
}

func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
