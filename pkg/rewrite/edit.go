// Package rewrite turns dead bindings into byte-range edits and applies them.
package rewrite

import (
	"errors"
	"fmt"
	"sort"
)

// ErrConflictingEdits means two planned edits overlap. It indicates a bug in
// the planner; the file must be left untouched.
var ErrConflictingEdits = errors.New("conflicting edit ranges")

// OpKind is the kind of an edit.
type OpKind int

const (
	OpDelete OpKind = iota
	OpReplace
)

func (k OpKind) String() string {
	if k == OpReplace {
		return "replace-range"
	}
	return "delete-range"
}

// EditOp replaces the half-open byte range [Start, End) with Text.
// Deletions carry empty Text.
type EditOp struct {
	Kind  OpKind
	Start int
	End   int
	Text  string
}

func (e EditOp) String() string {
	if e.Kind == OpReplace {
		return fmt.Sprintf("%s [%d,%d) %q", e.Kind, e.Start, e.End, e.Text)
	}
	return fmt.Sprintf("%s [%d,%d)", e.Kind, e.Start, e.End)
}

func (e EditOp) overlaps(o EditOp) bool {
	return e.Start < o.End && o.Start < e.End
}

// EditSet keeps edits sorted by start offset and pairwise disjoint.
type EditSet struct {
	ops []EditOp
}

// Add inserts op, rejecting it when it overlaps an edit already present.
func (s *EditSet) Add(op EditOp) error {
	if op.Start < 0 || op.End <= op.Start {
		return fmt.Errorf("%w: invalid range [%d,%d)", ErrConflictingEdits, op.Start, op.End)
	}
	i := sort.Search(len(s.ops), func(i int) bool { return s.ops[i].Start >= op.Start })
	if i > 0 && s.ops[i-1].overlaps(op) {
		return fmt.Errorf("%w: %s overlaps %s", ErrConflictingEdits, op, s.ops[i-1])
	}
	if i < len(s.ops) && s.ops[i].overlaps(op) {
		return fmt.Errorf("%w: %s overlaps %s", ErrConflictingEdits, op, s.ops[i])
	}
	s.ops = append(s.ops, EditOp{})
	copy(s.ops[i+1:], s.ops[i:])
	s.ops[i] = op
	return nil
}

// Ops returns the edits in ascending order.
func (s *EditSet) Ops() []EditOp {
	return append([]EditOp(nil), s.ops...)
}

// Len returns the number of edits.
func (s *EditSet) Len() int {
	return len(s.ops)
}
