package rewrite

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/Alok/autoflake/pkg/parser"
)

// Hunk pairs one edit with the lines it touched.
type Hunk struct {
	Op     string          `json:"op" toon:"op" yaml:"op"`
	Start  parser.Position `json:"start" toon:"start" yaml:"start"`
	End    parser.Position `json:"end" toon:"end" yaml:"end"`
	Before []string        `json:"before" toon:"before" yaml:"before"`
	After  []string        `json:"after" toon:"after" yaml:"after"`
}

// Apply splices edits into src from the highest offset down and returns the
// new text. Bytes outside the edited ranges are copied unchanged.
func Apply(src []byte, edits []EditOp) ([]byte, []Hunk, error) {
	for i, op := range edits {
		if op.Start < 0 || op.End < op.Start || op.End > len(src) {
			return nil, nil, fmt.Errorf("%w: %s outside source of %d bytes", ErrConflictingEdits, op, len(src))
		}
		if i > 0 && edits[i-1].End > op.Start {
			return nil, nil, fmt.Errorf("%w: %s overlaps %s", ErrConflictingEdits, op, edits[i-1])
		}
	}

	lines := parser.NewLineIndex(src)
	hunks := make([]Hunk, 0, len(edits))
	for _, op := range edits {
		hunks = append(hunks, hunk(src, lines, op))
	}

	out := append([]byte(nil), src...)
	for i := len(edits) - 1; i >= 0; i-- {
		op := edits[i]
		tail := append([]byte(op.Text), out[op.End:]...)
		out = append(out[:op.Start], tail...)
	}
	return out, hunks, nil
}

func hunk(src []byte, lines *parser.LineIndex, op EditOp) Hunk {
	last := op.End - 1
	if last < op.Start {
		last = op.Start
	}
	firstLine := lines.Position(op.Start).Line
	lastLine := lines.Position(last).Line

	from := lines.LineStart(firstLine)
	to := lines.NextLineStart(lastLine)
	if to < op.End {
		to = op.End
	}

	before := string(src[from:to])
	after := string(src[from:op.Start]) + op.Text + string(src[op.End:to])
	return Hunk{
		Op:     op.Kind.String(),
		Start:  lines.Position(op.Start),
		End:    lines.Position(op.End),
		Before: splitLines(before),
		After:  splitLines(after),
	}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// UnifiedDiff renders a unified diff between two versions of name.
func UnifiedDiff(name string, before, after []byte) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: "original/" + name,
		ToFile:   "fixed/" + name,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
