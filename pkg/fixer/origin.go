package fixer

import (
	"github.com/Alok/autoflake/pkg/parser"
	"github.com/Alok/autoflake/pkg/rewrite"
)

// origin maps positions in the text of a later pass back to the decoded
// input, so every pass reports against the file the user gave us.
type origin struct {
	lines  *parser.LineIndex
	passes [][]rewrite.EditOp
}

func newOrigin(text []byte) *origin {
	return &origin{lines: parser.NewLineIndex(text)}
}

// record adds the edits that produced the next pass's text.
func (o *origin) record(ops []rewrite.EditOp) {
	o.passes = append(o.passes, ops)
}

func (o *origin) identity() bool {
	return len(o.passes) == 0
}

// offset maps off back through every recorded pass. An exclusive end offset
// (atEnd) that lands inside replaced text maps to the end of what was
// replaced; a start offset maps to its beginning.
func (o *origin) offset(off int, atEnd bool) int {
	for i := len(o.passes) - 1; i >= 0; i-- {
		off = unapply(o.passes[i], off, atEnd)
	}
	return off
}

func unapply(ops []rewrite.EditOp, off int, atEnd bool) int {
	delta := 0
	for _, op := range ops {
		start := op.Start + delta
		end := start + len(op.Text)
		if atEnd {
			if off <= start {
				break
			}
			if off <= end {
				return op.End
			}
		} else {
			if off < start {
				break
			}
			if off < end {
				return op.Start
			}
		}
		delta += len(op.Text) - (op.End - op.Start)
	}
	return off - delta
}

func (o *origin) position(off int, atEnd bool) parser.Position {
	return o.lines.Position(o.offset(off, atEnd))
}

func (o *origin) rng(r parser.Range) parser.Range {
	return parser.Range{Start: o.position(r.Start.Offset, false), End: o.position(r.End.Offset, true)}
}

// line maps a 1-based line of the current text, indexed by lines.
func (o *origin) line(lines *parser.LineIndex, line int) int {
	return o.position(lines.LineStart(line), false).Line
}

// rebase rewrites the positions a later pass reported.
func (o *origin) rebase(lines *parser.LineIndex, removals []rewrite.Removal, skipped []rewrite.Skip, hunks []rewrite.Hunk) {
	if o.identity() {
		return
	}
	for i := range removals {
		removals[i].Range = o.rng(removals[i].Range)
	}
	for i := range skipped {
		skipped[i].Line = o.line(lines, skipped[i].Line)
	}
	for i := range hunks {
		hunks[i].Start = o.position(hunks[i].Start.Offset, false)
		hunks[i].End = o.position(hunks[i].End.Offset, true)
	}
}
