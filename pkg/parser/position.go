package parser

import (
	"fmt"
	"sort"
)

// Position is an immutable location in source text.
// Line and Column are 1-based; Column counts bytes. Offset is a byte offset.
type Position struct {
	Line   int `json:"line" toon:"line" yaml:"line"`
	Column int `json:"column" toon:"column" yaml:"column"`
	Offset int `json:"offset" toon:"offset" yaml:"offset"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Range is a half-open byte range [Start, End).
type Range struct {
	Start Position `json:"start" toon:"start" yaml:"start"`
	End   Position `json:"end" toon:"end" yaml:"end"`
}

// Len returns the number of bytes covered.
func (r Range) Len() int {
	return r.End.Offset - r.Start.Offset
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Start, r.End)
}

// LineIndex maps byte offsets to line/column positions.
type LineIndex struct {
	source []byte
	starts []int
}

// NewLineIndex indexes the line starts of source. "\n", "\r\n" and a lone "\r"
// each terminate a line.
func NewLineIndex(source []byte) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(source); i++ {
		switch source[i] {
		case '\n':
			starts = append(starts, i+1)
		case '\r':
			if i+1 < len(source) && source[i+1] == '\n' {
				i++
			}
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{source: source, starts: starts}
}

// Position converts a byte offset into a Position.
func (li *LineIndex) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(li.source) {
		offset = len(li.source)
	}
	line := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	return Position{Line: line + 1, Column: offset - li.starts[line] + 1, Offset: offset}
}

// Range builds a Range from two byte offsets.
func (li *LineIndex) Range(start, end int) Range {
	return Range{Start: li.Position(start), End: li.Position(end)}
}

// LineStart returns the offset of the first byte of the 1-based line.
func (li *LineIndex) LineStart(line int) int {
	if line < 1 {
		return 0
	}
	if line > len(li.starts) {
		return len(li.source)
	}
	return li.starts[line-1]
}

// NextLineStart returns the offset just past the terminator of the 1-based line,
// or the end of the source for the last line.
func (li *LineIndex) NextLineStart(line int) int {
	if line < 1 {
		line = 1
	}
	if line >= len(li.starts) {
		return len(li.source)
	}
	return li.starts[line]
}

// LineEnd returns the offset of the terminator of the 1-based line
// (or the end of the source when the line has none).
func (li *LineIndex) LineEnd(line int) int {
	end := li.NextLineStart(line)
	start := li.LineStart(line)
	for end > start && (li.source[end-1] == '\n' || li.source[end-1] == '\r') {
		end--
	}
	return end
}

// ParseError reports malformed source. Processing of the file stops at it.
type ParseError struct {
	Pos Position
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}
