package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineIndex_Position(t *testing.T) {
	li := NewLineIndex([]byte("ab\ncd\r\nef\rg"))

	tests := []struct {
		offset int
		want   Position
	}{
		{0, Position{Line: 1, Column: 1, Offset: 0}},
		{2, Position{Line: 1, Column: 3, Offset: 2}},
		{3, Position{Line: 2, Column: 1, Offset: 3}},
		{7, Position{Line: 3, Column: 1, Offset: 7}},
		{10, Position{Line: 4, Column: 1, Offset: 10}},
		{99, Position{Line: 4, Column: 2, Offset: 11}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, li.Position(tt.offset), "offset %d", tt.offset)
	}
}

func TestLineIndex_LineBounds(t *testing.T) {
	src := []byte("import os\r\nx = 1\nlast")
	li := NewLineIndex(src)

	assert.Equal(t, 17, li.LineStart(3))
	assert.Equal(t, 0, li.LineStart(1))
	assert.Equal(t, 11, li.NextLineStart(1))
	assert.Equal(t, 9, li.LineEnd(1))
	assert.Equal(t, 11, li.LineStart(2))
	assert.Equal(t, len(src), li.NextLineStart(3))
	assert.Equal(t, 16, li.LineEnd(2))
}

func TestLineIndex_TrailingNewline(t *testing.T) {
	li := NewLineIndex([]byte("a\nb\n"))
	assert.Equal(t, 4, li.LineStart(3))
	assert.Equal(t, 4, li.NextLineStart(2))
}

func TestRange(t *testing.T) {
	li := NewLineIndex([]byte("import os, sys\n"))
	r := li.Range(7, 11)

	assert.Equal(t, 4, r.Len())
	assert.Equal(t, Position{Line: 1, Column: 8, Offset: 7}, r.Start)
	assert.Equal(t, "1:8-1:12", r.String())
}
