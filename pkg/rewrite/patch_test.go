package rewrite

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		edits []EditOp
		want  string
	}{
		{
			name:  "no edits",
			src:   "import os\n",
			edits: nil,
			want:  "import os\n",
		},
		{
			name:  "delete line",
			src:   "import os\nimport sys\n",
			edits: []EditOp{{Kind: OpDelete, Start: 0, End: 10}},
			want:  "import sys\n",
		},
		{
			name: "several edits keep offsets",
			src:  "import os, sys\ndef f():\n    x = 1\n",
			edits: []EditOp{
				{Kind: OpDelete, Start: 7, End: 11},
				{Kind: OpReplace, Start: 28, End: 33, Text: "pass"},
			},
			want: "import sys\ndef f():\n    pass\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hunks, err := Apply([]byte(tt.src), tt.edits)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
			assert.Len(t, hunks, len(tt.edits))
		})
	}
}

func TestApply_LeavesInputAlone(t *testing.T) {
	src := []byte("import os\nimport sys\n")
	_, _, err := Apply(src, []EditOp{{Kind: OpDelete, Start: 0, End: 10}})
	require.NoError(t, err)
	assert.Equal(t, "import os\nimport sys\n", string(src))
}

func TestApply_Errors(t *testing.T) {
	src := []byte("import os\n")

	tests := []struct {
		name  string
		edits []EditOp
	}{
		{"past end", []EditOp{{Start: 5, End: 50}}},
		{"reversed", []EditOp{{Start: 5, End: 2}}},
		{"overlap", []EditOp{{Start: 0, End: 5}, {Start: 3, End: 6}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Apply(src, tt.edits)
			if !errors.Is(err, ErrConflictingEdits) {
				t.Errorf("Apply() error = %v, want ErrConflictingEdits", err)
			}
		})
	}
}

func TestApply_Hunks(t *testing.T) {
	src := []byte("import os, sys\nsys.exit()\n")
	_, hunks, err := Apply(src, []EditOp{{Kind: OpDelete, Start: 7, End: 11}})
	require.NoError(t, err)
	require.Len(t, hunks, 1)

	h := hunks[0]
	assert.Equal(t, "delete-range", h.Op)
	assert.Equal(t, 1, h.Start.Line)
	assert.Equal(t, 8, h.Start.Column)
	assert.Equal(t, []string{"import os, sys\n"}, h.Before)
	assert.Equal(t, []string{"import sys\n"}, h.After)
}

func TestApply_HunkWholeLine(t *testing.T) {
	src := []byte("import os\nimport sys\n")
	_, hunks, err := Apply(src, []EditOp{{Kind: OpDelete, Start: 0, End: 10}})
	require.NoError(t, err)
	require.Len(t, hunks, 1)

	assert.Equal(t, []string{"import os\n"}, hunks[0].Before)
	assert.Nil(t, hunks[0].After)
	assert.Equal(t, 2, hunks[0].End.Line)
}

func TestUnifiedDiff(t *testing.T) {
	diff, err := UnifiedDiff("pkg/a.py", []byte("import os\nimport sys\n"), []byte("import sys\n"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(diff, "--- original/pkg/a.py"))
	assert.Contains(t, diff, "+++ fixed/pkg/a.py")
	assert.Contains(t, diff, "-import os\n")
	assert.Contains(t, diff, " import sys\n")
}
