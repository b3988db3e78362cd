package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alok/autoflake/pkg/fixer"
	"github.com/Alok/autoflake/pkg/resolve"
	"github.com/Alok/autoflake/pkg/rewrite"
)

func fixed(t *testing.T, src string) *fixer.RewriteResult {
	t.Helper()
	policy := fixer.DefaultPolicy()
	policy.RemoveUnusedVariables = true
	res, err := fixer.AnalyzeAndRewrite([]byte(src), policy)
	require.NoError(t, err)
	return res
}

func TestNewFileReport(t *testing.T) {
	res := fixed(t, "import os\nimport sys\nprint(sys)\n")
	diff, err := res.Diff("a.py")
	require.NoError(t, err)

	fr := NewFileReport("a.py", res, diff)
	assert.Equal(t, StatusChanged, fr.Status)
	require.Len(t, fr.Removals, 1)
	assert.Equal(t, "os", fr.Removals[0].Name)
	require.NotNil(t, fr.Digest)
	assert.NotEqual(t, fr.Digest.Before, fr.Digest.After)
	assert.Contains(t, fr.Diff, "-import os")

	clean := NewFileReport("b.py", fixed(t, "import os\nos.getcwd()\n"), "")
	assert.Equal(t, StatusUnchanged, clean.Status)
	assert.Nil(t, clean.Digest)
	assert.Empty(t, clean.Removals)

	failed := FailedFileReport("c.py", errors.New("syntax error"))
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "syntax error", failed.Error)
}

func TestNewReport_Summary(t *testing.T) {
	files := []FileReport{
		{Path: "a.py", Status: StatusChanged, Removals: []rewrite.Removal{
			{Name: "os", Tag: resolve.TagUnusedImport},
			{Name: "path", Tag: resolve.TagPartialImport},
			{Name: "x", Tag: resolve.TagUnusedVariable},
		}},
		{Path: "b.py", Status: StatusChanged, Removals: []rewrite.Removal{
			{Name: "*", Tag: resolve.TagUnusedStarImport},
			{Name: "sep", Tag: resolve.TagPartialImport, Expanded: true},
		}, Skipped: []rewrite.Skip{{Name: "y", Line: 3, Reason: "line has a comment"}}},
		{Path: "c.py", Status: StatusUnchanged},
		{Path: "d.py", Status: StatusFailed, Error: "boom"},
	}

	s := NewReport(files).Summary
	assert.Equal(t, Summary{
		Files:       4,
		Changed:     2,
		Unchanged:   1,
		Failed:      1,
		Imports:     2,
		Variables:   1,
		StarImports: 1,
		Expanded:    1,
		Skipped:     1,
	}, s)
}

func TestReport_RenderText(t *testing.T) {
	res := fixed(t, "import os\n")
	diff, err := res.Diff("a.py")
	require.NoError(t, err)

	r := NewReport([]FileReport{
		NewFileReport("a.py", res, diff),
		{Path: "b.py", Status: StatusUnchanged},
		{Path: "c.py", Status: StatusFailed, Error: "boom"},
	})

	var buf bytes.Buffer
	require.NoError(t, r.RenderText(&buf, false))
	assert.Equal(t, diff, buf.String())
	assert.True(t, strings.HasPrefix(buf.String(), "--- original/a.py\n+++ fixed/a.py\n"))
}

func TestReport_RenderMarkdown(t *testing.T) {
	res := fixed(t, "import os\n")
	diff, err := res.Diff("a.py")
	require.NoError(t, err)

	r := NewReport([]FileReport{
		NewFileReport("a.py", res, diff),
		{Path: "b.py", Status: StatusUnchanged},
		FailedFileReport("c.py", errors.New("boom")),
	})

	var buf bytes.Buffer
	require.NoError(t, r.RenderMarkdown(&buf))
	out := buf.String()

	assert.Contains(t, out, "## a.py")
	assert.Contains(t, out, "- line 1: `os` (unused-import)")
	assert.Contains(t, out, "```diff\n--- original/a.py")
	assert.Contains(t, out, "**Error:** boom")
	assert.NotContains(t, out, "## b.py")
	assert.Contains(t, out, "| Files checked | 3 |")
}

func TestReport_JSON(t *testing.T) {
	res := fixed(t, "def f():\n    x = 1\n    return 2\n")
	r := NewReport([]FileReport{NewFileReport("a.py", res, "")})

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatJSON, &buf, false).Output(r))

	var got struct {
		Files []struct {
			Path     string `json:"path"`
			Status   string `json:"status"`
			Removals []struct {
				Name string `json:"name"`
				Tag  string `json:"tag"`
			} `json:"removals"`
		} `json:"files"`
		Summary struct {
			Variables int `json:"variables_removed"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Files, 1)
	assert.Equal(t, "changed", got.Files[0].Status)
	require.Len(t, got.Files[0].Removals, 1)
	assert.Equal(t, "x", got.Files[0].Removals[0].Name)
	assert.Equal(t, "unused-variable", got.Files[0].Removals[0].Tag)
	assert.Equal(t, 1, got.Summary.Variables)
}

func TestReport_YAMLAndTOON(t *testing.T) {
	r := NewReport([]FileReport{NewFileReport("a.py", fixed(t, "import os\n"), "")})

	var y bytes.Buffer
	require.NoError(t, NewFormatter(FormatYAML, &y, false).Output(r))
	assert.Contains(t, y.String(), "path: a.py")
	assert.Contains(t, y.String(), "imports_removed: 1")

	var tn bytes.Buffer
	require.NoError(t, NewFormatter(FormatTOON, &tn, false).Output(r))
	assert.Contains(t, tn.String(), "imports_removed")
	assert.Contains(t, tn.String(), "a.py")
}

func TestReport_StatsTable(t *testing.T) {
	r := NewReport([]FileReport{{Path: "a.py", Status: StatusUnchanged}})
	table := r.StatsTable()

	assert.Equal(t, "Summary", table.Title)
	assert.Equal(t, []string{"Files checked", "1"}, table.Rows[0])
	assert.Equal(t, r.Summary, table.RenderData())
}

func TestWriteDiff(t *testing.T) {
	diff := "--- original/a.py\n+++ fixed/a.py\n@@ -1,2 +1 @@\n-import os\n x = 1\n"

	var plain bytes.Buffer
	require.NoError(t, WriteDiff(&plain, diff, false))
	assert.Equal(t, diff, plain.String())

	var colored bytes.Buffer
	require.NoError(t, WriteDiff(&colored, diff, true))
	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		assert.Contains(t, colored.String(), line)
	}
}

func TestCachedFileReport(t *testing.T) {
	r := NewReport([]FileReport{
		CachedFileReport("a.py"),
		{Path: "b.py", Status: StatusUnchanged},
	})

	assert.True(t, r.Files[0].Cached)
	assert.Equal(t, StatusUnchanged, r.Files[0].Status)
	assert.Equal(t, 2, r.Summary.Unchanged)
	assert.Equal(t, 1, r.Summary.Cached)
	assert.Contains(t, r.StatsTable().Rows, []string{"Files from cache", "1"})
}
