package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"text", FormatText},
		{"TEXT", FormatText},
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"yaml", FormatYAML},
		{"yml", FormatYAML},
		{"toon", FormatTOON},
		{"markdown", FormatMarkdown},
		{"md", FormatMarkdown},
		{"", FormatText},
		{"invalid", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseFormat(tt.input)
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTableRenderText(t *testing.T) {
	tests := []struct {
		name  string
		table *Table
		want  []string
	}{
		{
			name: "simple_table",
			table: NewTable(
				"Summary",
				[]string{"Metric", "Count"},
				[][]string{
					{"Files checked", "12"},
					{"Imports removed", "3"},
				},
				nil,
			),
			want: []string{"Summary", "METRIC", "COUNT", "Files checked", "12", "Imports removed"},
		},
		{
			name:  "cache_table",
			table: NewTable("Cache", []string{"Metric", "Value"}, [][]string{{"Entries", "4"}}, nil),
			want:  []string{"Cache", "=====", "METRIC", "Entries", "4"},
		},
		{
			name:  "no_title",
			table: NewTable("", []string{"A", "B"}, [][]string{{"1", "2"}}, nil),
			want:  []string{"A", "B", "1", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.table.RenderText(&buf, false); err != nil {
				t.Fatalf("RenderText() error: %v", err)
			}

			output := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("RenderText() missing %q in output:\n%s", want, output)
				}
			}
		})
	}
}

func TestTableRenderMarkdown(t *testing.T) {
	table := NewTable("Summary", []string{"Metric", "Count"}, [][]string{{"Files checked", "2"}, {"Files changed", "1"}}, nil)

	var buf bytes.Buffer
	require.NoError(t, table.RenderMarkdown(&buf))

	want := "## Summary\n\n| Metric | Count |\n| --- | --- |\n| Files checked | 2 |\n| Files changed | 1 |\n\n"
	assert.Equal(t, want, buf.String())
}

func TestTableRenderData(t *testing.T) {
	table := NewTable("", []string{"Metric", "Count"}, [][]string{{"Files", "2"}}, nil)
	assert.Equal(t, []map[string]string{{"Metric": "Files", "Count": "2"}}, table.RenderData())

	wrapped := NewTable("", nil, nil, map[string]int{"files": 2})
	assert.Equal(t, map[string]int{"files": 2}, wrapped.RenderData())
}

func TestFormatterOutputRaw(t *testing.T) {
	data := map[string]any{"path": "a.py", "passes": 2}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewFormatter(FormatJSON, &buf, false).Output(data))

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "a.py", got["path"])
		assert.Equal(t, float64(2), got["passes"])
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewFormatter(FormatYAML, &buf, false).Output(data))

		var got map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "a.py", got["path"])
		assert.Equal(t, 2, got["passes"])
	})

	t.Run("toon", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewFormatter(FormatTOON, &buf, false).Output(data))
		assert.Contains(t, buf.String(), "passes")
		assert.Contains(t, buf.String(), "a.py")
	})

	t.Run("markdown wraps json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewFormatter(FormatMarkdown, &buf, false).Output(data))
		out := buf.String()
		assert.True(t, strings.HasPrefix(out, "```json\n"))
		assert.True(t, strings.HasSuffix(out, "```\n"))
	})

	t.Run("text falls back to json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewFormatter(FormatText, &buf, false).Output(data))
		assert.True(t, json.Valid(buf.Bytes()))
	})
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name    string
		quiet   bool
		verbose bool
		call    func(*Status)
		want    string
	}{
		{"success", false, false, func(s *Status) { s.Success("Fixed %d files", 2) }, "Fixed 2 files\n"},
		{"warning", false, false, func(s *Status) { s.Warning("skipped %s", "a.py") }, "WARNING: skipped a.py\n"},
		{"error", false, false, func(s *Status) { s.Error("broken") }, "ERROR: broken\n"},
		{"info", false, false, func(s *Status) { s.Info("scanning") }, "scanning\n"},
		{"quiet drops warnings", true, false, func(s *Status) { s.Warning("hidden") }, ""},
		{"quiet keeps errors", true, false, func(s *Status) { s.Error("shown") }, "ERROR: shown\n"},
		{"verbose off", false, false, func(s *Status) { s.Verbose("detail") }, ""},
		{"verbose on", false, true, func(s *Status) { s.Verbose("detail") }, "detail\n"},
		{"quiet beats verbose", true, true, func(s *Status) { s.Verbose("detail") }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.call(NewStatus(&buf, false, tt.quiet, tt.verbose))
			if got := buf.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}
