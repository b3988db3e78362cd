package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/Alok/autoflake/pkg/fixer"
	"github.com/Alok/autoflake/pkg/resolve"
	"github.com/Alok/autoflake/pkg/rewrite"
)

// FileStatus is the outcome for one file.
type FileStatus string

const (
	StatusChanged   FileStatus = "changed"
	StatusUnchanged FileStatus = "unchanged"
	StatusFailed    FileStatus = "failed"
)

// FileReport describes what happened to one file.
type FileReport struct {
	Path     string            `json:"path" toon:"path" yaml:"path"`
	Status   FileStatus        `json:"status" toon:"status" yaml:"status"`
	Removals []rewrite.Removal `json:"removals,omitempty" toon:"removals,omitempty" yaml:"removals,omitempty"`
	Skipped  []rewrite.Skip    `json:"skipped,omitempty" toon:"skipped,omitempty" yaml:"skipped,omitempty"`
	Warnings []string          `json:"warnings,omitempty" toon:"warnings,omitempty" yaml:"warnings,omitempty"`
	Passes   int               `json:"passes,omitempty" toon:"passes,omitempty" yaml:"passes,omitempty"`
	Encoding string            `json:"encoding,omitempty" toon:"encoding,omitempty" yaml:"encoding,omitempty"`
	Digest   *fixer.Digest     `json:"digest,omitempty" toon:"digest,omitempty" yaml:"digest,omitempty"`
	Diff     string            `json:"diff,omitempty" toon:"diff,omitempty" yaml:"diff,omitempty"`
	Error    string            `json:"error,omitempty" toon:"error,omitempty" yaml:"error,omitempty"`
	Cached   bool              `json:"cached,omitempty" toon:"cached,omitempty" yaml:"cached,omitempty"`
}

// NewFileReport summarizes a fixer result. diff may be empty when the
// caller wrote the file in place.
func NewFileReport(path string, res *fixer.RewriteResult, diff string) FileReport {
	fr := FileReport{
		Path:     path,
		Status:   StatusChanged,
		Removals: res.Removals,
		Skipped:  res.Skipped,
		Passes:   res.Passes,
		Encoding: res.Encoding,
		Diff:     diff,
	}
	if res.Unchanged {
		fr.Status = StatusUnchanged
	} else {
		d := res.Digest
		fr.Digest = &d
	}
	for _, w := range res.Warnings {
		fr.Warnings = append(fr.Warnings, w.Error())
	}
	return fr
}

// FailedFileReport records a file that could not be fixed.
func FailedFileReport(path string, err error) FileReport {
	return FileReport{Path: path, Status: StatusFailed, Error: err.Error()}
}

// CachedFileReport records a file the cache already knew to be clean.
func CachedFileReport(path string) FileReport {
	return FileReport{Path: path, Status: StatusUnchanged, Cached: true}
}

// Summary counts outcomes across a run.
type Summary struct {
	Files       int `json:"files" toon:"files" yaml:"files"`
	Changed     int `json:"changed" toon:"changed" yaml:"changed"`
	Unchanged   int `json:"unchanged" toon:"unchanged" yaml:"unchanged"`
	Failed      int `json:"failed" toon:"failed" yaml:"failed"`
	Cached      int `json:"cached" toon:"cached" yaml:"cached"`
	Imports     int `json:"imports_removed" toon:"imports_removed" yaml:"imports_removed"`
	Variables   int `json:"variables_removed" toon:"variables_removed" yaml:"variables_removed"`
	StarImports int `json:"star_imports_removed" toon:"star_imports_removed" yaml:"star_imports_removed"`
	Expanded    int `json:"expanded_names_removed" toon:"expanded_names_removed" yaml:"expanded_names_removed"`
	Skipped     int `json:"skipped_bindings" toon:"skipped_bindings" yaml:"skipped_bindings"`
}

// Report is the result of a run over many files.
type Report struct {
	Files   []FileReport `json:"files" toon:"files" yaml:"files"`
	Summary Summary      `json:"summary" toon:"summary" yaml:"summary"`
}

// NewReport builds a report and its summary.
func NewReport(files []FileReport) *Report {
	r := &Report{Files: files}
	r.Summary.Files = len(files)
	for _, f := range files {
		switch f.Status {
		case StatusChanged:
			r.Summary.Changed++
		case StatusUnchanged:
			r.Summary.Unchanged++
		case StatusFailed:
			r.Summary.Failed++
		}
		if f.Cached {
			r.Summary.Cached++
		}
		r.Summary.Skipped += len(f.Skipped)
		for _, rm := range f.Removals {
			if rm.Expanded {
				r.Summary.Expanded++
				continue
			}
			switch rm.Tag {
			case resolve.TagUnusedImport, resolve.TagPartialImport:
				r.Summary.Imports++
			case resolve.TagUnusedVariable:
				r.Summary.Variables++
			case resolve.TagUnusedStarImport:
				r.Summary.StarImports++
			}
		}
	}
	return r
}

func (r *Report) RenderData() any {
	return r
}

// RenderText writes the diffs of changed files, in file order.
func (r *Report) RenderText(w io.Writer, colored bool) error {
	for _, f := range r.Files {
		if f.Diff == "" {
			continue
		}
		if err := WriteDiff(w, f.Diff, colored); err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) RenderMarkdown(w io.Writer) error {
	fmt.Fprintf(w, "# autoflake\n\n")
	for _, f := range r.Files {
		if f.Status == StatusUnchanged {
			continue
		}
		fmt.Fprintf(w, "## %s\n\n", f.Path)
		if f.Error != "" {
			fmt.Fprintf(w, "**Error:** %s\n\n", f.Error)
			continue
		}
		for _, rm := range f.Removals {
			fmt.Fprintf(w, "- line %d: `%s` (%s)\n", rm.Range.Start.Line, rm.Name, rm.Tag)
		}
		if len(f.Removals) > 0 {
			fmt.Fprintln(w)
		}
		if f.Diff != "" {
			fmt.Fprintf(w, "```diff\n%s```\n\n", f.Diff)
		}
	}
	return r.StatsTable().RenderMarkdown(w)
}

// StatsTable renders the summary as a two-column table.
func (r *Report) StatsTable() *Table {
	s := r.Summary
	rows := [][]string{
		{"Files checked", strconv.Itoa(s.Files)},
		{"Files changed", strconv.Itoa(s.Changed)},
		{"Files unchanged", strconv.Itoa(s.Unchanged)},
		{"Files failed", strconv.Itoa(s.Failed)},
		{"Files from cache", strconv.Itoa(s.Cached)},
		{"Imports removed", strconv.Itoa(s.Imports)},
		{"Variables removed", strconv.Itoa(s.Variables)},
		{"Star imports removed", strconv.Itoa(s.StarImports)},
		{"Expanded names removed", strconv.Itoa(s.Expanded)},
		{"Bindings kept", strconv.Itoa(s.Skipped)},
	}
	return NewTable("Summary", []string{"Metric", "Count"}, rows, s)
}

// WriteDiff writes a unified diff, coloring added and removed lines.
func WriteDiff(w io.Writer, diff string, colored bool) error {
	if !colored {
		_, err := io.WriteString(w, diff)
		return err
	}

	bold := color.New(color.Bold)
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	hunk := color.New(color.FgCyan)

	sc := bufio.NewScanner(strings.NewReader(diff))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		var err error
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			_, err = bold.Fprintln(w, line)
		case strings.HasPrefix(line, "@@"):
			_, err = hunk.Fprintln(w, line)
		case strings.HasPrefix(line, "+"):
			_, err = added.Fprintln(w, line)
		case strings.HasPrefix(line, "-"):
			_, err = removed.Fprintln(w, line)
		default:
			_, err = fmt.Fprintln(w, line)
		}
		if err != nil {
			return err
		}
	}
	return sc.Err()
}
