package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Status writes user-facing status lines, normally to stderr.
type Status struct {
	w       io.Writer
	colored bool
	quiet   bool
	verbose bool
}

// NewStatus creates a status writer. Quiet drops everything but errors;
// verbose enables Verbose lines.
func NewStatus(w io.Writer, colored, quiet, verbose bool) *Status {
	return &Status{w: w, colored: colored, quiet: quiet, verbose: verbose}
}

func (s *Status) print(c color.Attribute, prefix, format string, args ...any) {
	if s.colored {
		color.New(c).Fprintf(s.w, format+"\n", args...)
		return
	}
	fmt.Fprintf(s.w, prefix+format+"\n", args...)
}

func (s *Status) Success(format string, args ...any) {
	if s.quiet {
		return
	}
	s.print(color.FgGreen, "", format, args...)
}

func (s *Status) Warning(format string, args ...any) {
	if s.quiet {
		return
	}
	s.print(color.FgYellow, "WARNING: ", format, args...)
}

func (s *Status) Error(format string, args ...any) {
	s.print(color.FgRed, "ERROR: ", format, args...)
}

func (s *Status) Info(format string, args ...any) {
	if s.quiet {
		return
	}
	s.print(color.FgCyan, "", format, args...)
}

// Verbose prints per-file diagnostics when enabled.
func (s *Status) Verbose(format string, args ...any) {
	if s.quiet || !s.verbose {
		return
	}
	fmt.Fprintf(s.w, format+"\n", args...)
}
