// Package fix runs the fixer over a set of paths: discovery, the worker pool,
// in-place writes and the per-run report.
package fix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Alok/autoflake/internal/cache"
	"github.com/Alok/autoflake/internal/fileproc"
	"github.com/Alok/autoflake/internal/output"
	"github.com/Alok/autoflake/internal/progress"
	"github.com/Alok/autoflake/internal/scanner"
	"github.com/Alok/autoflake/internal/sink"
	"github.com/Alok/autoflake/internal/symbols"
	"github.com/Alok/autoflake/pkg/config"
	"github.com/Alok/autoflake/pkg/fixer"
	"github.com/Alok/autoflake/pkg/parser"
)

// Stdin is the path argument that reads source from standard input.
const Stdin = "-"

// Status is the overall outcome of a run.
type Status int

const (
	StatusClean Status = iota
	StatusChanged
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusClean:
		return "clean"
	case StatusChanged:
		return "changed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ExitCode maps a status to the process exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusChanged:
		return 2
	case StatusFailed:
		return 1
	default:
		return 0
	}
}

// Options control one run.
type Options struct {
	// InPlace writes fixed files back to disk.
	InPlace bool
	// Check reports what would change without writing anything.
	Check bool
	// Recursive descends into directory arguments.
	Recursive bool
	// Changed keeps only files modified in the git work tree.
	Changed bool
	// Stream writes each diff as soon as its file is done instead of
	// leaving it to the report.
	Stream bool
	// Jobs bounds the worker pool; 0 picks the default.
	Jobs int
}

// Result is the outcome of a run.
type Result struct {
	Report *output.Report
	// NotStarted counts files skipped after cancellation.
	NotStarted int
}

// Status folds the report into a single outcome.
func (r *Result) Status() Status {
	switch {
	case r.Report.Summary.Failed > 0 || r.NotStarted > 0:
		return StatusFailed
	case r.Report.Summary.Changed > 0:
		return StatusChanged
	default:
		return StatusClean
	}
}

// Service runs fixes over files.
type Service struct {
	config   *config.Config
	stdin    io.Reader
	sink     *sink.Sink
	cache    *cache.Cache
	status   *output.Status
	progress io.Writer
	colored  bool
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets the configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// WithStdin sets the reader used for the "-" argument.
func WithStdin(r io.Reader) Option {
	return func(s *Service) {
		s.stdin = r
	}
}

// WithSink sets where streamed diffs and stdin results go.
func WithSink(snk *sink.Sink) Option {
	return func(s *Service) {
		s.sink = snk
	}
}

// WithCache skips files the cache already knows to be clean. It has no
// effect when star-imports are expanded. This is the only state a run
// leaves behind, so callers pass a disabled cache unless the user opted in.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithStatus sets the status line writer.
func WithStatus(st *output.Status) Option {
	return func(s *Service) {
		s.status = st
	}
}

// WithProgress shows a progress bar on w during in-place runs.
func WithProgress(w io.Writer) Option {
	return func(s *Service) {
		s.progress = w
	}
}

// WithColor enables colored streamed diffs.
func WithColor(enabled bool) Option {
	return func(s *Service) {
		s.colored = enabled
	}
}

// New creates a new fix service.
func New(opts ...Option) *Service {
	s := &Service{
		config: config.DefaultConfig(),
		stdin:  os.Stdin,
		sink:   sink.New(os.Stdout),
		status: output.NewStatus(io.Discard, false, true, false),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanError indicates path discovery failed.
type ScanError struct {
	Err error
}

func (e *ScanError) Error() string {
	return "failed to collect files: " + e.Err.Error()
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Files expands paths into the files a run would process.
func (s *Service) Files(paths []string, opts Options) ([]string, error) {
	files, err := scanner.NewScanner(s.config).Scan(paths, opts.Recursive)
	if err != nil {
		return nil, &ScanError{Err: err}
	}
	if opts.Changed {
		changed, err := scanner.ChangedFiles(".")
		if err != nil {
			return nil, &ScanError{Err: err}
		}
		files = scanner.FilterChanged(files, changed)
	}
	return files, nil
}

// Run fixes every file named by paths. Per-file failures end up in the
// report; the error return is reserved for problems that stop the run
// before any file is touched.
func (s *Service) Run(ctx context.Context, paths []string, opts Options) (*Result, error) {
	files, err := s.Files(paths, opts)
	if err != nil {
		return nil, err
	}

	var lookup *symbols.Lookup
	if s.config.Rewrite.ExpandStarImports {
		lookup = symbols.New(s.config.Symbols.SearchPaths)
	}

	reports := make(map[string]output.FileReport, len(files))
	var disk []string
	for _, f := range files {
		if f == Stdin {
			reports[f] = s.fixStdin(ctx, lookup, opts)
			continue
		}
		disk = append(disk, f)
	}

	tracker := progress.Disabled()
	if s.progress != nil && opts.InPlace && !opts.Check && len(disk) > 1 {
		tracker = progress.NewTracker(s.progress, "Fixing", len(disk))
	}

	results, errs := fileproc.MapFiles(ctx, disk, opts.Jobs, func(psr *parser.Parser, path string) (output.FileReport, error) {
		return s.fixFile(ctx, psr, lookup, path, opts)
	}, tracker.Tick)

	for _, fr := range results {
		reports[fr.Path] = fr
	}
	res := &Result{NotStarted: errs.Canceled()}
	if errs != nil {
		for _, pe := range errs.Errors {
			if errors.Is(pe.Err, fileproc.ErrNotStarted) {
				continue
			}
			reports[pe.Path] = output.FailedFileReport(pe.Path, pe.Err)
			s.status.Error("%s: %v", pe.Path, pe.Err)
		}
	}
	if res.NotStarted > 0 {
		tracker.FinishInterrupted(res.NotStarted)
	} else {
		tracker.Finish()
	}

	ordered := make([]output.FileReport, 0, len(reports))
	for _, f := range files {
		if fr, ok := reports[f]; ok {
			ordered = append(ordered, fr)
		}
	}
	res.Report = output.NewReport(ordered)
	return res, nil
}

func (s *Service) policy(path string, lookup *symbols.Lookup) fixer.Policy {
	var l fixer.SymbolLookup
	if lookup != nil {
		l = lookup
		if path != Stdin {
			l = lookup.ForFile(path)
		}
	}
	return s.config.Policy(path, l)
}

func (s *Service) fixFile(ctx context.Context, psr *parser.Parser, lookup *symbols.Lookup, path string, opts Options) (output.FileReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return output.FileReport{}, err
	}

	policy := s.policy(path, lookup)
	var fingerprint string
	if s.cache.Enabled() && lookup == nil {
		fingerprint = s.cache.Fingerprint(policy)
		if s.cache.IsClean(path, raw, fingerprint) {
			s.status.Verbose("%s: unchanged (cached)", path)
			return output.CachedFileReport(path), nil
		}
	}

	// A file that has started is finished even if the run is interrupted.
	res, err := fixer.New(policy).Fix(context.WithoutCancel(ctx), psr, raw)
	if err != nil {
		return output.FileReport{}, err
	}
	s.diagnose(path, res)

	if res.Unchanged {
		if fingerprint != "" && len(res.Warnings) == 0 {
			if err := s.cache.MarkClean(path, raw, fingerprint); err != nil {
				s.status.Warning("%s: cache: %v", path, err)
			}
		}
		return output.NewFileReport(path, res, ""), nil
	}
	if fingerprint != "" {
		// An entry recorded for older content can never match again.
		if err := s.cache.Invalidate(path); err != nil {
			s.status.Warning("%s: cache: %v", path, err)
		}
	}

	if opts.InPlace && !opts.Check {
		if err := s.sink.Replace(path, raw, res.NewText); err != nil {
			return output.FileReport{}, err
		}
		s.status.Verbose("Fixed %s", path)
		return output.NewFileReport(path, res, ""), nil
	}

	diff, err := res.Diff(path)
	if err != nil {
		return output.FileReport{}, fmt.Errorf("rendering diff: %w", err)
	}
	if opts.Stream {
		var buf bytes.Buffer
		if err := output.WriteDiff(&buf, diff, s.colored); err != nil {
			return output.FileReport{}, err
		}
		if err := s.sink.Write(buf.Bytes()); err != nil {
			return output.FileReport{}, err
		}
	}
	return output.NewFileReport(path, res, diff), nil
}

// fixStdin writes the fixed text to the sink. A source that cannot be
// fixed is echoed unchanged so a pipeline does not lose it.
func (s *Service) fixStdin(ctx context.Context, lookup *symbols.Lookup, opts Options) output.FileReport {
	raw, err := io.ReadAll(s.stdin)
	if err != nil {
		return s.stdinFailed(err)
	}

	psr := parser.New()
	defer psr.Close()
	res, err := fixer.New(s.policy(Stdin, lookup)).Fix(ctx, psr, raw)
	if err != nil {
		s.status.Error("stdin: %v", err)
		if !opts.Check {
			if werr := s.sink.Write(raw); werr != nil {
				s.status.Error("stdin: %v", werr)
			}
		}
		return output.FailedFileReport(Stdin, err)
	}
	s.diagnose(Stdin, res)

	if opts.Check {
		diff, err := res.Diff("stdin")
		if err != nil {
			return s.stdinFailed(fmt.Errorf("rendering diff: %w", err))
		}
		if opts.Stream && diff != "" {
			var buf bytes.Buffer
			if err := output.WriteDiff(&buf, diff, s.colored); err != nil {
				return s.stdinFailed(err)
			}
			if err := s.sink.Write(buf.Bytes()); err != nil {
				return s.stdinFailed(err)
			}
		}
		return output.NewFileReport(Stdin, res, diff)
	}
	if err := s.sink.Write(res.NewText); err != nil {
		return s.stdinFailed(err)
	}
	return output.NewFileReport(Stdin, res, "")
}

func (s *Service) stdinFailed(err error) output.FileReport {
	s.status.Error("stdin: %v", err)
	return output.FailedFileReport(Stdin, err)
}

func (s *Service) diagnose(path string, res *fixer.RewriteResult) {
	for _, w := range res.Warnings {
		s.status.Warning("%s: %v", path, w)
	}
	for _, sk := range res.Skipped {
		s.status.Verbose("%s:%d: kept %s (%s)", path, sk.Line, sk.Name, sk.Reason)
	}
	if res.Passes > 1 {
		s.status.Verbose("%s: settled after %d passes", path, res.Passes)
	}
}
