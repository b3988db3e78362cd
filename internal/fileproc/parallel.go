// Package fileproc provides concurrent file processing utilities.
package fileproc

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/Alok/autoflake/pkg/parser"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ProcessingError) Unwrap() error {
	return e.Err
}

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Canceled reports how many files were never started because the context
// ended first.
func (e *ProcessingErrors) Canceled() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, pe := range e.Errors {
		if errors.Is(pe.Err, ErrNotStarted) {
			n++
		}
	}
	return n
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// ErrNotStarted marks files skipped after cancellation.
var ErrNotStarted = errors.New("not started")

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
// 2x is optimal for mixed I/O and CGO workloads.
const DefaultWorkerMultiplier = 2

// ProgressFunc is called after each file is processed.
type ProgressFunc func()

// Workers returns the worker count for a requested value; n <= 0 picks the
// default of 2x NumCPU. The result never exceeds the number of files.
func Workers(n, files int) int {
	if n <= 0 {
		n = runtime.NumCPU() * DefaultWorkerMultiplier
	}
	if files > 0 && n > files {
		n = files
	}
	return n
}

// MapFiles processes files in parallel, calling fn for each file with a
// parser owned by the calling worker. Results keep the order of files;
// files that fail are left out and reported in the returned errors.
//
// Once ctx is done no further file is started. Files already started run
// to completion. Every file that was never started is recorded with
// ErrNotStarted.
func MapFiles[T any](
	ctx context.Context,
	files []string,
	maxWorkers int,
	fn func(*parser.Parser, string) (T, error),
	onProgress ProgressFunc,
) ([]T, *ProcessingErrors) {
	if len(files) == 0 {
		return nil, nil
	}

	maxWorkers = Workers(maxWorkers, len(files))
	slots := make([]T, len(files))
	done := make([]bool, len(files))
	errs := &ProcessingErrors{}

	// One parser per worker, handed back after each file.
	parsers := make(chan *parser.Parser, maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		parsers <- nil
	}

	p := pool.New().WithMaxGoroutines(maxWorkers).WithContext(ctx)
	for i, path := range files {
		if ctx.Err() != nil {
			errs.Add(path, fmt.Errorf("%w: %w", ErrNotStarted, ctx.Err()))
			continue
		}
		p.Go(func(ctx context.Context) error {
			// Check for cancellation before processing
			select {
			case <-ctx.Done():
				errs.Add(path, fmt.Errorf("%w: %w", ErrNotStarted, ctx.Err()))
				return nil
			default:
			}

			psr := <-parsers
			if psr == nil {
				psr = parser.New()
			}
			defer func() { parsers <- psr }()

			result, err := fn(psr, path)
			if onProgress != nil {
				onProgress()
			}
			if err != nil {
				errs.Add(path, err)
				return nil // Don't stop pool on individual file errors
			}

			slots[i] = result
			done[i] = true
			return nil
		})
	}
	_ = p.Wait() // Per-file errors are already captured in errs

	close(parsers)
	for psr := range parsers {
		if psr != nil {
			psr.Close()
		}
	}

	results := make([]T, 0, len(files))
	for i, ok := range done {
		if ok {
			results = append(results, slots[i])
		}
	}

	if !errs.HasErrors() {
		return results, nil
	}
	return results, errs
}
