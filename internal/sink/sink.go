// Package sink serializes the output of concurrent workers.
package sink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrModified is returned when a file changed on disk after it was read.
var ErrModified = errors.New("file changed since it was read")

// Sink writes whole files atomically and streams output so that the bytes of
// one file are never interleaved with another's.
type Sink struct {
	mu  sync.Mutex
	out io.Writer
}

// New creates a sink streaming to out.
func New(out io.Writer) *Sink {
	return &Sink{out: out}
}

// Write emits p with a single write under the sink's lock.
func (s *Sink) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.out.Write(p)
	return err
}

// WriteString is Write for strings.
func (s *Sink) WriteString(str string) error {
	return s.Write([]byte(str))
}

// Replace swaps the contents of path from before to after. The file must
// still hold before; after is written to a temp file in the same directory
// and renamed over path, keeping its permission bits.
func (s *Sink) Replace(path string, before, after []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	current, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !bytes.Equal(current, before) {
		return fmt.Errorf("%s: %w", path, ErrModified)
	}
	return WriteAtomic(path, after, info.Mode().Perm())
}

// WriteAtomic writes content to path using temp file + rename.
func WriteAtomic(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tempPath, perm); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath) // Clean up temp file on failure
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
