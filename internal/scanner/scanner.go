package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/Alok/autoflake/pkg/config"
	"github.com/Alok/autoflake/pkg/parser"
)

// ErrIsDirectory is returned for a directory argument without recursion.
var ErrIsDirectory = errors.New("is a directory")

// ErrNotRepository is returned by ChangedFiles outside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Scanner finds Python files.
type Scanner struct {
	config   *config.Config
	matchers []gitignore.Matcher
	loaded   map[string]bool
}

// NewScanner creates a new file scanner.
func NewScanner(cfg *config.Config) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scanner{config: cfg, loaded: make(map[string]bool)}
}

// findGitRoot finds the root of the git repository by looking for .git directory.
// Returns empty string if not in a git repository.
func findGitRoot(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadExcludePatterns loads exclusion patterns from both config and .gitignore
// files. Config patterns are parsed as gitignore patterns.
func (s *Scanner) loadExcludePatterns(root string) {
	if s.loaded[root] {
		return
	}
	s.loaded[root] = true

	var patterns []gitignore.Pattern
	for _, pattern := range s.config.Exclude.Patterns {
		patterns = append(patterns, gitignore.ParsePattern(pattern, nil))
	}

	if s.config.Exclude.Gitignore {
		if gitRoot := findGitRoot(root); gitRoot != "" {
			absRoot, _ := filepath.Abs(root)
			domain := splitPath(mustRel(gitRoot, absRoot))
			if gitPatterns, err := gitignore.ReadPatterns(osfs.New(gitRoot), nil); err == nil {
				patterns = append(patterns, rebase(gitPatterns, domain)...)
			}
		}
	}

	if len(patterns) > 0 {
		s.matchers = append(s.matchers, gitignore.NewMatcher(patterns))
	}
}

// rebase keeps patterns read at the repository root usable with paths
// relative to a scanned subdirectory.
func rebase(patterns []gitignore.Pattern, prefix []string) []gitignore.Pattern {
	if len(prefix) == 0 {
		return patterns
	}
	out := make([]gitignore.Pattern, len(patterns))
	for i, p := range patterns {
		out[i] = prefixed{inner: p, prefix: prefix}
	}
	return out
}

type prefixed struct {
	inner  gitignore.Pattern
	prefix []string
}

func (p prefixed) Match(path []string, isDir bool) gitignore.MatchResult {
	full := make([]string, 0, len(p.prefix)+len(path))
	full = append(full, p.prefix...)
	full = append(full, path...)
	return p.inner.Match(full, isDir)
}

func mustRel(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == "." {
		return ""
	}
	return rel
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(filepath.ToSlash(path), "/")
}

// isExcluded checks if a path relative to the scan root matches any
// exclusion pattern or excluded directory.
func (s *Scanner) isExcluded(relPath string, isDir bool) bool {
	if relPath == "." || relPath == "" {
		return false
	}
	parts := splitPath(relPath)
	if isDir {
		for _, dir := range s.config.Exclude.Dirs {
			if parts[len(parts)-1] == dir {
				return true
			}
		}
	}
	if s.config.ShouldExclude(relPath) {
		return true
	}
	for _, m := range s.matchers {
		if m.Match(parts, isDir) {
			return true
		}
	}
	return false
}

// Scan expands command-line arguments into files. Directories are walked
// when recursive is set; explicit files are always kept unless excluded.
func (s *Scanner) Scan(paths []string, recursive bool) ([]string, error) {
	var files []string
	for _, path := range paths {
		if path == "-" {
			files = append(files, path)
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			ok, err := s.ScanFile(path)
			if err != nil {
				return nil, err
			}
			if ok {
				files = append(files, path)
			}
			continue
		}
		if !recursive {
			return nil, fmt.Errorf("%s: %w (use --recursive)", path, ErrIsDirectory)
		}
		found, err := s.ScanDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to scan directory %s: %w", path, err)
		}
		files = append(files, found...)
	}
	return dedupe(files), nil
}

// ScanDir recursively scans a directory for Python files.
// Symlinks that leave the root are not followed.
func (s *Scanner) ScanDir(root string) ([]string, error) {
	files := make([]string, 0, 256)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	s.loadExcludePatterns(root)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		relPath, _ := filepath.Rel(root, path)

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, absRoot) {
				return nil
			}
		}

		if d.IsDir() {
			if s.isExcluded(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if s.isExcluded(relPath, false) {
			return nil
		}
		if parser.IsPythonFile(path) {
			files = append(files, path)
		}
		return nil
	})

	return files, walkErr
}

// isWithinRoot checks if a path is contained within the root directory.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}

// ScanFile checks if a single named file should be processed.
func (s *Scanner) ScanFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}

	dir := filepath.Dir(path)
	s.loadExcludePatterns(dir)
	return !s.isExcluded(filepath.Base(path), false), nil
}

// ChangedFiles lists the Python files under root that differ from HEAD in
// the index or the work tree, including untracked ones.
func ChangedFiles(root string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%s: %w", root, ErrNotRepository)
		}
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read git status: %w", err)
	}

	top := wt.Filesystem.Root()
	var files []string
	for name, st := range status {
		if st.Worktree == git.Deleted || (st.Staging == git.Deleted && st.Worktree == git.Unmodified) {
			continue
		}
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}
		if !parser.IsPythonFile(name) {
			continue
		}
		files = append(files, filepath.Join(top, filepath.FromSlash(name)))
	}
	sort.Strings(files)
	return files, nil
}

// FilterChanged keeps the files that appear in changed. Both lists are
// compared as absolute paths.
func FilterChanged(files, changed []string) []string {
	set := make(map[string]bool, len(changed))
	for _, c := range changed {
		set[absPath(c)] = true
	}
	var out []string
	for _, f := range files {
		if f == "-" || set[absPath(f)] {
			out = append(out, f)
		}
	}
	return out
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func dedupe(files []string) []string {
	seen := make(map[string]bool, len(files))
	out := files[:0]
	for _, f := range files {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
