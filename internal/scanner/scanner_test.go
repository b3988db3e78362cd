package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alok/autoflake/internal/testutil"
	"github.com/Alok/autoflake/pkg/config"
)

func relAll(t *testing.T, root string, files []string) []string {
	t.Helper()
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			t.Fatalf("Rel(%s) error: %v", f, err)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	sort.Strings(out)
	return out
}

func TestNewScanner(t *testing.T) {
	// With nil config
	s := NewScanner(nil)
	if s == nil {
		t.Fatal("NewScanner(nil) returned nil")
	}
	if s.config == nil {
		t.Error("scanner.config should not be nil when passing nil")
	}

	// With explicit config
	cfg := config.DefaultConfig()
	s = NewScanner(cfg)
	if s.config != cfg {
		t.Error("scanner.config should be the provided config")
	}
}

func TestScanDir(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		"main.py":          "import os\n",
		"stubs/types.pyi":  "x: int\n",
		"gui/app.pyw":      "pass\n",
		"util/helper.py":   "pass\n",
		"README.md":        "# readme\n",
		"internal/core.rs": "fn main() {}\n",
	})

	s := NewScanner(nil)
	result, err := s.ScanDir(tmpDir)
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}

	want := []string{"gui/app.pyw", "main.py", "stubs/types.pyi", "util/helper.py"}
	assert.Equal(t, want, relAll(t, tmpDir, result))
}

func TestScanDirExcludesDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		"app.py":                     "pass\n",
		".venv/lib/site.py":          "pass\n",
		"venv/lib/site.py":           "pass\n",
		"pkg/__pycache__/mod.py":     "pass\n",
		"node_modules/tool/build.py": "pass\n",
		"pkg/mod.py":                 "pass\n",
	})

	s := NewScanner(nil)
	result, err := s.ScanDir(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, []string{"app.py", "pkg/mod.py"}, relAll(t, tmpDir, result))
}

func TestScanDirExcludesPatterns(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		"api.py":                      "pass\n",
		"proto/api_pb2.py":            "pass\n",
		"app/migrations/0001_init.py": "pass\n",
		"app/models.py":               "pass\n",
	})

	cfg := config.DefaultConfig()
	cfg.Exclude.Patterns = []string{"*_pb2.py", "migrations/"}

	s := NewScanner(cfg)
	result, err := s.ScanDir(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, []string{"api.py", "app/models.py"}, relAll(t, tmpDir, result))
}

func TestScanDirWithGitignore(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		".gitignore":           "generated/\n/src/scratch.py\n",
		"src/app.py":           "pass\n",
		"src/scratch.py":       "pass\n",
		"src/generated/gen.py": "pass\n",
		"scratch.py":           "pass\n",
	})
	if err := os.MkdirAll(filepath.Join(tmpDir, ".git"), 0755); err != nil {
		t.Fatalf("failed to create .git: %v", err)
	}

	t.Run("from the repository root", func(t *testing.T) {
		result, err := NewScanner(nil).ScanDir(tmpDir)
		require.NoError(t, err)
		assert.Equal(t, []string{"scratch.py", "src/app.py"}, relAll(t, tmpDir, result))
	})

	t.Run("from a subdirectory", func(t *testing.T) {
		sub := filepath.Join(tmpDir, "src")
		result, err := NewScanner(nil).ScanDir(sub)
		require.NoError(t, err)
		assert.Equal(t, []string{"app.py"}, relAll(t, sub, result))
	})
}

func TestScanDirDisabledGitignore(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		".gitignore": "ignored.py\n",
		"main.py":    "pass\n",
		"ignored.py": "pass\n",
	})
	if err := os.MkdirAll(filepath.Join(tmpDir, ".git"), 0755); err != nil {
		t.Fatalf("failed to create .git: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Exclude.Gitignore = false

	result, err := NewScanner(cfg).ScanDir(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"ignored.py", "main.py"}, relAll(t, tmpDir, result))
}

func TestScanDirEmptyDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	result, err := NewScanner(nil).ScanDir(tmpDir)
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("ScanDir() on empty dir found %d files, want 0", len(result))
	}
}

func TestScanFile(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		"main.py":    "pass\n",
		"script":     "#!/usr/bin/env python\n",
		"api_pb2.py": "pass\n",
	})

	cfg := config.DefaultConfig()
	cfg.Exclude.Patterns = []string{"*_pb2.py"}
	s := NewScanner(cfg)

	tests := []struct {
		name string
		want bool
	}{
		{"main.py", true},
		{"script", true},
		{"api_pb2.py", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ScanFile(filepath.Join(tmpDir, tt.name))
			if err != nil {
				t.Fatalf("ScanFile() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ScanFile(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	ok, err := s.ScanFile(tmpDir)
	require.NoError(t, err)
	assert.False(t, ok, "directories are not files")
}

func TestScanFileNonExistent(t *testing.T) {
	_, err := NewScanner(nil).ScanFile("/nonexistent/path/file.py")
	if err == nil {
		t.Error("ScanFile() should return error for non-existent file")
	}
}

func TestScan(t *testing.T) {
	tmpDir := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{
		"a.py":      "pass\n",
		"tool":      "pass\n",
		"pkg/b.py":  "pass\n",
		"pkg/c.txt": "text\n",
	})
	a := filepath.Join(tmpDir, "a.py")
	tool := filepath.Join(tmpDir, "tool")
	pkg := filepath.Join(tmpDir, "pkg")

	t.Run("files and directories", func(t *testing.T) {
		got, err := NewScanner(nil).Scan([]string{a, tool, pkg, a}, true)
		require.NoError(t, err)
		assert.Equal(t, []string{a, tool, filepath.Join(pkg, "b.py")}, got)
	})

	t.Run("stdin passes through", func(t *testing.T) {
		got, err := NewScanner(nil).Scan([]string{"-"}, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"-"}, got)
	})

	t.Run("directory without recursion", func(t *testing.T) {
		_, err := NewScanner(nil).Scan([]string{pkg}, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrIsDirectory))
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := NewScanner(nil).Scan([]string{filepath.Join(tmpDir, "nope.py")}, false)
		assert.Error(t, err)
	})
}

func TestIsWithinRoot(t *testing.T) {
	root := filepath.FromSlash("/project/src")

	tests := []struct {
		path string
		want bool
	}{
		{"/project/src", true},
		{"/project/src/main.py", true},
		{"/project/src/deep/nested/file.py", true},
		{"/project/srcfoo/main.py", false},
		{"/project/other/main.py", false},
		{"/project", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := isWithinRoot(filepath.FromSlash(tt.path), root); got != tt.want {
				t.Errorf("isWithinRoot(%q, %q) = %v, want %v", tt.path, root, got, tt.want)
			}
		})
	}
}

func TestFindGitRoot(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll error: %v", err)
	}

	if got := findGitRoot(nested); got != "" && isWithinRoot(got, tmpDir) {
		t.Errorf("findGitRoot() = %q before .git exists", got)
	}

	if err := os.MkdirAll(filepath.Join(tmpDir, ".git"), 0755); err != nil {
		t.Fatalf("MkdirAll error: %v", err)
	}
	if got := findGitRoot(nested); got != tmpDir {
		t.Errorf("findGitRoot() = %q, want %q", got, tmpDir)
	}
}

func TestScanDirWithSymlinks(t *testing.T) {
	tmpDir := t.TempDir()
	outside := t.TempDir()
	testutil.CreateFileTree(t, tmpDir, map[string]string{"main.py": "pass\n"})
	testutil.CreateFileTree(t, outside, map[string]string{"secret.py": "pass\n"})

	if err := os.Symlink(filepath.Join(outside, "secret.py"), filepath.Join(tmpDir, "escape.py")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	if err := os.Symlink(filepath.Join(tmpDir, "main.py"), filepath.Join(tmpDir, "alias.py")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	if err := os.Symlink(filepath.Join(tmpDir, "missing.py"), filepath.Join(tmpDir, "dangling.py")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	result, err := NewScanner(nil).ScanDir(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"alias.py", "main.py"}, relAll(t, tmpDir, result))
}

func TestChangedFiles(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	testutil.CreateFileTree(t, root, map[string]string{
		"a.py":      "import os\n",
		"b.py":      "import sys\n",
		"d.py":      "pass\n",
		"notes.txt": "notes\n",
	})
	testutil.GitRepo(t, root)

	testutil.WriteFile(t, filepath.Join(root, "a.py"), "import os\nimport re\n")
	testutil.WriteFile(t, filepath.Join(root, "pkg", "c.py"), "pass\n")
	testutil.WriteFile(t, filepath.Join(root, "notes.txt"), "more notes\n")
	require.NoError(t, os.Remove(filepath.Join(root, "d.py")))

	changed, err := ChangedFiles(filepath.Join(root, "pkg"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.py"), filepath.Join(root, "pkg", "c.py")}, changed)

	all := []string{filepath.Join(root, "a.py"), filepath.Join(root, "b.py"), "-"}
	assert.Equal(t, []string{filepath.Join(root, "a.py"), "-"}, FilterChanged(all, changed))
}

func TestChangedFiles_NotARepository(t *testing.T) {
	_, err := ChangedFiles(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRepository)
}
