package watch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alok/autoflake/internal/output"
	"github.com/Alok/autoflake/pkg/config"
)

func newWatcher(t *testing.T, root string, debounce time.Duration) *Watcher {
	t.Helper()
	w, err := NewWatcher([]string{root}, config.DefaultConfig(), debounce, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })
	return w
}

func TestNewWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		debounce time.Duration
		want     time.Duration
	}{
		{"default debounce", 0, DefaultDebounce},
		{"custom debounce", time.Second, time.Second},
		{"negative debounce defaults", -time.Second, DefaultDebounce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWatcher(t, tmpDir, tt.debounce)
			if w.debounce != tt.want {
				t.Errorf("debounce = %v, want %v", w.debounce, tt.want)
			}
			if w.pending == nil {
				t.Error("pending map should be initialized")
			}
		})
	}
}

func TestNewWatcher_NilConfig(t *testing.T) {
	w, err := NewWatcher([]string{t.TempDir()}, nil, 0, nil)
	require.NoError(t, err)
	defer w.Stop()
	assert.NotNil(t, w.config)
}

func TestWatcher_handleEvent(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		op      fsnotify.Op
		pending bool
	}{
		{"write python", "app.py", fsnotify.Write, true},
		{"create stub", "app.pyi", fsnotify.Create, true},
		{"remove ignored", "app.py", fsnotify.Remove, false},
		{"chmod ignored", "app.py", fsnotify.Chmod, false},
		{"other language", "main.go", fsnotify.Write, false},
		{"temp file", ".app.py.tmp123", fsnotify.Create, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWatcher(t, tmpDir, time.Second)
			path := filepath.Join(tmpDir, tt.path)
			w.handleEvent(fsnotify.Event{Name: path, Op: tt.op})

			_, ok := w.pending[path]
			assert.Equal(t, tt.pending, ok)
		})
	}
}

func TestWatcher_handleEvent_Excluded(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Exclude.Patterns = []string{"*_pb2.py"}

	w, err := NewWatcher([]string{tmpDir}, cfg, time.Second, nil)
	require.NoError(t, err)
	defer w.Stop()

	w.handleEvent(fsnotify.Event{Name: filepath.Join(tmpDir, "msg_pb2.py"), Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(tmpDir, "venv", "lib.py"), Op: fsnotify.Write})
	assert.Empty(t, w.pending)
}

func TestWatcher_takeReady(t *testing.T) {
	w := newWatcher(t, t.TempDir(), 100*time.Millisecond)
	now := time.Now()
	w.pending["/b.py"] = now.Add(-time.Second)
	w.pending["/a.py"] = now.Add(-time.Second)
	w.pending["/fresh.py"] = now

	ready := w.takeReady(now)

	assert.Equal(t, []string{"/a.py", "/b.py"}, ready)
	assert.Len(t, w.pending, 1, "files still settling stay pending")
	assert.Empty(t, w.takeReady(now))
}

func TestWatcher_Start_Context(t *testing.T) {
	w := newWatcher(t, t.TempDir(), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func TestWatcher_Start_ReportsWatchedDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "sub"), 0755))

	var buf bytes.Buffer
	w, err := NewWatcher([]string{root}, config.DefaultConfig(), 50*time.Millisecond, output.NewStatus(&buf, false, false, false))
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return len(w.WatchedDirs()) == 3 }, 2*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Contains(t, buf.String(), "Watching for changes in 3 directories")
}

func TestWatcher_Start_MissingRoot(t *testing.T) {
	w := newWatcher(t, filepath.Join(t.TempDir(), "missing"), 50*time.Millisecond)
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_Start_FileChange(t *testing.T) {
	tmpDir := t.TempDir()
	w := newWatcher(t, tmpDir, 50*time.Millisecond)

	var mu sync.Mutex
	var got []string
	w.SetCallback(func(ctx context.Context, paths []string) {
		mu.Lock()
		got = append(got, paths...)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	testFile := filepath.Join(tmpDir, "app.py")
	require.NoError(t, os.WriteFile(testFile, []byte("import os\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, testFile, got[0])
	for _, p := range got {
		assert.Equal(t, testFile, p, "only Python files are reported")
	}
}

func TestWatcher_Start_NewDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	w := newWatcher(t, tmpDir, 50*time.Millisecond)

	var mu sync.Mutex
	var got []string
	w.SetCallback(func(ctx context.Context, paths []string) {
		mu.Lock()
		got = append(got, paths...)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	sub := filepath.Join(tmpDir, "pkg")
	require.NoError(t, os.Mkdir(sub, 0755))
	time.Sleep(100 * time.Millisecond)
	testFile := filepath.Join(sub, "mod.py")
	require.NoError(t, os.WriteFile(testFile, []byte("import os\n"), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range got {
			if p == testFile {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_Start_ExcludedDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "venv", "lib"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "src"), 0755))

	w := newWatcher(t, tmpDir, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	require.Eventually(t, func() bool { return len(w.WatchedDirs()) == 2 }, 2*time.Second, 20*time.Millisecond)
	for _, path := range w.WatchedDirs() {
		if filepath.Base(path) == "venv" || filepath.Base(path) == "lib" {
			t.Errorf("%s should not be watched", path)
		}
	}
}

func TestWatcher_ConcurrentHandleEvent(t *testing.T) {
	tmpDir := t.TempDir()
	w := newWatcher(t, tmpDir, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.handleEvent(fsnotify.Event{Name: filepath.Join(tmpDir, "f.py"), Op: fsnotify.Write})
		}(i)
	}
	wg.Wait()

	assert.Len(t, w.pending, 1)
}
