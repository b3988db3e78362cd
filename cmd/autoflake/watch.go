package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Alok/autoflake/internal/service/fix"
	"github.com/Alok/autoflake/internal/watch"
	"github.com/Alok/autoflake/pkg/config"
)

// watchTargets resolves path arguments. roots are the directories to
// watch, dirs the directory arguments, and only the file arguments, which
// are watched through their parent directory.
func watchTargets(paths []string) (roots, dirs []string, only map[string]bool, err error) {
	seen := make(map[string]bool)
	only = make(map[string]bool)
	for _, p := range paths {
		if p == fix.Stdin {
			return nil, nil, nil, errors.New("--watch cannot read standard input")
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, nil, nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, nil, nil, err
		}
		root := abs
		if info.IsDir() {
			dirs = append(dirs, abs)
		} else {
			root = filepath.Dir(abs)
			only[abs] = true
		}
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	return roots, dirs, only, nil
}

// selectWatched keeps the changed files a watch over paths covers: any file
// below a directory argument, or a file named on the command line.
func selectWatched(changed []string, dirs []string, only map[string]bool) []string {
	var out []string
	for _, path := range changed {
		if only[path] {
			out = append(out, path)
			continue
		}
		for _, dir := range dirs {
			rel, err := filepath.Rel(dir, path)
			if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				out = append(out, path)
				break
			}
		}
	}
	return out
}

func watchAndFix(ctx context.Context, c *cli.Context, cfg *config.Config, svc *fix.Service, paths []string, opts fix.Options, r *reporter) error {
	roots, dirs, only, err := watchTargets(paths)
	if err != nil {
		return err
	}

	w, err := watch.NewWatcher(roots, cfg, c.Duration("debounce"), r.status)
	if err != nil {
		return err
	}
	defer w.Stop()

	opts.Changed = false
	opts.Recursive = false
	w.SetCallback(func(ctx context.Context, changed []string) {
		files := selectWatched(changed, dirs, only)
		if len(files) == 0 {
			return
		}
		res, err := svc.Run(ctx, files, opts)
		if err != nil {
			r.status.Error("%v", err)
			return
		}
		if err := r.emit(res); err != nil {
			r.status.Error("%v", err)
		}
	})

	return w.Start(ctx)
}
