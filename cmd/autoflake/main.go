package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/Alok/autoflake/internal/cache"
	"github.com/Alok/autoflake/internal/output"
	"github.com/Alok/autoflake/internal/service/fix"
	"github.com/Alok/autoflake/internal/sink"
	"github.com/Alok/autoflake/internal/watch"
	"github.com/Alok/autoflake/pkg/config"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

// getPaths returns paths from positional args, defaulting to ["."]
func getPaths(c *cli.Context) []string {
	if c.Args().Len() > 0 {
		return c.Args().Slice()
	}
	return []string{"."}
}

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := newApp()
	app.Reader = stdin
	app.Writer = stdout
	app.ErrWriter = stderr

	err := app.Run(args)
	if err == nil {
		return 0
	}

	var exit cli.ExitCoder
	if errors.As(err, &exit) {
		if msg := exit.Error(); msg != "" {
			fmt.Fprintln(stderr, color.RedString("Error: %s", msg))
		}
		return exit.ExitCode()
	}
	fmt.Fprintln(stderr, color.RedString("Error: %v", err))
	return fix.StatusFailed.ExitCode()
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "autoflake",
		Usage:     "Remove unused imports and unused variables from Python code",
		Version:   version,
		ArgsUsage: "[path|-]...",
		Metadata:  make(map[string]interface{}),
		Description: `autoflake rewrites Python files to drop imports and local variables that
are never used, leaving every other byte of the file alone.

By default the fixed source is printed as a unified diff. Use --in-place to
rewrite files, or "-" to filter standard input to standard output.

Exit status: 0 when nothing needed changing, 2 when files were (or would be)
changed, 1 when any file failed.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, JSON, or pyproject.toml)",
				EnvVars: []string{"AUTOFLAKE_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "in-place",
				Aliases: []string{"i"},
				Usage:   "Rewrite files in place instead of printing a diff",
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "Report files that would change without writing them",
			},
			&cli.BoolFlag{
				Name:  "check-diff",
				Usage: "Like --check, and print the diff of each file",
			},
			&cli.BoolFlag{
				Name:    "recursive",
				Aliases: []string{"r"},
				Usage:   "Descend into directories",
			},
			&cli.BoolFlag{
				Name:  "remove-unused-variables",
				Usage: "Also remove unused local variables",
			},
			&cli.BoolFlag{
				Name:  "keep-unused-imports",
				Usage: "Do not remove unused imports (only useful with --remove-unused-variables)",
			},
			&cli.BoolFlag{
				Name:  "expand-star-imports",
				Usage: "Replace a module-level star-import with the names the file uses",
			},
			&cli.StringSliceFlag{
				Name:  "search-path",
				Usage: "Directory searched for star-imported modules (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "force-aggressive",
				Usage: "Remove unused imports even inside try blocks",
			},
			&cli.BoolFlag{
				Name:  "stdlib-only",
				Usage: "Only remove standard library imports, plus those named by --imports",
			},
			&cli.StringSliceFlag{
				Name:  "imports",
				Usage: "Comma-separated third-party packages whose unused imports may be removed",
			},
			&cli.BoolFlag{
				Name:  "ignore-init-module-imports",
				Usage: "Keep module-level imports in __init__.py files",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Glob pattern of files to skip (repeatable, comma-separated)",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "After the first run, keep fixing Python files as they are saved",
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Value: watch.DefaultDebounce,
				Usage: "How long a file must be quiet before --watch processes it",
			},
			&cli.BoolFlag{
				Name:  "changed",
				Usage: "Only process files modified in the git work tree",
			},
			&cli.BoolFlag{
				Name:  "cache",
				Usage: "Skip files a previous run with the same options left unchanged",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the cache even if the config enables it",
			},
			&cli.StringFlag{
				Name:  "cache-dir",
				Usage: "Directory holding cache entries",
			},
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "Number of files processed in parallel (0 for one per CPU)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, yaml, toon, markdown",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Print a summary table to stderr",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only print errors on stderr",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Explain bindings that were kept and other per-file details",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.StringFlag{
				Name:  "pprof",
				Usage: "Enable pprof profiling and write to specified prefix (creates <prefix>.cpu.pprof and <prefix>.mem.pprof)",
			},
		},
		Before: func(c *cli.Context) error {
			if pprofPrefix := c.String("pprof"); pprofPrefix != "" {
				cpuFile, err := os.Create(pprofPrefix + ".cpu.pprof")
				if err != nil {
					return fmt.Errorf("failed to create CPU profile: %w", err)
				}
				if err := pprof.StartCPUProfile(cpuFile); err != nil {
					cpuFile.Close()
					return fmt.Errorf("failed to start CPU profile: %w", err)
				}
				c.App.Metadata["pprofCPU"] = cpuFile
			}
			return nil
		},
		After: func(c *cli.Context) error {
			pprofPrefix := c.String("pprof")
			if pprofPrefix == "" {
				return nil
			}
			pprof.StopCPUProfile()
			if cpuFile, ok := c.App.Metadata["pprofCPU"].(*os.File); ok {
				cpuFile.Close()
				fmt.Fprintln(c.App.ErrWriter, color.GreenString("CPU profile written to %s.cpu.pprof", pprofPrefix))
			}

			memFile, err := os.Create(pprofPrefix + ".mem.pprof")
			if err != nil {
				return fmt.Errorf("failed to create memory profile: %w", err)
			}
			defer memFile.Close()

			runtime.GC()
			if err := pprof.WriteHeapProfile(memFile); err != nil {
				return fmt.Errorf("failed to write memory profile: %w", err)
			}
			fmt.Fprintln(c.App.ErrWriter, color.GreenString("Memory profile written to %s.mem.pprof", pprofPrefix))
			return nil
		},
		// Exit codes are handled by run.
		ExitErrHandler: func(*cli.Context, error) {},
		Action:         runFixCmd,
		Commands: []*cli.Command{
			cacheCmd(),
			configCmd(),
			mcpCmd(),
		},
	}
}

// loadConfig reads the config file named by --config, or the first one
// found in the working directory.
func loadConfig(c *cli.Context) (*config.LoadResult, error) {
	var opts []config.LoadOption
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithPath(path))
	}
	return config.LoadConfig(opts...)
}

// applyFlags layers explicitly set flags over the loaded configuration.
func applyFlags(c *cli.Context, cfg *config.Config) {
	r := &cfg.Rewrite
	if c.IsSet("remove-unused-variables") {
		r.RemoveUnusedVariables = c.Bool("remove-unused-variables")
	}
	if c.IsSet("keep-unused-imports") {
		r.RemoveUnusedImports = !c.Bool("keep-unused-imports")
	}
	if c.IsSet("expand-star-imports") {
		r.ExpandStarImports = c.Bool("expand-star-imports")
	}
	if c.IsSet("force-aggressive") {
		r.ForceAggressive = c.Bool("force-aggressive")
	}
	if c.IsSet("stdlib-only") {
		r.StdlibOnly = c.Bool("stdlib-only")
	}
	if c.IsSet("imports") {
		r.Imports = c.StringSlice("imports")
	}
	if c.IsSet("ignore-init-module-imports") {
		r.IgnoreInitModuleImports = c.Bool("ignore-init-module-imports")
	}
	if c.IsSet("search-path") {
		cfg.Symbols.SearchPaths = c.StringSlice("search-path")
	}
	if c.IsSet("exclude") {
		cfg.Exclude.Patterns = append(cfg.Exclude.Patterns, c.StringSlice("exclude")...)
	}
	if c.IsSet("cache") {
		cfg.Cache.Enabled = c.Bool("cache")
	}
	if c.Bool("no-cache") {
		cfg.Cache.Enabled = false
	}
	if c.IsSet("cache-dir") {
		cfg.Cache.Dir = c.String("cache-dir")
	}
	if c.IsSet("jobs") {
		cfg.Jobs = c.Int("jobs")
	}
	if c.IsSet("format") {
		format := strings.ToLower(c.String("format"))
		switch format {
		case "yml":
			format = "yaml"
		case "md":
			format = "markdown"
		}
		cfg.Output.Format = format
	}
	if c.Bool("no-color") {
		cfg.Output.Color = false
	}
	if c.Bool("verbose") {
		cfg.Output.Verbose = true
	}
}

func runFixCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg := loaded.Config
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	check := c.Bool("check") || c.Bool("check-diff")
	inPlace := c.Bool("in-place")
	if inPlace && check {
		return errors.New("--in-place cannot be combined with --check")
	}

	format := output.ParseFormat(cfg.Output.Format)
	colored := cfg.Output.Color && !color.NoColor
	quiet := c.Bool("quiet")
	status := output.NewStatus(c.App.ErrWriter, colored, quiet, cfg.Output.Verbose)

	opts := fix.Options{
		InPlace:   inPlace,
		Check:     check,
		Recursive: c.Bool("recursive"),
		Changed:   c.Bool("changed"),
		Jobs:      cfg.Jobs,
		// Text diffs go out as each file finishes; other formats render
		// the whole report at the end.
		Stream: format == output.FormatText && (!check || c.Bool("check-diff")),
	}

	cch, err := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, cfg.Cache.Enabled, version)
	if err != nil {
		return err
	}

	svcOpts := []fix.Option{
		fix.WithConfig(cfg),
		fix.WithCache(cch),
		fix.WithStdin(c.App.Reader),
		fix.WithSink(sink.New(c.App.Writer)),
		fix.WithStatus(status),
		fix.WithColor(colored),
	}
	if !quiet {
		svcOpts = append(svcOpts, fix.WithProgress(c.App.ErrWriter))
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if loaded.Source != "" {
		status.Verbose("Using config %s", loaded.Source)
	}

	svc := fix.New(svcOpts...)
	paths := getPaths(c)
	res, err := svc.Run(ctx, paths, opts)
	if err != nil {
		return err
	}
	r := &reporter{c: c, format: format, status: status, colored: colored, check: check, inPlace: inPlace}
	if err := r.emit(res); err != nil {
		return err
	}

	if c.Bool("watch") && ctx.Err() == nil {
		return watchAndFix(ctx, c, cfg, svc, paths, opts, r)
	}

	if code := res.Status().ExitCode(); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// reporter prints the outcome of one run.
type reporter struct {
	c       *cli.Context
	format  output.Format
	status  *output.Status
	colored bool
	check   bool
	inPlace bool
}

func (r *reporter) emit(res *fix.Result) error {
	report := res.Report
	w := r.c.App.Writer

	if r.format == output.FormatText {
		if r.check {
			for _, f := range report.Files {
				if f.Status == output.StatusChanged {
					fmt.Fprintf(w, "%s: Unused imports/variables detected\n", f.Path)
				}
			}
		}
		if r.inPlace && report.Summary.Changed > 0 {
			r.status.Success("Fixed %d of %d files", report.Summary.Changed, report.Summary.Files)
		}
	} else {
		if err := output.NewFormatter(r.format, w, r.colored).Output(report); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if res.NotStarted > 0 {
		r.status.Warning("Interrupted: %d files were not processed", res.NotStarted)
	}
	if report.Summary.Files == 0 {
		r.status.Warning("No Python files found")
	}
	if r.c.Bool("stats") {
		return report.StatsTable().RenderText(r.c.App.ErrWriter, r.colored)
	}
	return nil
}
