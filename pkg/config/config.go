package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Alok/autoflake/pkg/fixer"
)

// Config holds all configuration options for autoflake.
type Config struct {
	// What gets removed
	Rewrite RewriteConfig `koanf:"rewrite" toml:"rewrite"`

	// File exclusion patterns
	Exclude ExcludeConfig `koanf:"exclude" toml:"exclude"`

	// Where star-imports are looked up
	Symbols SymbolsConfig `koanf:"symbols" toml:"symbols"`

	// Cache settings
	Cache CacheConfig `koanf:"cache" toml:"cache"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output"`

	// Jobs caps the number of files processed at once; 0 means one per CPU.
	Jobs int `koanf:"jobs" toml:"jobs"`
}

// RewriteConfig mirrors fixer.Policy.
type RewriteConfig struct {
	RemoveUnusedImports     bool     `koanf:"remove_unused_imports" toml:"remove_unused_imports"`
	RemoveUnusedVariables   bool     `koanf:"remove_unused_variables" toml:"remove_unused_variables"`
	ExpandStarImports       bool     `koanf:"expand_star_imports" toml:"expand_star_imports"`
	ForceAggressive         bool     `koanf:"force_aggressive" toml:"force_aggressive"`
	StdlibOnly              bool     `koanf:"stdlib_only" toml:"stdlib_only"`
	Imports                 []string `koanf:"imports" toml:"imports"`
	IgnoreInitModuleImports bool     `koanf:"ignore_init_module_imports" toml:"ignore_init_module_imports"`
	MaxPasses               int      `koanf:"max_passes" toml:"max_passes"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns  []string `koanf:"patterns" toml:"patterns"`
	Dirs      []string `koanf:"dirs" toml:"dirs"`
	Gitignore bool     `koanf:"gitignore" toml:"gitignore"`
}

// SymbolsConfig lists the directories searched for star-imported modules.
type SymbolsConfig struct {
	SearchPaths []string `koanf:"search_paths" toml:"search_paths"`
}

// CacheConfig controls the clean-file cache.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Dir     string `koanf:"dir" toml:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl"` // TTL in hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format" toml:"format"` // text, json, yaml, toon, markdown
	Color   bool   `koanf:"color" toml:"color"`
	Verbose bool   `koanf:"verbose" toml:"verbose"`
}

// Formats lists the accepted output.format values.
var Formats = []string{"text", "json", "yaml", "toon", "markdown"}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Rewrite: RewriteConfig{
			RemoveUnusedImports: true,
			MaxPasses:           fixer.DefaultPolicy().MaxPasses,
		},
		Exclude: ExcludeConfig{
			Dirs: []string{
				".git",
				".hg",
				".tox",
				".nox",
				".venv",
				"venv",
				"__pycache__",
				"node_modules",
				"build",
				"dist",
			},
			Gitignore: true,
		},
		Symbols: SymbolsConfig{
			SearchPaths: []string{"."},
		},
		Cache: CacheConfig{
			Dir: ".autoflake_cache",
			TTL: 24 * 7,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// configNames are searched in order in the working directory.
var configNames = []string{
	"autoflake.toml",
	".autoflake.toml",
	"autoflake.yaml",
	"autoflake.yml",
	".autoflake.yaml",
	".autoflake.yml",
	"autoflake.json",
	".autoflake.json",
}

const pyproject = "pyproject.toml"

// LoadResult is a loaded configuration and the file it came from. Source is
// empty when only defaults apply.
type LoadResult struct {
	Config *Config
	Source string
}

type loadOptions struct {
	path string
	dir  string
}

// LoadOption configures LoadConfig.
type LoadOption func(*loadOptions)

// WithPath loads exactly this file instead of searching.
func WithPath(path string) LoadOption {
	return func(o *loadOptions) { o.path = path }
}

// WithDir searches dir instead of the working directory.
func WithDir(dir string) LoadOption {
	return func(o *loadOptions) { o.dir = dir }
}

// LoadConfig loads and validates the configuration.
func LoadConfig(opts ...LoadOption) (*LoadResult, error) {
	o := loadOptions{dir: "."}
	for _, opt := range opts {
		opt(&o)
	}

	path := o.path
	if path == "" {
		path = Find(o.dir)
	}
	if path == "" {
		return &LoadResult{Config: DefaultConfig()}, nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &LoadResult{Config: cfg, Source: path}, nil
}

// Find returns the first config file present in dir, or "". pyproject.toml
// only counts when it has a [tool.autoflake] table.
func Find(dir string) string {
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	path := filepath.Join(dir, pyproject)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return ""
	}
	if !k.Exists("tool.autoflake") {
		return ""
	}
	return path
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	// Determine parser based on extension
	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	if filepath.Base(path) == pyproject {
		var err error
		if k, err = fromPyproject(k); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// pyprojectKeys maps the flat [tool.autoflake] keys onto config keys.
var pyprojectKeys = map[string]string{
	"remove_unused_variables":    "rewrite.remove_unused_variables",
	"expand_star_imports":        "rewrite.expand_star_imports",
	"force_aggressive":           "rewrite.force_aggressive",
	"stdlib_only":                "rewrite.stdlib_only",
	"imports":                    "rewrite.imports",
	"ignore_init_module_imports": "rewrite.ignore_init_module_imports",
	"max_passes":                 "rewrite.max_passes",
	"exclude":                    "exclude.patterns",
	"jobs":                       "jobs",
	"verbose":                    "output.verbose",
	"cache":                      "cache.enabled",
	"cache_dir":                  "cache.dir",
}

// fromPyproject rewrites the [tool.autoflake] table into a koanf instance
// with the same layout as a standalone config file. Keys may use dashes.
func fromPyproject(src *koanf.Koanf) (*koanf.Koanf, error) {
	table := src.Cut("tool.autoflake")
	k := koanf.New(".")
	for key, value := range table.All() {
		norm := strings.ReplaceAll(key, "-", "_")
		switch norm {
		case "remove_all_unused_imports":
			all, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("tool.autoflake.%s: expected a boolean", key)
			}
			if err := k.Set("rewrite.stdlib_only", !all); err != nil {
				return nil, err
			}
			continue
		case "imports", "exclude":
			if s, ok := value.(string); ok {
				value = splitList(s)
			}
		}
		target, ok := pyprojectKeys[norm]
		if !ok {
			continue
		}
		if err := k.Set(target, value); err != nil {
			return nil, err
		}
	}
	return k, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadOrDefault tries to load config from standard locations or returns defaults.
func LoadOrDefault() *Config {
	result, err := LoadConfig()
	if err != nil {
		return DefaultConfig()
	}
	return result.Config
}

// Validate reports values no run could use.
func (c *Config) Validate() error {
	var errs []error
	if c.Rewrite.MaxPasses < 1 {
		errs = append(errs, fmt.Errorf("rewrite.max_passes must be at least 1 (got %d)", c.Rewrite.MaxPasses))
	}
	if c.Cache.Enabled && c.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir must be set when the cache is enabled"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must not be negative (got %d)", c.Cache.TTL))
	}
	if c.Jobs < 0 {
		errs = append(errs, fmt.Errorf("jobs must not be negative (got %d)", c.Jobs))
	}
	if !validFormat(c.Output.Format) {
		errs = append(errs, fmt.Errorf("output.format must be one of %s (got %q)", strings.Join(Formats, ", "), c.Output.Format))
	}
	if !c.Rewrite.RemoveUnusedImports && !c.Rewrite.RemoveUnusedVariables {
		errs = append(errs, errors.New("nothing to do: rewrite.remove_unused_imports and rewrite.remove_unused_variables are both off"))
	}
	if c.Rewrite.ExpandStarImports && len(c.Symbols.SearchPaths) == 0 {
		errs = append(errs, errors.New("rewrite.expand_star_imports needs at least one symbols.search_paths entry"))
	}
	for _, pattern := range c.Exclude.Patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Errorf("exclude.patterns: %q: %w", pattern, err))
		}
	}
	return errors.Join(errs...)
}

func validFormat(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Policy returns the fixer policy for the file at path. Module-level
// imports of __init__.py files are protected when configured.
func (c *Config) Policy(path string, lookup fixer.SymbolLookup) fixer.Policy {
	r := c.Rewrite
	return fixer.Policy{
		RemoveUnusedImports:   r.RemoveUnusedImports,
		RemoveUnusedVariables: r.RemoveUnusedVariables,
		ExpandStarImports:     r.ExpandStarImports,
		ForceAggressive:       r.ForceAggressive,
		StdlibOnly:            r.StdlibOnly,
		AdditionalImports:     r.Imports,
		KeepModuleImports:     r.IgnoreInitModuleImports && filepath.Base(path) == "__init__.py",
		MaxPasses:             r.MaxPasses,
		Lookup:                lookup,
	}
}

// ShouldExclude checks if a path should be excluded from processing.
func (c *Config) ShouldExclude(path string) bool {
	// Check directory exclusions
	for _, dir := range c.Exclude.Dirs {
		if strings.Contains(path, string(filepath.Separator)+dir+string(filepath.Separator)) ||
			strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}

	// Check pattern exclusions against the base name and the whole path
	base := filepath.Base(path)
	for _, pattern := range c.Exclude.Patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, filepath.ToSlash(path)); matched {
			return true
		}
	}

	return false
}
