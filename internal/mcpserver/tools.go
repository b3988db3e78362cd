package mcpserver

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Alok/autoflake/internal/output"
	"github.com/Alok/autoflake/internal/service/fix"
	"github.com/Alok/autoflake/internal/sink"
	"github.com/Alok/autoflake/internal/symbols"
	"github.com/Alok/autoflake/pkg/config"
	"github.com/Alok/autoflake/pkg/fixer"
	"github.com/Alok/autoflake/pkg/parser"
	"github.com/Alok/autoflake/pkg/rewrite"
)

// RewriteInput holds the options shared by all tools.
type RewriteInput struct {
	RemoveUnusedVariables   bool     `json:"remove_unused_variables,omitempty" jsonschema:"Also remove unused local variables."`
	ExpandStarImports       bool     `json:"expand_star_imports,omitempty" jsonschema:"Replace module-level star-imports with the names they provide."`
	ForceAggressive         bool     `json:"force_aggressive,omitempty" jsonschema:"Remove imports even inside try blocks."`
	StdlibOnly              bool     `json:"stdlib_only,omitempty" jsonschema:"Only remove standard library imports (plus those listed in imports)."`
	Imports                 []string `json:"imports,omitempty" jsonschema:"Extra third-party packages whose imports may be removed in stdlib_only mode."`
	IgnoreInitModuleImports bool     `json:"ignore_init_module_imports,omitempty" jsonschema:"Keep module-level imports in __init__.py files."`
	SearchPaths             []string `json:"search_paths,omitempty" jsonschema:"Directories searched for modules when expanding star-imports."`
	Format                  string   `json:"format,omitempty" jsonschema:"Output format: toon (default), json, yaml, or markdown."`
}

// RemoveUnusedInput is the input of remove_unused.
type RemoveUnusedInput struct {
	Source string `json:"source" jsonschema:"Python source text to fix."`
	Path   string `json:"path,omitempty" jsonschema:"File name used for diff labels and relative star-imports."`
	RewriteInput
}

// CheckPathsInput is the input of check_paths.
type CheckPathsInput struct {
	Paths []string `json:"paths,omitempty" jsonschema:"Files or directories to check. Defaults to current directory if empty."`
	RewriteInput
}

// RemoveUnusedOutput is the result of remove_unused.
type RemoveUnusedOutput struct {
	Fixed     string            `json:"fixed" toon:"fixed" yaml:"fixed"`
	Unchanged bool              `json:"unchanged" toon:"unchanged" yaml:"unchanged"`
	Passes    int               `json:"passes" toon:"passes" yaml:"passes"`
	Removals  []rewrite.Removal `json:"removals,omitempty" toon:"removals,omitempty" yaml:"removals,omitempty"`
	Skipped   []rewrite.Skip    `json:"skipped,omitempty" toon:"skipped,omitempty" yaml:"skipped,omitempty"`
	Warnings  []string          `json:"warnings,omitempty" toon:"warnings,omitempty" yaml:"warnings,omitempty"`
	Diff      string            `json:"diff,omitempty" toon:"diff,omitempty" yaml:"diff,omitempty"`
}

// Helper functions

func getPaths(input CheckPathsInput) []string {
	if len(input.Paths) == 0 {
		return []string{"."}
	}
	return input.Paths
}

func getFormat(input RewriteInput) output.Format {
	switch strings.ToLower(input.Format) {
	case "json":
		return output.FormatJSON
	case "yaml", "yml":
		return output.FormatYAML
	case "markdown", "md":
		return output.FormatMarkdown
	default:
		return output.FormatTOON
	}
}

// buildConfig layers the tool options over the project configuration.
func buildConfig(input RewriteInput) (*config.Config, error) {
	cfg := config.LoadOrDefault()
	r := &cfg.Rewrite
	r.RemoveUnusedVariables = r.RemoveUnusedVariables || input.RemoveUnusedVariables
	r.ExpandStarImports = r.ExpandStarImports || input.ExpandStarImports
	r.ForceAggressive = r.ForceAggressive || input.ForceAggressive
	r.StdlibOnly = r.StdlibOnly || input.StdlibOnly
	r.IgnoreInitModuleImports = r.IgnoreInitModuleImports || input.IgnoreInitModuleImports
	if len(input.Imports) > 0 {
		r.Imports = input.Imports
	}
	if len(input.SearchPaths) > 0 {
		cfg.Symbols.SearchPaths = input.SearchPaths
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func formatOutput(data any, format output.Format) (string, error) {
	var buf bytes.Buffer
	if err := output.NewFormatter(format, &buf, false).Output(data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func toolResult(data any, format output.Format) (*mcp.CallToolResult, any, error) {
	text, err := formatOutput(data, format)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

// Tool handlers

func handleRemoveUnused(ctx context.Context, req *mcp.CallToolRequest, input RemoveUnusedInput) (*mcp.CallToolResult, any, error) {
	format := getFormat(input.RewriteInput)

	cfg, err := buildConfig(input.RewriteInput)
	if err != nil {
		return toolError(err.Error())
	}

	name := input.Path
	if name == "" {
		name = "source.py"
	}
	var lookup fixer.SymbolLookup
	if cfg.Rewrite.ExpandStarImports {
		l := symbols.New(cfg.Symbols.SearchPaths)
		lookup = l
		if input.Path != "" {
			lookup = l.ForFile(input.Path)
		}
	}

	psr := parser.New()
	defer psr.Close()
	res, err := fixer.New(cfg.Policy(name, lookup)).Fix(ctx, psr, []byte(input.Source))
	if err != nil {
		return toolError(err.Error())
	}

	diff, err := res.Diff(name)
	if err != nil {
		return toolError(err.Error())
	}
	out := RemoveUnusedOutput{
		Fixed:     string(res.NewText),
		Unchanged: res.Unchanged,
		Passes:    res.Passes,
		Removals:  res.Removals,
		Skipped:   res.Skipped,
		Diff:      diff,
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}
	return toolResult(out, format)
}

func handleCheckPaths(ctx context.Context, req *mcp.CallToolRequest, input CheckPathsInput) (*mcp.CallToolResult, any, error) {
	paths := getPaths(input)
	format := getFormat(input.RewriteInput)

	for _, p := range paths {
		if p == fix.Stdin {
			return toolError("stdin is not available to tools; use remove_unused")
		}
	}

	cfg, err := buildConfig(input.RewriteInput)
	if err != nil {
		return toolError(err.Error())
	}

	svc := fix.New(
		fix.WithConfig(cfg),
		fix.WithSink(sink.New(io.Discard)),
	)
	res, err := svc.Run(ctx, paths, fix.Options{Check: true, Recursive: true})
	if err != nil {
		return toolError(err.Error())
	}
	if len(res.Report.Files) == 0 {
		return toolError("no Python files found")
	}

	return toolResult(res.Report, format)
}
