package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Alok/autoflake/internal/mcpserver"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start MCP (Model Context Protocol) server for LLM tool integration",
		Description: `Starts an MCP server over stdio transport that lets LLM clients remove
unused imports from source text and check project files.

To use with Claude Desktop, add to your config:
  {
    "mcpServers": {
      "autoflake": {
        "command": "autoflake",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - remove_unused   Fix a single Python source text and return it with a diff
  - check_paths     Report what would change in files and directories

Available prompts:
  - cleanup-imports    Review and apply unused import removal
  - star-imports       Replace wildcard imports with explicit names
  - unused-variables   Review unused local variables`,
		Action: runMCPCmd,
		Subcommands: []*cli.Command{
			{
				Name:   "manifest",
				Usage:  "Print the server.json manifest for the MCP registry",
				Action: runMCPManifestCmd,
			},
		},
	}
}

func runMCPCmd(c *cli.Context) error {
	server := mcpserver.NewServer(version)
	return server.Run(c.Context)
}

func runMCPManifestCmd(c *cli.Context) error {
	data, err := mcpserver.GenerateManifest(version)
	if err != nil {
		return fmt.Errorf("failed to generate manifest: %w", err)
	}
	fmt.Fprintln(c.App.Writer, string(data))
	return nil
}
