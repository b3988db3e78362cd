package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server and registers the autoflake tools.
type Server struct {
	server *mcp.Server
}

// NewServer creates a new MCP server with all autoflake tools registered.
func NewServer(version string) *Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "autoflake",
			Version: version,
		},
		nil,
	)

	s := &Server{server: server}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Run starts the MCP server over stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// registerTools adds the autoflake tools to the server.
func (s *Server) registerTools() {
	// Fix a single source text
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "remove_unused",
		Description: describeRemoveUnused(),
	}, handleRemoveUnused)

	// Report on files without writing
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "check_paths",
		Description: describeCheckPaths(),
	}, handleCheckPaths)
}
