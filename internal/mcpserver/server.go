// Package mcpserver implements an MCP (Model Context Protocol) server that
// exposes the relaydb adapter as typed tools over stdio JSON-RPC. Reads are
// always available; the execute tool only registers when writes were allowed
// at startup, so write access is enforced server-side.
package mcpserver

import (
	"context"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/joestump/relaydb/internal/bridge"
	"github.com/joestump/relaydb/internal/config"
)

// Server holds the MCP server state.
type Server struct {
	adapter     *bridge.Adapter
	allowWrites bool
}

// New creates an MCP server backed by the given adapter. The adapter should
// already be started; tool calls do not run migrations.
func New(adapter *bridge.Adapter, allowWrites bool) *Server {
	return &Server{adapter: adapter, allowWrites: allowWrites}
}

// Run starts the MCP stdio server. It blocks until the context is cancelled
// or stdin is closed.
func (s *Server) Run(ctx context.Context) error {
	mcpServer := server.NewMCPServer(
		"relaydb",
		config.Version,
		server.WithToolCapabilities(true),
	)

	tools := []server.ServerTool{
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: migrationStatusTool(), Handler: s.handleMigrationStatus},
	}
	if s.allowWrites {
		tools = append(tools, server.ServerTool{Tool: executeTool(), Handler: s.handleExecute})
	}
	mcpServer.AddTools(tools...)

	stdio := server.NewStdioServer(mcpServer)
	stdio.SetErrorLogger(log.New(os.Stderr, "[mcp] ", log.LstdFlags))

	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
