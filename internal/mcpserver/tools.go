package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/joestump/relaydb/internal/bridge"
)

// --- Tool Definitions ---

func queryTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"query",
		"Run a read-only SQL statement and return its rows.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"sql": {
					"type": "string",
					"description": "SQL text (SELECT, WITH, PRAGMA, or EXPLAIN)"
				},
				"params": {
					"type": "array",
					"description": "Positional bind parameters",
					"items": {}
				},
				"first_row_only": {
					"type": "boolean",
					"description": "Return at most the first row"
				}
			},
			"required": ["sql"]
		}`),
	)
}

func executeTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"execute",
		"Run a write SQL statement. Only available when the server was started with writes allowed.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"sql": {
					"type": "string",
					"description": "SQL text"
				},
				"params": {
					"type": "array",
					"description": "Positional bind parameters",
					"items": {}
				}
			},
			"required": ["sql"]
		}`),
	)
}

func migrationStatusTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"migration_status",
		"List applied and pending migration names.",
		json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	)
}

// --- Tool Handlers ---

// statementArgs mirrors the JSON schema shared by query and execute.
type statementArgs struct {
	SQL          string `json:"sql"`
	Params       []any  `json:"params"`
	FirstRowOnly bool   `json:"first_row_only"`
}

func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args statementArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.SQL == "" {
		return mcp.NewToolResultError("sql is required"), nil
	}
	if !bridge.ReadOnly(args.SQL) {
		return mcp.NewToolResultError("statement is not read-only; use the execute tool"), nil
	}

	shape := bridge.ShapeRows
	if args.FirstRowOnly {
		shape = bridge.ShapeFirstRow
	}

	rows, err := s.adapter.Dispatch(ctx, args.SQL, args.Params, shape)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query: %v", err)), nil
	}
	if rows == nil {
		rows = []bridge.Row{}
	}
	return resultJSON(rows)
}

// executeResult is the success response for execute.
type executeResult struct {
	LastInsertID int64 `json:"last_insert_id"`
	RowsAffected int64 `json:"rows_affected"`
}

func (s *Server) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allowWrites {
		return mcp.NewToolResultError("writes are disabled (start the server with --allow-writes)"), nil
	}

	var args statementArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.SQL == "" {
		return mcp.NewToolResultError("sql is required"), nil
	}

	res, err := s.adapter.Run(ctx, args.SQL, args.Params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execute: %v", err)), nil
	}
	return resultJSON(executeResult{
		LastInsertID: res.LastInsertID,
		RowsAffected: res.RowsAffected,
	})
}

// migrationStatusResult mirrors the migration_status response.
type migrationStatusResult struct {
	Ready   bool     `json:"ready"`
	Applied []string `json:"applied"`
	Pending []string `json:"pending"`
}

func (s *Server) handleMigrationStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	applied, err := s.adapter.AppliedMigrations(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("applied migrations: %v", err)), nil
	}
	pending, err := s.adapter.PendingMigrations(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("pending migrations: %v", err)), nil
	}
	if applied == nil {
		applied = []string{}
	}
	if pending == nil {
		pending = []string{}
	}
	return resultJSON(migrationStatusResult{
		Ready:   s.adapter.Ready().Committed(),
		Applied: applied,
		Pending: pending,
	})
}

// resultJSON marshals v to JSON and returns it as a tool result.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
