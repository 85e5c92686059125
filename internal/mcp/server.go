package mcp

import (
	"database/sql"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/avelhart/chronicle/internal/config"
	"github.com/avelhart/chronicle/internal/generate"
	"github.com/avelhart/chronicle/internal/vault"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"collect": {
		def:     collectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCollect },
	},
	"expand": {
		def:     expandToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExpand },
	},
	"runs": {
		def:     runsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRuns },
	},
	"doctor": {
		def:     doctorToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDoctor },
	},
}

// AllToolNames returns a list of all registered tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// NewServer creates a new MCP server with chronicle tools registered.
func NewServer(database *sql.DB, cfg *config.Config, gen *generate.Generator, events, details *vault.Vault, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"chronicle",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(database, cfg, gen, events, details)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport. It blocks until the
// client closes stdin or the process is interrupted.
func Run(database *sql.DB, cfg *config.Config, gen *generate.Generator, events, details *vault.Vault, version string) error {
	s := NewServer(database, cfg, gen, events, details, version)
	return server.ServeStdio(s)
}
