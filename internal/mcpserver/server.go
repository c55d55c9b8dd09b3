// Package mcpserver exposes the completion core as Model Context Protocol
// tools. Each position tool syncs the named file into the core and issues
// one request; the merged body is returned as JSON text.
package mcpserver

import (
	"context"

	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/dshills/codeintel/internal/registry"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// Backend is the core surface the tools need.
type Backend interface {
	Request(ctx context.Context, path, language string, kind provider.Kind, p provider.Payload) (any, error)
	Close(path string) bool
	Providers(ctx context.Context) ([]registry.Info, error)
}

// ToolServer is the part of server.MCPServer tools register with.
type ToolServer interface {
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
}

// Server holds the tool handlers.
type Server struct {
	backend Backend
	logger  *logging.Logger
}

// New creates the tool set over backend.
func New(backend Backend, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{backend: backend, logger: logger.WithComponent("mcp")}
}

// Tools returns every tool with its handler.
func (s *Server) Tools() []server.ServerTool {
	tools := []server.ServerTool{
		s.positionTool(provider.KindCompletion, "complete",
			"Completion candidates at a position, merged from every provider that supports the file's language."),
		s.positionTool(provider.KindHover, "hover",
			"Documentation and type information for the symbol at a position."),
		s.positionTool(provider.KindSignatureHelp, "signature_help",
			"Parameter hints for the call surrounding a position."),
		s.positionTool(provider.KindDefinition, "definition",
			"Location of the definition of the symbol at a position."),
		s.positionTool(provider.KindReferences, "references",
			"Locations referencing the symbol at a position.",
			mcp.WithBoolean("include_declaration", mcp.Description("Include the declaration itself"))),
		s.positionTool(provider.KindDocumentHighlight, "document_highlight",
			"Occurrences of the symbol at a position within the file."),
		s.positionTool(provider.KindRename, "rename",
			"Workspace edit renaming the symbol at a position.",
			mcp.WithString("new_name", mcp.Required(), mcp.Description("Replacement identifier"))),
		s.positionTool(provider.KindCodeAction, "code_action",
			"Fixes and refactorings available for a range.",
			mcp.WithNumber("end_line", mcp.Description("Range end line (0-based)")),
			mcp.WithNumber("end_column", mcp.Description("Range end column (0-based, UTF-16)"))),
		s.positionTool(provider.KindDocumentSymbol, "document_symbol",
			"Symbols declared in the file."),
		s.positionTool(provider.KindFoldingRange, "folding_range",
			"Foldable regions of the file."),
		s.providersTool(),
		s.closeTool(),
	}
	return tools
}

// Register adds every tool to srv.
func (s *Server) Register(srv ToolServer) {
	for _, t := range s.Tools() {
		srv.AddTool(t.Tool, t.Handler)
	}
}

// NewMCPServer builds a server with the tools registered and debug hooks
// wired to the logger.
func (s *Server) NewMCPServer(name string) *server.MCPServer {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(func(_ context.Context, id any, message *mcp.CallToolRequest) {
		s.logger.WithFields(map[string]any{"id": id, "tool": message.Params.Name}).Debug("tool call")
	})
	hooks.AddOnError(func(_ context.Context, id any, method mcp.MCPMethod, _ any, err error) {
		s.logger.WithFields(map[string]any{"id": id, "method": string(method)}).Warn("request failed: %v", err)
	})

	srv := server.NewMCPServer(name, Version,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
		server.WithInstructions("Code intelligence for local files. Positions are 0-based lines and UTF-16 columns; "+
			"pass the buffer text when it differs from the file on disk."),
	)
	s.Register(srv)
	return srv
}

// ServeStdio serves the tools over stdin and stdout until the client
// disconnects.
func (s *Server) ServeStdio() error {
	s.logger.WithField("session", uuid.NewString()).Info("serving MCP on stdio")
	return server.ServeStdio(s.NewMCPServer("codeintel"))
}
