package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/codeintel/internal/provider"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const noResult = "no result"

// positionTool builds a tool for one request kind. Every position tool takes
// path, line and column plus optional language and text.
func (s *Server) positionTool(kind provider.Kind, name, description string, extra ...mcp.ToolOption) server.ServerTool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithReadOnlyHintAnnotation(kind != provider.KindRename),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
		mcp.WithNumber("line", mcp.Description("Line number (0-based)")),
		mcp.WithNumber("column", mcp.Description("Column (0-based, UTF-16 code units)")),
		mcp.WithString("language", mcp.Description("Language id; detected from the extension when omitted")),
		mcp.WithString("text", mcp.Description("Buffer contents; the file is read when omitted")),
	}
	opts = append(opts, extra...)

	return server.ServerTool{
		Tool: mcp.NewTool(name, opts...),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			path, err := request.RequireString("path")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			p := provider.Payload{
				Line:               request.GetInt("line", 0),
				Column:             request.GetInt("column", 0),
				EndLine:            request.GetInt("end_line", 0),
				EndColumn:          request.GetInt("end_column", 0),
				Text:               request.GetString("text", ""),
				NewName:            request.GetString("new_name", ""),
				IncludeDeclaration: request.GetBool("include_declaration", false),
			}
			if p.Line < 0 || p.Column < 0 {
				return mcp.NewToolResultError("line and column must be non-negative"), nil
			}
			if kind == provider.KindRename && p.NewName == "" {
				return mcp.NewToolResultError("new_name is required"), nil
			}

			body, err := s.backend.Request(ctx, path, request.GetString("language", ""), kind, p)
			if err != nil {
				s.logger.WithFields(map[string]any{"tool": name, "path": path}).Debug("request failed: %v", err)
				return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", name, err)), nil
			}
			return resultText(body)
		},
	}
}

func (s *Server) providersTool() server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool("providers",
			mcp.WithDescription("Status of every completion provider."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		Handler: func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			infos, err := s.backend.Providers(ctx)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			var b strings.Builder
			for _, info := range infos {
				fmt.Fprintf(&b, "%s\t%s", info.Name, info.Status)
				if len(info.Languages) > 0 {
					fmt.Fprintf(&b, "\t%s", strings.Join(info.Languages, ","))
				}
				b.WriteByte('\n')
			}
			return mcp.NewToolResultText(b.String()), nil
		},
	}
}

func (s *Server) closeTool() server.ServerTool {
	return server.ServerTool{
		Tool: mcp.NewTool("close",
			mcp.WithDescription("Tell providers a file is no longer being edited."),
			mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
		),
		Handler: func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			path, err := request.RequireString("path")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if !s.backend.Close(path) {
				return mcp.NewToolResultText("not open"), nil
			}
			return mcp.NewToolResultText("closed"), nil
		},
	}
}

func resultText(body any) (*mcp.CallToolResult, error) {
	if provider.IsEmpty(body) {
		return mcp.NewToolResultText(noResult), nil
	}
	if raw, ok := body.(json.RawMessage); ok {
		return mcp.NewToolResultText(string(raw)), nil
	}
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
