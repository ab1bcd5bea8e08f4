// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes nb2py conversion tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nb2py/internal/apperr"
	"github.com/starford/nb2py/internal/convertservice"
)

// ScriptFormatURI identifies the script format contract resource.
const ScriptFormatURI = "nb2py://script-format"

// Server wraps the MCP server with nb2py tools.
type Server struct {
	mcp *server.MCPServer
	svc *convertservice.Service
}

// New creates a new MCP server with all nb2py tools registered.
func New(svc *convertservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"nb2py",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("convert_notebook",
		mcp.WithDescription("Convert notebook JSON into a Python script without touching the workspace. "+
			"Returns the script text; warnings, if any, follow as a second JSON content item."),
		mcp.WithString("notebook", mcp.Required(), mcp.Description("Full .ipynb JSON document")),
	), s.convertNotebook)

	s.mcp.AddTool(mcp.NewTool("convert_file",
		mcp.WithDescription("Convert a workspace notebook, write the .py next to it and record the conversion."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the notebook (e.g. runs/train.ipynb)")),
	), s.convertFile)

	s.mcp.AddTool(mcp.NewTool("read_script",
		mcp.WithDescription("Read the script recorded for a converted notebook."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the notebook")),
	), s.readScript)

	s.mcp.AddTool(mcp.NewTool("list_conversions",
		mcp.WithDescription("List recorded conversions."),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
		mcp.WithString("sort", mcp.Description("Sort key"), mcp.Enum("converted_at", "path", "warnings")),
	), s.listConversions)

	s.mcp.AddTool(mcp.NewTool("search_scripts",
		mcp.WithDescription("Full-text search through generated scripts."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	), s.searchScripts)

	s.mcp.AddTool(mcp.NewTool("get_script_contract",
		mcp.WithDescription("Returns the nb2py script format contract: layout of generated scripts "+
			"and how notebook lines are routed. Read it before editing notebooks meant for conversion."),
	), s.getScriptContract)

	s.mcp.AddResource(
		mcp.NewResource(ScriptFormatURI, "Script Format Contract",
			mcp.WithResourceDescription("Layout of scripts generated from notebooks."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readScriptFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(path string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) convertNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nb, err := req.RequireString("notebook")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ConvertBytes(ctx, []byte(nb))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result := mcp.NewToolResultText(res.Script)
	if len(res.Warnings) > 0 {
		warnings, _ := json.Marshal(res.Warnings)
		result.Content = append(result.Content, mcp.NewTextContent(string(warnings)))
	}
	return result, nil
}

func (s *Server) convertFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.ConvertFile(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return jsonResult(c)
}

func (s *Server) readScript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	script, err := s.svc.GetScript(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	return mcp.NewToolResultText(script), nil
}

func (s *Server) listConversions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.ListConversions(ctx,
		req.GetInt("limit", 0),
		req.GetInt("offset", 0),
		req.GetString("sort", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"conversions": items,
		"total":       total,
	})
}

func (s *Server) searchScripts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getScriptContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ScriptFormatContract), nil
}

func (s *Server) readScriptFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ScriptFormatURI,
			MIMEType: "text/markdown",
			Text:     ScriptFormatContract,
		},
	}, nil
}
