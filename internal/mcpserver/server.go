// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes tripwatch tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tripwatch/internal/apperr"
	"github.com/starford/tripwatch/internal/tripservice"
)

const messageFormatURI = "tripwatch://message-format"

// Server wraps the MCP server with tripwatch tools.
type Server struct {
	mcp *server.MCPServer
	svc *tripservice.Service
}

// New creates a new MCP server with all tripwatch tools registered.
func New(svc *tripservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"tripwatch",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_known_trips",
		mcp.WithDescription("List trips already announced, most recently changed first."),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50, max 500)")),
		mcp.WithNumber("offset", mcp.Description("Number of trips to skip")),
	), s.listKnownTrips)

	s.mcp.AddTool(mcp.NewTool("lookup_trip",
		mcp.WithDescription("Show the stored display text of one trip."),
		mcp.WithString("link", mcp.Required(), mcp.Description("Absolute trip link from the agenda")),
	), s.lookupTrip)

	s.mcp.AddTool(mcp.NewTool("run_cycle",
		mcp.WithDescription("Fetch the agenda now, announce new and changed trips and store them. "+
			"Fails if a cycle is already running."),
	), s.runCycle)

	s.mcp.AddTool(mcp.NewTool("last_cycle",
		mcp.WithDescription("Outcome of the most recent cycle, including any failure."),
	), s.lastCycle)

	s.mcp.AddResource(
		mcp.NewResource(messageFormatURI, "Message Format",
			mcp.WithResourceDescription("How trips are compared and what the announcements look like."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMessageFormat,
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

func (s *Server) listKnownTrips(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.svc.ListTrips(ctx, req.GetInt("limit", 0), req.GetInt("offset", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(list)
}

func (s *Server) lookupTrip(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	link, err := req.RequireString("link")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kt, err := s.svc.LookupTrip(ctx, link)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", link)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(kt)
}

func (s *Server) runCycle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.svc.RunCycle(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) lastCycle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.svc.LastCycle(ctx)
	if err != nil {
		return mcp.NewToolResultText("no cycle has finished yet"), nil
	}
	return jsonResult(out)
}

func (s *Server) readMessageFormat(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      messageFormatURI,
			MIMEType: "text/markdown",
			Text:     MessageFormat,
		},
	}, nil
}
