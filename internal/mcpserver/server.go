// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Inkwell capture tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/soramir/inkwell/internal/apperr"
	"github.com/soramir/inkwell/internal/capture"
)

// Server wraps the MCP server with Inkwell tools.
type Server struct {
	mcp *server.MCPServer
	svc *capture.Service
}

// New creates a new MCP server with all capture tools registered.
func New(svc *capture.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Inkwell",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Capture one chat message into today's capture document."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message text to capture")),
	), s.sendMessage)

	s.mcp.AddTool(mcp.NewTool("list_messages",
		mcp.WithDescription("List today's captured messages in chronological order."),
	), s.listMessages)

	s.mcp.AddTool(mcp.NewTool("generate_diary",
		mcp.WithDescription("Generate a diary entry from today's captured messages and "+
			"append it as a row in the diary database."),
	), s.generateDiary)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) sendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("content is empty"), nil
	}
	msg, err := s.svc.Send(ctx, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("captured at %s (block %s)", msg.DisplayTime, msg.ID)), nil
}

func (s *Server) listMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msgs := s.svc.Messages()
	if len(msgs) == 0 {
		return mcp.NewToolResultText("no messages captured today"), nil
	}
	out, _ := json.MarshalIndent(msgs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) generateDiary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run, err := s.svc.GenerateDiary(ctx)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNoContent):
			return mcp.NewToolResultError("no messages captured today"), nil
		case errors.Is(err, apperr.ErrNotConfigured):
			return mcp.NewToolResultError("AI provider API key is not configured"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(run.Narrative), nil
}
