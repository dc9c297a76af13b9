// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Portlight tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/portlight/internal/apperr"
	"github.com/starford/portlight/internal/models"
)

// ServicesURI is the resource holding the current service view.
const ServicesURI = "portlight://services"

// Monitor is the part of the service monitor exposed as tools.
type Monitor interface {
	View() models.View
	Refresh()
	Kill(ctx context.Context, pid int32) error
}

// Server wraps the MCP server with Portlight tools.
type Server struct {
	mcp *server.MCPServer
	mon Monitor
}

// New creates a new MCP server with all Portlight tools registered.
func New(mon Monitor, version string) *Server {
	s := &Server{mon: mon}

	s.mcp = server.NewMCPServer(
		"Portlight",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_services",
		mcp.WithDescription("List the local web services currently listening on this machine, "+
			"with their page title, project and URL."),
	), s.listServices)

	s.mcp.AddTool(mcp.NewTool("refresh_services",
		mcp.WithDescription("Request an immediate rescan. The updated list is available "+
			"from list_services a moment later."),
	), s.refreshServices)

	s.mcp.AddTool(mcp.NewTool("kill_process",
		mcp.WithDescription("Send a termination signal to the process owning a service. "+
			"The service disappears from the list right away and reappears if it keeps running."),
		mcp.WithNumber("pid", mcp.Required(), mcp.Description("Process id taken from list_services")),
	), s.killProcess)

	s.mcp.AddResource(
		mcp.NewResource(ServicesURI, "Active Services",
			mcp.WithResourceDescription("Deduplicated list of active local services as JSON."),
			mcp.WithMIMEType("application/json"),
		),
		s.readServicesResource,
	)

	return s
}

// ServeStdio serves MCP on stdin/stdout until ctx is cancelled or stdin closes.
// Transport errors are written to logger; stdout is reserved for the protocol.
func (s *Server) ServeStdio(ctx context.Context, logger *slog.Logger) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: serve stdio: %w", err)
	}
	return nil
}

func (s *Server) viewJSON() (string, error) {
	v := s.mon.View()
	if v.Services == nil {
		v.Services = []models.Service{}
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("mcpserver: encode view: %w", err)
	}
	return string(out), nil
}

func (s *Server) listServices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.viewJSON()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) refreshServices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mon.Refresh()
	return mcp.NewToolResultText("refresh requested"), nil
}

func (s *Server) killProcess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pid, err := req.RequireInt("pid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if pid < 0 || pid > math.MaxInt32 {
		return mcp.NewToolResultError(fmt.Sprintf("invalid pid: %d", pid)), nil
	}
	if err := s.mon.Kill(ctx, int32(pid)); err != nil {
		if errors.Is(err, apperr.ErrInvalidPID) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid pid: %d", pid)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("terminate sent: %d", pid)), nil
}

func (s *Server) readServicesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := s.viewJSON()
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ServicesURI,
			MIMEType: "application/json",
			Text:     out,
		},
	}, nil
}
