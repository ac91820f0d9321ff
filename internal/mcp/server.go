package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/geosync/internal/ingest"
	"github.com/dshills/geosync/internal/logging"
	"github.com/dshills/geosync/internal/storage"
	"github.com/dshills/geosync/internal/syncer"
)

const (
	// ServerName is the MCP server name
	ServerName = "geosync"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Dependencies are the pipeline components exposed as tools
type Dependencies struct {
	Coordinator *ingest.Coordinator
	Syncer      *syncer.Manager
	Store       storage.Storage
	SourceURL   string
	Logger      *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp         *server.MCPServer
	coordinator *ingest.Coordinator
	syncer      *syncer.Manager
	storage     storage.Storage
	sourceURL   string
	logger      *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Coordinator == nil || deps.Store == nil {
		return nil, errors.New("coordinator and store are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.L()
	}

	s := &Server{
		mcp:         server.NewMCPServer(ServerName, ServerVersion),
		coordinator: deps.Coordinator,
		syncer:      deps.Syncer,
		storage:     deps.Store,
		sourceURL:   deps.SourceURL,
		logger:      logger,
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_started", "name", ServerName, "version", ServerVersion)
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(runIngestionTool(), s.handleRunIngestion)
	if s.syncer != nil {
		s.mcp.AddTool(runSyncTool(), s.handleRunSync)
	}
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
