package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/storyloom/narrative-mcp/internal/embedder"
	"github.com/storyloom/narrative-mcp/internal/orchestrator"
	"github.com/storyloom/narrative-mcp/internal/retrieval"
	"github.com/storyloom/narrative-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "narrative-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the database
	DefaultDBPath = "~/.narrative/indices"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp          *server.MCPServer
	store        storage.Store
	orchestrator *orchestrator.Orchestrator
	retrieval    *retrieval.Engine
}

// NewServer creates a new MCP server instance
func NewServer(dbPath string) (*Server, error) {
	// Expand home directory if needed
	if dbPath == "" || dbPath == DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".narrative", "indices")
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dbFile := filepath.Join(dbPath, "narrative.db")

	store, err := storage.NewSQLiteStore(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// One embedder instance shared by the pipeline and search, so vectors
	// cached during indexing serve queries too.
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	orch := orchestrator.New(store, emb, orchestrator.Config{})
	engine := retrieval.NewEngine(store, emb)

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:          mcpServer,
		store:        store,
		orchestrator: orch,
		retrieval:    engine,
	}

	s.registerTools()

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.store.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexManuscriptTool(), s.handleIndexManuscript)
	s.mcp.AddTool(getTaskStatusTool(), s.handleGetTaskStatus)
	s.mcp.AddTool(searchNarrativeTool(), s.handleSearchNarrative)
	s.mcp.AddTool(getEntityNetworkTool(), s.handleGetEntityNetwork)
	s.mcp.AddTool(getProjectStatisticsTool(), s.handleGetProjectStatistics)
	s.mcp.AddTool(assembleContextTool(), s.handleAssembleContext)
	s.mcp.AddTool(autocompleteEntitiesTool(), s.handleAutocompleteEntities)
}
