// Package mcp provides an MCP (Model Context Protocol) server for hagerstrand.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/logging"
	"github.com/nvandessel/hagerstrand/internal/ratelimit"
	"github.com/nvandessel/hagerstrand/internal/store"
)

// Server wraps the MCP SDK server and exposes the simulation tools.
type Server struct {
	server       *sdk.Server
	store        store.RunStore
	root         string
	defaults     diffusion.Config
	parallelism  int
	logger       *slog.Logger
	trace        *logging.TraceLogger
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "hagerstrand")
	Version string // Server version
	Root    string // Working directory; exports may be written below it

	// Store is the run catalog. The server takes ownership and closes it.
	Store store.RunStore

	// Defaults fill every simulation parameter a client leaves unset.
	Defaults diffusion.Config

	// Parallelism bounds concurrent replicates; <= 0 means GOMAXPROCS.
	Parallelism int

	Logger *slog.Logger
	Trace  *logging.TraceLogger

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string
}

// NewServer creates a new MCP server with the hagerstrand tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("run store is required")
	}
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default configuration: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		store:        cfg.Store,
		root:         cfg.Root,
		defaults:     cfg.Defaults,
		parallelism:  cfg.Parallelism,
		logger:       logger,
		trace:        cfg.Trace,
		toolLimiters: ratelimit.NewToolLimiters(),
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.Close()
	return err
}

// Close releases the store, trace and audit files.
func (s *Server) Close() error {
	s.trace.Close()
	s.auditLogger.Close()
	return s.store.Close()
}
