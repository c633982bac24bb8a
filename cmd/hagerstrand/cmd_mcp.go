package main

import (
	"fmt"
	"path/filepath"

	"github.com/nvandessel/hagerstrand/internal/config"
	"github.com/nvandessel/hagerstrand/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve simulation tools over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing the
hagerstrand_simulate, hagerstrand_kernel, hagerstrand_runs and
hagerstrand_export tools. Logs go to stderr; tool calls are audited to
~/.hagerstrand/audit.jsonl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			root, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("failed to resolve root: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			auditDir, err := config.Dir()
			if err != nil {
				s.Close()
				return err
			}

			trace := newTrace(cfg)
			server, err := mcp.NewServer(&mcp.Config{
				Name:        "hagerstrand",
				Version:     version,
				Root:        root,
				Store:       s,
				Defaults:    cfg.Simulation.ToDiffusion(),
				Parallelism: cfg.Batch.Parallelism,
				Logger:      newLogger(cmd, cfg),
				Trace:       trace,
				AuditDir:    auditDir,
			})
			if err != nil {
				trace.Close()
				s.Close()
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			return server.Run(cmd.Context())
		},
	}
}
