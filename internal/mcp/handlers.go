package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/hagerstrand/internal/batch"
	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/export"
	"github.com/nvandessel/hagerstrand/internal/kernel"
	"github.com/nvandessel/hagerstrand/internal/pathutil"
	"github.com/nvandessel/hagerstrand/internal/ratelimit"
	"github.com/nvandessel/hagerstrand/internal/store"
)

// maxReplicates bounds replicates per hagerstrand_simulate call.
const maxReplicates = 256

// defaultListLimit is used when hagerstrand_runs list has no limit.
const defaultListLimit = 20

// registerTools registers all hagerstrand MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolSimulate,
		Description: "Run a Hägerstrand diffusion simulation (spatial or uniform-random baseline) and return its adoption time series",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolKernel,
		Description: "Compute the mean information field: normalized contact probabilities and CDF for a kernel size and center weight",
	}, s.handleKernel)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolRuns,
		Description: "List, show or delete simulation runs saved in the catalog",
	}, s.handleRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolExport,
		Description: "Export a saved run's frames or series as an Arrow IPC file",
	}, s.handleExport)
}

// simulationConfig overlays the non-zero fields of args on the defaults.
func (s *Server) simulationConfig(args SimulateInput) (diffusion.Config, diffusion.Mode, error) {
	cfg := s.defaults
	if args.Rows > 0 {
		cfg.Rows = args.Rows
	}
	if args.Cols > 0 {
		cfg.Cols = args.Cols
	}
	if args.Rows > 0 || args.Cols > 0 {
		// Keep the default seed meaningful on a resized grid.
		cfg.Seed.Row, cfg.Seed.Col = cfg.Rows/2, cfg.Cols/2
	}
	if args.Capacity > 0 {
		cfg.Capacity = args.Capacity
	}
	if args.KernelSize > 0 {
		cfg.KernelSize = args.KernelSize
	}
	if args.SelfWeight != nil {
		cfg.SelfWeight = *args.SelfWeight
	}
	if args.MaxIter > 0 {
		cfg.MaxIter = args.MaxIter
	}
	if args.SeedRow != nil {
		cfg.Seed.Row = *args.SeedRow
	}
	if args.SeedCol != nil {
		cfg.Seed.Col = *args.SeedCol
	}
	if args.RandSeed != nil {
		cfg.RandSeed = *args.RandSeed
	}
	if args.Fallback != "" {
		cfg.Fallback = diffusion.Fallback(args.Fallback)
	}

	mode := diffusion.ModeSpatial
	if args.Mode != "" {
		m, err := diffusion.ParseMode(args.Mode)
		if err != nil {
			return cfg, "", err
		}
		mode = m
	}
	if err := cfg.Validate(); err != nil {
		return cfg, "", err
	}
	return cfg, mode, nil
}

// handleSimulate implements the hagerstrand_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolSimulate, start, retErr, sanitizeToolParams(map[string]interface{}{
			"mode": args.Mode, "rows": args.Rows, "cols": args.Cols, "capacity": args.Capacity,
			"kernel_size": args.KernelSize, "max_iter": args.MaxIter, "fallback": args.Fallback,
			"replicates": args.Replicates, "save": args.Save, "label": args.Label,
		}))
	}()

	cfg, mode, err := s.simulationConfig(args)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("invalid simulation parameters: %w", err)
	}

	replicates := max(args.Replicates, 1)
	if replicates > maxReplicates {
		return nil, SimulateOutput{}, fmt.Errorf("replicates must be at most %d, got %d", maxReplicates, replicates)
	}
	if args.Save && replicates > 1 {
		return nil, SimulateOutput{}, fmt.Errorf("'save' is only supported for single runs")
	}

	cost := ratelimit.WorkUnits(cfg.Rows, cfg.Cols, cfg.MaxIter, replicates)
	if err := ratelimit.CheckCost(s.toolLimiters, ratelimit.ToolSimulate, cost); err != nil {
		return nil, SimulateOutput{}, err
	}

	if replicates > 1 {
		summary, err := batch.Run(ctx, cfg, mode, batch.Options{
			Replicates:  replicates,
			Parallelism: s.parallelism,
			Logger:      s.logger,
			Observer: func(i int, seed uint64) func(diffusion.Iteration) {
				return s.trace.Observer(fmt.Sprintf("mcp-batch-%d", seed), mode)
			},
		})
		if err != nil {
			return nil, SimulateOutput{}, fmt.Errorf("batch failed: %w", err)
		}
		return nil, SimulateOutput{
			Mode:       mode,
			Config:     cfg,
			Total:      int(summary.MeanTotal + 0.5),
			Replicates: replicates,
			Mean:       summary.Mean,
			StdDev:     summary.StdDev,
			Message: fmt.Sprintf("%d %s replicates on %dx%d over %d iterations: mean %.1f adopters",
				replicates, mode, cfg.Rows, cfg.Cols, cfg.MaxIter, summary.MeanTotal),
		}, nil
	}

	e, err := diffusion.New(cfg, mode,
		diffusion.WithLogger(s.logger),
		diffusion.WithObserver(s.trace.Observer("mcp", mode)))
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	for e.Step() {
		if err := ctx.Err(); err != nil {
			return nil, SimulateOutput{}, err
		}
	}
	res, _ := e.Result()

	out := SimulateOutput{
		Mode:       mode,
		Config:     res.Config(),
		Total:      res.Total(),
		Series:     res.TimeSeries(),
		Cumulative: res.Cumulative(),
		Stats:      res.Stats(),
		Replicates: 1,
		Message: fmt.Sprintf("%s run on %dx%d over %d iterations: %d adopters",
			mode, cfg.Rows, cfg.Cols, cfg.MaxIter, res.Total()),
	}

	if args.Save {
		run, err := s.store.SaveRun(ctx, args.Label, res)
		if err != nil {
			return nil, SimulateOutput{}, fmt.Errorf("failed to save run: %w", err)
		}
		out.RunID = run.ID
		out.Message += fmt.Sprintf(" (saved as %s)", run.ID)
	}
	return nil, out, nil
}

// handleKernel implements the hagerstrand_kernel tool.
func (s *Server) handleKernel(ctx context.Context, req *sdk.CallToolRequest, args KernelInput) (_ *sdk.CallToolResult, _ KernelOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolKernel, start, retErr, sanitizeToolParams(map[string]interface{}{
			"kernel_size": args.Size, "self_weight": optional(args.SelfWeight),
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolKernel); err != nil {
		return nil, KernelOutput{}, err
	}

	size := s.defaults.KernelSize
	if args.Size != 0 {
		size = args.Size
	}
	p0 := s.defaults.SelfWeight
	if args.SelfWeight != nil {
		p0 = *args.SelfWeight
	}

	k, err := kernel.New(size, p0)
	if err != nil {
		return nil, KernelOutput{}, err
	}
	return nil, KernelOutput{
		Size:       k.Size(),
		SelfWeight: k.SelfWeight(),
		Matrix:     k.Matrix(),
		CDF:        k.CDF(),
	}, nil
}

// optional dereferences p for audit logging; nil stays nil.
func optional[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func runSummary(r store.Run) RunSummary {
	return RunSummary{
		ID:        r.ID,
		Label:     r.Label,
		Mode:      r.Mode,
		Rows:      r.Config.Rows,
		Cols:      r.Config.Cols,
		MaxIter:   r.Config.MaxIter,
		Total:     r.Total,
		CreatedAt: r.CreatedAt,
	}
}

// handleRuns implements the hagerstrand_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolRuns, start, retErr, sanitizeToolParams(map[string]interface{}{
			"action": args.Action, "run_id": args.RunID, "mode": args.Mode, "limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolRuns); err != nil {
		return nil, RunsOutput{}, err
	}

	switch args.Action {
	case "", "list":
		filter := store.ListFilter{Limit: args.Limit}
		if filter.Limit <= 0 {
			filter.Limit = defaultListLimit
		}
		if args.Mode != "" {
			m, err := diffusion.ParseMode(args.Mode)
			if err != nil {
				return nil, RunsOutput{}, err
			}
			filter.Mode = m
		}
		runs, err := s.store.ListRuns(ctx, filter)
		if err != nil {
			return nil, RunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
		}
		out := RunsOutput{Runs: make([]RunSummary, 0, len(runs)), Count: len(runs)}
		for _, r := range runs {
			out.Runs = append(out.Runs, runSummary(r))
		}
		out.Message = fmt.Sprintf("%d runs", len(runs))
		return nil, out, nil

	case "show":
		if args.RunID == "" {
			return nil, RunsOutput{}, fmt.Errorf("'run_id' parameter is required for show")
		}
		run, err := s.store.GetRun(ctx, args.RunID)
		if err != nil {
			return nil, RunsOutput{}, err
		}
		if run == nil {
			return nil, RunsOutput{}, fmt.Errorf("%w: %s", store.ErrRunNotFound, args.RunID)
		}
		res, err := s.store.LoadResult(ctx, args.RunID)
		if err != nil {
			return nil, RunsOutput{}, err
		}
		return nil, RunsOutput{
			Run: &RunDetail{
				RunSummary: runSummary(*run),
				Config:     run.Config,
				Stats:      run.Stats,
				Series:     res.TimeSeries(),
				Cumulative: res.Cumulative(),
			},
			Count:   1,
			Message: fmt.Sprintf("run %s: %d adopters", run.ID, run.Total),
		}, nil

	case "delete":
		if args.RunID == "" {
			return nil, RunsOutput{}, fmt.Errorf("'run_id' parameter is required for delete")
		}
		if err := s.store.DeleteRun(ctx, args.RunID); err != nil {
			return nil, RunsOutput{}, err
		}
		return nil, RunsOutput{Message: fmt.Sprintf("deleted run %s", args.RunID)}, nil
	}
	return nil, RunsOutput{}, fmt.Errorf("unknown action %q (valid: list, show, delete)", args.Action)
}

// handleExport implements the hagerstrand_export tool.
func (s *Server) handleExport(ctx context.Context, req *sdk.CallToolRequest, args ExportInput) (_ *sdk.CallToolResult, _ ExportOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolExport, start, retErr, sanitizeToolParams(map[string]interface{}{
			"run_id": args.RunID, "kind": args.Kind, "output_path": args.OutputPath,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolExport); err != nil {
		return nil, ExportOutput{}, err
	}
	if args.RunID == "" {
		return nil, ExportOutput{}, fmt.Errorf("'run_id' parameter is required")
	}

	kind := export.KindFrames
	if args.Kind != "" {
		k, err := export.ParseKind(args.Kind)
		if err != nil {
			return nil, ExportOutput{}, err
		}
		kind = k
	}

	outputPath := args.OutputPath
	if outputPath == "" {
		// Default path is under our control.
		p, err := pathutil.DefaultExportPath(args.RunID, string(kind))
		if err != nil {
			return nil, ExportOutput{}, err
		}
		outputPath = p
	} else {
		allowedDirs, err := pathutil.DefaultOutputDirs(s.root)
		if err != nil {
			return nil, ExportOutput{}, fmt.Errorf("failed to determine allowed export dirs: %w", err)
		}
		resolved, err := pathutil.ResolveOutput(outputPath, allowedDirs)
		if err != nil {
			return nil, ExportOutput{}, fmt.Errorf("export path rejected: %w", err)
		}
		outputPath = resolved
	}

	res, err := s.store.LoadResult(ctx, args.RunID)
	if err != nil {
		return nil, ExportOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0700); err != nil {
		return nil, ExportOutput{}, fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := export.WriteFile(outputPath, kind, res); err != nil {
		return nil, ExportOutput{}, fmt.Errorf("export failed: %w", err)
	}

	var size int64
	if info, err := os.Stat(outputPath); err == nil {
		size = info.Size()
	}
	return nil, ExportOutput{
		Path:      outputPath,
		Kind:      string(kind),
		SizeBytes: size,
		Message:   fmt.Sprintf("Exported %s of run %s → %s", kind, args.RunID, pathutil.RedactPath(outputPath)),
	}, nil
}
