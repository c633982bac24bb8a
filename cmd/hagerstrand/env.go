package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nvandessel/hagerstrand/internal/config"
	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/logging"
	"github.com/nvandessel/hagerstrand/internal/store"
	"github.com/spf13/cobra"
)

// loadConfig reads --config when given, otherwise the default locations.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the stderr logger for the configured level.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// newTrace opens the iteration trace. It is nil at info level.
func newTrace(cfg *config.Config) *logging.TraceLogger {
	dir, err := cfg.ResolveTraceDir()
	if err != nil {
		return nil
	}
	return logging.NewTraceLogger(dir, cfg.Logging.Level)
}

// openStore opens the SQLite run catalog named by the config.
func openStore(cfg *config.Config) (*store.SQLiteRunStore, error) {
	dbPath, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	s, err := store.NewSQLiteRunStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return s, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// addSimulationFlags registers the flags that override config.simulation.
func addSimulationFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("rows", 0, "Grid rows")
	f.Int("cols", 0, "Grid columns")
	f.Int("capacity", 0, "Individuals per cell")
	f.Int("kernel-size", 0, "Side of the contact kernel (odd)")
	f.Float64("self-weight", 0, "Probability of contacting the own cell (p0)")
	f.Int("max-iter", 0, "Number of iterations")
	f.Int("seed-row", 0, "Row of the initial adopter")
	f.Int("seed-col", 0, "Column of the initial adopter")
	f.Uint64("rand-seed", 0, "Random generator seed")
	f.Int("max-retries", 0, "Out-of-grid redraws per contact")
	f.String("fallback", "", "Policy after exhausting redraws: skip or clamp")
}

// applySimulationFlags overlays the flags the user set on the config. A new
// grid size without an explicit seed moves the seed to the grid center.
func applySimulationFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	sim := &cfg.Simulation

	ints := map[string]*int{
		"rows":        &sim.Rows,
		"cols":        &sim.Cols,
		"capacity":    &sim.Capacity,
		"kernel-size": &sim.KernelSize,
		"max-iter":    &sim.MaxIter,
		"seed-row":    &sim.SeedRow,
		"seed-col":    &sim.SeedCol,
		"max-retries": &sim.MaxRetries,
	}
	for name, dst := range ints {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	if f.Changed("self-weight") {
		sim.SelfWeight, _ = f.GetFloat64("self-weight")
	}
	if f.Changed("rand-seed") {
		sim.RandSeed, _ = f.GetUint64("rand-seed")
	}
	if f.Changed("fallback") {
		sim.Fallback, _ = f.GetString("fallback")
	}

	resized := f.Changed("rows") || f.Changed("cols")
	if resized && !f.Changed("seed-row") && !f.Changed("seed-col") {
		sim.SeedRow = sim.Rows / 2
		sim.SeedCol = sim.Cols / 2
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// simulate runs one engine to completion, stopping early if ctx is cancelled.
func simulate(ctx context.Context, cfg diffusion.Config, mode diffusion.Mode, opts ...diffusion.Option) (*diffusion.Result, error) {
	e, err := diffusion.New(cfg, mode, opts...)
	if err != nil {
		return nil, err
	}
	for e.Step() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run interrupted at iteration %d: %w", e.Iteration(), err)
		}
	}
	res, _ := e.Result()
	return res, nil
}
