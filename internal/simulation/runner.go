package simulation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/logging"
	"github.com/nvandessel/hagerstrand/internal/store"
)

// Runner orchestrates simulation experiments against a real engine and
// run store.
type Runner struct {
	t     *testing.T
	store *store.SQLiteRunStore
	trace *logging.TraceLogger
}

// NewRunner creates a simulation runner with an isolated SQLite store
// and sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s, err := store.NewSQLiteRunStore(filepath.Join(tmpDir, ".hagerstrand", "runs.db"))
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Runner{t: t, store: s}
}

// WithTrace makes the runner append every iteration to a JSONL trace in dir.
func (r *Runner) WithTrace(dir string) *Runner {
	r.t.Helper()
	r.trace = logging.NewTraceLogger(dir, "debug")
	r.t.Cleanup(r.trace.Close)
	return r
}

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()
	ctx := context.Background()

	mode := scenario.Mode
	if mode == "" {
		mode = diffusion.ModeSpatial
	}

	var iterations []diffusion.Iteration
	traceFn := r.trace.Observer(scenario.Name, mode)
	observer := func(it diffusion.Iteration) {
		iterations = append(iterations, it)
		if traceFn != nil {
			traceFn(it)
		}
		if scenario.AfterIteration != nil {
			scenario.AfterIteration(it)
		}
	}

	engine, err := diffusion.New(scenario.Config, mode, diffusion.WithObserver(observer))
	if err != nil {
		r.t.Fatalf("scenario %s: diffusion.New: %v", scenario.Name, err)
	}
	res := engine.Run()

	out := SimulationResult{
		Scenario:   scenario,
		Iterations: iterations,
		Result:     res,
		Store:      r.store,
	}

	if scenario.Persist {
		run, err := r.store.SaveRun(ctx, scenario.Name, res)
		if err != nil {
			r.t.Fatalf("scenario %s: SaveRun: %v", scenario.Name, err)
		}
		loaded, err := r.store.LoadResult(ctx, run.ID)
		if err != nil {
			r.t.Fatalf("scenario %s: LoadResult: %v", scenario.Name, err)
		}
		out.RunID = run.ID
		out.Result = loaded
	}

	return out
}

// FormatFrameDebug renders frame t as rows of counts for test failure output.
func FormatFrameDebug(result SimulationResult, t int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Frame %d (%s):\n", t, result.Result.Mode())
	for _, row := range result.Result.FrameGrid(t) {
		for col, v := range row {
			if col > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%2d", v)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
