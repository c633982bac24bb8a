package simulation

import (
	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/store"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name   string
	Config diffusion.Config
	Mode   diffusion.Mode

	// Persist saves the finished run to the runner's SQLite store and
	// replaces the result with the one loaded back from it.
	Persist bool

	// AfterIteration, when non-nil, is called with every iteration as it
	// completes. Use this to inspect the run while it progresses.
	AfterIteration func(it diffusion.Iteration)
}

// SimulationResult captures every iteration and the finished run.
type SimulationResult struct {
	Scenario   Scenario
	Iterations []diffusion.Iteration
	Result     *diffusion.Result

	// RunID is set when the scenario was persisted.
	RunID string
	Store *store.SQLiteRunStore
}
