// Package diffusion implements the Hägerstrand contact model: starting from a
// single adopter, every adopter in the frontier contacts one individual per
// iteration and converts it if it has not adopted yet.
//
// Two engines share the same frontier discipline and bookkeeping. The spatial
// engine places contacts through the MIF kernel around the source cell; the
// baseline engine places them uniformly over the whole grid.
//
// Engines are single-threaded and deterministic for a given random stream.
// They perform no I/O; results are exposed through a read-only Result.
package diffusion

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/nvandessel/hagerstrand/internal/grid"
	"github.com/nvandessel/hagerstrand/internal/kernel"
	"github.com/nvandessel/hagerstrand/internal/population"
)

// State is the lifecycle state of an engine.
type State int

const (
	// Running means iterations remain.
	Running State = iota
	// Done means the iteration budget is exhausted.
	Done
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == Done {
		return "done"
	}
	return "running"
}

// Iteration describes what happened during one sweep.
type Iteration struct {
	Index      int `json:"iteration"`
	Frontier   int `json:"frontier"`    // adopters that propagated this sweep
	NewAdopted int `json:"new_adopted"` // slots converted this sweep
	Total      int `json:"total"`       // adopted slots after the sweep
	Stats
}

// Stats counts contact outcomes.
type Stats struct {
	Contacts int `json:"contacts"` // contacts that reached an in-grid target
	Retries  int `json:"retries"`  // out-of-grid kernel redraws
	Skipped  int `json:"skipped"`  // contacts dropped after exhausting retries
	Clamped  int `json:"clamped"`  // contacts clamped into the grid after exhausting retries
	Wasted   int `json:"wasted"`   // contacts that hit an already-adopted slot
}

func (s *Stats) add(o Stats) {
	s.Contacts += o.Contacts
	s.Retries += o.Retries
	s.Skipped += o.Skipped
	s.Clamped += o.Clamped
	s.Wasted += o.Wasted
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand injects the random generator. The engine draws every random
// number from it, so a caller-owned generator makes runs reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithLogger sets the logger for per-iteration debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithObserver registers a callback invoked synchronously after every
// iteration.
func WithObserver(fn func(Iteration)) Option {
	return func(e *Engine) { e.observer = fn }
}

// Engine runs one diffusion. It exclusively owns the population matrix,
// frontier and recorded series for its lifetime.
type Engine struct {
	config   Config
	mode     Mode
	grid     grid.Grid
	kernel   *kernel.Kernel
	rng      *rand.Rand
	logger   *slog.Logger
	observer func(Iteration)

	pop      *population.Matrix
	frontier *population.Frontier
	fresh    []grid.Address // adopters of the current sweep

	state      State
	iteration  int
	series     []int
	cumulative []int
	frames     []int32 // MaxIter frames of Rows*Cols counts
	stats      Stats

	target func(src grid.Address, it *Iteration) (grid.Address, bool)
}

// NewSpatial creates the kernel-biased engine.
func NewSpatial(cfg Config, opts ...Option) (*Engine, error) {
	return New(cfg, ModeSpatial, opts...)
}

// NewBaseline creates the uniform-random engine.
func NewBaseline(cfg Config, opts ...Option) (*Engine, error) {
	return New(cfg, ModeRandom, opts...)
}

// New validates cfg and creates an engine for the given mode. The seed
// individual (slot 0 of the seed cell) is adopted and forms the initial
// frontier.
func New(cfg Config, mode Mode, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("diffusion: %w", err)
	}
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackSkip
	}

	k, err := kernel.New(cfg.KernelSize, cfg.SelfWeight)
	if err != nil {
		return nil, fmt.Errorf("diffusion: building kernel: %w", err)
	}

	g := cfg.Grid()
	e := &Engine{
		config:     cfg,
		mode:       mode,
		grid:       g,
		kernel:     k,
		pop:        population.NewMatrix(g.Cells(), cfg.Capacity),
		series:     make([]int, cfg.MaxIter),
		cumulative: make([]int, cfg.MaxIter),
		frames:     make([]int32, cfg.MaxIter*g.Cells()),
	}

	switch mode {
	case ModeSpatial:
		e.target = e.spatialTarget
	case ModeRandom:
		e.target = e.randomTarget
	default:
		return nil, fmt.Errorf("diffusion: invalid mode: %q", mode)
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(cfg.RandSeed, cfg.RandSeed))
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}

	seed := grid.Address{Cell: g.Flatten(cfg.Seed), Slot: 0}
	e.pop.Adopt(seed)
	e.frontier = population.NewFrontier(seed)

	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.config }

// Mode returns the propagation mode.
func (e *Engine) Mode() Mode { return e.mode }

// Kernel returns the MIF built at construction.
func (e *Engine) Kernel() *kernel.Kernel { return e.kernel }

// State returns the lifecycle state.
func (e *Engine) State() State { return e.state }

// Iteration returns the number of completed iterations.
func (e *Engine) Iteration() int { return e.iteration }

// Step runs one synchronous sweep over a snapshot of the frontier. Adopters
// converted during the sweep join the frontier only after it completes.
// Step returns false once the engine is Done.
func (e *Engine) Step() bool {
	if e.state == Done {
		return false
	}

	snapshot := e.frontier.Snapshot()
	it := Iteration{Index: e.iteration, Frontier: len(snapshot)}
	e.fresh = e.fresh[:0]

	for _, src := range snapshot {
		dst, ok := e.target(src, &it)
		if !ok {
			continue
		}
		it.Contacts++
		if e.pop.Adopt(dst) {
			e.fresh = append(e.fresh, dst)
		} else {
			it.Wasted++
		}
	}
	e.frontier.Append(e.fresh...)

	it.NewAdopted = len(e.fresh)
	it.Total = e.pop.Total()
	e.record(it)

	e.logger.Debug("diffusion iteration",
		"mode", e.mode,
		"iteration", it.Index,
		"frontier", it.Frontier,
		"new_adopted", it.NewAdopted,
		"total", it.Total,
		"retries", it.Retries,
		"skipped", it.Skipped)

	e.iteration++
	if e.iteration == e.config.MaxIter {
		e.state = Done
		e.logger.Info("diffusion complete",
			"mode", e.mode,
			"iterations", e.iteration,
			"adopted", it.Total,
			"contacts", e.stats.Contacts,
			"wasted", e.stats.Wasted,
			"skipped", e.stats.Skipped)
	}

	if e.observer != nil {
		e.observer(it)
	}
	return true
}

// record stores the iteration's delta and its cumulative per-cell snapshot.
func (e *Engine) record(it Iteration) {
	cells := e.grid.Cells()
	e.series[it.Index] = it.NewAdopted
	e.cumulative[it.Index] = it.Total
	e.pop.CountsInto(e.frames[it.Index*cells : (it.Index+1)*cells])
	e.stats.add(it.Stats)
}

// Run steps until Done and returns the result.
func (e *Engine) Run() *Result {
	for e.Step() {
	}
	res, _ := e.Result()
	return res
}

// Result returns the read-only result once the engine is Done.
func (e *Engine) Result() (*Result, bool) {
	if e.state != Done {
		return nil, false
	}
	return &Result{
		config:     e.config,
		mode:       e.mode,
		series:     e.series,
		cumulative: e.cumulative,
		frames:     e.frames,
		stats:      e.stats,
	}, true
}

// spatialTarget samples a kernel offset and a slot, redrawing both while the
// candidate falls outside the grid. After MaxRetries redraws the configured
// fallback decides between dropping the contact and clamping it.
func (e *Engine) spatialTarget(src grid.Address, it *Iteration) (grid.Address, bool) {
	var off grid.Offset
	var slot int
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			it.Retries++
		}
		off = e.kernel.Sample(e.rng)
		slot = e.rng.IntN(e.config.Capacity)
		if dst, ok := e.grid.Translate(grid.Address{Cell: src.Cell, Slot: slot}, off); ok {
			return dst, true
		}
	}

	if e.config.Fallback == FallbackClamp {
		it.Clamped++
		c := e.grid.Clamp(e.grid.Shift(e.grid.Unflatten(src.Cell), off))
		return grid.Address{Cell: e.grid.Flatten(c), Slot: slot}, true
	}
	it.Skipped++
	return grid.Address{}, false
}

// randomTarget draws a cell over the whole grid and a slot in that cell.
// Every draw is in range, so no retry is needed.
func (e *Engine) randomTarget(_ grid.Address, _ *Iteration) (grid.Address, bool) {
	return grid.Address{
		Cell: e.rng.IntN(e.grid.Cells()),
		Slot: e.rng.IntN(e.config.Capacity),
	}, true
}
