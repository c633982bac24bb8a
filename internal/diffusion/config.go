package diffusion

import (
	"errors"
	"fmt"
	"math"

	"github.com/nvandessel/hagerstrand/internal/grid"
	"github.com/nvandessel/hagerstrand/internal/kernel"
)

// Mode selects how propagation targets are chosen.
type Mode string

const (
	// ModeSpatial picks targets through the MIF kernel around the source cell.
	ModeSpatial Mode = "spatial"
	// ModeRandom picks targets uniformly over the whole grid.
	ModeRandom Mode = "random"
)

// ParseMode maps a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSpatial, ModeRandom:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid mode: %q (valid: spatial, random)", s)
	}
}

// Fallback is the policy applied when a kernel contact keeps landing outside
// the grid after MaxRetries redraws.
type Fallback string

const (
	// FallbackSkip drops the contact for this iteration.
	FallbackSkip Fallback = "skip"
	// FallbackClamp moves the last candidate to the nearest in-grid cell.
	FallbackClamp Fallback = "clamp"
)

// DefaultMaxRetries bounds out-of-grid redraws per contact.
const DefaultMaxRetries = 64

var (
	// ErrSeedOutOfGrid is returned when the initial adopter is not inside the grid.
	ErrSeedOutOfGrid = errors.New("initial seed coordinate is outside the grid")

	// ErrEvenKernel is returned when the kernel size is even.
	ErrEvenKernel = kernel.ErrEvenSize

	// ErrInvalidDimensions is returned for non-positive rows, columns, capacity or kernel size.
	ErrInvalidDimensions = errors.New("grid dimensions, capacity and kernel size must be positive")

	// ErrInvalidSelfWeight is returned when p0 is outside [0, 1].
	ErrInvalidSelfWeight = kernel.ErrInvalidSelfWeight

	// ErrInvalidIterations is returned when MaxIter is not positive.
	ErrInvalidIterations = errors.New("max iterations must be positive")

	// ErrInvalidFallback is returned for an unknown fallback policy or a negative retry bound.
	ErrInvalidFallback = errors.New("invalid out-of-grid fallback")
)

// Config holds the construction parameters of a run. It is immutable once an
// engine has been built from it.
type Config struct {
	// Rows is the number of grid rows (N).
	Rows int `json:"rows"`

	// Cols is the number of grid columns (M).
	Cols int `json:"cols"`

	// Capacity is the number of individual slots per cell (pob).
	Capacity int `json:"capacity"`

	// KernelSize is the side of the square MIF neighborhood. Must be odd.
	KernelSize int `json:"kernel_size"`

	// SelfWeight is the probability mass forced onto the kernel center (p0).
	SelfWeight float64 `json:"self_weight"`

	// MaxIter is the iteration budget.
	MaxIter int `json:"max_iter"`

	// Seed is the cell of the initial adopter.
	Seed grid.Coord `json:"seed"`

	// RandSeed seeds the engine-owned generator when none is injected.
	RandSeed uint64 `json:"rand_seed"`

	// MaxRetries bounds out-of-grid redraws for a single contact.
	MaxRetries int `json:"max_retries"`

	// Fallback is applied once MaxRetries redraws all missed the grid.
	Fallback Fallback `json:"fallback"`
}

// DefaultConfig returns the default run parameters.
func DefaultConfig() Config {
	return Config{
		Rows:       100,
		Cols:       100,
		Capacity:   20,
		KernelSize: 5,
		SelfWeight: 0.3,
		MaxIter:    1000,
		Seed:       grid.Coord{Row: 50, Col: 50},
		RandSeed:   1,
		MaxRetries: DefaultMaxRetries,
		Fallback:   FallbackSkip,
	}
}

// Grid returns the grid described by the config.
func (c Config) Grid() grid.Grid {
	return grid.New(c.Rows, c.Cols)
}

// Validate checks the construction invariants. Every failure is fatal for
// the run; nothing is retried.
func (c Config) Validate() error {
	if c.Rows <= 0 || c.Cols <= 0 || c.Capacity <= 0 || c.KernelSize <= 0 {
		return fmt.Errorf("%w: rows=%d cols=%d capacity=%d kernel_size=%d",
			ErrInvalidDimensions, c.Rows, c.Cols, c.Capacity, c.KernelSize)
	}
	if c.KernelSize%2 == 0 {
		return fmt.Errorf("%w, got %d", ErrEvenKernel, c.KernelSize)
	}
	if math.IsNaN(c.SelfWeight) || c.SelfWeight < 0 || c.SelfWeight > 1 {
		return fmt.Errorf("%w, got %v", ErrInvalidSelfWeight, c.SelfWeight)
	}
	if c.MaxIter <= 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidIterations, c.MaxIter)
	}
	if !c.Grid().Contains(c.Seed) {
		return fmt.Errorf("%w: seed %v, grid %dx%d", ErrSeedOutOfGrid, c.Seed, c.Rows, c.Cols)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be non-negative, got %d", ErrInvalidFallback, c.MaxRetries)
	}
	switch c.Fallback {
	case FallbackSkip, FallbackClamp, "":
	default:
		return fmt.Errorf("%w: %q (valid: skip, clamp)", ErrInvalidFallback, c.Fallback)
	}
	return nil
}
