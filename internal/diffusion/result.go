package diffusion

import (
	"fmt"

	"github.com/nvandessel/hagerstrand/internal/grid"
)

// Result is the read-only outcome of a completed run. Every accessor returns
// a copy; callers can never reach the engine's buffers.
//
// The result tensor has logical shape (Cols, Rows, MaxIter): At(col, row, t)
// is the cumulative number of adopters in that cell at the end of iteration t.
// Frames are stored in the grid's row-major cell order.
type Result struct {
	config     Config
	mode       Mode
	series     []int
	cumulative []int
	frames     []int32
	stats      Stats
}

// Restore rebuilds a Result from persisted frames and series. It checks that
// the lengths agree with cfg and recomputes the cumulative totals.
func Restore(cfg Config, mode Mode, series []int, frames []int32, stats Stats) (*Result, error) {
	cells := cfg.Rows * cfg.Cols
	if len(series) != cfg.MaxIter {
		return nil, fmt.Errorf("restore: series has %d entries, want %d", len(series), cfg.MaxIter)
	}
	if len(frames) != cfg.MaxIter*cells {
		return nil, fmt.Errorf("restore: frames have %d values, want %d", len(frames), cfg.MaxIter*cells)
	}

	cumulative := make([]int, cfg.MaxIter)
	for t := range cumulative {
		sum := 0
		for _, v := range frames[t*cells : (t+1)*cells] {
			sum += int(v)
		}
		cumulative[t] = sum
	}

	return &Result{
		config:     cfg,
		mode:       mode,
		series:     append([]int(nil), series...),
		cumulative: cumulative,
		frames:     append([]int32(nil), frames...),
		stats:      stats,
	}, nil
}

// Config returns the configuration of the run.
func (r *Result) Config() Config { return r.config }

// Mode returns the propagation mode of the run.
func (r *Result) Mode() Mode { return r.mode }

// Stats returns the aggregated contact statistics.
func (r *Result) Stats() Stats { return r.stats }

// Iterations returns the number of recorded iterations.
func (r *Result) Iterations() int { return r.config.MaxIter }

// Shape returns the tensor shape (M, N, max_iter).
func (r *Result) Shape() (cols, rows, iters int) {
	return r.config.Cols, r.config.Rows, r.config.MaxIter
}

// At returns the cumulative adopted count of cell (row, col) after iteration t.
func (r *Result) At(col, row, t int) int {
	cells := r.config.Rows * r.config.Cols
	return int(r.frames[t*cells+row*r.config.Cols+col])
}

// Frame returns a copy of the per-cell counts after iteration t, in row-major
// cell order.
func (r *Result) Frame(t int) []int32 {
	cells := r.config.Rows * r.config.Cols
	return append([]int32(nil), r.frames[t*cells:(t+1)*cells]...)
}

// FrameGrid returns frame t as Rows slices of Cols counts.
func (r *Result) FrameGrid(t int) [][]int {
	g := grid.New(r.config.Rows, r.config.Cols)
	out := make([][]int, g.Rows)
	for row := range out {
		out[row] = make([]int, g.Cols)
		for col := range out[row] {
			out[row][col] = r.At(col, row, t)
		}
	}
	return out
}

// Frames returns a copy of all frames concatenated in iteration order.
func (r *Result) Frames() []int32 {
	return append([]int32(nil), r.frames...)
}

// TimeSeries returns the number of new adopters per iteration.
func (r *Result) TimeSeries() []int {
	return append([]int(nil), r.series...)
}

// Cumulative returns the total number of adopters after each iteration.
func (r *Result) Cumulative() []int {
	return append([]int(nil), r.cumulative...)
}

// Total returns the number of adopters at the end of the run.
func (r *Result) Total() int {
	if len(r.cumulative) == 0 {
		return 0
	}
	return r.cumulative[len(r.cumulative)-1]
}
