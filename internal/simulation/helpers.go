package simulation

import (
	"github.com/nvandessel/hagerstrand/internal/diffusion"
	"github.com/nvandessel/hagerstrand/internal/grid"
)

// GridConfig returns a default configuration resized to rows x cols with the
// seed at the grid center and the given kernel size.
func GridConfig(rows, cols, kernelSize int) diffusion.Config {
	cfg := diffusion.DefaultConfig()
	cfg.Rows = rows
	cfg.Cols = cols
	cfg.KernelSize = kernelSize
	cfg.Seed = grid.Coord{Row: rows / 2, Col: cols / 2}
	cfg.MaxIter = 10
	cfg.Capacity = 5
	return cfg
}

// Chebyshev returns the king-move distance between two cells.
func Chebyshev(a, b grid.Coord) int {
	return max(abs(a.Row-b.Row), abs(a.Col-b.Col))
}

// AdoptedCells returns the cells holding at least one adopter after
// iteration t.
func AdoptedCells(res *diffusion.Result, t int) []grid.Coord {
	cfg := res.Config()
	var cells []grid.Coord
	for i, v := range res.Frame(t) {
		if v > 0 {
			cells = append(cells, grid.Coord{Row: i / cfg.Cols, Col: i % cfg.Cols})
		}
	}
	return cells
}

// MaxSpread returns the largest Chebyshev distance from the seed to any
// adopted cell after iteration t.
func MaxSpread(res *diffusion.Result, t int) int {
	seed := res.Config().Seed
	spread := 0
	for _, c := range AdoptedCells(res, t) {
		spread = max(spread, Chebyshev(seed, c))
	}
	return spread
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
