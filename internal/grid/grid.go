// Package grid defines the discretized simulation space and the address
// translation between 2D coordinates, flat cell indices and population slots.
//
// The convention is row-major everywhere: a Grid has Rows (N) rows and Cols (M)
// columns, a Coord is (Row, Col), and the flat index of a cell is Row*Cols+Col.
// Kernel offsets use the same (row, col) order.
package grid

import "fmt"

// Grid is a fixed-size 2D space of Rows x Cols cells.
type Grid struct {
	Rows int // N
	Cols int // M
}

// Coord is a 2D cell coordinate.
type Coord struct {
	Row int `json:"row" yaml:"row"`
	Col int `json:"col" yaml:"col"`
}

// String implements fmt.Stringer.
func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Offset is a signed displacement between two cells.
type Offset struct {
	DRow int
	DCol int
}

// Address locates one individual: a flat cell index and a slot within that cell.
type Address struct {
	Cell int
	Slot int
}

// New creates a grid with the given number of rows and columns.
func New(rows, cols int) Grid {
	return Grid{Rows: rows, Cols: cols}
}

// Cells returns the number of cells in the grid.
func (g Grid) Cells() int {
	return g.Rows * g.Cols
}

// Contains reports whether c lies within [0,Rows) x [0,Cols).
func (g Grid) Contains(c Coord) bool {
	return c.Row >= 0 && c.Row < g.Rows && c.Col >= 0 && c.Col < g.Cols
}

// Flatten converts a coordinate to its flat cell index.
// The caller must ensure the coordinate is inside the grid.
func (g Grid) Flatten(c Coord) int {
	return c.Row*g.Cols + c.Col
}

// Unflatten converts a flat cell index back to its coordinate.
func (g Grid) Unflatten(cell int) Coord {
	return Coord{Row: cell / g.Cols, Col: cell % g.Cols}
}

// Shift applies an offset to a coordinate without bounds checking.
func (g Grid) Shift(c Coord, off Offset) Coord {
	return Coord{Row: c.Row + off.DRow, Col: c.Col + off.DCol}
}

// Translate moves the cell of addr by off and re-flattens it. The slot is
// carried over unchanged. ok is false when the shifted coordinate falls
// outside the grid, in which case the returned address is meaningless.
func (g Grid) Translate(addr Address, off Offset) (Address, bool) {
	target := g.Shift(g.Unflatten(addr.Cell), off)
	if !g.Contains(target) {
		return Address{}, false
	}
	return Address{Cell: g.Flatten(target), Slot: addr.Slot}, true
}

// Clamp returns the nearest in-grid coordinate to c.
func (g Grid) Clamp(c Coord) Coord {
	return Coord{Row: clamp(c.Row, 0, g.Rows-1), Col: clamp(c.Col, 0, g.Cols-1)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
