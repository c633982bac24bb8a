// Package population holds the per-individual adoption state of a run and the
// frontier of adopters eligible to propagate.
package population

import "github.com/nvandessel/hagerstrand/internal/grid"

// Matrix is a boolean adoption matrix of Cells rows by Capacity slots.
// Adoption is monotonic: a slot never reverts to not-adopted.
type Matrix struct {
	cells    int
	capacity int
	adopted  []bool  // cells*capacity, row-major by cell
	counts   []int32 // adopted slots per cell
	total    int
}

// NewMatrix creates an empty matrix.
func NewMatrix(cells, capacity int) *Matrix {
	return &Matrix{
		cells:    cells,
		capacity: capacity,
		adopted:  make([]bool, cells*capacity),
		counts:   make([]int32, cells),
	}
}

// Cells returns the number of cells.
func (m *Matrix) Cells() int { return m.cells }

// Capacity returns the number of slots per cell.
func (m *Matrix) Capacity() int { return m.capacity }

// Adopted reports whether the slot at addr has adopted.
func (m *Matrix) Adopted(addr grid.Address) bool {
	return m.adopted[addr.Cell*m.capacity+addr.Slot]
}

// Adopt marks the slot at addr as adopted. It returns true only when the slot
// was not adopted before; adopting an already-adopted slot is a no-op.
func (m *Matrix) Adopt(addr grid.Address) bool {
	i := addr.Cell*m.capacity + addr.Slot
	if m.adopted[i] {
		return false
	}
	m.adopted[i] = true
	m.counts[addr.Cell]++
	m.total++
	return true
}

// Count returns the number of adopted slots in a cell.
func (m *Matrix) Count(cell int) int {
	return int(m.counts[cell])
}

// Total returns the number of adopted slots across the whole matrix.
func (m *Matrix) Total() int { return m.total }

// CountsInto copies the per-cell adopted counts into dst, which must hold
// at least Cells entries, and returns dst[:Cells].
func (m *Matrix) CountsInto(dst []int32) []int32 {
	dst = dst[:m.cells]
	copy(dst, m.counts)
	return dst
}

// Frontier is the ordered, grow-only list of addresses eligible to propagate.
type Frontier struct {
	addrs []grid.Address
}

// NewFrontier creates a frontier holding the given initial adopters.
func NewFrontier(initial ...grid.Address) *Frontier {
	return &Frontier{addrs: append([]grid.Address(nil), initial...)}
}

// Len returns the number of addresses in the frontier.
func (f *Frontier) Len() int { return len(f.addrs) }

// Snapshot returns the current members. Later Append calls never modify the
// returned slice's visible elements, so it is safe to iterate while new
// adopters are buffered for the next sweep.
func (f *Frontier) Snapshot() []grid.Address {
	return f.addrs[:len(f.addrs):len(f.addrs)]
}

// Append adds newly adopted addresses to the end of the frontier.
func (f *Frontier) Append(addrs ...grid.Address) {
	f.addrs = append(f.addrs, addrs...)
}
