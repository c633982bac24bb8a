// Package kernel builds the mean information field (MIF): a normalized,
// cumulative spatial probability distribution over a square neighborhood that
// biases where a contact from an adopted cell lands.
//
// Weights are the Euclidean distances from each cell center to the
// neighborhood center, so farther cells receive more mass before the center
// override. This mirrors the original Hägerstrand model and is kept as is.
package kernel

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/nvandessel/hagerstrand/internal/grid"
	"gonum.org/v1/gonum/floats"
)

var (
	// ErrEvenSize is returned when the kernel size is even.
	ErrEvenSize = errors.New("kernel size must be odd")

	// ErrInvalidSize is returned when the kernel size is less than one.
	ErrInvalidSize = errors.New("kernel size must be at least 1")

	// ErrInvalidSelfWeight is returned when p0 is outside [0, 1].
	ErrInvalidSelfWeight = errors.New("self-diffusion weight must be in [0, 1]")
)

// Kernel is an immutable MIF of Size x Size cells.
type Kernel struct {
	size    int
	p0      float64
	weights []float64 // final normalized weights, row-major
	cdf     []float64 // cumulative sum of weights
}

// New builds the kernel for an odd size and a self-diffusion weight p0.
func New(size int, p0 float64) (*Kernel, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidSize, size)
	}
	if size%2 == 0 {
		return nil, fmt.Errorf("%w, got %d", ErrEvenSize, size)
	}
	if math.IsNaN(p0) || p0 < 0 || p0 > 1 {
		return nil, fmt.Errorf("%w, got %v", ErrInvalidSelfWeight, p0)
	}

	w := distanceWeights(size)
	overrideCenter(w, size, p0)
	normalize(w, size)

	return &Kernel{
		size:    size,
		p0:      p0,
		weights: w,
		cdf:     floats.CumSum(make([]float64, len(w)), w),
	}, nil
}

// distanceWeights returns the normalized distance of every cell center to
// the neighborhood center. For size 1 the single weight is zero.
func distanceWeights(size int) []float64 {
	half := float64(size / 2)
	w := make([]float64, size*size)
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			w[r*size+c] = math.Hypot(float64(r)-half, float64(c)-half)
		}
	}
	if sum := floats.Sum(w); sum > 0 {
		for i := range w {
			w[i] /= sum
		}
	}
	return w
}

// overrideCenter replaces the center weight with p0.
func overrideCenter(w []float64, size int, p0 float64) {
	w[centerIndex(size)] = p0
}

// normalize rescales w to sum to one. A zero-mass kernel (size 1 with
// p0 = 0) collapses onto the center so sampling stays defined.
func normalize(w []float64, size int) {
	sum := floats.Sum(w)
	if sum == 0 {
		w[centerIndex(size)] = 1
		return
	}
	for i := range w {
		w[i] /= sum
	}
}

func centerIndex(size int) int {
	return (size/2)*size + size/2
}

// Size returns the side length of the kernel.
func (k *Kernel) Size() int { return k.size }

// SelfWeight returns the configured p0.
func (k *Kernel) SelfWeight() float64 { return k.p0 }

// Center returns the flat index of the center cell.
func (k *Kernel) Center() int { return centerIndex(k.size) }

// Weights returns a copy of the normalized, row-major weights.
func (k *Kernel) Weights() []float64 {
	return append([]float64(nil), k.weights...)
}

// CDF returns a copy of the cumulative distribution.
func (k *Kernel) CDF() []float64 {
	return append([]float64(nil), k.cdf...)
}

// Matrix returns the weights reshaped as Size rows of Size columns.
func (k *Kernel) Matrix() [][]float64 {
	m := make([][]float64, k.size)
	for r := range m {
		m[r] = append([]float64(nil), k.weights[r*k.size:(r+1)*k.size]...)
	}
	return m
}

// Index returns the first flat index whose cumulative value exceeds u.
// Values of u at or above the final cumulative value map to the last cell.
func (k *Kernel) Index(u float64) int {
	i := sort.Search(len(k.cdf), func(i int) bool { return k.cdf[i] > u })
	if i == len(k.cdf) {
		return len(k.cdf) - 1
	}
	return i
}

// Offset converts a flat kernel index to a signed displacement from the
// center, each component in [-(Size/2), Size/2].
func (k *Kernel) Offset(index int) grid.Offset {
	half := k.size / 2
	return grid.Offset{
		DRow: index/k.size - half,
		DCol: index%k.size - half,
	}
}

// Sample draws u ~ U[0,1) from rng and returns the corresponding offset.
func (k *Kernel) Sample(rng *rand.Rand) grid.Offset {
	return k.Offset(k.Index(rng.Float64()))
}
