// Package binning converts between continuous values and categorical
// distributions over evenly spaced bins.
package binning

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{(lo + hi) / 2}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// ValueFromDistribution maps each row of dist (one categorical distribution
// or one-hot vector per action dimension) to the expected bin value over
// [lo, hi].
func ValueFromDistribution(dist [][]float64, lo, hi float64) ([]float64, error) {
	out := make([]float64, len(dist))
	for i, row := range dist {
		if len(row) == 0 {
			return nil, errors.Errorf("binning: dimension %d has no bins", i)
		}
		sum := floats.Sum(row)
		if sum <= 0 {
			return nil, errors.Errorf("binning: dimension %d has non-positive mass %v", i, sum)
		}
		out[i] = floats.Dot(row, Linspace(lo, hi, len(row))) / sum
	}
	return out, nil
}

// Argmax returns the index of the largest entry of every row.
func Argmax(rows [][]float64) []int {
	idx := make([]int, len(rows))
	for i, row := range rows {
		idx[i] = floats.MaxIdx(row)
	}
	return idx
}

// Sample draws an index from the categorical distribution probs.
func Sample(probs []float64, rng *rand.Rand) int {
	threshold := rng.Float64()
	var cumulative float64
	for i, p := range probs {
		cumulative += p
		if p > 0 && threshold <= cumulative {
			return i
		}
	}
	return len(probs) - 1
}

// OneHot returns a vector of length n with a one at index i.
func OneHot(i, n int) []float64 {
	v := make([]float64, n)
	v[i] = 1
	return v
}

// NearestBin returns the index of the bin over [lo, hi] closest to x.
// Values outside the range map to the edge bins.
func NearestBin(x, lo, hi float64, n int) int {
	if n == 1 {
		return 0
	}
	pos := (x - lo) / (hi - lo) * float64(n-1)
	i := int(math.Round(pos))
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
