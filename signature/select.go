package signature

import (
	"math"
	"sort"
)

// Select returns the n positions in [1, len(channel)) with the largest
// absolute coefficient values, each signed by the sign of its coefficient.
// Position 0, the DC, is excluded: it dominates magnitude, carries no shape
// information, and is kept separately as the DC triple.
//
// Ties on |coeff| break by ascending position so that selection is
// deterministic for a given channel.
func Select(channel []float64, n int) []int16 {
	if n > len(channel)-1 {
		n = len(channel) - 1
	}

	positions := make([]int32, len(channel)-1)
	for i := range positions {
		positions[i] = int32(i + 1)
	}
	sort.Slice(positions, func(i, j int) bool {
		a, b := math.Abs(channel[positions[i]]), math.Abs(channel[positions[j]])
		if a != b {
			return a > b
		}
		return positions[i] < positions[j]
	})

	// A coefficient of exactly zero has no sign to encode; it yields a zero
	// entry, which Extract rejects as degenerate.
	signed := make([]int16, n)
	for i, pos := range positions[:n] {
		switch {
		case channel[pos] < 0:
			signed[i] = int16(-pos)
		case channel[pos] > 0:
			signed[i] = int16(pos)
		}
	}
	return signed
}
