// Package testutil provides deterministic fixtures for imagedb tests.
package testutil

import (
	"github.com/hupe1980/imagedb/signature"
)

// Sig returns a deterministic signature for the given seed. Positions are
// distinct within each channel and never zero; signs alternate.
func Sig(seed int) signature.Signature {
	var sig signature.Signature
	for c := 0; c < signature.Channels; c++ {
		for i := 0; i < signature.NumCoefs; i++ {
			x := (seed*signature.Channels+c)*977 + i*7
			pos := int16(1 + x%(signature.NumPositions-1))
			if (seed+c+i)%2 == 1 {
				pos = -pos
			}
			sig[c][i] = pos
		}
	}
	return sig
}

// DC returns a deterministic DC triple for the given seed.
func DC(seed int) signature.DCTriple {
	var dc signature.DCTriple
	for c := 0; c < signature.Channels; c++ {
		dc[c] = float64(seed*10+c) + 0.25
	}
	return dc
}

// Descriptor returns a deterministic image descriptor for the given seed.
func Descriptor(seed int) signature.Descriptor {
	return signature.Descriptor{
		Sig: Sig(seed),
		DC:  DC(seed),
		Res: signature.Resolution{
			Width:  uint16(100 + seed),
			Height: uint16(60 + seed),
		},
	}
}

// SelfScore returns the score a probe with the given signature achieves
// against an identical stored image: the full coefficient overlap with a
// zero DC distance.
func SelfScore(sig signature.Signature) float64 {
	var score float64
	for c := 0; c < signature.Channels; c++ {
		for _, s := range sig[c] {
			pos := int(s)
			if pos < 0 {
				pos = -pos
			}
			score += signature.Weight(c, pos)
		}
	}
	return score
}
