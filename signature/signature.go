// Package signature reduces decoded images to compact perceptual
// signatures: per YIQ channel, the positions of the largest-magnitude Haar
// coefficients, signed by their coefficient's sign, plus the DC value of
// each channel.
package signature

// Domain constants. They are baked into the binary persistence format;
// changing them invalidates existing database files.
const (
	// Side is the width and height to which images are rescaled before the
	// wavelet decomposition.
	Side = 128

	// Channels is the number of colour channels (YIQ).
	Channels = 3

	// NumCoefs is the number of top coefficients kept per colour channel,
	// ordered by absolute value.
	NumCoefs = 40

	// NumPositions is the number of coefficient positions per channel.
	NumPositions = Side * Side
)

// Signature is the perceptual fingerprint of one image. Each channel holds
// NumCoefs signed coefficient positions: the magnitude is the position in
// the Haar-transformed channel (never 0, the DC slot), the sign is the sign
// of the coefficient there.
type Signature [Channels][NumCoefs]int16

// DCTriple holds the DC (position 0) coefficient of each channel.
type DCTriple [Channels]float64

// Resolution is the original image resolution before rescaling.
type Resolution struct {
	Width  uint16
	Height uint16
}

// Equal reports whether two signatures select the same set of signed
// positions per channel, regardless of order.
func (s Signature) Equal(other Signature) bool {
	for c := 0; c < Channels; c++ {
		var seen [NumCoefs]bool
	outer:
		for _, p := range s[c] {
			for i, q := range other[c] {
				if !seen[i] && p == q {
					seen[i] = true
					continue outer
				}
			}
			return false
		}
	}
	return true
}

// weights holds the scoring weights per colour channel and magnitude tier,
// for images in YIQ space. Tier 0 weighs the DC distance seed; tiers 1-5
// weigh matching AC coefficients, coarser scales first.
var weights = [Channels][6]float64{
	{5.00, 0.83, 1.01, 0.52, 0.47, 0.30},
	{19.21, 1.26, 0.44, 0.53, 0.28, 0.14},
	{34.37, 0.36, 0.45, 0.14, 0.18, 0.27},
}

// Bin maps a coefficient position to its magnitude tier in [0, 5]. The tier
// of position p at (row, column) = (p/Side, p%Side) is min(max(row, col), 5);
// positions closer to the origin represent coarser scales and score higher.
func Bin(pos int) int {
	bin := pos / Side
	if col := pos % Side; col > bin {
		bin = col
	}
	if bin > 5 {
		bin = 5
	}
	return bin
}

// Weight returns the score contribution of a matching coefficient at the
// given position in the given channel. The same table seeds the DC distance
// via DCWeight; insert-time signatures and query-time scoring must agree on
// it.
func Weight(channel, pos int) float64 {
	return weights[channel][Bin(pos)]
}

// DCWeight returns the weight of the DC distance term for the given channel.
func DCWeight(channel int) float64 {
	return weights[channel][0]
}
