package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	t.Run("TopNByMagnitude", func(t *testing.T) {
		channel := []float64{10, 5, -3, 0.5, -7}

		got := Select(channel, 2)

		assert.Equal(t, []int16{-4, 1}, got)
	})

	t.Run("ExcludesDC", func(t *testing.T) {
		// Position 0 dominates but must never be selected.
		channel := []float64{1000, 1, 2, 3}

		got := Select(channel, 3)

		assert.ElementsMatch(t, []int16{1, 2, 3}, got)
	})

	t.Run("TiesBreakByAscendingPosition", func(t *testing.T) {
		channel := []float64{0, 2, -2, 1}

		got := Select(channel, 2)

		assert.Equal(t, []int16{1, -2}, got)
	})

	t.Run("ZeroCoefficientYieldsZeroEntry", func(t *testing.T) {
		channel := []float64{0, 0, 0, 0}

		got := Select(channel, 2)

		assert.Equal(t, []int16{0, 0}, got)
	})
}

func TestBin(t *testing.T) {
	assert.Equal(t, 1, Bin(1))
	assert.Equal(t, 1, Bin(Side))
	assert.Equal(t, 1, Bin(Side+1))
	assert.Equal(t, 2, Bin(2))
	assert.Equal(t, 3, Bin(3*Side+2))
	assert.Equal(t, 5, Bin(5))
	assert.Equal(t, 5, Bin(100))
	assert.Equal(t, 5, Bin(NumPositions-1))
}

func TestSignatureEqual(t *testing.T) {
	var a, b Signature
	for c := 0; c < Channels; c++ {
		for i := 0; i < NumCoefs; i++ {
			a[c][i] = int16(i + 1)
			b[c][NumCoefs-1-i] = int16(i + 1)
		}
	}
	assert.True(t, a.Equal(b), "order must not matter")

	b[1][0] = -b[1][0]
	assert.False(t, a.Equal(b))
}

func TestExtract(t *testing.T) {
	t.Run("GradientImage", func(t *testing.T) {
		var channels [Channels][]float64
		for c := range channels {
			channels[c] = make([]float64, NumPositions)
			for y := 0; y < Side; y++ {
				for x := 0; x < Side; x++ {
					channels[c][y*Side+x] = float64(x+y) * float64(c+1)
				}
			}
		}

		d, err := Extract(&channels, Resolution{Width: 640, Height: 480})
		require.NoError(t, err)

		assert.Equal(t, uint16(640), d.Res.Width)
		assert.Equal(t, uint16(480), d.Res.Height)
		for c := 0; c < Channels; c++ {
			assert.NotZero(t, d.DC[c])
			for _, p := range d.Sig[c] {
				assert.NotZero(t, p)
			}
		}
	})

	t.Run("ConstantImageIsDegenerate", func(t *testing.T) {
		var channels [Channels][]float64
		for c := range channels {
			channels[c] = make([]float64, NumPositions)
			for i := range channels[c] {
				channels[c][i] = 0.5
			}
		}

		_, err := Extract(&channels, Resolution{Width: 1, Height: 1})
		assert.ErrorIs(t, err, ErrZeroPosition)
	})

	t.Run("Deterministic", func(t *testing.T) {
		mk := func() *[Channels][]float64 {
			var channels [Channels][]float64
			for c := range channels {
				channels[c] = make([]float64, NumPositions)
				for i := range channels[c] {
					channels[c][i] = float64((i*7+c*13)%97) / 97
				}
			}
			return &channels
		}

		d1, err := Extract(mk(), Resolution{})
		require.NoError(t, err)
		d2, err := Extract(mk(), Resolution{})
		require.NoError(t, err)

		assert.Equal(t, d1.Sig, d2.Sig)
		assert.Equal(t, d1.DC, d2.DC)
	})
}
