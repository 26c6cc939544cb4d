package bucket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imagedb/core"
	"github.com/hupe1980/imagedb/signature"
	"github.com/hupe1980/imagedb/testutil"
)

// containsAll asserts that every signed position of sig maps to a bucket
// holding id.
func containsAll(t *testing.T, m *Manager, id core.InternID, sig signature.Signature) {
	t.Helper()
	for c := 0; c < signature.Channels; c++ {
		for _, s := range sig[c] {
			assert.True(t, m.Contains(c, s, id), "channel %d position %d should hold %d", c, s, id)
		}
	}
}

// containsNone asserts that no bucket of sig holds id.
func containsNone(t *testing.T, m *Manager, id core.InternID, sig signature.Signature) {
	t.Helper()
	for c := 0; c < signature.Channels; c++ {
		for _, s := range sig[c] {
			assert.False(t, m.Contains(c, s, id), "channel %d position %d should not hold %d", c, s, id)
		}
	}
}

func TestManager(t *testing.T) {
	t.Run("AddIndexesEveryPosition", func(t *testing.T) {
		m := NewManager()
		sig := testutil.Sig(1)

		require.NoError(t, m.Add(0, sig))

		assert.Equal(t, 1, m.Len())
		containsAll(t, m, 0, sig)
	})

	t.Run("AddRequiresDenseIDs", func(t *testing.T) {
		m := NewManager()
		assert.Error(t, m.Add(1, testutil.Sig(1)))
	})

	t.Run("RemoveReturnsSignature", func(t *testing.T) {
		m := NewManager()
		sig := testutil.Sig(1)
		require.NoError(t, m.Add(0, sig))

		got, err := m.Remove(0)
		require.NoError(t, err)

		assert.Equal(t, sig, got)
		assert.Equal(t, 0, m.Len())
		containsNone(t, m, 0, sig)
	})

	t.Run("RemoveRekeysLast", func(t *testing.T) {
		m := NewManager()
		sigA, sigB, sigC := testutil.Sig(1), testutil.Sig(2), testutil.Sig(3)
		require.NoError(t, m.Add(0, sigA))
		require.NoError(t, m.Add(1, sigB))
		require.NoError(t, m.Add(2, sigC))

		removed, err := m.Remove(0)
		require.NoError(t, err)
		assert.Equal(t, sigA, removed)

		// C moved into slot 0; B untouched.
		assert.Equal(t, 2, m.Len())
		containsAll(t, m, 0, sigC)
		containsAll(t, m, 1, sigB)
		containsNone(t, m, 2, sigC)

		got, ok := m.Signature(0)
		require.True(t, ok)
		assert.Equal(t, sigC, got)
	})

	t.Run("RemoveUnknown", func(t *testing.T) {
		m := NewManager()
		_, err := m.Remove(0)
		assert.Error(t, err)
	})

	t.Run("DuplicatePositionsAreIdempotent", func(t *testing.T) {
		m := NewManager()
		sig := testutil.Sig(1)
		sig[0][1] = sig[0][0]
		require.NoError(t, m.Add(0, sig))

		got, err := m.Remove(0)
		require.NoError(t, err)
		assert.Equal(t, sig, got)
		containsNone(t, m, 0, sig)
	})

	t.Run("Sizes", func(t *testing.T) {
		m := NewManager()
		sig := testutil.Sig(1)
		require.NoError(t, m.Add(0, sig))
		require.NoError(t, m.Add(1, sig))

		sizes := m.Sizes()
		sign, pos := split(sig[0][0])
		assert.Equal(t, uint64(2), sizes[0][sign][pos])
	})

	t.Run("MirrorMatchesBuckets", func(t *testing.T) {
		m := NewManager()
		for i := 0; i < 8; i++ {
			require.NoError(t, m.Add(core.InternID(i), testutil.Sig(i)))
		}
		for i := 0; i < 4; i++ {
			_, err := m.Remove(1)
			require.NoError(t, err)
		}

		// Whatever ended up in each slot must be exactly what the buckets say.
		for i := 0; i < m.Len(); i++ {
			sig, ok := m.Signature(core.InternID(i))
			require.True(t, ok)
			containsAll(t, m, core.InternID(i), sig)
		}
	})
}
