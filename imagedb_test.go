package imagedb

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imagedb/codec"
	"github.com/hupe1980/imagedb/core"
	"github.com/hupe1980/imagedb/testutil"
)

func image(seed int, uid core.UserID) Image {
	d := testutil.Descriptor(seed)
	return Image{UserID: uid, Sig: d.Sig, DC: d.DC, Res: d.Res}
}

func probe(seed int) QueryParams {
	return QueryParams{Probe: testutil.Descriptor(seed), K: 1}
}

func TestDB(t *testing.T) {
	ctx := context.Background()

	t.Run("SelfQueryScoresFullMatch", func(t *testing.T) {
		db := New()
		_, err := db.Add(ctx, image(1, 1))
		require.NoError(t, err)

		results := db.Query(ctx, probe(1))

		require.Len(t, results, 1)
		assert.Equal(t, core.UserID(1), results[0].UserID)
		assert.InDelta(t, testutil.SelfScore(testutil.Sig(1)), results[0].Score, 1e-9)
	})

	t.Run("RanksSelfFirst", func(t *testing.T) {
		db := New()
		_, err := db.Add(ctx, image(1, 1))
		require.NoError(t, err)
		_, err = db.Add(ctx, image(2, 2))
		require.NoError(t, err)

		results := db.Query(ctx, QueryParams{Probe: testutil.Descriptor(1), K: 2})

		require.Len(t, results, 2)
		assert.Equal(t, core.UserID(1), results[0].UserID)
		assert.Equal(t, core.UserID(2), results[1].UserID)
	})

	t.Run("RemoveKeepsRestQueryable", func(t *testing.T) {
		db := New()
		_, err := db.Add(ctx, image(1, 1))
		require.NoError(t, err)
		_, err = db.Add(ctx, image(2, 2))
		require.NoError(t, err)

		_, err = db.Remove(ctx, 1)
		require.NoError(t, err)

		_, ok := db.Has(1)
		assert.False(t, ok)
		_, ok = db.Has(2)
		assert.True(t, ok)
		assert.Equal(t, 1, db.NumImages())

		results := db.Query(ctx, probe(2))
		require.Len(t, results, 1)
		assert.Equal(t, core.UserID(2), results[0].UserID)
	})

	t.Run("NextIDExceedsObserved", func(t *testing.T) {
		db := New()
		_, err := db.Add(ctx, image(1, 100))
		require.NoError(t, err)

		assert.Greater(t, db.NextID(), core.UserID(100))
	})

	t.Run("DuplicateAddLeavesStateUnchanged", func(t *testing.T) {
		db := New()
		original := image(1, 1)
		_, err := db.Add(ctx, original)
		require.NoError(t, err)

		_, err = db.Add(ctx, image(2, 1))
		assert.ErrorIs(t, err, ErrAlreadyExists)

		assert.Equal(t, 1, db.NumImages())
		got, err := db.Get(1)
		require.NoError(t, err)
		assert.Equal(t, original, got)
	})

	t.Run("AutoAssignedUserID", func(t *testing.T) {
		db := New()
		uid, err := db.Add(ctx, image(1, 0))
		require.NoError(t, err)
		assert.Equal(t, core.UserID(1), uid)

		uid, err = db.Add(ctx, image(2, 0))
		require.NoError(t, err)
		assert.Equal(t, core.UserID(2), uid)
	})

	t.Run("RemoveReturnsFullRecord", func(t *testing.T) {
		db := New()
		original := image(4, 9)
		_, err := db.Add(ctx, original)
		require.NoError(t, err)

		removed, err := db.Remove(ctx, 9)
		require.NoError(t, err)

		assert.Equal(t, original.UserID, removed.UserID)
		assert.Equal(t, original.DC, removed.DC)
		assert.Equal(t, original.Res, removed.Res)
		assert.True(t, original.Sig.Equal(removed.Sig))
	})

	t.Run("ReAddAfterRemove", func(t *testing.T) {
		db := New()
		_, err := db.Add(ctx, image(1, 1))
		require.NoError(t, err)
		removed, err := db.Remove(ctx, 1)
		require.NoError(t, err)
		_, err = db.Add(ctx, removed)
		require.NoError(t, err)

		fresh := New()
		_, err = fresh.Add(ctx, image(1, 1))
		require.NoError(t, err)

		assert.Equal(t, fresh.NumImages(), db.NumImages())
		a, err := db.Get(1)
		require.NoError(t, err)
		b, err := fresh.Get(1)
		require.NoError(t, err)
		assert.Equal(t, b, a)
		assert.Equal(t, fresh.Stats(), db.Stats())
	})

	t.Run("MidArrayRemoveMatchesFreshBuild", func(t *testing.T) {
		db := New()
		for i := 1; i <= 5; i++ {
			_, err := db.Add(ctx, image(i, core.UserID(i)))
			require.NoError(t, err)
		}
		_, err := db.Remove(ctx, 2)
		require.NoError(t, err)

		// A database populated from scratch in the post-removal order must
		// rank identically.
		fresh := New()
		for _, i := range []int{1, 5, 3, 4} {
			_, err := fresh.Add(ctx, image(i, core.UserID(i)))
			require.NoError(t, err)
		}

		for seed := 1; seed <= 5; seed++ {
			p := QueryParams{Probe: testutil.Descriptor(seed), K: 4}
			assert.Equal(t, fresh.Query(ctx, p), db.Query(ctx, p), "probe %d", seed)
		}
	})

	t.Run("CapacityExceeded", func(t *testing.T) {
		db := New(WithCapacity(2))
		_, err := db.Add(ctx, image(1, 1))
		require.NoError(t, err)
		_, err = db.Add(ctx, image(2, 2))
		require.NoError(t, err)

		_, err = db.Add(ctx, image(3, 3))
		assert.ErrorIs(t, err, ErrCapacityExceeded)

		assert.Equal(t, 2, db.NumImages())
		_, ok := db.Has(3)
		assert.False(t, ok)
	})

	t.Run("RemoveFromEmpty", func(t *testing.T) {
		db := New()
		_, err := db.Remove(ctx, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("QueryEmptyAndZeroK", func(t *testing.T) {
		db := New()
		assert.Empty(t, db.Query(ctx, probe(1)))

		_, err := db.Add(ctx, image(1, 1))
		require.NoError(t, err)
		assert.Empty(t, db.Query(ctx, QueryParams{Probe: testutil.Descriptor(1), K: 0}))
	})

	t.Run("QueryFilter", func(t *testing.T) {
		db := New()
		_, err := db.Add(ctx, image(1, 1))
		require.NoError(t, err)
		_, err = db.Add(ctx, image(2, 2))
		require.NoError(t, err)

		results := db.Query(ctx, QueryParams{
			Probe:  testutil.Descriptor(1),
			K:      2,
			Filter: func(uid core.UserID) bool { return uid != 1 },
		})

		require.Len(t, results, 1)
		assert.Equal(t, core.UserID(2), results[0].UserID)
	})

	t.Run("BatchAdd", func(t *testing.T) {
		db := New()
		result := db.BatchAdd(ctx, []Image{
			image(1, 1),
			image(2, 2),
			image(3, 1), // duplicate user ID
		})

		assert.NoError(t, result.Errors[0])
		assert.NoError(t, result.Errors[1])
		assert.ErrorIs(t, result.Errors[2], ErrAlreadyExists)
		assert.Equal(t, 2, db.NumImages())
	})

	t.Run("Stats", func(t *testing.T) {
		db := New()
		_, err := db.Add(ctx, image(1, 1))
		require.NoError(t, err)

		stats := db.Stats()
		assert.Equal(t, 1, stats.NumImages)
		assert.Greater(t, stats.Buckets, 0)
		assert.Equal(t, uint64(1), stats.MaxBucket)
	})
}

func TestDBInvariants(t *testing.T) {
	ctx := context.Background()

	// A fixed add/remove interleaving starting from empty; after every step
	// every stored user ID must resolve to its own record.
	db := New()
	live := map[core.UserID]bool{}

	check := func() {
		assert.Equal(t, len(live), db.NumImages())
		for uid := range live {
			got, err := db.Get(uid)
			require.NoError(t, err)
			assert.Equal(t, uid, got.UserID)
		}
	}

	for step, op := range []struct {
		remove bool
		seed   int
		uid    core.UserID
	}{
		{false, 1, 10}, {false, 2, 20}, {false, 3, 30},
		{true, 0, 20},
		{false, 4, 40}, {false, 5, 50},
		{true, 0, 10}, {true, 0, 50},
		{false, 6, 60},
		{true, 0, 30}, {true, 0, 40}, {true, 0, 60},
	} {
		if op.remove {
			_, err := db.Remove(ctx, op.uid)
			require.NoError(t, err, "step %d", step)
			delete(live, op.uid)
		} else {
			_, err := db.Add(ctx, image(op.seed, op.uid))
			require.NoError(t, err, "step %d", step)
			live[op.uid] = true
		}
		check()
	}
	assert.Equal(t, 0, db.NumImages())
}

func TestDBPersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("SaveLoadFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "images.idb")

		db := New()
		for i := 1; i <= 3; i++ {
			_, err := db.Add(ctx, image(i, core.UserID(i)))
			require.NoError(t, err)
		}
		require.NoError(t, db.SaveToFile(path))

		loaded, err := NewFromFile(path)
		require.NoError(t, err)

		assert.Equal(t, 3, loaded.NumImages())
		for seed := 1; seed <= 3; seed++ {
			p := QueryParams{Probe: testutil.Descriptor(seed), K: 3}
			assert.Equal(t, db.Query(ctx, p), loaded.Query(ctx, p))
		}

		// Generated IDs resume above everything the snapshot held.
		assert.Greater(t, loaded.NextID(), core.UserID(3))
	})

	t.Run("CompressedRoundTrip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "images.idb")

		db := New(WithCodec(codec.Zstd{}))
		_, err := db.Add(ctx, image(1, 7))
		require.NoError(t, err)
		require.NoError(t, db.SaveToFile(path))

		loaded, err := NewFromFile(path)
		require.NoError(t, err)
		got, err := loaded.Get(7)
		require.NoError(t, err)
		assert.Equal(t, core.UserID(7), got.UserID)
	})

	t.Run("WriterReaderRoundTrip", func(t *testing.T) {
		db := New()
		_, err := db.Add(ctx, image(2, 5))
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, db.SaveToWriter(&buf))

		loaded, err := NewFromReader(&buf)
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.NumImages())
	})
}

func TestExtractFile(t *testing.T) {
	ctx := context.Background()

	t.Run("EndToEnd", func(t *testing.T) {
		d, err := ExtractFile("decode/testdata/white_line_10px_bmp.bmp")
		require.NoError(t, err)
		assert.Equal(t, uint16(10), d.Res.Width)
		assert.Equal(t, uint16(1), d.Res.Height)

		db := New()
		uid, err := db.AddFile(ctx, "decode/testdata/white_line_10px_bmp.bmp", 42)
		require.NoError(t, err)
		assert.Equal(t, core.UserID(42), uid)

		results, err := db.QueryFile(ctx, "decode/testdata/white_line_10px_bmp.bmp", 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.UserID(42), results[0].UserID)
	})

	t.Run("DecodeErrorCarriesPath", func(t *testing.T) {
		_, err := ExtractFile("no/such/file.png")
		var de *ErrDecode
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "no/such/file.png", de.Path)
	})
}
