package imagedb

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/hupe1980/imagedb/bucket"
	"github.com/hupe1980/imagedb/codec"
	"github.com/hupe1980/imagedb/core"
	"github.com/hupe1980/imagedb/persistence"
	"github.com/hupe1980/imagedb/signature"
)

// Image is one stored image: its user ID, perceptual signature, DC triple,
// and original resolution.
type Image struct {
	UserID core.UserID
	Sig    signature.Signature
	DC     signature.DCTriple
	Res    signature.Resolution
}

// storedImage is the per-internal-ID metadata. The signature itself lives
// inside the bucket manager and is not duplicated here.
type storedImage struct {
	userID core.UserID
	dc     signature.DCTriple
	res    signature.Resolution
}

// DB is an in-memory image similarity database. Images are indexed by
// wavelet coefficient overlap and addressed externally by user ID.
//
// DB is safe for one writer and many concurrent readers: mutations take the
// write lock over the image array, the user ID index, the bucket manager,
// and the ID generator as one consistent unit.
type DB struct {
	mu      sync.RWMutex
	images  []storedImage
	byUser  map[core.UserID]core.InternID
	buckets *bucket.Manager
	gen     *core.IDGenerator

	capacity uint64
	codec    codec.Codec
	metrics  MetricsCollector
	logger   *Logger
}

// New creates an empty database.
func New(optFns ...Option) *DB {
	opts := applyOptions(optFns)
	return &DB{
		byUser:   make(map[core.UserID]core.InternID),
		buckets:  bucket.NewManager(),
		gen:      core.NewIDGenerator(),
		capacity: opts.capacity,
		codec:    opts.codec,
		metrics:  opts.metricsCollector,
		logger:   opts.logger,
	}
}

// NumImages returns the number of stored images.
func (db *DB) NumImages() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.images)
}

// NextID returns a fresh user ID, strictly greater than every ID the
// database has seen.
func (db *DB) NextID() core.UserID {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.gen.Next()
}

// Has returns the image stored under the given user ID, if any.
func (db *DB) Has(uid core.UserID) (Image, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	iid, ok := db.byUser[uid]
	if !ok {
		return Image{}, false
	}
	return db.imageAt(iid), true
}

// Get returns the image stored under the given user ID.
func (db *DB) Get(uid core.UserID) (Image, error) {
	img, ok := db.Has(uid)
	if !ok {
		return Image{}, fmt.Errorf("%w: user id %d", ErrNotFound, uid)
	}
	return img, nil
}

// imageAt assembles the externally visible record for an internal ID.
// Callers hold at least the read lock.
func (db *DB) imageAt(iid core.InternID) Image {
	stored := db.images[iid]
	sig, _ := db.buckets.Signature(iid)
	return Image{
		UserID: stored.userID,
		Sig:    sig,
		DC:     stored.dc,
		Res:    stored.res,
	}
}

// Add stores an image. A zero user ID requests a generated one. Returns
// the user ID the image is stored under.
//
// On any failure the database is left exactly as it was before the call.
func (db *DB) Add(ctx context.Context, img Image) (core.UserID, error) {
	start := time.Now()

	db.mu.Lock()
	uid, err := db.addLocked(img)
	db.mu.Unlock()

	db.metrics.RecordAdd(time.Since(start), err)
	db.logger.LogAdd(ctx, uint64(uid), err)
	return uid, err
}

func (db *DB) addLocked(img Image) (core.UserID, error) {
	if uint64(len(db.images)) >= db.capacity {
		return img.UserID, ErrCapacityExceeded
	}

	uid := img.UserID
	if uid == 0 {
		uid = db.gen.Next()
	}

	if _, ok := db.byUser[uid]; ok {
		return uid, fmt.Errorf("%w: user id %d", ErrAlreadyExists, uid)
	}

	iid := core.InternID(len(db.images))
	if err := db.buckets.Add(iid, img.Sig); err != nil {
		return uid, err
	}

	db.gen.Saw(uid)
	db.images = append(db.images, storedImage{userID: uid, dc: img.DC, res: img.Res})
	db.byUser[uid] = iid
	return uid, nil
}

// BatchAddResult reports the outcome of a batch add: one user ID or error
// per input image.
type BatchAddResult struct {
	IDs    []core.UserID
	Errors []error
}

// BatchAdd stores multiple images under a single lock acquisition. Failed
// items do not affect the others.
func (db *DB) BatchAdd(ctx context.Context, imgs []Image) BatchAddResult {
	start := time.Now()
	result := BatchAddResult{
		IDs:    make([]core.UserID, len(imgs)),
		Errors: make([]error, len(imgs)),
	}

	db.mu.Lock()
	failed := 0
	for i, img := range imgs {
		uid, err := db.addLocked(img)
		result.IDs[i] = uid
		result.Errors[i] = err
		if err != nil {
			failed++
		}
	}
	db.mu.Unlock()

	db.metrics.RecordBatchAdd(len(imgs), failed, time.Since(start))
	db.logger.LogBatchAdd(ctx, len(imgs), failed)
	return result
}

// Remove deletes the image stored under the given user ID and returns the
// full removed record, signature included.
//
// Internal IDs stay contiguous: the last image takes the removed image's
// slot, and its bucket memberships are re-keyed accordingly.
func (db *DB) Remove(ctx context.Context, uid core.UserID) (Image, error) {
	start := time.Now()

	db.mu.Lock()
	img, err := db.removeLocked(uid)
	db.mu.Unlock()

	db.metrics.RecordRemove(time.Since(start), err)
	db.logger.LogRemove(ctx, uint64(uid), err)
	return img, err
}

func (db *DB) removeLocked(uid core.UserID) (Image, error) {
	iid, ok := db.byUser[uid]
	if !ok {
		return Image{}, fmt.Errorf("%w: user id %d", ErrNotFound, uid)
	}

	removed := db.imageAt(iid)
	sig, err := db.buckets.Remove(iid)
	if err != nil {
		return Image{}, err
	}
	removed.Sig = sig

	last := core.InternID(len(db.images) - 1)
	if iid != last {
		db.images[iid] = db.images[last]
		db.byUser[db.images[iid].userID] = iid
	}
	db.images = db.images[:last]
	delete(db.byUser, uid)

	return removed, nil
}

// QueryParams describes one similarity query.
type QueryParams struct {
	// Probe is the query image's descriptor, typically from ExtractFile.
	Probe signature.Descriptor

	// K is the maximum number of matches returned. K <= 0 yields an empty
	// result.
	K int

	// MinScore, if non-nil, drops matches scoring below it.
	MinScore *float64

	// Filter, if non-nil, drops matches for which it returns false.
	Filter func(core.UserID) bool
}

// Result is one query match. Higher scores are more similar; a stored image
// identical to the probe achieves the maximum score for that probe.
type Result struct {
	UserID core.UserID
	Score  float64
}

// Query returns the K stored images most similar to the probe. An empty
// result is a normal outcome, not an error.
func (db *DB) Query(ctx context.Context, params QueryParams) []Result {
	start := time.Now()

	db.mu.RLock()
	var filter func(core.InternID) bool
	if params.Filter != nil {
		filter = func(iid core.InternID) bool {
			return params.Filter(db.images[iid].userID)
		}
	}
	matches := db.buckets.Query(bucket.Params{
		Sig:      params.Probe.Sig,
		DC:       params.Probe.DC,
		K:        params.K,
		MinScore: params.MinScore,
		Filter:   filter,
	}, func(iid core.InternID) signature.DCTriple {
		return db.images[iid].dc
	})

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			UserID: db.images[m.ID].userID,
			Score:  m.Score,
		}
	}
	db.mu.RUnlock()

	db.metrics.RecordQuery(params.K, time.Since(start), nil)
	db.logger.LogQuery(ctx, params.K, len(results), nil)
	return results
}

// Stats describes the current shape of the database.
type Stats struct {
	// NumImages is the number of stored images.
	NumImages int

	// Buckets is the number of non-empty index buckets.
	Buckets int

	// MaxBucket is the population of the largest bucket.
	MaxBucket uint64
}

// Stats returns statistics about the database.
func (db *DB) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	stats := Stats{NumImages: len(db.images)}
	sizes := db.buckets.Sizes()
	for c := range sizes {
		for s := range sizes[c] {
			for _, n := range sizes[c][s] {
				if n > 0 {
					stats.Buckets++
				}
				if n > stats.MaxBucket {
					stats.MaxBucket = n
				}
			}
		}
	}
	return stats
}

// SaveToWriter streams a snapshot of the database to w using the configured
// codec.
func (db *DB) SaveToWriter(w io.Writer) error {
	db.mu.RLock()
	records := db.recordsLocked()
	db.mu.RUnlock()

	return persistence.WriteSnapshot(w, db.codec, records)
}

// SaveToFile atomically writes a snapshot of the database to the given
// path.
func (db *DB) SaveToFile(filename string) error {
	start := time.Now()

	db.mu.RLock()
	records := db.recordsLocked()
	db.mu.RUnlock()

	err := persistence.SaveSnapshotFile(filename, db.codec, records)
	db.metrics.RecordSnapshot(time.Since(start), err)
	db.logger.LogSnapshot(context.Background(), filename, len(records), err)
	return err
}

func (db *DB) recordsLocked() []persistence.Record {
	records := make([]persistence.Record, len(db.images))
	for i := range db.images {
		img := db.imageAt(core.InternID(i))
		records[i] = persistence.Record{
			UserID: img.UserID,
			Sig:    img.Sig,
			DC:     img.DC,
			Res:    img.Res,
		}
	}
	return records
}

// NewFromFile rebuilds a database from a snapshot file. Uncompressed
// snapshots are read through a memory mapping; compressed ones are streamed
// through their codec.
func NewFromFile(filename string, optFns ...Option) (*DB, error) {
	db := New(optFns...)

	_, records, closer, err := persistence.OpenMmap(filename)
	if err == nil {
		defer closer()
		for rec := range records {
			if _, err := db.Add(context.Background(), recordImage(rec)); err != nil {
				return nil, translateError(err)
			}
		}
		db.logger.LogLoad(context.Background(), filename, db.NumImages(), nil)
		return db, nil
	}

	// Fall back to the streaming reader (compressed snapshot or mmap
	// failure).
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := db.loadFromReader(f); err != nil {
		db.logger.LogLoad(context.Background(), filename, 0, err)
		return nil, err
	}
	db.logger.LogLoad(context.Background(), filename, db.NumImages(), nil)
	return db, nil
}

// NewFromReader rebuilds a database from a snapshot stream.
func NewFromReader(r io.Reader, optFns ...Option) (*DB, error) {
	db := New(optFns...)
	if err := db.loadFromReader(r); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) loadFromReader(r io.Reader) error {
	records, _, err := persistence.ReadSnapshot(r)
	if err != nil {
		return translateError(err)
	}
	for _, rec := range records {
		if _, err := db.Add(context.Background(), recordImage(rec)); err != nil {
			return translateError(err)
		}
	}
	return nil
}

func recordImage(rec persistence.Record) Image {
	return Image{
		UserID: rec.UserID,
		Sig:    rec.Sig,
		DC:     rec.DC,
		Res:    rec.Res,
	}
}
