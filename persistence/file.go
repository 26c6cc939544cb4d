package persistence

import (
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/imagedb/codec"
	"github.com/hupe1980/imagedb/core"
)

// Options contains configuration options for a FileStore.
type Options struct {
	// Codec compresses the record section on Save. Files are always read
	// with the codec named in their header, regardless of this setting.
	Codec codec.Codec
}

// DefaultOptions contains the default FileStore configuration.
var DefaultOptions = Options{
	Codec: codec.Default,
}

// FileStore keeps the live set of records for one snapshot file. Mutations
// are buffered in memory and marked dirty; Save rewrites the file
// atomically (write to a temp file, then rename). Durability is exactly
// "flush on explicit save".
type FileStore struct {
	mu      sync.Mutex
	path    string
	opts    Options
	records []Record
	byUser  map[core.UserID]int
	dirty   bool
	open    bool
}

// Open loads the snapshot at path, or starts an empty store if the file
// does not exist yet.
func Open(path string, optFns ...func(o *Options)) (*FileStore, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	s := &FileStore{
		path:   path,
		opts:   opts,
		byUser: make(map[core.UserID]int),
		open:   true,
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, _, err := ReadSnapshot(f)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if _, ok := s.byUser[rec.UserID]; ok {
			return nil, fmt.Errorf("%w: user id %d occurs twice in %s", ErrAlreadyExists, rec.UserID, path)
		}
		s.byUser[rec.UserID] = len(s.records)
		s.records = append(s.records, rec)
	}
	return s, nil
}

// IsOpen reports whether the store accepts operations.
func (s *FileStore) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Dirty reports whether there are unsaved changes.
func (s *FileStore) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Len returns the number of live records.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get returns the record stored under the given user ID.
func (s *FileStore) Get(uid core.UserID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return Record{}, ErrClosed
	}
	i, ok := s.byUser[uid]
	if !ok {
		return Record{}, fmt.Errorf("%w: user id %d", ErrNotFound, uid)
	}
	return s.records[i], nil
}

// Append adds a record. The user ID must not be present yet.
func (s *FileStore) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrClosed
	}
	if _, ok := s.byUser[rec.UserID]; ok {
		return fmt.Errorf("%w: user id %d", ErrAlreadyExists, rec.UserID)
	}
	s.byUser[rec.UserID] = len(s.records)
	s.records = append(s.records, rec)
	s.dirty = true
	return nil
}

// Remove deletes and returns the record stored under the given user ID.
// The last record takes its slot so the record section stays dense.
func (s *FileStore) Remove(uid core.UserID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return Record{}, ErrClosed
	}
	i, ok := s.byUser[uid]
	if !ok {
		return Record{}, fmt.Errorf("%w: user id %d", ErrNotFound, uid)
	}

	rec := s.records[i]
	last := len(s.records) - 1
	if i != last {
		s.records[i] = s.records[last]
		s.byUser[s.records[i].UserID] = i
	}
	s.records = s.records[:last]
	delete(s.byUser, uid)
	s.dirty = true
	return rec, nil
}

// All iterates the live records in storage order.
func (s *FileStore) All() iter.Seq[Record] {
	s.mu.Lock()
	snapshot := make([]Record, len(s.records))
	copy(snapshot, s.records)
	s.mu.Unlock()

	return func(yield func(Record) bool) {
		for _, rec := range snapshot {
			if !yield(rec) {
				return
			}
		}
	}
}

// Save flushes pending appends and removals by atomically rewriting the
// snapshot file.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrClosed
	}

	if err := SaveSnapshotFile(s.path, s.opts.Codec, s.records); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// SaveSnapshotFile atomically writes a snapshot to path: the content goes
// to a temp file in the same directory first, then replaces path by rename.
func SaveSnapshotFile(path string, c codec.Codec, records []Record) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := WriteSnapshot(tmp, c, records); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Close marks the store closed. Pending changes are NOT saved; call Save
// first if they should survive.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// WriteSnapshot writes a complete snapshot (header + records) to w,
// compressing the record section with c.
func WriteSnapshot(w io.Writer, c codec.Codec, records []Record) error {
	if c == nil {
		c = codec.Default
	}
	if err := WriteHeader(w, NewHeader(c.ID(), uint64(len(records)))); err != nil {
		return err
	}

	cw, err := c.NewWriter(w)
	if err != nil {
		return err
	}

	var buf [RecordSize]byte
	for _, rec := range records {
		rec.Marshal(&buf)
		if _, err := cw.Write(buf[:]); err != nil {
			cw.Close()
			return fmt.Errorf("persistence: failed to write record: %w", err)
		}
	}
	return cw.Close()
}

// ReadSnapshot reads a complete snapshot from r.
func ReadSnapshot(r io.Reader) ([]Record, Header, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, Header{}, err
	}

	c, err := codec.ByID(h.CodecID)
	if err != nil {
		return nil, Header{}, err
	}
	cr, err := c.NewReader(r)
	if err != nil {
		return nil, Header{}, err
	}
	defer cr.Close()

	records := make([]Record, 0, h.Count)
	var buf [RecordSize]byte
	for i := uint64(0); i < h.Count; i++ {
		if _, err := io.ReadFull(cr, buf[:]); err != nil {
			return nil, Header{}, fmt.Errorf("persistence: truncated record %d: %w", i, err)
		}
		records = append(records, UnmarshalRecord(buf[:]))
	}
	return records, h, nil
}
