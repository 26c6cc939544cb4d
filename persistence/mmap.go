package persistence

import (
	"bytes"
	"fmt"
	"iter"

	"github.com/hupe1980/imagedb/codec"
	"github.com/hupe1980/imagedb/internal/mmap"
)

// OpenMmap memory-maps the snapshot at path and returns its header plus a
// record iterator that decodes straight out of the mapping, avoiding a
// second in-heap copy of the file. Only uncompressed snapshots can be
// mapped; compressed ones must go through ReadSnapshot.
//
// The returned closer must be called once iteration is done; the iterator
// must not be used afterwards.
func OpenMmap(path string) (Header, iter.Seq[Record], func() error, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return Header{}, nil, nil, err
	}

	h, err := ReadHeader(bytes.NewReader(m.Data))
	if err != nil {
		m.Close()
		return Header{}, nil, nil, err
	}
	if h.CodecID != codec.IDNone {
		m.Close()
		return Header{}, nil, nil, fmt.Errorf("persistence: cannot mmap compressed snapshot (codec %d)", h.CodecID)
	}

	want := int64(HeaderSize) + int64(h.Count)*RecordSize
	if int64(len(m.Data)) < want {
		m.Close()
		return Header{}, nil, nil, fmt.Errorf("persistence: snapshot truncated: %d bytes, need %d", len(m.Data), want)
	}

	records := func(yield func(Record) bool) {
		for i := uint64(0); i < h.Count; i++ {
			off := HeaderSize + int(i)*RecordSize
			if !yield(UnmarshalRecord(m.Data[off : off+RecordSize])) {
				return
			}
		}
	}
	return h, records, m.Close, nil
}
