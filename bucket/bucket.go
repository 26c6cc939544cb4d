// Package bucket maintains the inverted coefficient index of the image
// database: for every (channel, sign, position) triple, the set of internal
// IDs whose signature contains that signed position. It also answers
// similarity queries by weighted coefficient overlap.
package bucket

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/imagedb/core"
	"github.com/hupe1980/imagedb/signature"
)

// Sign indexes the two halves of the coefficient index.
const (
	signPos = 0
	signNeg = 1
)

// Manager is the inverted index from signed coefficient positions to
// internal IDs, together with a dense per-internal-ID mirror of the stored
// signatures. The mirror keeps removal at O(C*N) instead of a full bucket
// scan.
//
// Manager is not internally synchronized; the owning database serializes
// access through its lock.
type Manager struct {
	// buckets[channel][sign][position] is nil until an ID is first inserted
	// under that cell.
	buckets [signature.Channels][2][]*roaring.Bitmap

	// sigs mirrors the signature stored under each internal ID.
	sigs []signature.Signature
}

// NewManager returns an empty bucket manager.
func NewManager() *Manager {
	m := &Manager{}
	for c := range m.buckets {
		for s := range m.buckets[c] {
			m.buckets[c][s] = make([]*roaring.Bitmap, signature.NumPositions)
		}
	}
	return m
}

// Len returns the number of signatures currently indexed.
func (m *Manager) Len() int {
	return len(m.sigs)
}

// Signature returns the signature stored under the given internal ID.
func (m *Manager) Signature(id core.InternID) (signature.Signature, bool) {
	if int(id) >= len(m.sigs) {
		return signature.Signature{}, false
	}
	return m.sigs[id], true
}

// Add indexes a signature under a new internal ID. The ID must be the next
// dense index, i.e. equal to Len; anything else is a caller bug.
func (m *Manager) Add(id core.InternID, sig signature.Signature) error {
	if int(id) != len(m.sigs) {
		return fmt.Errorf("bucket: non-dense insert: id %d, expected %d", id, len(m.sigs))
	}
	m.insert(id, sig)
	m.sigs = append(m.sigs, sig)
	return nil
}

// Remove deletes the signature stored under id and returns it. If id is not
// the last internal ID, the last signature is re-keyed to id so that
// internal IDs stay contiguous; the resulting bucket memberships are
// identical to having inserted that signature under id in the first place.
func (m *Manager) Remove(id core.InternID) (signature.Signature, error) {
	last := core.InternID(len(m.sigs) - 1)
	if int(id) >= len(m.sigs) {
		return signature.Signature{}, fmt.Errorf("bucket: remove of unknown id %d", id)
	}

	removed := m.sigs[id]
	m.erase(id, removed)

	if id != last {
		moved := m.sigs[last]
		m.erase(last, moved)
		m.insert(id, moved)
		m.sigs[id] = moved
	}

	m.sigs = m.sigs[:last]
	return removed, nil
}

// insert adds id to every bucket named by the signature. Duplicate signed
// positions within a channel collapse; bitmap insertion is idempotent.
func (m *Manager) insert(id core.InternID, sig signature.Signature) {
	for c := 0; c < signature.Channels; c++ {
		for _, s := range sig[c] {
			sign, pos := split(s)
			b := m.buckets[c][sign][pos]
			if b == nil {
				b = roaring.New()
				m.buckets[c][sign][pos] = b
			}
			b.Add(uint32(id))
		}
	}
}

// erase removes id from every bucket named by the signature.
func (m *Manager) erase(id core.InternID, sig signature.Signature) {
	for c := 0; c < signature.Channels; c++ {
		for _, s := range sig[c] {
			sign, pos := split(s)
			if b := m.buckets[c][sign][pos]; b != nil {
				b.Remove(uint32(id))
				if b.IsEmpty() {
					m.buckets[c][sign][pos] = nil
				}
			}
		}
	}
}

// Contains reports whether the bucket for the given channel and signed
// position holds id.
func (m *Manager) Contains(channel int, signed int16, id core.InternID) bool {
	sign, pos := split(signed)
	b := m.buckets[channel][sign][pos]
	return b != nil && b.Contains(uint32(id))
}

// Sizes returns the population count of every bucket, indexed like the
// bucket array itself. Intended for diagnostics and sizing.
func (m *Manager) Sizes() [signature.Channels][2][]uint64 {
	var sizes [signature.Channels][2][]uint64
	for c := range m.buckets {
		for s := range m.buckets[c] {
			sizes[c][s] = make([]uint64, signature.NumPositions)
			for p, b := range m.buckets[c][s] {
				if b != nil {
					sizes[c][s][p] = b.GetCardinality()
				}
			}
		}
	}
	return sizes
}

func split(signed int16) (sign int, pos int) {
	if signed < 0 {
		return signNeg, int(-signed)
	}
	return signPos, int(signed)
}
