package persistence

import (
	"encoding/binary"
	"math"

	"github.com/hupe1980/imagedb/core"
	"github.com/hupe1980/imagedb/signature"
)

// RecordSize is the on-disk size of one record in bytes:
// user ID (8) + signed positions (C*N*2) + DC triple (C*8) +
// resolution (4), padded to 8-byte alignment.
const RecordSize = (8 + signature.Channels*signature.NumCoefs*2 + signature.Channels*8 + 4 + 7) &^ 7

// Record is one stored image descriptor.
type Record struct {
	UserID core.UserID
	Sig    signature.Signature
	DC     signature.DCTriple
	Res    signature.Resolution
}

// Marshal encodes the record into buf in little-endian order.
func (r Record) Marshal(buf *[RecordSize]byte) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.UserID))

	off := 8
	for c := 0; c < signature.Channels; c++ {
		for i := 0; i < signature.NumCoefs; i++ {
			binary.LittleEndian.PutUint16(buf[off:off+2], uint16(r.Sig[c][i]))
			off += 2
		}
	}

	for c := 0; c < signature.Channels; c++ {
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(r.DC[c]))
		off += 8
	}

	binary.LittleEndian.PutUint16(buf[off:off+2], r.Res.Width)
	binary.LittleEndian.PutUint16(buf[off+2:off+4], r.Res.Height)
	off += 4

	for ; off < RecordSize; off++ {
		buf[off] = 0
	}
}

// UnmarshalRecord decodes one record from buf.
func UnmarshalRecord(buf []byte) Record {
	var r Record
	r.UserID = core.UserID(binary.LittleEndian.Uint64(buf[0:8]))

	off := 8
	for c := 0; c < signature.Channels; c++ {
		for i := 0; i < signature.NumCoefs; i++ {
			r.Sig[c][i] = int16(binary.LittleEndian.Uint16(buf[off : off+2]))
			off += 2
		}
	}

	for c := 0; c < signature.Channels; c++ {
		r.DC[c] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
		off += 8
	}

	r.Res.Width = binary.LittleEndian.Uint16(buf[off : off+2])
	r.Res.Height = binary.LittleEndian.Uint16(buf[off+2 : off+4])

	return r
}
