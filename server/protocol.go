package server

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/imagedb"
	"github.com/hupe1980/imagedb/core"
	"github.com/hupe1980/imagedb/persistence"
	"github.com/hupe1980/imagedb/signature"
)

// The wire protocol is a byte-copy of fixed-size records over the stream:
// a 1-byte opcode, then the operation's fixed payload. There is no
// message-level versioning; format versioning lives in the snapshot file
// header only.
const (
	OpPing   = 0x01
	OpAdd    = 0x02
	OpRemove = 0x03
	OpQuery  = 0x04
	OpSave   = 0x05
)

// Response status codes.
const (
	StatusOK            = 0x00
	StatusNotFound      = 0x01
	StatusAlreadyExists = 0x02
	StatusCapacity      = 0x03
	StatusError         = 0x04
)

// matchSize is the wire size of one query match: user ID plus score.
const matchSize = 16

// writeStatus writes a bare status byte.
func writeStatus(w io.Writer, status byte) error {
	_, err := w.Write([]byte{status})
	return err
}

// writeAddResponse writes status plus the user ID the image was stored
// under.
func writeAddResponse(w io.Writer, status byte, uid core.UserID) error {
	var buf [9]byte
	buf[0] = status
	binary.LittleEndian.PutUint64(buf[1:9], uint64(uid))
	_, err := w.Write(buf[:])
	return err
}

// writeRemoveResponse writes status plus the removed record.
func writeRemoveResponse(w io.Writer, status byte, rec persistence.Record) error {
	var buf [1 + persistence.RecordSize]byte
	buf[0] = status
	rec.Marshal((*[persistence.RecordSize]byte)(buf[1:]))
	_, err := w.Write(buf[:])
	return err
}

// writeQueryResponse writes status, the match count, and the matches.
func writeQueryResponse(w io.Writer, results []imagedb.Result) error {
	buf := make([]byte, 1+4+len(results)*matchSize)
	buf[0] = StatusOK
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(results)))
	off := 5
	for _, r := range results {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(r.UserID))
		binary.LittleEndian.PutUint64(buf[off+8:off+16], math.Float64bits(r.Score))
		off += matchSize
	}
	_, err := w.Write(buf)
	return err
}

// readRecord reads one fixed-size record payload.
func readRecord(r io.Reader) (persistence.Record, error) {
	var buf [persistence.RecordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return persistence.Record{}, fmt.Errorf("server: short record: %w", err)
	}
	return persistence.UnmarshalRecord(buf[:]), nil
}

// signatureDescriptor views a wire record as a query probe.
func signatureDescriptor(rec persistence.Record) signature.Descriptor {
	return signature.Descriptor{
		Sig: rec.Sig,
		DC:  rec.DC,
		Res: rec.Res,
	}
}

// readUint64 reads one little-endian uint64 payload.
func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
