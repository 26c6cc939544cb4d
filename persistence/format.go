// Package persistence stores image descriptors as fixed-size little-endian
// records in a single snapshot file: a 32-byte header followed by records
// back to back, optionally compressed. The header is never compressed so
// that readers can pick the right codec, and so that uncompressed files can
// be iterated through a memory mapping.
package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/imagedb/codec"
	"github.com/hupe1980/imagedb/signature"
)

const (
	// MagicNumber identifies imagedb snapshot files (ASCII: "IDB0").
	MagicNumber = 0x49444230

	// Version is the current file format version (v1.0).
	Version = 0x00010000

	// HeaderSize is the size of the uncompressed file header in bytes.
	HeaderSize = 32
)

var (
	ErrNotFound      = errors.New("persistence: not found")
	ErrAlreadyExists = errors.New("persistence: user id already present")
	ErrClosed        = errors.New("persistence: store is closed")

	ErrInvalidMagic   = errors.New("persistence: invalid magic number")
	ErrInvalidVersion = errors.New("persistence: unsupported version")
)

// Header is the fixed header at the start of every snapshot file. The
// geometry fields bind a file to the domain constants it was written with;
// files with different geometry are rejected rather than misread.
type Header struct {
	Magic    uint32
	Version  uint32
	Width    uint16
	Height   uint16
	Coefs    uint16
	Channels uint16
	CodecID  codec.ID
	// 7 bytes reserved
	Count uint64
}

// NewHeader returns a header for the current format and geometry.
func NewHeader(codecID codec.ID, count uint64) Header {
	return Header{
		Magic:    MagicNumber,
		Version:  Version,
		Width:    signature.Side,
		Height:   signature.Side,
		Coefs:    signature.NumCoefs,
		Channels: signature.Channels,
		CodecID:  codecID,
		Count:    count,
	}
}

// Validate checks magic, version, and geometry.
func (h Header) Validate() error {
	if h.Magic != MagicNumber {
		return ErrInvalidMagic
	}
	if h.Version != Version {
		return fmt.Errorf("%w: 0x%08x", ErrInvalidVersion, h.Version)
	}
	if h.Width != signature.Side || h.Height != signature.Side ||
		h.Coefs != signature.NumCoefs || h.Channels != signature.Channels {
		return fmt.Errorf("persistence: geometry mismatch: file %dx%d/%d/%d, binary %dx%d/%d/%d",
			h.Width, h.Height, h.Coefs, h.Channels,
			signature.Side, signature.Side, signature.NumCoefs, signature.Channels)
	}
	return nil
}

// WriteHeader writes the header to w.
func WriteHeader(w io.Writer, h Header) error {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint16(buf[8:10], h.Width)
	binary.LittleEndian.PutUint16(buf[10:12], h.Height)
	binary.LittleEndian.PutUint16(buf[12:14], h.Coefs)
	binary.LittleEndian.PutUint16(buf[14:16], h.Channels)
	buf[16] = byte(h.CodecID)
	// buf[17:24] reserved
	binary.LittleEndian.PutUint64(buf[24:32], h.Count)

	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("persistence: failed to write header: %w", err)
	}
	return nil
}

// ReadHeader reads and validates the header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("persistence: failed to read header: %w", err)
	}

	h := Header{
		Magic:    binary.LittleEndian.Uint32(buf[0:4]),
		Version:  binary.LittleEndian.Uint32(buf[4:8]),
		Width:    binary.LittleEndian.Uint16(buf[8:10]),
		Height:   binary.LittleEndian.Uint16(buf[10:12]),
		Coefs:    binary.LittleEndian.Uint16(buf[12:14]),
		Channels: binary.LittleEndian.Uint16(buf[14:16]),
		CodecID:  codec.ID(buf[16]),
		Count:    binary.LittleEndian.Uint64(buf[24:32]),
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}
