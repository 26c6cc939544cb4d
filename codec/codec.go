// Package codec provides the pluggable compression codecs used for
// database snapshots. The codec in effect is recorded as a single byte in
// the snapshot header so that readers pick the matching decompressor.
package codec

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ID identifies a codec in the snapshot header.
type ID uint8

const (
	// IDNone stores records uncompressed. Required for the mmap read path.
	IDNone ID = 0
	// IDLZ4 compresses records with LZ4 (fast, modest ratio).
	IDLZ4 ID = 1
	// IDZstd compresses records with Zstandard (better ratio).
	IDZstd ID = 2
)

// Codec wraps a snapshot body stream in a compressor/decompressor.
type Codec interface {
	// ID returns the codec's header byte.
	ID() ID

	// Name returns a human-readable codec name.
	Name() string

	// NewWriter wraps w. Close flushes the compressor but must not close w.
	NewWriter(w io.Writer) (io.WriteCloser, error)

	// NewReader wraps r.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// Default is the codec used when none is configured.
var Default Codec = None{}

// ByID returns the codec registered under the given header byte.
func ByID(id ID) (Codec, error) {
	switch id {
	case IDNone:
		return None{}, nil
	case IDLZ4:
		return LZ4{}, nil
	case IDZstd:
		return Zstd{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec id %d", id)
	}
}

// None is the identity codec.
type None struct{}

func (None) ID() ID       { return IDNone }
func (None) Name() string { return "none" }

func (None) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (None) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// LZ4 is the LZ4 frame codec.
type LZ4 struct{}

func (LZ4) ID() ID       { return IDLZ4 }
func (LZ4) Name() string { return "lz4" }

func (LZ4) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (LZ4) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

// Zstd is the Zstandard codec.
type Zstd struct{}

func (Zstd) ID() ID       { return IDZstd }
func (Zstd) Name() string { return "zstd" }

func (Zstd) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func (Zstd) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zstdReadCloser{dec}, nil
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
