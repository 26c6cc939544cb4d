package imagedb

import (
	"context"
	"errors"

	"github.com/hupe1980/imagedb/core"
	"github.com/hupe1980/imagedb/decode"
	"github.com/hupe1980/imagedb/signature"
)

// ExtractFile runs the full signature pipeline on the image at path:
// decode, rescale, YIQ export, per-channel Haar transform, DC capture, and
// coefficient selection.
func ExtractFile(path string) (signature.Descriptor, error) {
	channels, res, err := decode.File(path)
	if err != nil {
		return signature.Descriptor{}, &ErrDecode{Path: path, cause: err}
	}

	d, err := signature.Extract(channels, res)
	if err != nil {
		if errors.Is(err, signature.ErrZeroPosition) {
			return signature.Descriptor{}, &ErrDegenerateImage{Path: path}
		}
		return signature.Descriptor{}, err
	}
	return d, nil
}

// AddFile extracts the image at path and stores it under the given user ID.
// A zero user ID requests a generated one.
func (db *DB) AddFile(ctx context.Context, path string, uid core.UserID) (core.UserID, error) {
	d, err := ExtractFile(path)
	if err != nil {
		return 0, err
	}

	return db.Add(ctx, Image{
		UserID: uid,
		Sig:    d.Sig,
		DC:     d.DC,
		Res:    d.Res,
	})
}

// QueryFile extracts the image at path and queries for its K most similar
// stored images.
func (db *DB) QueryFile(ctx context.Context, path string, k int) ([]Result, error) {
	d, err := ExtractFile(path)
	if err != nil {
		return nil, err
	}
	return db.Query(ctx, QueryParams{Probe: d, K: k}), nil
}
