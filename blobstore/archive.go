package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Push uploads the snapshot file at path to the store under name.
func Push(ctx context.Context, store BlobStore, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("blobstore: push %s: %w", name, err)
	}
	return w.Close()
}

// Pull downloads the blob stored under name into the file at path.
func Pull(ctx context.Context, store BlobStore, name, path string) error {
	b, err := store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer b.Close()

	r, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("blobstore: pull %s: %w", name, err)
	}
	return f.Close()
}
