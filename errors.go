package imagedb

import (
	"errors"
	"fmt"

	"github.com/hupe1980/imagedb/persistence"
	"github.com/hupe1980/imagedb/signature"
)

var (
	// ErrNotFound is returned when no image is stored under a user ID.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when an image is added under a user ID
	// that is already present.
	ErrAlreadyExists = errors.New("user id already present")

	// ErrCapacityExceeded is returned when adding an image would overflow
	// the internal ID space.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)

// ErrDegenerateImage indicates that signature extraction produced a zero
// coefficient position, e.g. for a constant-colour image.
type ErrDegenerateImage struct {
	Path string
}

func (e *ErrDegenerateImage) Error() string {
	return fmt.Sprintf("degenerate image: %s", e.Path)
}

// ErrDecode indicates an upstream image decoding failure.
//
// The original decoder error can be accessed via errors.Unwrap.
type ErrDecode struct {
	Path  string
	cause error
}

func (e *ErrDecode) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.cause)
}

func (e *ErrDecode) Unwrap() error { return e.cause }

// translateError normalizes errors from lower layers to the package's
// sentinel values.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, persistence.ErrAlreadyExists) {
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	}
	if errors.Is(err, signature.ErrZeroPosition) {
		return fmt.Errorf("degenerate image: %w", err)
	}
	return err
}
