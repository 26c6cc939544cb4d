package signature

import (
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/imagedb/haar"
)

// ErrZeroPosition is returned by Extract when coefficient selection produces
// a zero entry, i.e. a selected coefficient with no sign. This happens for
// degenerate inputs such as constant-colour images.
var ErrZeroPosition = errors.New("signature: selection produced a zero position")

// Descriptor bundles everything the database stores about one image.
type Descriptor struct {
	Sig Signature
	DC  DCTriple
	Res Resolution
}

// Extract computes the signature and DC triple from three decoded YIQ
// channels of Side*Side samples each. The channels are Haar-transformed in
// place and must not be reused afterwards. res is the original image
// resolution reported back in the descriptor.
func Extract(channels *[Channels][]float64, res Resolution) (Descriptor, error) {
	d := Descriptor{Res: res}

	// The channels are independent; transform and select concurrently.
	var g errgroup.Group
	for c := 0; c < Channels; c++ {
		g.Go(func() error {
			haar.Transform(channels[c], Side, Side)
			d.DC[c] = channels[c][0]
			copy(d.Sig[c][:], Select(channels[c], NumCoefs))
			return nil
		})
	}
	_ = g.Wait()

	for c := 0; c < Channels; c++ {
		for _, p := range d.Sig[c] {
			if p == 0 {
				return Descriptor{}, ErrZeroPosition
			}
		}
	}

	return d, nil
}
