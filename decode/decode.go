// Package decode loads image files, rescales them to the working size, and
// exports their pixels as YIQ channel arrays for signature extraction.
package decode

import (
	"image"
	"os"

	// Registered image formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/hupe1980/imagedb/signature"
)

// File loads the image at path, rescales it to Side x Side, and returns its
// YIQ channels together with the original resolution.
func File(path string) (*[signature.Channels][]float64, signature.Resolution, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, signature.Resolution{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, signature.Resolution{}, err
	}

	channels, res := Image(img)
	return channels, res, nil
}

// Image rescales a decoded image to Side x Side and exports its pixels as
// three row-major YIQ channel arrays. The reported resolution is the
// original one, saturated to 16 bits per axis.
func Image(img image.Image) (*[signature.Channels][]float64, signature.Resolution) {
	bounds := img.Bounds()
	res := signature.Resolution{
		Width:  clamp16(bounds.Dx()),
		Height: clamp16(bounds.Dy()),
	}

	scaled := img
	if bounds.Dx() != signature.Side || bounds.Dy() != signature.Side {
		scaled = resize.Resize(signature.Side, signature.Side, img, resize.Bicubic)
	}

	var channels [signature.Channels][]float64
	for c := range channels {
		channels[c] = make([]float64, signature.NumPositions)
	}

	sb := scaled.Bounds()
	for row := 0; row < signature.Side; row++ {
		for col := 0; col < signature.Side; col++ {
			y, i, q := yiq(scaled.At(sb.Min.X+col, sb.Min.Y+row))
			pos := row*signature.Side + col
			channels[0][pos] = y
			channels[1][pos] = i
			channels[2][pos] = q
		}
	}

	return &channels, res
}

func clamp16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}
