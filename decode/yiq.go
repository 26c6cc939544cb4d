package decode

import "image/color"

// yiq converts a native Color into YIQ. Y is brightness, I and Q are
// colour-difference channels; the scoring weight table assumes this space.
func yiq(gen color.Color) (y, i, q float64) {
	r32, g32, b32, _ := gen.RGBA()
	r, g, b := float64(r32>>8), float64(g32>>8), float64(b32>>8)
	y = (0.299900*r + 0.587000*g + 0.114000*b) / 0x100
	i = (0.595716*r - 0.274453*g - 0.321263*b) / 0x100
	q = (0.211456*r - 0.522591*g + 0.311135*b) / 0x100
	return y, i, q
}
