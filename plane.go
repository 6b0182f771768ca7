package mosaic

import "image/color"

// Plane is the image object produced by region reads: one XY raster of one
// or more channels, each stored as a flat row-major sample buffer of the
// plane's pixel type. A freshly allocated plane is zero-filled, which is
// also the blank-fill value for mosaic holes.
type Plane struct {
	Width     int
	Height    int
	PixelType PixelType
	// Channels holds one buffer of Width*Height samples per channel.
	Channels [][]byte
	// Palette is the source color map, when the contributing file had
	// one. Composition keeps the first non-nil palette encountered.
	Palette color.Palette
}

// NewPlane allocates a zero-filled plane.
func NewPlane(width, height int, pt PixelType, channels int) *Plane {
	p := &Plane{
		Width:     width,
		Height:    height,
		PixelType: pt,
		Channels:  make([][]byte, channels),
	}
	size := width * height * pt.BytesPerSample()
	for i := range p.Channels {
		p.Channels[i] = make([]byte, size)
	}
	return p
}

// Channel returns the sample buffer of channel i, or nil when out of
// range.
func (p *Plane) Channel(i int) []byte {
	if i < 0 || i >= len(p.Channels) {
		return nil
	}
	return p.Channels[i]
}

// blit copies src into dst where their rectangles overlap. Both
// rectangles are expressed in the same (already downscaled) coordinate
// frame; src covers srcRect, dst covers dstRect, and both buffers hold
// bps bytes per sample.
func blit(dst []byte, dstRect Rectangle, src []byte, srcRect Rectangle, bps int) {
	inter := dstRect.Intersect(srcRect)
	if inter.Empty() {
		return
	}
	rowBytes := inter.Width * bps
	for row := 0; row < inter.Height; row++ {
		srcOff := ((inter.Y-srcRect.Y+row)*srcRect.Width + (inter.X - srcRect.X)) * bps
		dstOff := ((inter.Y-dstRect.Y+row)*dstRect.Width + (inter.X - dstRect.X)) * bps
		if srcOff+rowBytes > len(src) || dstOff+rowBytes > len(dst) {
			return
		}
		copy(dst[dstOff:dstOff+rowBytes], src[srcOff:srcOff+rowBytes])
	}
}
