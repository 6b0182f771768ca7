package mosaic

import (
	"encoding/binary"
	"image"
	"math"
	"sort"

	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/stat"
)

const (
	// Edge of the box thumbnails are fitted into.
	thumbnailMaxDim = 160
	// Largest source dimension worth reading before shrinking to the
	// thumbnail box.
	thumbnailSourceDim = 512
)

// thumbnailResolution picks the pyramid level at which the larger plane
// dimension first fits thumbnailSourceDim.
func thumbnailResolution(width, height int) int {
	res := 0
	for (max(width, height)>>res) > thumbnailSourceDim && res < 8 {
		res++
	}
	return res
}

// GetThumbnail reads the whole mosaic at a coarse resolution level and
// renders it into a small preview image. The middle Z slice of the first
// time point is used, with every channel composed.
func (g *Group) GetThumbnail(series int) (image.Image, error) {
	geom, _, _, err := g.state()
	if err != nil {
		return nil, err
	}
	if series != 0 {
		return nil, ErrSeries
	}
	res := thumbnailResolution(geom.TotalSizeX, geom.TotalSizeY)
	plane, err := g.GetImage(series, res, nil, geom.TotalSizeZ/2, 0, -1)
	if err != nil {
		return nil, err
	}
	return renderThumbnail(plane), nil
}

// renderThumbnail renders a plane and shrinks it into the thumbnail box.
func renderThumbnail(p *Plane) image.Image {
	return resize.Thumbnail(thumbnailMaxDim, thumbnailMaxDim, p.Render(), resize.Bilinear)
}

// Render converts the plane to a displayable 8-bit image. Sample types
// wider than 8 bits are auto-contrasted onto a robust percentile display
// range; a palette, when present, is applied to single-channel 8-bit
// data.
func (p *Plane) Render() image.Image {
	w, h := p.Width, p.Height
	rect := image.Rect(0, 0, w, h)
	if len(p.Channels) == 0 || w <= 0 || h <= 0 {
		return image.NewGray(rect)
	}

	scaled := make([][]byte, len(p.Channels))
	for i, ch := range p.Channels {
		scaled[i] = to8bit(ch, p.PixelType)
	}

	if len(scaled) == 1 {
		if p.Palette != nil && p.PixelType == PixelUint8 {
			out := image.NewRGBA(rect)
			for i, idx := range scaled[0] {
				if int(idx) < len(p.Palette) {
					r, g, b, a := p.Palette[idx].RGBA()
					out.Pix[4*i] = uint8(r >> 8)
					out.Pix[4*i+1] = uint8(g >> 8)
					out.Pix[4*i+2] = uint8(b >> 8)
					out.Pix[4*i+3] = uint8(a >> 8)
				}
			}
			return out
		}
		return &image.Gray{Pix: scaled[0], Stride: w, Rect: rect}
	}

	// Multi-channel: first three channels map to RGB.
	out := image.NewRGBA(rect)
	for i := 0; i < w*h; i++ {
		var rgb [3]uint8
		for c := 0; c < 3 && c < len(scaled); c++ {
			rgb[c] = scaled[c][i]
		}
		out.Pix[4*i] = rgb[0]
		out.Pix[4*i+1] = rgb[1]
		out.Pix[4*i+2] = rgb[2]
		out.Pix[4*i+3] = 255
	}
	return out
}

// to8bit maps a channel buffer onto 0..255. 8-bit data passes through;
// wider types are stretched over their percentile display range.
func to8bit(buf []byte, pt PixelType) []byte {
	if pt == PixelUint8 {
		return buf
	}
	bps := pt.BytesPerSample()
	n := len(buf) / bps
	out := make([]byte, n)
	lo, hi := displayRange(buf, pt)
	scale := 255 / (hi - lo)
	for i := 0; i < n; i++ {
		v := (sampleValue(buf, i, pt) - lo) * scale
		switch {
		case v < 0:
			out[i] = 0
		case v > 255:
			out[i] = 255
		default:
			out[i] = uint8(v)
		}
	}
	return out
}

// displayRange estimates a robust display range from the 1st and 99th
// percentiles of an even subsample of the buffer.
func displayRange(buf []byte, pt PixelType) (lo, hi float64) {
	bps := pt.BytesPerSample()
	n := len(buf) / bps
	if n == 0 {
		return 0, 1
	}
	const maxSamples = 1 << 14
	stride := n / maxSamples
	if stride < 1 {
		stride = 1
	}
	vals := make([]float64, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		vals = append(vals, sampleValue(buf, i, pt))
	}
	sort.Float64s(vals)
	lo = stat.Quantile(0.01, stat.Empirical, vals, nil)
	hi = stat.Quantile(0.99, stat.Empirical, vals, nil)
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// sampleValue decodes little-endian sample i of buf as a float64.
func sampleValue(buf []byte, i int, pt PixelType) float64 {
	switch pt {
	case PixelUint8:
		return float64(buf[i])
	case PixelInt8:
		return float64(int8(buf[i]))
	case PixelUint16:
		return float64(binary.LittleEndian.Uint16(buf[2*i:]))
	case PixelInt16:
		return float64(int16(binary.LittleEndian.Uint16(buf[2*i:])))
	case PixelUint32:
		return float64(binary.LittleEndian.Uint32(buf[4*i:]))
	case PixelInt32:
		return float64(int32(binary.LittleEndian.Uint32(buf[4*i:])))
	case PixelFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	case PixelFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	default:
		return float64(buf[i])
	}
}
