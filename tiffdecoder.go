package mosaic

import (
	"encoding/binary"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"
)

// TIFFDecoder reads one-plane-per-file TIFF tiles, the common output of
// tiled microscope acquisitions. The file is decoded eagerly at Open;
// region reads then sample the in-memory raster. Grayscale, 16-bit
// grayscale, paletted and RGB files are supported; an RGB file exposes
// three internal channels.
type TIFFDecoder struct {
	path  string
	plane *Plane
}

// NewTIFFDecoderFactory returns a factory producing TIFF tile decoders.
func NewTIFFDecoderFactory() DecoderFactory {
	return func() Decoder { return &TIFFDecoder{} }
}

// Open decodes the TIFF at path, closing any previous association first.
func (d *TIFFDecoder) Open(path string, flags OpenFlag) error {
	if d.plane != nil {
		if err := d.Close(); err != nil {
			return err
		}
	}
	src, err := openSource(path)
	if err != nil {
		return err
	}
	defer src.Close()

	img, err := tiff.Decode(src)
	if err != nil {
		return fmt.Errorf("mosaic: decode %s: %w", path, err)
	}
	d.plane = planeFromImage(img)
	d.path = path
	return nil
}

func (d *TIFFDecoder) Close() error {
	d.plane = nil
	d.path = ""
	return nil
}

func (d *TIFFDecoder) GetOpened() string { return d.path }

func (d *TIFFDecoder) AcceptFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return true
	}
	return false
}

// planeFromImage converts a decoded image into channel-separated sample
// buffers. 16-bit grayscale keeps its depth; everything else flattens to
// 8-bit channels.
func planeFromImage(img image.Image) *Plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		p := NewPlane(w, h, PixelUint8, 1)
		for y := 0; y < h; y++ {
			copy(p.Channels[0][y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		return p
	case *image.Gray16:
		p := NewPlane(w, h, PixelUint16, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				// Gray16 stores big-endian; sample buffers are
				// little-endian.
				v := uint16(src.Pix[y*src.Stride+2*x])<<8 | uint16(src.Pix[y*src.Stride+2*x+1])
				binary.LittleEndian.PutUint16(p.Channels[0][(y*w+x)*2:], v)
			}
		}
		return p
	case *image.Paletted:
		p := NewPlane(w, h, PixelUint8, 1)
		for y := 0; y < h; y++ {
			copy(p.Channels[0][y*w:(y+1)*w], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		p.Palette = src.Palette
		return p
	default:
		p := NewPlane(w, h, PixelUint8, 3)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				i := y*w + x
				p.Channels[0][i] = uint8(r >> 8)
				p.Channels[1][i] = uint8(g >> 8)
				p.Channels[2][i] = uint8(bl >> 8)
			}
		}
		return p
	}
}

func (d *TIFFDecoder) checkPlane(series, z, t, c int) error {
	if series != 0 {
		return ErrSeries
	}
	if d.plane == nil {
		return fmt.Errorf("mosaic: tiff decoder not open")
	}
	if z != 0 || t != 0 {
		return fmt.Errorf("mosaic: tiff tile holds a single plane, requested z=%d t=%d", z, t)
	}
	if c < 0 || c >= len(d.plane.Channels) {
		return fmt.Errorf("mosaic: channel %d outside %d-channel tiff", c, len(d.plane.Channels))
	}
	return nil
}

// GetPixels samples the requested sub-rectangle of one channel at the
// given resolution level.
func (d *TIFFDecoder) GetPixels(series, resolution int, rect Rectangle, z, t, c int) ([]byte, error) {
	if err := d.checkPlane(series, z, t, c); err != nil {
		return nil, err
	}
	return sampleRegion(d.plane.Channels[c], d.plane.Width, d.plane.Height, d.plane.PixelType, rect, resolution), nil
}

func (d *TIFFDecoder) GetImage(series, resolution int, rect Rectangle, z, t, c int) (*Plane, error) {
	pix, err := d.GetPixels(series, resolution, rect, z, t, c)
	if err != nil {
		return nil, err
	}
	full := Rectangle{Width: d.plane.Width, Height: d.plane.Height}
	r := rect.Intersect(full).Downscale(resolution)
	return &Plane{
		Width:     r.Width,
		Height:    r.Height,
		PixelType: d.plane.PixelType,
		Channels:  [][]byte{pix},
		Palette:   d.plane.Palette,
	}, nil
}

// sampleRegion extracts rect from a full-plane channel buffer, picking
// every 2^resolution-th sample along both axes.
func sampleRegion(src []byte, width, height int, pt PixelType, rect Rectangle, resolution int) []byte {
	rect = rect.Intersect(Rectangle{Width: width, Height: height})
	outW := rect.Width >> resolution
	outH := rect.Height >> resolution
	bps := pt.BytesPerSample()
	if outW <= 0 || outH <= 0 {
		return []byte{}
	}
	step := 1 << resolution
	out := make([]byte, outW*outH*bps)
	for oy := 0; oy < outH; oy++ {
		srcY := rect.Y + oy*step
		if step == 1 {
			srcOff := (srcY*width + rect.X) * bps
			copy(out[oy*outW*bps:(oy+1)*outW*bps], src[srcOff:srcOff+outW*bps])
			continue
		}
		for ox := 0; ox < outW; ox++ {
			srcOff := (srcY*width + rect.X + ox*step) * bps
			copy(out[(oy*outW+ox)*bps:(oy*outW+ox+1)*bps], src[srcOff:srcOff+bps])
		}
	}
	return out
}

func (d *TIFFDecoder) GetMetadata() (*Metadata, error) {
	if d.plane == nil {
		return nil, fmt.Errorf("mosaic: tiff decoder not open")
	}
	base := filepath.Base(d.path)
	sizeC := len(d.plane.Channels)
	md := &Metadata{
		Name:      strings.TrimSuffix(base, filepath.Ext(base)),
		SizeX:     d.plane.Width,
		SizeY:     d.plane.Height,
		SizeZ:     1,
		SizeT:     1,
		SizeC:     sizeC,
		PixelType: d.plane.PixelType,
	}
	names := []string{"red", "green", "blue"}
	md.Channels = make([]ChannelInfo, sizeC)
	md.Planes = make([]*PlaneInfo, sizeC)
	for c := 0; c < sizeC; c++ {
		name := fmt.Sprintf("ch %d", c)
		if sizeC == 3 {
			name = names[c]
		}
		md.Channels[c] = ChannelInfo{Name: name}
		md.Planes[md.PlaneIndex(0, 0, c)] = &PlaneInfo{C: c}
	}
	return md, nil
}

func (d *TIFFDecoder) GetTileWidth(series int) int {
	if series != 0 || d.plane == nil {
		return 0
	}
	return d.plane.Width
}

func (d *TIFFDecoder) GetTileHeight(series int) int {
	if series != 0 || d.plane == nil {
		return 0
	}
	return d.plane.Height
}

// GetThumbnail renders the decoded plane at the coarsest useful
// resolution.
func (d *TIFFDecoder) GetThumbnail(series int) (image.Image, error) {
	if series != 0 {
		return nil, ErrSeries
	}
	if d.plane == nil {
		return nil, fmt.Errorf("mosaic: tiff decoder not open")
	}
	res := thumbnailResolution(d.plane.Width, d.plane.Height)
	full := Rectangle{Width: d.plane.Width, Height: d.plane.Height}
	out := NewPlane(full.Width>>res, full.Height>>res, d.plane.PixelType, len(d.plane.Channels))
	out.Palette = d.plane.Palette
	for c := range d.plane.Channels {
		out.Channels[c] = sampleRegion(d.plane.Channels[c], d.plane.Width, d.plane.Height, d.plane.PixelType, full, res)
	}
	return renderThumbnail(out), nil
}
