package mosaic

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"
)

// RawDecoder reads headerless raw tile files: little-endian samples, row
// major, one plane after another in Z-fastest order (Z, then T, then C).
// The plane dimensions are not stored in the file, so the factory carries
// them from the group descriptor.
type RawDecoder struct {
	width, height       int
	sizeZ, sizeT, sizeC int
	pixelType           PixelType

	path string
	src  sourceReader
}

// NewRawDecoderFactory returns a factory producing raw decoders for tiles
// of the given dimensions and pixel type.
func NewRawDecoderFactory(width, height, sizeZ, sizeT, sizeC int, pt PixelType) DecoderFactory {
	return func() Decoder {
		return &RawDecoder{
			width:     width,
			height:    height,
			sizeZ:     sizeZ,
			sizeT:     sizeT,
			sizeC:     sizeC,
			pixelType: pt,
		}
	}
}

func (d *RawDecoder) planeBytes() int {
	return d.width * d.height * d.pixelType.BytesPerSample()
}

// Open binds the decoder to path, closing any previous association first.
// The file must be large enough to hold every plane the tile dimensions
// announce.
func (d *RawDecoder) Open(path string, flags OpenFlag) error {
	if d.src != nil {
		if err := d.Close(); err != nil {
			return err
		}
	}
	src, err := openSource(path)
	if err != nil {
		return err
	}
	need := int64(d.planeBytes()) * int64(d.sizeZ*d.sizeT*d.sizeC)
	if src.Size() < need {
		src.Close()
		return fmt.Errorf("mosaic: raw file %s holds %d bytes, need %d", path, src.Size(), need)
	}
	d.src = src
	d.path = path
	return nil
}

func (d *RawDecoder) Close() error {
	if d.src == nil {
		return nil
	}
	err := d.src.Close()
	d.src = nil
	d.path = ""
	return err
}

func (d *RawDecoder) GetOpened() string { return d.path }

func (d *RawDecoder) AcceptFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".raw", ".bin":
		return true
	}
	return false
}

func (d *RawDecoder) checkPlane(series, z, t, c int) error {
	if series != 0 {
		return ErrSeries
	}
	if d.src == nil {
		return fmt.Errorf("mosaic: raw decoder not open")
	}
	if z < 0 || z >= d.sizeZ || t < 0 || t >= d.sizeT || c < 0 || c >= d.sizeC {
		return fmt.Errorf("mosaic: plane (%d,%d,%d) outside %dx%dx%d tile", z, t, c, d.sizeZ, d.sizeT, d.sizeC)
	}
	return nil
}

// GetPixels reads the requested sub-rectangle of one plane, decimating by
// 2^resolution along both axes.
func (d *RawDecoder) GetPixels(series, resolution int, rect Rectangle, z, t, c int) ([]byte, error) {
	if err := d.checkPlane(series, z, t, c); err != nil {
		return nil, err
	}
	full := Rectangle{Width: d.width, Height: d.height}
	rect = rect.Intersect(full)
	outW := rect.Width >> resolution
	outH := rect.Height >> resolution
	if outW <= 0 || outH <= 0 {
		return []byte{}, nil
	}

	bps := d.pixelType.BytesPerSample()
	planeOff := int64((c*d.sizeT+t)*d.sizeZ+z) * int64(d.planeBytes())
	rowBytes := d.width * bps
	step := 1 << resolution

	out := make([]byte, outW*outH*bps)
	scratch := getScratch(rect.Width * bps)
	defer putScratch(scratch)

	for oy := 0; oy < outH; oy++ {
		srcY := rect.Y + oy*step
		off := planeOff + int64(srcY)*int64(rowBytes) + int64(rect.X)*int64(bps)
		if _, err := d.src.ReadAt(scratch[:rect.Width*bps], off); err != nil {
			return nil, fmt.Errorf("mosaic: read row %d of %s: %w", srcY, d.path, err)
		}
		dst := out[oy*outW*bps:]
		if resolution == 0 {
			copy(dst[:rect.Width*bps], scratch)
			continue
		}
		for ox := 0; ox < outW; ox++ {
			copy(dst[ox*bps:(ox+1)*bps], scratch[ox*step*bps:ox*step*bps+bps])
		}
	}
	return out, nil
}

// GetImage wraps GetPixels into a single-channel plane. Raw files carry
// no color map.
func (d *RawDecoder) GetImage(series, resolution int, rect Rectangle, z, t, c int) (*Plane, error) {
	pix, err := d.GetPixels(series, resolution, rect, z, t, c)
	if err != nil {
		return nil, err
	}
	full := Rectangle{Width: d.width, Height: d.height}
	r := rect.Intersect(full).Downscale(resolution)
	return &Plane{
		Width:     r.Width,
		Height:    r.Height,
		PixelType: d.pixelType,
		Channels:  [][]byte{pix},
	}, nil
}

// GetMetadata reports the tile geometry. Raw files carry no acquisition
// metadata, so every plane descriptor is an empty placeholder.
func (d *RawDecoder) GetMetadata() (*Metadata, error) {
	if d.src == nil {
		return nil, fmt.Errorf("mosaic: raw decoder not open")
	}
	base := filepath.Base(d.path)
	md := &Metadata{
		Name:      strings.TrimSuffix(base, filepath.Ext(base)),
		SizeX:     d.width,
		SizeY:     d.height,
		SizeZ:     d.sizeZ,
		SizeT:     d.sizeT,
		SizeC:     d.sizeC,
		PixelType: d.pixelType,
	}
	md.Channels = make([]ChannelInfo, d.sizeC)
	for c := range md.Channels {
		md.Channels[c] = ChannelInfo{Name: fmt.Sprintf("ch %d", c)}
	}
	md.Planes = make([]*PlaneInfo, d.sizeZ*d.sizeT*d.sizeC)
	for c := 0; c < d.sizeC; c++ {
		for z := 0; z < d.sizeZ; z++ {
			for t := 0; t < d.sizeT; t++ {
				md.Planes[md.PlaneIndex(z, t, c)] = &PlaneInfo{Z: z, T: t, C: c}
			}
		}
	}
	return md, nil
}

func (d *RawDecoder) GetTileWidth(series int) int {
	if series != 0 {
		return 0
	}
	return d.width
}

func (d *RawDecoder) GetTileHeight(series int) int {
	if series != 0 {
		return 0
	}
	return d.height
}

// GetThumbnail renders the first plane at the coarsest useful resolution.
func (d *RawDecoder) GetThumbnail(series int) (image.Image, error) {
	if err := d.checkPlane(series, 0, 0, 0); err != nil {
		return nil, err
	}
	res := thumbnailResolution(d.width, d.height)
	p, err := d.GetImage(series, res, Rectangle{Width: d.width, Height: d.height}, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return renderThumbnail(p), nil
}
