package mosaic_test

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/icy-imaging/mosaic"
)

// fakeFile is the in-memory pixel store behind one fake source path.
type fakeFile struct {
	width, height       int
	sizeZ, sizeT, sizeC int
	pt                  mosaic.PixelType
	planes              map[[3]int][]byte // (z,t,c) -> full plane buffer
	palette             color.Palette
	channels            []mosaic.ChannelInfo
	planeMeta           map[[3]int]*mosaic.PlaneInfo
}

func newFakeFile(width, height int, pt mosaic.PixelType) *fakeFile {
	return &fakeFile{
		width: width, height: height,
		sizeZ: 1, sizeT: 1, sizeC: 1,
		pt:        pt,
		planes:    make(map[[3]int][]byte),
		planeMeta: make(map[[3]int]*mosaic.PlaneInfo),
	}
}

// fill stores a constant-valued plane at (z,t,c). For multi-byte pixel
// types the value is written into every byte of each sample.
func (f *fakeFile) fill(z, t, c int, value byte) *fakeFile {
	buf := make([]byte, f.width*f.height*f.pt.BytesPerSample())
	for i := range buf {
		buf[i] = value
	}
	f.planes[[3]int{z, t, c}] = buf
	return f
}

// fillGradient stores a plane whose uint8 samples encode x+y, useful for
// verifying placement offsets.
func (f *fakeFile) fillGradient(z, t, c int) *fakeFile {
	buf := make([]byte, f.width*f.height)
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			buf[y*f.width+x] = byte(x + y)
		}
	}
	f.planes[[3]int{z, t, c}] = buf
	return f
}

// fakeStore hosts the fake files of one test and tracks decoder
// lifecycle events.
type fakeStore struct {
	mu        sync.Mutex
	files     map[string]*fakeFile
	created   int
	failOpen  map[string]bool
	failRead  map[string]bool
	openFlags map[string]mosaic.OpenFlag // flags of the last Open per path
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:     make(map[string]*fakeFile),
		failOpen:  make(map[string]bool),
		failRead:  make(map[string]bool),
		openFlags: make(map[string]mosaic.OpenFlag),
	}
}

func (s *fakeStore) add(path string, f *fakeFile) *fakeFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = f
	return f
}

func (s *fakeStore) createdCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

func (s *fakeStore) factory() mosaic.DecoderFactory {
	return func() mosaic.Decoder {
		s.mu.Lock()
		s.created++
		s.mu.Unlock()
		return &fakeDecoder{store: s}
	}
}

// fakeDecoder implements mosaic.Decoder over a fakeStore.
type fakeDecoder struct {
	store  *fakeStore
	path   string
	file   *fakeFile
	closes int
}

func (d *fakeDecoder) Open(path string, flags mosaic.OpenFlag) error {
	if d.file != nil {
		d.Close()
	}
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	if d.store.failOpen[path] {
		return fmt.Errorf("fake: cannot open %q", path)
	}
	f, ok := d.store.files[path]
	if !ok {
		return fmt.Errorf("fake: no such file %q", path)
	}
	d.store.openFlags[path] = flags
	d.path = path
	d.file = f
	return nil
}

func (d *fakeDecoder) Close() error {
	d.path = ""
	d.file = nil
	d.closes++
	return nil
}

func (d *fakeDecoder) GetOpened() string           { return d.path }
func (d *fakeDecoder) AcceptFile(path string) bool { return true }

func (d *fakeDecoder) GetPixels(series, resolution int, rect mosaic.Rectangle, z, t, c int) ([]byte, error) {
	if series != 0 {
		return nil, mosaic.ErrSeries
	}
	if d.file == nil {
		return nil, fmt.Errorf("fake: decoder not open")
	}
	d.store.mu.Lock()
	fail := d.store.failRead[d.path]
	d.store.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("fake: read failure for %q", d.path)
	}
	plane, ok := d.file.planes[[3]int{z, t, c}]
	if !ok {
		return nil, nil
	}
	f := d.file
	rect = rect.Intersect(mosaic.Rectangle{Width: f.width, Height: f.height})
	outW := rect.Width >> resolution
	outH := rect.Height >> resolution
	if outW <= 0 || outH <= 0 {
		return []byte{}, nil
	}
	bps := f.pt.BytesPerSample()
	step := 1 << resolution
	out := make([]byte, outW*outH*bps)
	for oy := 0; oy < outH; oy++ {
		for ox := 0; ox < outW; ox++ {
			src := ((rect.Y+oy*step)*f.width + rect.X + ox*step) * bps
			dst := (oy*outW + ox) * bps
			copy(out[dst:dst+bps], plane[src:src+bps])
		}
	}
	return out, nil
}

func (d *fakeDecoder) GetImage(series, resolution int, rect mosaic.Rectangle, z, t, c int) (*mosaic.Plane, error) {
	pix, err := d.GetPixels(series, resolution, rect, z, t, c)
	if err != nil {
		return nil, err
	}
	if pix == nil {
		return nil, nil
	}
	f := d.file
	r := rect.Intersect(mosaic.Rectangle{Width: f.width, Height: f.height}).Downscale(resolution)
	return &mosaic.Plane{
		Width:     r.Width,
		Height:    r.Height,
		PixelType: f.pt,
		Channels:  [][]byte{pix},
		Palette:   f.palette,
	}, nil
}

func (d *fakeDecoder) GetMetadata() (*mosaic.Metadata, error) {
	if d.file == nil {
		return nil, fmt.Errorf("fake: decoder not open")
	}
	f := d.file
	md := &mosaic.Metadata{
		Name:      d.path,
		SizeX:     f.width,
		SizeY:     f.height,
		SizeZ:     f.sizeZ,
		SizeT:     f.sizeT,
		SizeC:     f.sizeC,
		PixelType: f.pt,
	}
	md.Channels = append([]mosaic.ChannelInfo(nil), f.channels...)
	md.Planes = make([]*mosaic.PlaneInfo, f.sizeZ*f.sizeT*f.sizeC)
	for c := 0; c < f.sizeC; c++ {
		for z := 0; z < f.sizeZ; z++ {
			for t := 0; t < f.sizeT; t++ {
				p := f.planeMeta[[3]int{z, t, c}]
				if p == nil {
					p = &mosaic.PlaneInfo{Z: z, T: t, C: c}
				}
				md.Planes[md.PlaneIndex(z, t, c)] = p
			}
		}
	}
	return md, nil
}

func (d *fakeDecoder) GetTileWidth(series int) int  { return d.file.width }
func (d *fakeDecoder) GetTileHeight(series int) int { return d.file.height }

func (d *fakeDecoder) GetThumbnail(series int) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 16, 16)), nil
}

// mustGeometry builds a geometry or fails the test.
func mustGeometry(t interface{ Fatalf(string, ...any) }, g mosaic.Geometry) *mosaic.Geometry {
	geom, err := mosaic.NewGeometry(g)
	if err != nil {
		t.Fatalf("NewGeometry: %v", err)
	}
	return geom
}
