package mosaic

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor is the on-disk description of a file group: the geometry of
// one tile, the assembled mosaic size, and where each source file sits on
// the grid. Descriptors are YAML documents; relative source paths are
// resolved against the descriptor's directory.
type Descriptor struct {
	Name   string `yaml:"name"`
	Format string `yaml:"format"` // raw | tiff; inferred from file names when empty

	Tile struct {
		SizeX     int    `yaml:"sizeX"`
		SizeY     int    `yaml:"sizeY"`
		SizeZ     int    `yaml:"sizeZ"`
		SizeT     int    `yaml:"sizeT"`
		SizeC     int    `yaml:"sizeC"`
		PixelType string `yaml:"pixelType"`
	} `yaml:"tile"`

	Total struct {
		SizeX int `yaml:"sizeX"`
		SizeY int `yaml:"sizeY"`
		SizeZ int `yaml:"sizeZ"`
		SizeT int `yaml:"sizeT"`
		SizeC int `yaml:"sizeC"`
	} `yaml:"total"`

	Calibration struct {
		PixelSizeX   float64 `yaml:"pixelSizeX"` // micrometres
		PixelSizeY   float64 `yaml:"pixelSizeY"`
		PixelSizeZ   float64 `yaml:"pixelSizeZ"`
		TimeInterval float64 `yaml:"timeInterval"` // seconds
	} `yaml:"calibration"`

	Positions []DescriptorPosition `yaml:"positions"`

	dir string
}

// DescriptorPosition is one source file entry: path plus grid coordinates
// in tile units.
type DescriptorPosition struct {
	Path string `yaml:"path"`
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
	Z    int    `yaml:"z"`
	T    int    `yaml:"t"`
	C    int    `yaml:"c"`
}

// LoadDescriptor reads and validates a group descriptor file.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mosaic: read descriptor: %w", err)
	}
	d := &Descriptor{}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("mosaic: parse descriptor %s: %w", path, err)
	}
	d.dir = filepath.Dir(path)
	d.applyDefaults()
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("mosaic: descriptor %s: %w", path, err)
	}
	return d, nil
}

// applyDefaults fills the axes a descriptor may omit: Z/T/C tile sizes
// default to 1 and total sizes default to the tile size (a non-tiled
// axis).
func (d *Descriptor) applyDefaults() {
	if d.Tile.SizeZ == 0 {
		d.Tile.SizeZ = 1
	}
	if d.Tile.SizeT == 0 {
		d.Tile.SizeT = 1
	}
	if d.Tile.SizeC == 0 {
		d.Tile.SizeC = 1
	}
	if d.Total.SizeX == 0 {
		d.Total.SizeX = d.Tile.SizeX
	}
	if d.Total.SizeY == 0 {
		d.Total.SizeY = d.Tile.SizeY
	}
	if d.Total.SizeZ == 0 {
		d.Total.SizeZ = d.Tile.SizeZ
	}
	if d.Total.SizeT == 0 {
		d.Total.SizeT = d.Tile.SizeT
	}
	if d.Total.SizeC == 0 {
		d.Total.SizeC = d.Tile.SizeC
	}
}

// Validate checks the descriptor for the failure modes Geometry and the
// decoders cannot express more precisely.
func (d *Descriptor) Validate() error {
	if d.Tile.SizeX <= 0 || d.Tile.SizeY <= 0 {
		return fmt.Errorf("tile sizeX/sizeY must be positive, got %dx%d", d.Tile.SizeX, d.Tile.SizeY)
	}
	if _, err := ParsePixelType(d.Tile.PixelType); err != nil {
		return err
	}
	switch d.Format {
	case "", "raw", "tiff":
	default:
		return fmt.Errorf("unknown format %q", d.Format)
	}
	if len(d.Positions) == 0 {
		return fmt.Errorf("descriptor lists no positions")
	}
	for i, p := range d.Positions {
		if p.Path == "" {
			return fmt.Errorf("position %d has no path", i)
		}
	}
	return nil
}

// Geometry builds the validated mosaic geometry described by the
// descriptor.
func (d *Descriptor) Geometry() (*Geometry, error) {
	pt, err := ParsePixelType(d.Tile.PixelType)
	if err != nil {
		return nil, err
	}
	return NewGeometry(Geometry{
		BaseSizeX:    d.Tile.SizeX,
		BaseSizeY:    d.Tile.SizeY,
		BaseSizeZ:    d.Tile.SizeZ,
		BaseSizeT:    d.Tile.SizeT,
		BaseSizeC:    d.Tile.SizeC,
		TotalSizeX:   d.Total.SizeX,
		TotalSizeY:   d.Total.SizeY,
		TotalSizeZ:   d.Total.SizeZ,
		TotalSizeT:   d.Total.SizeT,
		TotalSizeC:   d.Total.SizeC,
		PixelType:    pt,
		PixelSizeX:   d.Calibration.PixelSizeX,
		PixelSizeY:   d.Calibration.PixelSizeY,
		PixelSizeZ:   d.Calibration.PixelSizeZ,
		TimeInterval: d.Calibration.TimeInterval,
	})
}

// SourcePositions returns the descriptor's positions with relative paths
// resolved against the descriptor directory. URLs pass through untouched.
func (d *Descriptor) SourcePositions() []SourcePosition {
	out := make([]SourcePosition, len(d.Positions))
	for i, p := range d.Positions {
		path := p.Path
		if !isURL(path) && !filepath.IsAbs(path) && d.dir != "" {
			path = filepath.Join(d.dir, path)
		}
		out[i] = SourcePosition{Path: path, X: p.X, Y: p.Y, Z: p.Z, T: p.T, C: p.C}
	}
	return out
}

// Factory returns the decoder factory matching the descriptor's format.
// When no format is given it is inferred from the first position's file
// name.
func (d *Descriptor) Factory() (DecoderFactory, error) {
	format := d.Format
	if format == "" {
		switch ext := strings.ToLower(filepath.Ext(d.Positions[0].Path)); ext {
		case ".tif", ".tiff":
			format = "tiff"
		case ".raw", ".bin":
			format = "raw"
		default:
			return nil, fmt.Errorf("mosaic: cannot infer format from %q", d.Positions[0].Path)
		}
	}
	switch format {
	case "raw":
		pt, err := ParsePixelType(d.Tile.PixelType)
		if err != nil {
			return nil, err
		}
		return NewRawDecoderFactory(d.Tile.SizeX, d.Tile.SizeY, d.Tile.SizeZ, d.Tile.SizeT, d.Tile.SizeC, pt), nil
	case "tiff":
		return NewTIFFDecoderFactory(), nil
	}
	return nil, fmt.Errorf("mosaic: unknown format %q", format)
}
