package mosaic

import "fmt"

// Rectangle is an axis-aligned pixel rectangle. X,Y is the top-left corner.
type Rectangle struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Empty reports whether the rectangle covers no pixels.
func (r Rectangle) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Intersect returns the intersection of r and o. The result is empty when
// the rectangles do not overlap.
func (r Rectangle) Intersect(o Rectangle) Rectangle {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.X+r.Width, o.X+o.Width)
	y1 := min(r.Y+r.Height, o.Y+o.Height)
	return Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Downscale maps the rectangle to a power-of-two pyramid level by shifting
// every component right by levels.
func (r Rectangle) Downscale(levels int) Rectangle {
	return Rectangle{
		X:      r.X >> levels,
		Y:      r.Y >> levels,
		Width:  r.Width >> levels,
		Height: r.Height >> levels,
	}
}

// Geometry describes an assembled mosaic: the dimensions of one source
// tile, the dimensions of the whole mosaic, and the derived stride
// multipliers used for slot indexing. A Geometry is immutable once built.
type Geometry struct {
	// Single-tile dimensions.
	BaseSizeX, BaseSizeY, BaseSizeZ, BaseSizeT, BaseSizeC int
	// Assembled mosaic dimensions. Each must be an exact multiple of the
	// corresponding base size.
	TotalSizeX, TotalSizeY, TotalSizeZ, TotalSizeT, TotalSizeC int

	PixelType PixelType

	// Physical calibration. Values <= 0 mean unknown and are never
	// propagated into synthesized metadata.
	PixelSizeX, PixelSizeY, PixelSizeZ float64 // micrometres
	TimeInterval                       float64 // seconds

	// Stride multipliers for the flat slot index:
	// slot = x + y*mulY + z*mulZ + t*mulT + c*mulC with external grid
	// coordinates (position divided by base size along each axis).
	mulY, mulZ, mulT, mulC int

	slotCount int
}

// NewGeometry validates the tile/mosaic dimensions and precomputes the
// index multipliers. Every total size must be a positive exact multiple of
// its base size; a non-exact ratio would silently corrupt the stride
// arithmetic, so it is rejected here.
func NewGeometry(g Geometry) (*Geometry, error) {
	type axis struct {
		name        string
		base, total int
	}
	axes := []axis{
		{"X", g.BaseSizeX, g.TotalSizeX},
		{"Y", g.BaseSizeY, g.TotalSizeY},
		{"Z", g.BaseSizeZ, g.TotalSizeZ},
		{"T", g.BaseSizeT, g.TotalSizeT},
		{"C", g.BaseSizeC, g.TotalSizeC},
	}
	for _, a := range axes {
		if a.base <= 0 {
			return nil, fmt.Errorf("mosaic: base size %s must be >= 1, got %d", a.name, a.base)
		}
		if a.total < a.base {
			return nil, fmt.Errorf("mosaic: total size %s (%d) smaller than base size (%d)", a.name, a.total, a.base)
		}
		if a.total%a.base != 0 {
			return nil, fmt.Errorf("mosaic: total size %s (%d) is not a multiple of base size (%d)", a.name, a.total, a.base)
		}
	}

	g.mulY = g.TotalSizeX / g.BaseSizeX
	g.mulZ = g.mulY * (g.TotalSizeY / g.BaseSizeY)
	g.mulT = g.mulZ * (g.TotalSizeZ / g.BaseSizeZ)
	g.mulC = g.mulT * (g.TotalSizeT / g.BaseSizeT)
	g.slotCount = g.mulC * (g.TotalSizeC / g.BaseSizeC)
	return &g, nil
}

// SlotIndex maps external grid coordinates to the flat slot index. The
// formula performs no bounds checking; callers guard against SlotCount.
func (g *Geometry) SlotIndex(x, y, z, t, c int) int {
	return x + y*g.mulY + z*g.mulZ + t*g.mulT + c*g.mulC
}

// SlotCount returns the length of the slot table, the product of all grid
// dimensions.
func (g *Geometry) SlotCount() int {
	return g.slotCount
}

// GridSize returns the number of tiles along each axis.
func (g *Geometry) GridSize() (x, y, z, t, c int) {
	return g.TotalSizeX / g.BaseSizeX,
		g.TotalSizeY / g.BaseSizeY,
		g.TotalSizeZ / g.BaseSizeZ,
		g.TotalSizeT / g.BaseSizeT,
		g.TotalSizeC / g.BaseSizeC
}

// Tiled reports whether the assembled XY extent spans more than one tile.
func (g *Geometry) Tiled() bool {
	return g.TotalSizeX > g.BaseSizeX || g.TotalSizeY > g.BaseSizeY
}

// Extent returns the full XY extent of the mosaic as a rectangle.
func (g *Geometry) Extent() Rectangle {
	return Rectangle{X: 0, Y: 0, Width: g.TotalSizeX, Height: g.TotalSizeY}
}
