package mosaic

import "github.com/paulmach/orb"

// Stage-space helpers. The mosaic pixel grid maps to physical stage
// coordinates (micrometres) through the pixel calibration, with pixel
// (0,0) at the stage origin. All helpers return zero values when the
// group is closed or carries no XY calibration.

// emptyBound is deliberately malformed so orb.Bound.IsEmpty reports
// true; the zero Bound is a valid point at the origin.
var emptyBound = orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{-1, -1}}

func (g *Group) stageScale() (sx, sy float64, ok bool) {
	geom := g.Geometry()
	if geom == nil || geom.PixelSizeX <= 0 || geom.PixelSizeY <= 0 {
		return 0, 0, false
	}
	return geom.PixelSizeX, geom.PixelSizeY, true
}

// PhysicalBounds returns the stage-space extent of the whole mosaic.
func (g *Group) PhysicalBounds() orb.Bound {
	sx, sy, ok := g.stageScale()
	if !ok {
		return emptyBound
	}
	geom := g.Geometry()
	return orb.Bound{
		Min: orb.Point{0, 0},
		Max: orb.Point{float64(geom.TotalSizeX) * sx, float64(geom.TotalSizeY) * sy},
	}
}

// FootprintPolygon returns the mosaic's stage-space outline as a closed
// ring.
func (g *Group) FootprintPolygon() orb.Polygon {
	b := g.PhysicalBounds()
	if b.IsEmpty() {
		return orb.Polygon{}
	}
	ring := orb.Ring{
		{b.Min[0], b.Min[1]},
		{b.Max[0], b.Min[1]},
		{b.Max[0], b.Max[1]},
		{b.Min[0], b.Max[1]},
		{b.Min[0], b.Min[1]},
	}
	return orb.Polygon{ring}
}

// TileFootprint returns the stage-space rectangle covered by one source
// position's tile.
func (g *Group) TileFootprint(pos SourcePosition) orb.Bound {
	sx, sy, ok := g.stageScale()
	if !ok {
		return emptyBound
	}
	geom := g.Geometry()
	x0 := float64(pos.X*geom.BaseSizeX) * sx
	y0 := float64(pos.Y*geom.BaseSizeY) * sy
	return orb.Bound{
		Min: orb.Point{x0, y0},
		Max: orb.Point{x0 + float64(geom.BaseSizeX)*sx, y0 + float64(geom.BaseSizeY)*sy},
	}
}

// PositionsIntersecting returns every source position whose tile
// footprint intersects the given stage-space rectangle.
func (g *Group) PositionsIntersecting(b orb.Bound) []SourcePosition {
	_, slots, _, err := g.state()
	if err != nil {
		return nil
	}
	var out []SourcePosition
	for _, pos := range slots {
		if pos == nil {
			continue
		}
		fp := g.TileFootprint(*pos)
		if !fp.IsEmpty() && boundsOverlap(fp, b) {
			out = append(out, *pos)
		}
	}
	return out
}

func boundsOverlap(a, b orb.Bound) bool {
	return a.Min[0] < b.Max[0] && b.Min[0] < a.Max[0] &&
		a.Min[1] < b.Max[1] && b.Min[1] < a.Max[1]
}

// PixelToStage converts mosaic pixel coordinates to a stage point.
func (g *Group) PixelToStage(x, y float64) orb.Point {
	sx, sy, ok := g.stageScale()
	if !ok {
		return orb.Point{}
	}
	return orb.Point{x * sx, y * sy}
}

// StageToPixel converts a stage point to mosaic pixel coordinates.
func (g *Group) StageToPixel(pt orb.Point) (x, y float64) {
	sx, sy, ok := g.stageScale()
	if !ok {
		return 0, 0
	}
	return pt[0] / sx, pt[1] / sy
}
