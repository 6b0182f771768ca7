package mosaic

// tileSpan is one entry of a tile plan: the sub-rectangle of the request
// covered by a single source tile (in absolute mosaic coordinates) and the
// flat slot offset gridX + gridY*mulY selecting the contributing tile
// column within the cursor's Z/T/C combination.
type tileSpan struct {
	rect   Rectangle
	offset int
}

// planTiles partitions a requested rectangle along the tile grid implied
// by the base tile size and returns one span per overlapped grid cell.
//
// The request must already be clipped to the mosaic extent; planning an
// out-of-bounds rectangle is undefined. An empty rectangle yields an empty
// plan. When the mosaic is not XY-tiled the request itself is the single
// span, with offset 0.
func planTiles(g *Geometry, req Rectangle) []tileSpan {
	if req.Empty() {
		return nil
	}
	if !g.Tiled() {
		return []tileSpan{{rect: req, offset: 0}}
	}

	tw, th := g.BaseSizeX, g.BaseSizeY
	startX := req.X / tw
	endX := (req.X + req.Width - 1) / tw
	startY := req.Y / th
	endY := (req.Y + req.Height - 1) / th

	spans := make([]tileSpan, 0, (endX-startX+1)*(endY-startY+1))
	for gy := startY; gy <= endY; gy++ {
		for gx := startX; gx <= endX; gx++ {
			cell := Rectangle{X: gx * tw, Y: gy * th, Width: tw, Height: th}
			sub := cell.Intersect(req)
			if sub.Empty() {
				continue
			}
			spans = append(spans, tileSpan{rect: sub, offset: gx + gy*g.mulY})
		}
	}
	return spans
}
