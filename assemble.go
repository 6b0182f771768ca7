package mosaic

import (
	"fmt"
	"runtime"
	"sync"
)

// clipRequest resolves a possibly-nil request rectangle against the mosaic
// extent. A nil rectangle means the whole extent.
func clipRequest(geom *Geometry, rect *Rectangle) Rectangle {
	ext := geom.Extent()
	if rect == nil {
		return ext
	}
	return rect.Intersect(ext)
}

func (t slotTable) at(i int) *SourcePosition {
	if i < 0 || i >= len(t) {
		return nil
	}
	return t[i]
}

// tileLocal translates a span sub-rectangle from absolute mosaic
// coordinates into the frame of its own tile. Spans never cross a tile
// boundary, so the remainder against the tile size is the local origin.
func tileLocal(g *Geometry, sub Rectangle) Rectangle {
	return Rectangle{
		X:      sub.X % g.BaseSizeX,
		Y:      sub.Y % g.BaseSizeY,
		Width:  sub.Width,
		Height: sub.Height,
	}
}

// forEachSpan runs fn over every span, fanning out to a bounded set of
// worker goroutines when the plan covers more than one tile. Spans write
// to disjoint destination sub-rectangles, so no ordering is required.
func forEachSpan(spans []tileSpan, fn func(tileSpan)) {
	if len(spans) == 1 {
		fn(spans[0])
		return
	}
	workers := runtime.NumCPU()
	if workers > len(spans) {
		workers = len(spans)
	}
	work := make(chan tileSpan, len(spans))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sp := range work {
				fn(sp)
			}
		}()
	}
	for _, sp := range spans {
		work <- sp
	}
	close(work)
	wg.Wait()
}

// GetPixels reads one channel of an arbitrary sub-region as a flat buffer
// of the mosaic's pixel type. rect is expressed at full resolution (nil
// requests the whole extent) and the result holds
// (width>>resolution) x (height>>resolution) samples.
//
// Holes in the mosaic and per-tile read failures come back zero-filled;
// only a failure with no fallback (the single contributing tile) is
// returned as an error.
func (g *Group) GetPixels(series, resolution int, rect *Rectangle, z, t, c int) ([]byte, error) {
	geom, slots, pool, err := g.state()
	if err != nil {
		return nil, err
	}
	if series != 0 {
		return nil, ErrSeries
	}
	if c < 0 {
		return nil, fmt.Errorf("mosaic: GetPixels requires an explicit channel, got %d", c)
	}
	clipped := clipRequest(geom, rect)
	cur := resolveCursor(geom, slots, z, t, c)
	return assemblePixels(geom, slots, pool, cur, series, resolution, clipped)
}

func assemblePixels(geom *Geometry, slots slotTable, pool *DecoderPool, cur fileCursor, series, resolution int, clipped Rectangle) ([]byte, error) {
	spans := planTiles(geom, clipped)
	if len(spans) == 0 {
		return []byte{}, nil
	}

	bps := geom.PixelType.BytesPerSample()
	dest := clipped.Downscale(resolution)

	if len(spans) == 1 {
		// Single contributing tile: read and return directly, no
		// assembly. With no fallback tile to blank-fill around, a
		// decoder failure propagates.
		sp := spans[0]
		pos := slots.at(cur.slot + sp.offset)
		if pos == nil {
			return make([]byte, dest.Width*dest.Height*bps), nil
		}
		dec, err := pool.Checkout(pos.Path, OpenDefault)
		if err != nil {
			return nil, err
		}
		pix, err := dec.GetPixels(series, resolution, tileLocal(geom, sp.rect), cur.internalZ, cur.internalT, cur.internalC)
		pool.Checkin(pos.Path, dec)
		if err != nil {
			return nil, fmt.Errorf("mosaic: read %q: %w", pos.Path, err)
		}
		if pix == nil {
			return nil, fmt.Errorf("mosaic: no pixel data in %q", pos.Path)
		}
		return pix, nil
	}

	buf := make([]byte, dest.Width*dest.Height*bps)
	forEachSpan(spans, func(sp tileSpan) {
		sub := sp.rect.Intersect(clipped)
		if sub.Empty() {
			return
		}
		pos := slots.at(cur.slot + sp.offset)
		if pos == nil {
			return // hole, stays blank
		}
		dec, err := pool.Checkout(pos.Path, OpenDefault)
		if err != nil {
			return // treated like a missing tile
		}
		pix, err := dec.GetPixels(series, resolution, tileLocal(geom, sub), cur.internalZ, cur.internalT, cur.internalC)
		pool.Checkin(pos.Path, dec)
		if err != nil || pix == nil {
			return
		}
		blit(buf, dest, pix, sub.Downscale(resolution), bps)
	})
	return buf, nil
}

// GetImage reads an arbitrary sub-region as a Plane. c selects one
// channel; c == -1 assembles every channel independently (each channel may
// reside in a different file) and composes them into one multi-channel
// plane, substituting a blank channel for any that failed entirely.
func (g *Group) GetImage(series, resolution int, rect *Rectangle, z, t, c int) (*Plane, error) {
	geom, slots, pool, err := g.state()
	if err != nil {
		return nil, err
	}
	if series != 0 {
		return nil, ErrSeries
	}
	clipped := clipRequest(geom, rect)

	if c >= 0 {
		cur := resolveCursor(geom, slots, z, t, c)
		return assembleImage(geom, slots, pool, cur, series, resolution, clipped)
	}

	// Multi-channel request: run the whole procedure once per channel.
	dest := clipped.Downscale(resolution)
	out := NewPlane(dest.Width, dest.Height, geom.PixelType, geom.TotalSizeC)
	for ci := 0; ci < geom.TotalSizeC; ci++ {
		cur := resolveCursor(geom, slots, z, t, ci)
		ch, err := assembleImage(geom, slots, pool, cur, series, resolution, clipped)
		if err != nil || ch == nil || len(ch.Channels) == 0 {
			continue // blank channel
		}
		copy(out.Channels[ci], ch.Channels[0])
		if out.Palette == nil {
			out.Palette = ch.Palette
		}
	}
	return out, nil
}

func assembleImage(geom *Geometry, slots slotTable, pool *DecoderPool, cur fileCursor, series, resolution int, clipped Rectangle) (*Plane, error) {
	spans := planTiles(geom, clipped)
	dest := clipped.Downscale(resolution)
	if len(spans) == 0 {
		return NewPlane(dest.Width, dest.Height, geom.PixelType, 1), nil
	}

	bps := geom.PixelType.BytesPerSample()

	if len(spans) == 1 {
		sp := spans[0]
		pos := slots.at(cur.slot + sp.offset)
		if pos == nil {
			return NewPlane(dest.Width, dest.Height, geom.PixelType, 1), nil
		}
		dec, err := pool.Checkout(pos.Path, OpenDefault)
		if err != nil {
			return nil, err
		}
		img, err := dec.GetImage(series, resolution, tileLocal(geom, sp.rect), cur.internalZ, cur.internalT, cur.internalC)
		pool.Checkin(pos.Path, dec)
		if err != nil {
			return nil, fmt.Errorf("mosaic: read %q: %w", pos.Path, err)
		}
		if img == nil {
			return nil, fmt.Errorf("mosaic: no image data in %q", pos.Path)
		}
		return img, nil
	}

	out := NewPlane(dest.Width, dest.Height, geom.PixelType, 1)
	var paletteMu sync.Mutex
	forEachSpan(spans, func(sp tileSpan) {
		sub := sp.rect.Intersect(clipped)
		if sub.Empty() {
			return
		}
		pos := slots.at(cur.slot + sp.offset)
		if pos == nil {
			return
		}
		dec, err := pool.Checkout(pos.Path, OpenDefault)
		if err != nil {
			return
		}
		img, err := dec.GetImage(series, resolution, tileLocal(geom, sub), cur.internalZ, cur.internalT, cur.internalC)
		pool.Checkin(pos.Path, dec)
		if err != nil || img == nil || len(img.Channels) == 0 {
			return
		}
		blit(out.Channels[0], dest, img.Channels[0], sub.Downscale(resolution), bps)
		if img.Palette != nil {
			paletteMu.Lock()
			if out.Palette == nil {
				out.Palette = img.Palette
			}
			paletteMu.Unlock()
		}
	})
	return out, nil
}
