// Package mosaic presents a logically huge 5-dimensional (X,Y,Z,T,C)
// image, physically scattered across many per-tile source files, as one
// addressable image. Requested sub-regions are reassembled on demand from
// the contributing tiles through a bounded pool of per-file decoders.
package mosaic

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotOpen is returned by operations on a group that has not been opened
// or has been closed.
var ErrNotOpen = errors.New("mosaic: group is not open")

// ErrSeries is returned for series indexes other than 0; a file group
// always assembles into a single series.
var ErrSeries = errors.New("mosaic: series out of range")

// Group is an open mosaic: the immutable geometry and slot table built
// from a group descriptor, plus the shared decoder pool. All read
// operations are safe for concurrent use by multiple goroutines.
type Group struct {
	mu     sync.Mutex
	open   bool
	opened string
	flags  OpenFlag
	name   string

	geom  *Geometry
	slots slotTable
	pool  *DecoderPool

	meta *Metadata // synthesized metadata, built once per open
}

// Open loads the group descriptor at path and opens the mosaic it
// describes.
func Open(path string, flags OpenFlag) (*Group, error) {
	g := &Group{}
	if err := g.Open(path, flags); err != nil {
		return nil, err
	}
	return g, nil
}

// Open (re)opens the group from a descriptor file. Any previous state,
// including pooled decoders and cached metadata, is discarded first.
func (g *Group) Open(path string, flags OpenFlag) error {
	desc, err := LoadDescriptor(path)
	if err != nil {
		return err
	}
	geom, err := desc.Geometry()
	if err != nil {
		return err
	}
	factory, err := desc.Factory()
	if err != nil {
		return err
	}
	if err := g.openWith(geom, desc.SourcePositions(), factory, flags); err != nil {
		return err
	}
	g.mu.Lock()
	g.opened = path
	g.name = desc.Name
	g.mu.Unlock()
	return nil
}

// NewGroup opens a mosaic directly from a geometry, a set of source
// positions and a decoder factory, bypassing descriptor files. The factory
// determines the concrete decoder implementation used for every file of
// the group.
func NewGroup(geom *Geometry, positions []SourcePosition, factory DecoderFactory, flags OpenFlag) (*Group, error) {
	g := &Group{}
	if err := g.openWith(geom, positions, factory, flags); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Group) openWith(geom *Geometry, positions []SourcePosition, factory DecoderFactory, flags OpenFlag) error {
	if geom == nil {
		return fmt.Errorf("mosaic: nil geometry")
	}
	if factory == nil {
		return fmt.Errorf("mosaic: nil decoder factory")
	}
	slots, err := buildSlotTable(geom, positions)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		g.pool.CloseAll()
	}
	g.geom = geom
	g.slots = slots
	g.pool = NewDecoderPool(DefaultPoolCapacity, factory)
	g.flags = flags
	g.meta = nil
	g.opened = ""
	g.name = ""
	g.open = true
	return nil
}

// Close releases the group: every pooled decoder is closed and the cached
// metadata is dropped. Closing a closed group is a no-op.
func (g *Group) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return nil
	}
	g.pool.CloseAll()
	g.open = false
	g.meta = nil
	return nil
}

// IsOpen reports whether the group currently has an open mosaic.
func (g *Group) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// GetOpened returns the descriptor path the group was opened from, or ""
// when the group is closed or was opened directly via NewGroup.
func (g *Group) GetOpened() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return ""
	}
	return g.opened
}

// state snapshots the open group's immutable parts for a read operation.
func (g *Group) state() (*Geometry, slotTable, *DecoderPool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return nil, nil, nil, ErrNotOpen
	}
	return g.geom, g.slots, g.pool, nil
}

// Geometry returns the mosaic geometry, or nil when the group is closed.
func (g *Group) Geometry() *Geometry {
	geom, _, _, err := g.state()
	if err != nil {
		return nil
	}
	return geom
}

// IsStitchedImage reports whether the assembled XY size exceeds one base
// tile, i.e. whether region reads may need to stitch multiple files.
func (g *Group) IsStitchedImage() bool {
	geom := g.Geometry()
	return geom != nil && geom.Tiled()
}

// GetTileWidth returns the XY tile width used for stitched assembly.
func (g *Group) GetTileWidth(series int) int {
	geom := g.Geometry()
	if geom == nil || series != 0 {
		return 0
	}
	return geom.BaseSizeX
}

// GetTileHeight returns the XY tile height used for stitched assembly.
func (g *Group) GetTileHeight(series int) int {
	geom := g.Geometry()
	if geom == nil || series != 0 {
		return 0
	}
	return geom.BaseSizeY
}

// Width returns the assembled mosaic width in pixels.
func (g *Group) Width() int {
	if geom := g.Geometry(); geom != nil {
		return geom.TotalSizeX
	}
	return 0
}

// Height returns the assembled mosaic height in pixels.
func (g *Group) Height() int {
	if geom := g.Geometry(); geom != nil {
		return geom.TotalSizeY
	}
	return 0
}

// SizeZ returns the assembled stack depth.
func (g *Group) SizeZ() int {
	if geom := g.Geometry(); geom != nil {
		return geom.TotalSizeZ
	}
	return 0
}

// SizeT returns the assembled time-point count.
func (g *Group) SizeT() int {
	if geom := g.Geometry(); geom != nil {
		return geom.TotalSizeT
	}
	return 0
}

// SizeC returns the assembled channel count.
func (g *Group) SizeC() int {
	if geom := g.Geometry(); geom != nil {
		return geom.TotalSizeC
	}
	return 0
}

// DataType returns the pixel type of the mosaic.
func (g *Group) DataType() PixelType {
	if geom := g.Geometry(); geom != nil {
		return geom.PixelType
	}
	return PixelUint8
}
