package mosaic

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ChannelInfo describes one acquisition channel.
type ChannelInfo struct {
	Name                 string
	EmissionWavelength   float64 // nm, <= 0 unknown
	ExcitationWavelength float64 // nm, <= 0 unknown
}

// PlaneInfo describes one (z,t,c) plane. Z/T/C are coordinates in the
// image the metadata belongs to: file-local in per-file metadata,
// mosaic-global in synthesized metadata.
type PlaneInfo struct {
	Z, T, C      int
	DeltaT       float64 // seconds since acquisition start
	ExposureTime float64 // seconds
	// Stage position of the plane, micrometres.
	PositionX, PositionY, PositionZ float64
	// AnnotationRefs links the plane to file-level annotations. The refs
	// are dropped when a plane is repositioned into a mosaic, where they
	// no longer resolve.
	AnnotationRefs []string
}

// Metadata summarizes a single image: either one source file, or the
// whole assembled mosaic as if it were one image.
type Metadata struct {
	Name  string
	SizeX int
	SizeY int
	SizeZ int
	SizeT int
	SizeC int

	PixelType PixelType

	// Physical calibration, micrometres / seconds. Zero means unknown;
	// unknown values are left unset rather than written as zero.
	PixelSizeX, PixelSizeY, PixelSizeZ float64
	TimeInterval                       float64

	Channels []ChannelInfo
	Planes   []*PlaneInfo
}

// PlaneIndex returns the canonical flat index of plane (z,t,c) under the
// XYCZT dimension order.
func (m *Metadata) PlaneIndex(z, t, c int) int {
	return t*m.SizeZ*m.SizeC + z*m.SizeC + c
}

// Plane returns the descriptor stored for (z,t,c), or nil when out of
// range or not populated.
func (m *Metadata) Plane(z, t, c int) *PlaneInfo {
	if z < 0 || z >= m.SizeZ || t < 0 || t >= m.SizeT || c < 0 || c >= m.SizeC {
		return nil
	}
	i := m.PlaneIndex(z, t, c)
	if i < 0 || i >= len(m.Planes) {
		return nil
	}
	return m.Planes[i]
}

func (p *PlaneInfo) clone() *PlaneInfo {
	if p == nil {
		return &PlaneInfo{}
	}
	cp := *p
	cp.AnnotationRefs = append([]string(nil), p.AnnotationRefs...)
	return &cp
}

// GetMetadata returns the combined metadata describing the whole mosaic.
// It is synthesized on first request and cached until the group is closed
// or reopened.
func (g *Group) GetMetadata() (*Metadata, error) {
	g.mu.Lock()
	if !g.open {
		g.mu.Unlock()
		return nil, ErrNotOpen
	}
	if g.meta != nil {
		meta := g.meta
		g.mu.Unlock()
		return meta, nil
	}
	geom, slots, pool, flags, name := g.geom, g.slots, g.pool, g.flags, g.name
	g.mu.Unlock()

	meta := synthesizeMetadata(geom, slots, pool, flags, name)

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return nil, ErrNotOpen
	}
	if g.meta == nil {
		g.meta = meta
	}
	return g.meta, nil
}

// synthesizeMetadata builds one Metadata object for the assembled mosaic.
// Per-file metadata is queried only for the positions that need it: the
// (0,0,0) reference file for image-level attributes, and each occupied
// slot for plane-level attributes. Holes and failed decoders yield empty
// placeholders, never errors.
func synthesizeMetadata(geom *Geometry, slots slotTable, pool *DecoderPool, flags OpenFlag, name string) *Metadata {
	full := flags&OpenMinimalMetadata == 0

	out := &Metadata{}
	if full {
		cur := resolveCursor(geom, slots, 0, 0, 0)
		if cur.pos != nil {
			if src := fetchFileMetadata(pool, cur.pos.Path); src != nil {
				// Image-level attributes of the reference file seed the
				// combined object; geometry fields are overwritten below.
				*out = *src
				out.Channels = nil
				out.Planes = nil
			}
		}
	}

	out.Name = groupName(name, slots)
	out.SizeX = geom.TotalSizeX
	out.SizeY = geom.TotalSizeY
	out.SizeZ = geom.TotalSizeZ
	out.SizeT = geom.TotalSizeT
	out.SizeC = geom.TotalSizeC
	out.PixelType = geom.PixelType
	if geom.PixelSizeX > 0 {
		out.PixelSizeX = geom.PixelSizeX
	}
	if geom.PixelSizeY > 0 {
		out.PixelSizeY = geom.PixelSizeY
	}
	if geom.PixelSizeZ > 0 {
		out.PixelSizeZ = geom.PixelSizeZ
	}
	if geom.TimeInterval > 0 {
		out.TimeInterval = geom.TimeInterval
	}

	out.Channels = make([]ChannelInfo, out.SizeC)
	for c := range out.Channels {
		out.Channels[c] = ChannelInfo{Name: fmt.Sprintf("ch %d", c)}
	}
	out.Planes = make([]*PlaneInfo, out.SizeZ*out.SizeT*out.SizeC)

	for c := 0; c < out.SizeC; c++ {
		for z := 0; z < out.SizeZ; z++ {
			for t := 0; t < out.SizeT; t++ {
				cur := resolveCursor(geom, slots, z, t, c)
				var plane *PlaneInfo
				if full && cur.pos != nil {
					if src := fetchFileMetadata(pool, cur.pos.Path); src != nil {
						if z == 0 && t == 0 {
							if cur.internalC < len(src.Channels) {
								out.Channels[c] = src.Channels[cur.internalC]
							}
						}
						if p := src.Plane(cur.internalZ, cur.internalT, cur.internalC); p != nil {
							plane = p.clone()
							// Annotation links are meaningless once the
							// plane is repositioned into the mosaic.
							plane.AnnotationRefs = nil
						}
					}
				}
				if plane == nil {
					plane = &PlaneInfo{}
				}
				plane.Z, plane.T, plane.C = z, t, c
				out.Planes[out.PlaneIndex(z, t, c)] = plane
			}
		}
	}
	return out
}

// fetchFileMetadata checks a decoder out for path, queries its metadata
// and checks it back in. Any failure yields nil; metadata synthesis never
// aborts on a single file.
func fetchFileMetadata(pool *DecoderPool, path string) *Metadata {
	dec, err := pool.Checkout(path, OpenDefault)
	if err != nil {
		return nil
	}
	md, err := dec.GetMetadata()
	pool.Checkin(path, dec)
	if err != nil {
		return nil
	}
	return md
}

// groupName derives the combined image name: the single source file's
// base name when the group has exactly one position, the descriptor name
// when one was given, else a base synthesized from the common prefix of
// the position file names.
func groupName(descName string, slots slotTable) string {
	var paths []string
	for _, pos := range slots {
		if pos != nil {
			paths = append(paths, pos.Path)
		}
	}
	if len(paths) == 1 {
		base := filepath.Base(paths[0])
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	if descName != "" {
		return descName
	}
	if len(paths) == 0 {
		return "empty group"
	}
	prefix := filepath.Base(paths[0])
	prefix = strings.TrimSuffix(prefix, filepath.Ext(prefix))
	for _, p := range paths[1:] {
		base := filepath.Base(p)
		for !strings.HasPrefix(base, prefix) && prefix != "" {
			prefix = prefix[:len(prefix)-1]
		}
	}
	prefix = strings.TrimRight(prefix, "_-. ")
	if prefix == "" {
		return "group"
	}
	return prefix
}
