package mosaic

import "fmt"

// SourcePosition places one source file on the mosaic grid. X..C are
// external grid coordinates (tile units, not pixels).
type SourcePosition struct {
	Path string
	X    int
	Y    int
	Z    int
	T    int
	C    int
}

// slotTable maps flat slot indices to source positions. A nil entry is a
// hole: no file was supplied for that grid cell, and reads covering it are
// blank-filled. The table is built once at open time and never mutated.
type slotTable []*SourcePosition

// buildSlotTable scans the known source positions and places each one at
// its flat slot index. Positions outside the grid are rejected; a position
// landing on an occupied slot replaces the previous occupant, matching the
// last-one-wins behavior of rebuilding a group from a file listing.
func buildSlotTable(g *Geometry, positions []SourcePosition) (slotTable, error) {
	gx, gy, gz, gt, gc := g.GridSize()
	table := make(slotTable, g.SlotCount())
	for i := range positions {
		p := &positions[i]
		if p.X < 0 || p.X >= gx || p.Y < 0 || p.Y >= gy ||
			p.Z < 0 || p.Z >= gz || p.T < 0 || p.T >= gt ||
			p.C < 0 || p.C >= gc {
			return nil, fmt.Errorf("mosaic: position %q (%d,%d,%d,%d,%d) outside %dx%dx%dx%dx%d grid",
				p.Path, p.X, p.Y, p.Z, p.T, p.C, gx, gy, gz, gt, gc)
		}
		table[g.SlotIndex(p.X, p.Y, p.Z, p.T, p.C)] = p
	}
	return table, nil
}

// fileCursor is the request-scoped result of resolving global Z/T/C
// coordinates: the source position anchoring the (0,0) tile of that
// Z/T/C combination (nil for a hole), its flat slot index, and the
// within-tile remainders.
type fileCursor struct {
	pos                             *SourcePosition
	slot                            int
	internalZ, internalT, internalC int
}

// resolveCursor decomposes global z/t/c into external grid coordinates and
// internal remainders and looks up the slot at external (0,0,z,t,c). An
// absent position is not an error; it signals a hole in the mosaic.
func resolveCursor(g *Geometry, table slotTable, z, t, c int) fileCursor {
	cur := fileCursor{
		internalZ: z % g.BaseSizeZ,
		internalT: t % g.BaseSizeT,
		internalC: c % g.BaseSizeC,
	}
	cur.slot = g.SlotIndex(0, 0, z/g.BaseSizeZ, t/g.BaseSizeT, c/g.BaseSizeC)
	if cur.slot >= 0 && cur.slot < len(table) {
		cur.pos = table[cur.slot]
	}
	return cur
}
