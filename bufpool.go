package mosaic

import "sync"

// Scratch buffer pools for the per-tile read paths. Tile reads allocate
// and discard buffers at a high rate; recycling the common sizes keeps GC
// pressure down without holding on to oversized slices.

const (
	rowBufferSize  = 64 * 1024       // one row of a wide tile
	tileBufferSize = 2 * 1024 * 1024 // a full 512x512 multi-byte tile
)

var scratchPool = struct {
	row  sync.Pool
	tile sync.Pool
}{
	row: sync.Pool{
		New: func() any {
			buf := make([]byte, rowBufferSize)
			return &buf
		},
	},
	tile: sync.Pool{
		New: func() any {
			buf := make([]byte, tileBufferSize)
			return &buf
		},
	},
}

// getScratch returns a byte slice of exactly size bytes, backed by a
// pooled allocation when the size fits a pooled tier.
func getScratch(size int) []byte {
	switch {
	case size <= rowBufferSize:
		buf := scratchPool.row.Get().(*[]byte)
		return (*buf)[:size]
	case size <= tileBufferSize:
		buf := scratchPool.tile.Get().(*[]byte)
		return (*buf)[:size]
	default:
		return make([]byte, size)
	}
}

// putScratch returns a slice obtained from getScratch. Non-pooled sizes
// are dropped on the floor.
func putScratch(buf []byte) {
	c := cap(buf)
	if c == 0 {
		return
	}
	buf = buf[:c]
	switch c {
	case rowBufferSize:
		scratchPool.row.Put(&buf)
	case tileBufferSize:
		scratchPool.tile.Put(&buf)
	}
}
