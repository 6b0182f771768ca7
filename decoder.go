package mosaic

import (
	"errors"
	"image"
)

// OpenFlag controls how a group or decoder is opened.
type OpenFlag int

const (
	// OpenDefault opens with full metadata synthesis.
	OpenDefault OpenFlag = 0
	// OpenMinimalMetadata skips per-file metadata queries when the combined
	// metadata is synthesized; only the mosaic geometry is reported.
	OpenMinimalMetadata OpenFlag = 1 << iota
)

// PixelType identifies the storage type of a single sample.
type PixelType int

const (
	PixelUint8 PixelType = iota
	PixelInt8
	PixelUint16
	PixelInt16
	PixelUint32
	PixelInt32
	PixelFloat32
	PixelFloat64
)

// BytesPerSample returns the storage size of one sample of this type.
func (pt PixelType) BytesPerSample() int {
	switch pt {
	case PixelUint8, PixelInt8:
		return 1
	case PixelUint16, PixelInt16:
		return 2
	case PixelUint32, PixelInt32, PixelFloat32:
		return 4
	case PixelFloat64:
		return 8
	default:
		return 1
	}
}

func (pt PixelType) String() string {
	switch pt {
	case PixelUint8:
		return "uint8"
	case PixelInt8:
		return "int8"
	case PixelUint16:
		return "uint16"
	case PixelInt16:
		return "int16"
	case PixelUint32:
		return "uint32"
	case PixelInt32:
		return "int32"
	case PixelFloat32:
		return "float32"
	case PixelFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// ParsePixelType parses the textual form used in group descriptors.
func ParsePixelType(s string) (PixelType, error) {
	switch s {
	case "uint8", "":
		return PixelUint8, nil
	case "int8":
		return PixelInt8, nil
	case "uint16":
		return PixelUint16, nil
	case "int16":
		return PixelInt16, nil
	case "uint32":
		return PixelUint32, nil
	case "int32":
		return PixelInt32, nil
	case "float32":
		return PixelFloat32, nil
	case "float64":
		return PixelFloat64, nil
	}
	return PixelUint8, errors.New("mosaic: unknown pixel type " + s)
}

// Decoder is the capability set the mosaic core requires from a per-file
// image decoder. One decoder instance is bound to at most one file at a
// time; Open on an instance that is already bound to a different path must
// close the previous association before opening the new one.
//
// A decoder instance is never shared between goroutines: between checkout
// and checkin from the pool it is owned exclusively by one caller.
type Decoder interface {
	// Open binds the decoder to path. Path may be a local file or an
	// http(s) URL.
	Open(path string, flags OpenFlag) error
	// Close releases the current file. Closing an unbound decoder is a
	// no-op.
	Close() error
	// GetOpened returns the currently bound path, or "" when unbound.
	GetOpened() string
	// AcceptFile reports whether the decoder recognizes path by name.
	AcceptFile(path string) bool

	// GetPixels reads one channel of one plane sub-region. rect is
	// expressed at full resolution; the returned buffer holds
	// (rect.Width>>resolution) x (rect.Height>>resolution) samples of the
	// file's pixel type. A nil buffer with nil error means the plane has
	// no data.
	GetPixels(series, resolution int, rect Rectangle, z, t, c int) ([]byte, error)
	// GetImage is the image-object variant of GetPixels. The returned
	// plane carries the source color map when the file has one.
	GetImage(series, resolution int, rect Rectangle, z, t, c int) (*Plane, error)

	// GetMetadata returns the per-file metadata.
	GetMetadata() (*Metadata, error)

	GetTileWidth(series int) int
	GetTileHeight(series int) int
	GetThumbnail(series int) (image.Image, error)
}

// DecoderFactory constructs a fresh, unbound decoder instance. The pool
// uses it whenever a path has no pooled decoder and the pool is below
// capacity. All files of one group are assumed to share one format, so one
// factory serves the whole group.
type DecoderFactory func() Decoder
