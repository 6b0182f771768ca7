package mosaic_test

import (
	"testing"

	"github.com/icy-imaging/mosaic"
)

func TestPlaneIndexOrder(t *testing.T) {
	md := &mosaic.Metadata{SizeZ: 3, SizeT: 4, SizeC: 2}
	// XYCZT order: C varies fastest, then Z, then T.
	if md.PlaneIndex(0, 0, 0) != 0 {
		t.Fatalf("PlaneIndex(0,0,0) = %d", md.PlaneIndex(0, 0, 0))
	}
	if md.PlaneIndex(0, 0, 1) != 1 {
		t.Fatalf("PlaneIndex(0,0,1) = %d", md.PlaneIndex(0, 0, 1))
	}
	if md.PlaneIndex(1, 0, 0) != 2 {
		t.Fatalf("PlaneIndex(1,0,0) = %d", md.PlaneIndex(1, 0, 0))
	}
	if md.PlaneIndex(0, 1, 0) != 6 {
		t.Fatalf("PlaneIndex(0,1,0) = %d", md.PlaneIndex(0, 1, 0))
	}
	if md.PlaneIndex(2, 3, 1) != 3*6+2*2+1 {
		t.Fatalf("PlaneIndex(2,3,1) = %d", md.PlaneIndex(2, 3, 1))
	}
}

func TestMetadataSynthesis(t *testing.T) {
	store := newFakeStore()
	ref := newFakeFile(64, 64, mosaic.PixelUint16)
	ref.channels = []mosaic.ChannelInfo{{Name: "dapi", EmissionWavelength: 461}}
	ref.planeMeta[[3]int{0, 0, 0}] = &mosaic.PlaneInfo{
		DeltaT:         1.5,
		ExposureTime:   0.02,
		PositionX:      10,
		AnnotationRefs: []string{"ann-1"},
	}
	store.add("c0.raw", ref)

	gfp := newFakeFile(64, 64, mosaic.PixelUint16)
	gfp.channels = []mosaic.ChannelInfo{{Name: "gfp", EmissionWavelength: 509}}
	store.add("c1.raw", gfp)

	geom := mustGeometry(t, mosaic.Geometry{
		BaseSizeX: 64, BaseSizeY: 64, BaseSizeZ: 1, BaseSizeT: 1, BaseSizeC: 1,
		TotalSizeX: 64, TotalSizeY: 64, TotalSizeZ: 1, TotalSizeT: 1, TotalSizeC: 2,
		PixelType:  mosaic.PixelUint16,
		PixelSizeX: 0.65, PixelSizeY: 0.65,
	})
	grp, err := mosaic.NewGroup(geom, []mosaic.SourcePosition{
		{Path: "c0.raw", C: 0},
		{Path: "c1.raw", C: 1},
	}, store.factory(), mosaic.OpenDefault)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	defer grp.Close()

	md, err := grp.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if md.SizeX != 64 || md.SizeY != 64 || md.SizeC != 2 {
		t.Fatalf("size = %dx%d C=%d", md.SizeX, md.SizeY, md.SizeC)
	}
	if md.PixelType != mosaic.PixelUint16 {
		t.Fatalf("pixel type = %v", md.PixelType)
	}
	if md.PixelSizeX != 0.65 {
		t.Fatalf("pixel size = %g, want 0.65", md.PixelSizeX)
	}

	if len(md.Channels) != 2 {
		t.Fatalf("got %d channels", len(md.Channels))
	}
	if md.Channels[0].Name != "dapi" || md.Channels[1].Name != "gfp" {
		t.Fatalf("channels = %q,%q", md.Channels[0].Name, md.Channels[1].Name)
	}

	if len(md.Planes) != 2 {
		t.Fatalf("got %d planes", len(md.Planes))
	}
	p := md.Plane(0, 0, 0)
	if p == nil {
		t.Fatalf("plane (0,0,0) missing")
	}
	if p.DeltaT != 1.5 || p.ExposureTime != 0.02 || p.PositionX != 10 {
		t.Fatalf("plane attrs not carried over: %+v", p)
	}
	if p.Z != 0 || p.T != 0 || p.C != 0 {
		t.Fatalf("plane coords = (%d,%d,%d)", p.Z, p.T, p.C)
	}
	if p.AnnotationRefs != nil {
		t.Fatalf("annotation refs survived repositioning: %v", p.AnnotationRefs)
	}
	// The source descriptor must not have been mutated.
	if ref.planeMeta[[3]int{0, 0, 0}].AnnotationRefs == nil {
		t.Fatalf("source plane metadata was mutated")
	}
}

func TestMetadataGlobalCoordinates(t *testing.T) {
	store := newFakeStore()
	f0 := newFakeFile(32, 32, mosaic.PixelUint8)
	f0.sizeZ = 2
	store.add("z0.raw", f0)
	f1 := newFakeFile(32, 32, mosaic.PixelUint8)
	f1.sizeZ = 2
	store.add("z1.raw", f1)

	geom := mustGeometry(t, mosaic.Geometry{
		BaseSizeX: 32, BaseSizeY: 32, BaseSizeZ: 2, BaseSizeT: 1, BaseSizeC: 1,
		TotalSizeX: 32, TotalSizeY: 32, TotalSizeZ: 4, TotalSizeT: 1, TotalSizeC: 1,
	})
	grp, err := mosaic.NewGroup(geom, []mosaic.SourcePosition{
		{Path: "z0.raw", Z: 0},
		{Path: "z1.raw", Z: 1},
	}, store.factory(), mosaic.OpenDefault)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	defer grp.Close()

	md, err := grp.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if md.SizeZ != 4 || len(md.Planes) != 4 {
		t.Fatalf("SizeZ=%d planes=%d", md.SizeZ, len(md.Planes))
	}
	for z := 0; z < 4; z++ {
		p := md.Plane(z, 0, 0)
		if p == nil {
			t.Fatalf("plane z=%d missing", z)
		}
		// Plane coordinates are mosaic-global, not file-local.
		if p.Z != z {
			t.Fatalf("plane at z=%d carries Z=%d", z, p.Z)
		}
	}
}

func TestMetadataHolesYieldPlaceholders(t *testing.T) {
	store := newFakeStore()
	store.add("z0.raw", newFakeFile(32, 32, mosaic.PixelUint8))

	geom := mustGeometry(t, mosaic.Geometry{
		BaseSizeX: 32, BaseSizeY: 32, BaseSizeZ: 1, BaseSizeT: 1, BaseSizeC: 1,
		TotalSizeX: 32, TotalSizeY: 32, TotalSizeZ: 2, TotalSizeT: 1, TotalSizeC: 1,
	})
	grp, err := mosaic.NewGroup(geom, []mosaic.SourcePosition{
		{Path: "z0.raw", Z: 0},
	}, store.factory(), mosaic.OpenDefault)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	defer grp.Close()

	md, err := grp.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	p := md.Plane(1, 0, 0)
	if p == nil {
		t.Fatalf("hole plane missing, want an empty placeholder")
	}
	if p.Z != 1 || p.DeltaT != 0 {
		t.Fatalf("hole placeholder = %+v", p)
	}
}

func TestMetadataMinimalSkipsFileQueries(t *testing.T) {
	store := newFakeStore()
	ref := newFakeFile(64, 64, mosaic.PixelUint8)
	ref.channels = []mosaic.ChannelInfo{{Name: "dapi"}}
	store.add("a.raw", ref)
	store.add("b.raw", newFakeFile(64, 64, mosaic.PixelUint8))

	geom := mustGeometry(t, mosaic.Geometry{
		BaseSizeX: 64, BaseSizeY: 64, BaseSizeZ: 1, BaseSizeT: 1, BaseSizeC: 1,
		TotalSizeX: 128, TotalSizeY: 64, TotalSizeZ: 1, TotalSizeT: 1, TotalSizeC: 1,
	})
	grp, err := mosaic.NewGroup(geom, []mosaic.SourcePosition{
		{Path: "a.raw", X: 0},
		{Path: "b.raw", X: 1},
	}, store.factory(), mosaic.OpenMinimalMetadata)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	defer grp.Close()

	md, err := grp.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if store.createdCount() != 0 {
		t.Fatalf("minimal metadata opened %d decoders, want 0", store.createdCount())
	}
	if md.Channels[0].Name != "ch 0" {
		t.Fatalf("minimal channel name = %q, want the default", md.Channels[0].Name)
	}
	if len(md.Planes) != 1 || md.Planes[0] == nil {
		t.Fatalf("minimal metadata still pre-allocates plane placeholders")
	}
}

func TestMetadataFailedFileYieldsPlaceholder(t *testing.T) {
	store := newFakeStore()
	store.add("a.raw", newFakeFile(32, 32, mosaic.PixelUint8))
	store.add("bad.raw", newFakeFile(32, 32, mosaic.PixelUint8))
	store.failOpen["bad.raw"] = true

	geom := mustGeometry(t, mosaic.Geometry{
		BaseSizeX: 32, BaseSizeY: 32, BaseSizeZ: 1, BaseSizeT: 1, BaseSizeC: 1,
		TotalSizeX: 32, TotalSizeY: 32, TotalSizeZ: 2, TotalSizeT: 1, TotalSizeC: 1,
	})
	grp, err := mosaic.NewGroup(geom, []mosaic.SourcePosition{
		{Path: "a.raw", Z: 0},
		{Path: "bad.raw", Z: 1},
	}, store.factory(), mosaic.OpenDefault)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	defer grp.Close()

	md, err := grp.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata must not fail on a broken file: %v", err)
	}
	p := md.Plane(1, 0, 0)
	if p == nil || p.Z != 1 {
		t.Fatalf("broken file plane = %+v, want a placeholder at Z=1", p)
	}
}

func TestMetadataCached(t *testing.T) {
	store := newFakeStore()
	store.add("a.raw", newFakeFile(32, 32, mosaic.PixelUint8))

	geom := mustGeometry(t, mosaic.Geometry{
		BaseSizeX: 32, BaseSizeY: 32, BaseSizeZ: 1, BaseSizeT: 1, BaseSizeC: 1,
		TotalSizeX: 32, TotalSizeY: 32, TotalSizeZ: 1, TotalSizeT: 1, TotalSizeC: 1,
	})
	grp, err := mosaic.NewGroup(geom, []mosaic.SourcePosition{{Path: "a.raw"}}, store.factory(), mosaic.OpenDefault)
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	defer grp.Close()

	md1, err := grp.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	md2, err := grp.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if md1 != md2 {
		t.Fatalf("second GetMetadata resynthesized instead of using the cache")
	}

	grp.Close()
	if _, err := grp.GetMetadata(); err == nil {
		t.Fatalf("GetMetadata on a closed group must fail")
	}
}

func TestGroupNameDerivation(t *testing.T) {
	store := newFakeStore()
	store.add("/data/exp1_pos_A.raw", newFakeFile(32, 32, mosaic.PixelUint8))
	store.add("/data/exp1_pos_B.raw", newFakeFile(32, 32, mosaic.PixelUint8))

	t.Run("single file uses its base name", func(t *testing.T) {
		geom := mustGeometry(t, mosaic.Geometry{
			BaseSizeX: 32, BaseSizeY: 32, BaseSizeZ: 1, BaseSizeT: 1, BaseSizeC: 1,
			TotalSizeX: 32, TotalSizeY: 32, TotalSizeZ: 1, TotalSizeT: 1, TotalSizeC: 1,
		})
		grp, err := mosaic.NewGroup(geom, []mosaic.SourcePosition{
			{Path: "/data/exp1_pos_A.raw"},
		}, store.factory(), mosaic.OpenMinimalMetadata)
		if err != nil {
			t.Fatalf("NewGroup: %v", err)
		}
		defer grp.Close()
		md, err := grp.GetMetadata()
		if err != nil {
			t.Fatalf("GetMetadata: %v", err)
		}
		if md.Name != "exp1_pos_A" {
			t.Fatalf("name = %q, want %q", md.Name, "exp1_pos_A")
		}
	})

	t.Run("multiple files share their common prefix", func(t *testing.T) {
		geom := mustGeometry(t, mosaic.Geometry{
			BaseSizeX: 32, BaseSizeY: 32, BaseSizeZ: 1, BaseSizeT: 1, BaseSizeC: 1,
			TotalSizeX: 64, TotalSizeY: 32, TotalSizeZ: 1, TotalSizeT: 1, TotalSizeC: 1,
		})
		grp, err := mosaic.NewGroup(geom, []mosaic.SourcePosition{
			{Path: "/data/exp1_pos_A.raw", X: 0},
			{Path: "/data/exp1_pos_B.raw", X: 1},
		}, store.factory(), mosaic.OpenMinimalMetadata)
		if err != nil {
			t.Fatalf("NewGroup: %v", err)
		}
		defer grp.Close()
		md, err := grp.GetMetadata()
		if err != nil {
			t.Fatalf("GetMetadata: %v", err)
		}
		if md.Name != "exp1_pos" {
			t.Fatalf("name = %q, want %q", md.Name, "exp1_pos")
		}
	})
}
