package raster

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/render3/backend/soft"
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

func TestHZBDesc(t *testing.T) {
	d := HZBDesc(64, 64)
	if d.Width != 32 || d.Height != 32 {
		t.Errorf("base = %dx%d, want 32x32", d.Width, d.Height)
	}
	if d.Mips != 6 {
		t.Errorf("mips = %d, want 6 (down to 1x1)", d.Mips)
	}

	d = HZBDesc(1920, 1080)
	if d.Width != 1024 || d.Height != 1024 {
		t.Errorf("base = %dx%d, want 1024x1024", d.Width, d.Height)
	}
}

// buildTestHZB runs the HZB passes over an imported depth texture.
func buildTestHZB(t *testing.T, dev *soft.Device, depth rhi.Resource) *soft.Texture {
	t.Helper()

	r, err := NewRasterizer(dev)
	if err != nil {
		t.Fatal(err)
	}
	pool := graph.NewPool(dev)
	g := graph.New(dev, pool)

	desc := depth.Desc()
	view := &scene.View{Width: desc.Width, Height: desc.Height}

	depthV := g.Import("Depth", depth)
	hzb := r.InitHZB(g, desc.Width, desc.Height)
	var keep rhi.Resource
	g.Export(hzb, &keep)
	r.BuildHZB(g, view, depthV, hzb)

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	return keep.(*soft.Texture)
}

func TestHZBSingleTriangleReducesToClearValue(t *testing.T) {
	dev := soft.NewDevice()

	depthRes, err := dev.CreateTexture(
		rhi.CreateDepth(64, 64, gputypes.TextureFormatR32Float, 1), "Depth")
	if err != nil {
		t.Fatal(err)
	}
	depth := depthRes.(*soft.Texture)

	// A triangle-ish patch of written depth in the middle of the cleared
	// (0 = far) target.
	const triDepth = 0.25
	for y := uint32(20); y < 40; y++ {
		for x := uint32(20); x < 20+(y-20); x++ {
			depth.Store(0, x, y, 0, [4]float32{triDepth})
		}
	}

	hzb := buildTestHZB(t, dev, depthRes)

	if hzb.MipCount() != 6 {
		t.Fatalf("mip count = %d, want 6", hzb.MipCount())
	}
	if w, h, _ := hzb.Dims(5); w != 1 || h != 1 {
		t.Fatalf("mip 5 = %dx%d, want 1x1", w, h)
	}

	// The coarsest texel holds the farthest depth on screen: the min of
	// the triangle's depth and the clear value 0.
	if got := hzb.Load(5, 0, 0, 0)[0]; got != 0 {
		t.Errorf("mip 5 texel = %v, want 0 (clear value)", got)
	}

	// Somewhere over the triangle, mip 0 carries its depth.
	if got := hzb.Load(0, 13, 15, 0)[0]; got != triDepth {
		t.Errorf("mip 0 over triangle = %v, want %v", got, triDepth)
	}
}

func TestHZBReductionIsConservative(t *testing.T) {
	dev := soft.NewDevice()

	depthRes, err := dev.CreateTexture(
		rhi.CreateDepth(64, 64, gputypes.TextureFormatR32Float, 1), "Depth")
	if err != nil {
		t.Fatal(err)
	}
	depth := depthRes.(*soft.Texture)

	// Deterministic varied depth pattern.
	for y := uint32(0); y < 64; y++ {
		for x := uint32(0); x < 64; x++ {
			depth.Store(0, x, y, 0, [4]float32{float32((x*31+y*17)%97) / 97})
		}
	}

	hzb := buildTestHZB(t, dev, depthRes)

	// Every texel at mip m is <= all four source texels at mip m-1.
	for m := 1; m < hzb.MipCount(); m++ {
		w, h, _ := hzb.Dims(m)
		pw, ph, _ := hzb.Dims(m - 1)
		for y := uint32(0); y < h; y++ {
			for x := uint32(0); x < w; x++ {
				v := hzb.Load(m, x, y, 0)[0]
				for dy := uint32(0); dy < 2; dy++ {
					for dx := uint32(0); dx < 2; dx++ {
						sx := min(x*2+dx, pw-1)
						sy := min(y*2+dy, ph-1)
						if src := hzb.Load(m-1, sx, sy, 0)[0]; v > src {
							t.Fatalf("mip %d (%d,%d) = %v exceeds source %v", m, x, y, v, src)
						}
					}
				}
			}
		}
	}
}
