package render3

import (
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/gogpu/render3/backend/soft"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/scene"
)

// frameView builds a minimal renderable view: one quad in front of the
// camera and one point light.
func frameView() *scene.View {
	proj := math3.PerspectiveReverseZ(math32.Pi/2, 1, 0.1, 100)
	view := math3.LookTo(math3.Zero3, math3.Forward, math3.Up)
	vp := proj.Mul(view)
	vpInv, _ := vp.Inverted()

	mesh := &scene.Mesh{
		Positions: []math3.Vec3{
			{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
		Meshlets: []scene.Meshlet{{
			Bounds:        math3.Sphere{Radius: 1.5},
			ConeCutoff:    1,
			TriangleCount: 2,
		}},
		Bounds: math3.Sphere{Radius: 1.5},
	}

	return &scene.View{
		View:              view,
		Projection:        proj,
		ViewProjection:    vp,
		ViewProjectionInv: vpInv,
		Near:              0.1,
		Far:               100,
		Frustum:           math3.FrustumFromMatrix(vp),
		Meshes:            []*scene.Mesh{mesh},
		Batches: []scene.Batch{{
			World:  math3.Translation(math3.V3(0, 0, 5)),
			Bounds: math3.Sphere{Center: math3.V3(0, 0, 5), Radius: 1.5},
		}},
		Lights: []scene.Light{
			{Type: scene.LightPoint, Position: math3.V3(0, 2, 4), Range: 10,
				Color: math3.V3(1, 1, 1), Intensity: 2},
			{Type: scene.LightDirectional, Direction: math3.V3(0.2, -1, 0.3).Normalized(),
				Color: math3.V3(1, 1, 1), Intensity: 1, CastShadows: true},
		},
	}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	dev := soft.NewDevice()
	r, err := New(dev, Options{Width: 128, Height: 128, ScreenshotDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRenderFrameEndToEnd(t *testing.T) {
	r := newTestRenderer(t)
	view := frameView()

	for frame := 0; frame < 3; frame++ {
		fence, err := r.RenderFrame(view)
		if err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
		if !r.device.IsFenceComplete(fence) {
			t.Fatalf("frame %d fence incomplete", frame)
		}
	}

	// The persistent HZB slot filled after the first occlusion-culled
	// frame.
	if r.previousHZB == nil {
		t.Error("no persistent HZB after rendered frames")
	}

	// Shadow data was partitioned for the casting directional light.
	if len(view.Shadow.LightViewProjections) == 0 {
		t.Error("no shadow slots assigned")
	}
}

func TestRenderFrameScreenshot(t *testing.T) {
	r := newTestRenderer(t)
	view := frameView()

	r.RequestScreenshot()
	if _, err := r.RenderFrame(view); err != nil {
		t.Fatal(err)
	}
	// The soft device completes synchronously, so the PNG was written
	// during the same RenderFrame's poll.
	if r.shots.PendingCount() != 0 {
		t.Error("screenshot still pending")
	}
}

func TestDumpGraphOnce(t *testing.T) {
	r := newTestRenderer(t)
	view := frameView()

	var sb strings.Builder
	r.DumpGraphOnce(&sb)
	if _, err := r.RenderFrame(view); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	if !strings.Contains(out, "digraph") || !strings.Contains(out, "Rasterize") {
		t.Errorf("dump missing expected content:\n%.400s", out)
	}

	// One-shot: the next frame must not dump again.
	before := sb.Len()
	if _, err := r.RenderFrame(view); err != nil {
		t.Fatal(err)
	}
	if sb.Len() != before {
		t.Error("dump ran on a second frame")
	}
}

func TestResizeDropsHZBHistory(t *testing.T) {
	r := newTestRenderer(t)
	view := frameView()

	if _, err := r.RenderFrame(view); err != nil {
		t.Fatal(err)
	}
	if r.previousHZB == nil {
		t.Fatal("no HZB after first frame")
	}

	if err := r.Resize(256, 256); err != nil {
		t.Fatal(err)
	}
	if r.previousHZB != nil {
		t.Error("stale HZB survived resize")
	}

	if _, err := r.RenderFrame(view); err != nil {
		t.Fatalf("frame after resize: %v", err)
	}
}

func TestTonemapOperators(t *testing.T) {
	in := [3]float32{2, 0.5, 0}
	for mode := uint32(0); mode <= 4; mode++ {
		out := tonemap(in, composeConstants{Tonemapper: mode, ExposureMax: 10})
		for i, v := range out {
			if v < 0 || v > 1.05 {
				t.Errorf("mode %d channel %d = %v out of display range", mode, i, v)
			}
		}
	}
}

func TestShadeVisibilityStable(t *testing.T) {
	if shadeVisibility(0) != ([3]float32{}) {
		t.Error("background did not shade to black")
	}
	a := shadeVisibility(129)
	b := shadeVisibility(129)
	if a != b {
		t.Error("shading not deterministic")
	}
}
