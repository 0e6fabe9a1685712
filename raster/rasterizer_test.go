package raster

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/render3/backend/soft"
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

// quadMesh builds a camera-facing quad of the given half size as a single
// two-triangle meshlet with the cone test disabled.
func quadMesh(half float32) *scene.Mesh {
	return &scene.Mesh{
		Positions: []math3.Vec3{
			{X: -half, Y: -half}, {X: half, Y: -half},
			{X: half, Y: half}, {X: -half, Y: half},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
		Meshlets: []scene.Meshlet{{
			Bounds:        math3.Sphere{Radius: half * 1.5},
			ConeCutoff:    1,
			TriangleCount: 2,
		}},
		Bounds: math3.Sphere{Radius: half * 1.5},
	}
}

// occlusionView is a camera at the origin looking down +Z with a large
// quad at z=5 fully covering a smaller one at z=10.
func occlusionView() *scene.View {
	proj := math3.PerspectiveReverseZ(math32.Pi/2, 1, 0.1, 100)
	view := math3.LookTo(math3.Zero3, math3.Forward, math3.Up)
	vp := proj.Mul(view)
	vpInv, _ := vp.Inverted()

	front := quadMesh(2)
	back := quadMesh(1)

	v := &scene.View{
		View:              view,
		Projection:        proj,
		ViewProjection:    vp,
		ViewProjectionInv: vpInv,
		Near:              0.1,
		Far:               100,
		Frustum:           math3.FrustumFromMatrix(vp),
		Width:             64,
		Height:            64,
		Meshes:            []*scene.Mesh{front, back},
		Batches: []scene.Batch{
			{
				InstanceID: 0, MeshIndex: 0,
				World:  math3.Translation(math3.V3(0, 0, 5)),
				Bounds: math3.Sphere{Center: math3.V3(0, 0, 5), Radius: 3},
			},
			{
				InstanceID: 1, MeshIndex: 1,
				World:  math3.Translation(math3.V3(0, 0, 10)),
				Bounds: math3.Sphere{Center: math3.V3(0, 0, 10), Radius: 1.5},
			},
		},
	}
	return v
}

type frameRig struct {
	dev        *soft.Device
	rasterizer *Rasterizer
	pool       *graph.Pool
	prevHZB    rhi.Resource
	readback   rhi.Resource
}

func newFrameRig(t *testing.T) *frameRig {
	t.Helper()
	dev := soft.NewDevice()
	r, err := NewRasterizer(dev)
	if err != nil {
		t.Fatal(err)
	}
	rb, err := dev.CreateBuffer(rhi.CreateReadback(64), "Stats Readback")
	if err != nil {
		t.Fatal(err)
	}
	return &frameRig{dev: dev, rasterizer: r, pool: graph.NewPool(dev), readback: rb}
}

// renderFrame runs one full cull-and-rasterize frame and returns the
// decoded culling statistics.
func (fr *frameRig) renderFrame(t *testing.T, view *scene.View, occlusion, workGraph bool) Stats {
	t.Helper()

	g := graph.New(fr.dev, fr.pool)
	depth := g.Create("Depth",
		rhi.CreateDepth(view.Width, view.Height, gputypes.TextureFormatR32Float, 1))

	rc := NewContext(g, depth, ModeVisibilityBuffer, &fr.prevHZB)
	rc.EnableOcclusionCulling = occlusion
	rc.UseWorkGraph = workGraph

	var out Result
	fr.rasterizer.Render(g, view, rc, &out)
	fr.rasterizer.PrintStats(g, rc, fr.readback)

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	fr.dev.TickFrame()

	return DecodeStats(fr.readback.(*soft.Buffer).Bytes())
}

func TestTwoPhaseOcclusionAcrossFrames(t *testing.T) {
	fr := newFrameRig(t)
	view := occlusionView()

	// Frame 1: no HZB history, phase 1 sees everything; phase 2 adds
	// nothing because the fresh HZB confirms both visible.
	s := fr.renderFrame(t, view, true, false)
	if s.Phase1Visible != 2 {
		t.Errorf("frame 1 phase-1 visible = %d, want 2", s.Phase1Visible)
	}
	if s.Phase2Visible != 0 {
		t.Errorf("frame 1 phase-2 visible = %d, want 0", s.Phase2Visible)
	}
	if s.OccludedCarry != 0 {
		t.Errorf("frame 1 occluded carry = %d, want 0", s.OccludedCarry)
	}
	if fr.prevHZB == nil {
		t.Fatal("frame 1 did not export an HZB")
	}

	// Frame 2: last frame's HZB shows the back instance behind the front
	// quad; it carries to phase 2 and stays occluded there.
	view.FrameIndex = 1
	s = fr.renderFrame(t, view, true, false)
	if s.Phase1Visible != 1 {
		t.Errorf("frame 2 phase-1 visible = %d, want 1 (front only)", s.Phase1Visible)
	}
	if s.OccludedCarry != 1 {
		t.Errorf("frame 2 occluded carry = %d, want 1 (back retests)", s.OccludedCarry)
	}
	if s.Phase2Visible != 0 {
		t.Errorf("frame 2 phase-2 visible = %d, want 0 (still occluded)", s.Phase2Visible)
	}

	// Monotonicity: phase 2 only ever adds to the visible set.
	if s.Phase1Visible+s.Phase2Visible < s.Phase1Visible {
		t.Error("phase 2 shrank the visible set")
	}
}

func TestOcclusionRevealsWhenOccluderMoves(t *testing.T) {
	fr := newFrameRig(t)
	view := occlusionView()

	fr.renderFrame(t, view, true, false)
	s := fr.renderFrame(t, view, true, false)
	if s.Phase1Visible != 1 || s.OccludedCarry != 1 {
		t.Fatalf("setup: visible=%d carry=%d", s.Phase1Visible, s.OccludedCarry)
	}

	// Move the front quad aside: the back instance was occluded last
	// frame, so it is carried to phase 2 and becomes visible there.
	view.Batches[0].World = math3.Translation(math3.V3(50, 0, 5))
	view.Batches[0].Bounds.Center = math3.V3(50, 0, 5)
	s = fr.renderFrame(t, view, true, false)
	if s.Phase2Visible != 1 {
		t.Errorf("phase-2 visible = %d, want 1 (revealed instance)", s.Phase2Visible)
	}
}

func TestOcclusionDisabledSkipsPhaseTwo(t *testing.T) {
	fr := newFrameRig(t)
	view := occlusionView()

	s := fr.renderFrame(t, view, false, false)
	if s.OccludedCarry != 0 {
		t.Errorf("occluded carry = %d, want 0 with occlusion disabled", s.OccludedCarry)
	}
	if s.Phase2Visible != 0 {
		t.Errorf("phase-2 visible = %d, want 0 (phase 2 skipped)", s.Phase2Visible)
	}
	// The union matches what the two-phase path eventually draws.
	if s.Phase1Visible != 2 {
		t.Errorf("phase-1 visible = %d, want 2", s.Phase1Visible)
	}
}

func TestCounterBounds(t *testing.T) {
	fr := newFrameRig(t)
	view := occlusionView()

	s := fr.renderFrame(t, view, true, false)
	if s.TotalCandidates > MaxNumMeshlets {
		t.Errorf("candidates %d exceed capacity", s.TotalCandidates)
	}
	if s.Phase1Visible+s.Phase2Visible > s.TotalCandidates {
		t.Errorf("visible %d exceeds candidates %d",
			s.Phase1Visible+s.Phase2Visible, s.TotalCandidates)
	}
	if s.Phase1Candidates+s.Phase2Candidates != s.TotalCandidates {
		t.Errorf("phase counters %d+%d do not sum to total %d",
			s.Phase1Candidates, s.Phase2Candidates, s.TotalCandidates)
	}
}

func TestFrustumRejectedInstancesDropEntirely(t *testing.T) {
	fr := newFrameRig(t)
	view := occlusionView()

	// Behind the camera: rejected in phase 1 and never carried.
	view.Batches[1].World = math3.Translation(math3.V3(0, 0, -10))
	view.Batches[1].Bounds.Center = math3.V3(0, 0, -10)

	s := fr.renderFrame(t, view, true, false)
	if s.Phase1Visible != 1 {
		t.Errorf("phase-1 visible = %d, want 1", s.Phase1Visible)
	}
	if s.OccludedCarry != 0 {
		t.Errorf("frustum-rejected instance was carried to phase 2")
	}
}

func TestWorkGraphPathMatchesDiscretePath(t *testing.T) {
	view := occlusionView()

	discrete := newFrameRig(t)
	wg := newFrameRig(t)

	for frame := 0; frame < 2; frame++ {
		view.FrameIndex = uint64(frame)
		sd := discrete.renderFrame(t, view, true, false)
		sw := wg.renderFrame(t, view, true, true)
		if sd.Phase1Visible != sw.Phase1Visible || sd.Phase2Visible != sw.Phase2Visible ||
			sd.OccludedCarry != sw.OccludedCarry {
			t.Errorf("frame %d: work graph stats %+v differ from discrete %+v", frame, sw, sd)
		}
	}
}

func TestBinningSplitsOpaqueAndMasked(t *testing.T) {
	fr := newFrameRig(t)
	view := occlusionView()
	view.Batches[1].Blend = scene.BlendAlphaMask
	// Keep both unoccluded so both bins fill in phase 1.
	view.Batches[1].World = math3.Translation(math3.V3(0, 3.5, 10))
	view.Batches[1].Bounds.Center = math3.V3(0, 3.5, 10)

	s := fr.renderFrame(t, view, true, false)
	if s.BinCounts[binOpaque] != 1 {
		t.Errorf("opaque bin = %d, want 1", s.BinCounts[binOpaque])
	}
	if s.BinCounts[binAlphaMasked] != 1 {
		t.Errorf("alpha-masked bin = %d, want 1", s.BinCounts[binAlphaMasked])
	}
}

func TestVisibilityBufferWritesPackedIDs(t *testing.T) {
	fr := newFrameRig(t)
	view := occlusionView()

	g := graph.New(fr.dev, fr.pool)
	depth := g.Create("Depth",
		rhi.CreateDepth(view.Width, view.Height, gputypes.TextureFormatR32Float, 1))
	rc := NewContext(g, depth, ModeVisibilityBuffer, &fr.prevHZB)

	var out Result
	fr.rasterizer.Render(g, view, rc, &out)

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}

	// Pixel (25,25) lies on the front quad's upper-left triangle and
	// outside the back quad's footprint: it packs the front meshlet
	// (visible index 0) with triangle 1.
	vis := out.VisibilityBuffer.Physical().(*soft.Texture)
	packed := vis.LoadUint(0, 25, 25, 0)
	if packed == 0 {
		t.Fatal("visibility buffer empty at covered pixel")
	}
	meshletID, tri := UnpackVisibility(packed)
	if meshletID != 0 || tri != 1 {
		t.Errorf("unpacked = (meshlet %d, tri %d), want (0, 1)", meshletID, tri)
	}

	d := rc.Depth.Physical().(*soft.Texture)
	if got := d.Load(0, 25, 25, 0)[0]; got <= 0 {
		t.Errorf("depth at covered pixel = %v, want > 0", got)
	}
}

func TestPackVisibilityRoundTrip(t *testing.T) {
	id, tri := UnpackVisibility(PackVisibility(12345, 97))
	if id != 12345 || tri != 97 {
		t.Errorf("round trip = (%d, %d)", id, tri)
	}
}
