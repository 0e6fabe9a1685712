package shadows

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/scene"
)

func shadowTestView(yaw float32) *scene.View {
	eye := math3.V3(3, 2, -4)
	dir := math3.V3(math32.Sin(yaw), 0, math32.Cos(yaw))
	view := math3.LookTo(eye, dir, math3.Up)
	proj := math3.PerspectiveReverseZ(math32.Pi/3, 16.0/9, 0.1, 100)
	vp := proj.Mul(view)
	vpInv, _ := vp.Inverted()

	return &scene.View{
		View:              view,
		Projection:        proj,
		ViewProjection:    vp,
		ViewProjectionInv: vpInv,
		CameraPosition:    eye,
		Near:              0.1,
		Far:               100,
		Frustum:           math3.FrustumFromMatrix(vp),
	}
}

func TestSplitsStrictlyIncreasingAndCoverRange(t *testing.T) {
	for _, lambda := range []float32{0, 0.5, 1} {
		splits := ComputeSplits(0.1, 100, Params{CascadeCount: 4, PSSMFactor: lambda})
		if len(splits) != 4 {
			t.Fatalf("lambda %v: %d splits", lambda, len(splits))
		}
		prev := float32(0)
		for i, s := range splits {
			if s <= prev {
				t.Errorf("lambda %v: split[%d] = %v not increasing past %v", lambda, i, s, prev)
			}
			prev = s
		}
		// The last split plus the near plane lands on the far plane.
		if got := splits[3] + 0.1; math32.Abs(got-100) > 1e-3 {
			t.Errorf("lambda %v: last split + near = %v, want 100", lambda, got)
		}
	}
}

func TestSDSMNarrowsSplits(t *testing.T) {
	full := ComputeSplits(0.1, 100, Params{CascadeCount: 4, PSSMFactor: 1})
	narrow := ComputeSplits(0.1, 100, Params{
		CascadeCount: 4, PSSMFactor: 1,
		SDSM: true, MinDepth: 0.2, MaxDepth: 0.5,
	})
	if narrow[3] >= full[3] {
		t.Errorf("SDSM far split %v not narrower than %v", narrow[3], full[3])
	}
	if narrow[0] <= full[0] {
		t.Errorf("SDSM near split %v should start deeper than %v", narrow[0], full[0])
	}
}

func TestPartitionSlotAssignment(t *testing.T) {
	v := shadowTestView(0)
	v.Lights = []scene.Light{
		{Type: scene.LightDirectional, Direction: math3.V3(0.3, -0.8, 0.5).Normalized(), CastShadows: true},
		{Type: scene.LightPoint, Position: math3.V3(0, 5, 0), Range: 10, CastShadows: true},
		{Type: scene.LightSpot, Position: math3.V3(2, 3, 1), Direction: math3.Down, Range: 15, UmbraAngle: 1, CastShadows: true},
		{Type: scene.LightPoint, Position: math3.V3(9, 9, 9), Range: 5, CastShadows: false},
	}

	Partition(v, Params{CascadeCount: 4, PSSMFactor: 1, Stabilize: true})

	if v.Shadow.CascadeCount != 4 {
		t.Errorf("cascade count = %d", v.Shadow.CascadeCount)
	}
	if got := len(v.Shadow.LightViewProjections); got != 4+6+1 {
		t.Errorf("shadow slots = %d, want 11", got)
	}
	if v.Lights[0].ShadowIndex != 0 {
		t.Errorf("directional shadow index = %d, want 0", v.Lights[0].ShadowIndex)
	}
	if v.Lights[1].ShadowIndex != 4 {
		t.Errorf("point shadow index = %d, want 4", v.Lights[1].ShadowIndex)
	}
	if v.Lights[2].ShadowIndex != 10 {
		t.Errorf("spot shadow index = %d, want 10", v.Lights[2].ShadowIndex)
	}
	if v.Lights[3].ShadowIndex != -1 {
		t.Errorf("non-caster shadow index = %d, want -1", v.Lights[3].ShadowIndex)
	}
}

func TestCascadeDepthsRecorded(t *testing.T) {
	v := shadowTestView(0)
	v.Lights = []scene.Light{
		{Type: scene.LightDirectional, Direction: math3.Down, CastShadows: true},
	}
	Partition(v, Params{CascadeCount: 3, PSSMFactor: 0.5})

	splits := ComputeSplits(v.Near, v.Far, Params{CascadeCount: 3, PSSMFactor: 0.5})
	for i := 0; i < 3; i++ {
		if v.Shadow.CascadeDepths[i] != splits[i] {
			t.Errorf("cascade depth[%d] = %v, want %v", i, v.Shadow.CascadeDepths[i], splits[i])
		}
	}
}

// TestStabilizedCascadesSnapToTexels rotates the camera full circle and
// verifies every cascade projection keeps the world origin pinned to a
// shadow-map texel center, the property that eliminates edge shimmer.
func TestStabilizedCascadesSnapToTexels(t *testing.T) {
	const steps = 360
	const mapSize = 2048

	lightDir := math3.V3(0.3, -0.8, 0.5).Normalized()

	for step := 0; step < steps; step++ {
		yaw := float32(step) / steps * 2 * math32.Pi
		v := shadowTestView(yaw)
		v.Lights = []scene.Light{
			{Type: scene.LightDirectional, Direction: lightDir, CastShadows: true},
		}
		Partition(v, Params{CascadeCount: 4, PSSMFactor: 1, Stabilize: true, ShadowMapSize: mapSize})

		for c, vp := range v.Shadow.LightViewProjections {
			origin := vp.Transform(math3.V4(0, 0, 0, 1)).Scale(mapSize / 2)
			fracX := math32.Abs(origin.X - math32.Round(origin.X))
			fracY := math32.Abs(origin.Y - math32.Round(origin.Y))
			// Allow a little float32 slack; the spec tolerance is one
			// shadow-map texel of NDC (1/2048 in these units).
			if fracX > 0.05 || fracY > 0.05 {
				t.Fatalf("step %d cascade %d: origin (%v, %v) off texel center by (%v, %v)",
					step, c, origin.X, origin.Y, fracX, fracY)
			}
		}
	}
}

func TestCascadeContainsCameraWithAndWithoutStabilization(t *testing.T) {
	v := shadowTestView(0.3)
	v.Lights = []scene.Light{
		{Type: scene.LightDirectional, Direction: math3.Down, CastShadows: true},
	}

	Partition(v, Params{CascadeCount: 1, PSSMFactor: 1, Stabilize: false})
	tight := v.Shadow.LightViewProjections[0]

	Partition(v, Params{CascadeCount: 1, PSSMFactor: 1, Stabilize: true})
	loose := v.Shadow.LightViewProjections[0]

	// Both must still project the camera position inside the cascade.
	for _, vp := range []math3.Mat4{loose, tight} {
		p := vp.TransformPoint(v.CameraPosition)
		if p.X < -1 || p.X > 1 || p.Y < -1 || p.Y > 1 {
			t.Errorf("camera outside cascade: %v", p)
		}
	}
}
