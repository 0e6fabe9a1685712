package scene

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/gogpu/render3/math3"
)

func TestBitSet(t *testing.T) {
	var s BitSet
	s.Resize(130)
	if s.Len() != 130 {
		t.Fatalf("len = %d", s.Len())
	}
	s.Assign(0, true)
	s.Assign(64, true)
	s.Assign(129, true)
	if !s.Get(0) || !s.Get(64) || !s.Get(129) {
		t.Error("set bits not readable")
	}
	if s.Get(1) || s.Get(128) {
		t.Error("unset bits read true")
	}
	s.Assign(64, false)
	if s.Get(64) {
		t.Error("cleared bit still set")
	}
	s.Resize(10)
	if s.Get(0) {
		t.Error("resize did not clear")
	}
	if s.Get(500) {
		t.Error("out-of-range read true")
	}
}

func TestShadowSlots(t *testing.T) {
	cases := []struct {
		light Light
		want  int
	}{
		{Light{Type: LightDirectional, CastShadows: true}, 4},
		{Light{Type: LightPoint, CastShadows: true}, 6},
		{Light{Type: LightSpot, CastShadows: true}, 1},
		{Light{Type: LightPoint, CastShadows: false}, 0},
	}
	for _, c := range cases {
		if got := c.light.ShadowSlots(4); got != c.want {
			t.Errorf("%v slots = %d, want %d", c.light.Type, got, c.want)
		}
	}
}

func TestUpdateFrustumVisibility(t *testing.T) {
	proj := math3.PerspectiveReverseZ(math32.Pi/2, 1, 0.1, 100)
	view := math3.LookTo(math3.Zero3, math3.Forward, math3.Up)
	vp := proj.Mul(view)

	v := &View{
		Frustum: math3.FrustumFromMatrix(vp),
		Batches: []Batch{
			{Bounds: math3.Sphere{Center: math3.V3(0, 0, 10), Radius: 1}},
			{Bounds: math3.Sphere{Center: math3.V3(0, 0, -10), Radius: 1}},
		},
	}
	bounds := v.UpdateFrustumVisibility()

	if !v.Visibility.Get(0) {
		t.Error("visible batch culled")
	}
	if v.Visibility.Get(1) {
		t.Error("behind-camera batch visible")
	}
	if bounds.Min.Z > -11 || bounds.Max.Z < 11 {
		t.Errorf("merged bounds %v do not cover both batches", bounds)
	}
}

func TestViewUniformsPacking(t *testing.T) {
	v := &View{
		Near: 0.1, Far: 100,
		Width: 1920, Height: 1080,
		FrameIndex: 7,
		Lights:     make([]Light, 3),
	}
	u := v.Uniforms()
	if u.NearPlane != 0.1 || u.FarPlane != 100 {
		t.Errorf("planes = (%v, %v)", u.NearPlane, u.FarPlane)
	}
	if u.ViewportSize != [2]float32{1920, 1080} {
		t.Errorf("viewport = %v", u.ViewportSize)
	}
	if u.FrameIndex != 7 || u.NumLights != 3 {
		t.Errorf("frame %d lights %d", u.FrameIndex, u.NumLights)
	}
	if len(v.UniformBytes()) == 0 {
		t.Error("empty uniform blob")
	}
}

func TestPackLights(t *testing.T) {
	v := &View{Lights: []Light{{
		Type:        LightSpot,
		Position:    math3.V3(1, 2, 3),
		Range:       15,
		ShadowIndex: 4,
	}}}
	packed := v.PackLights()
	if len(packed) != 1 {
		t.Fatalf("packed %d lights", len(packed))
	}
	if packed[0].Type != uint32(LightSpot) || packed[0].Range != 15 || packed[0].ShadowIndex != 4 {
		t.Errorf("packed = %+v", packed[0])
	}
}
