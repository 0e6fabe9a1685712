package lighting

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/render3/backend/soft"
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/internal/blob"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

func lightingTestView(width, height uint32, lights []scene.Light) *scene.View {
	view := math3.LookTo(math3.Zero3, math3.Forward, math3.Up)
	proj := math3.PerspectiveReverseZ(math32.Pi/2, float32(width)/float32(height), 0.1, 100)
	vp := proj.Mul(view)
	vpInv, _ := vp.Inverted()
	return &scene.View{
		View:              view,
		Projection:        proj,
		ViewProjection:    vp,
		ViewProjectionInv: vpInv,
		Near:              0.1,
		Far:               100,
		Frustum:           math3.FrustumFromMatrix(vp),
		Width:             width,
		Height:            height,
		Lights:            lights,
	}
}

// uniformPointLights distributes n point lights through the view volume
// deterministically.
func uniformPointLights(n int) []scene.Light {
	lights := make([]scene.Light, n)
	for i := range lights {
		fx := float32(i%5)/4 - 0.5
		fy := float32((i/5)%5)/4 - 0.5
		fz := float32(i/25)/float32(n/25+1)
		z := 1 + fz*80
		lights[i] = scene.Light{
			Type:     scene.LightPoint,
			Position: math3.V3(fx*z, fy*z, z),
			Range:    3,
			Color:    math3.V3(1, 1, 1),
			Intensity: 1,
		}
	}
	return lights
}

func TestClusterCounts(t *testing.T) {
	cx, cy := ClusterCounts(1920, 1080)
	if cx != 30 || cy != 17 {
		t.Errorf("cluster counts = (%d, %d), want (30, 17)", cx, cy)
	}
}

func TestClusteredLightCulling(t *testing.T) {
	dev := soft.NewDevice()
	c, err := NewClustered(dev)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.OnResize(1920, 1080); err != nil {
		t.Fatal(err)
	}

	total := c.ClusterTotal()
	if total != 30*17*32 {
		t.Fatalf("cluster total = %d, want %d", total, 30*17*32)
	}
	if got := c.lightIndexGrid.Desc().Width; got != MaxLightsPerCluster*total {
		t.Errorf("light index list length = %d, want %d", got, MaxLightsPerCluster*total)
	}

	view := lightingTestView(1920, 1080, uniformPointLights(100))

	pool := graph.NewPool(dev)
	g := graph.New(dev, pool)
	out := c.Execute(g, view, false)
	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if out.LightGrid == nil {
		t.Fatal("no light grid output")
	}

	// The total assignment count matches a direct sphere-vs-AABB sweep
	// over the generated cluster bounds.
	aabbs := blob.BytesToSlice[[8]float32](c.aabbs.(*soft.Buffer).Bytes())
	lightGrid := blob.BytesToSlice[uint32](c.lightGrid.(*soft.Buffer).Bytes())

	var gridSum, direct uint64
	for cluster := uint32(0); cluster < total; cluster++ {
		gridSum += uint64(lightGrid[2*cluster+1])
		a := aabbs[cluster]
		box := math3.NewAABB(math3.V3(a[0], a[1], a[2]), math3.V3(a[4], a[5], a[6]))
		for li := range view.Lights {
			if box.IntersectsSphere(view.Lights[li].BoundingSphere()) {
				direct++
			}
		}
	}
	if gridSum == 0 {
		t.Fatal("no lights assigned to any cluster")
	}
	if gridSum != direct {
		t.Errorf("grid count sum = %d, direct intersection count = %d", gridSum, direct)
	}

	// Offsets follow the fixed per-cluster stride.
	for cluster := uint32(0); cluster < 4; cluster++ {
		if lightGrid[2*cluster] != cluster*MaxLightsPerCluster {
			t.Errorf("cluster %d offset = %d", cluster, lightGrid[2*cluster])
		}
	}
}

func TestClusterAABBsCoverFrustumDepth(t *testing.T) {
	dev := soft.NewDevice()
	c, err := NewClustered(dev)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.OnResize(256, 256); err != nil {
		t.Fatal(err)
	}

	view := lightingTestView(256, 256, nil)
	pool := graph.NewPool(dev)
	g := graph.New(dev, pool)
	c.Execute(g, view, false)
	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}

	aabbs := blob.BytesToSlice[[8]float32](c.aabbs.(*soft.Buffer).Bytes())

	// Slice 0 starts at the near plane, the last ends at the far plane.
	first := aabbs[0]
	if first[2] > 0.2 {
		t.Errorf("slice 0 min z = %v, want near the near plane", first[2])
	}
	last := aabbs[len(aabbs)-1]
	if last[6] < 99 {
		t.Errorf("last slice max z = %v, want to reach the far plane", last[6])
	}

	// Exponential slices: each front depth is n*(f/n)^(i/N).
	n, f := float32(0.1), float32(100)
	cx, cy := c.clusterX, c.clusterY
	for cz := uint32(0); cz < ClustersZ; cz++ {
		want := n * math32.Pow(f/n, float32(cz)/ClustersZ)
		idx := (cz*cy)*cx + 0
		got := aabbs[idx][2] // planar view depth: every cluster starts on the slice plane
		if got > want+1e-2 {
			t.Errorf("slice %d min z = %v, beyond slice depth %v", cz, got, want)
		}
	}
}

func TestVolumeGridParamsRoundTrip(t *testing.T) {
	n, f := float32(0.1), float32(100)
	if got := clusterSlice(n, n, f); got != 0 {
		t.Errorf("slice at near = %d, want 0", got)
	}
	if got := clusterSlice(f*0.999, n, f); got != ClustersZ-1 {
		t.Errorf("slice at far = %d, want %d", got, ClustersZ-1)
	}
	// Slices are monotonic in depth.
	prev := uint32(0)
	for z := n; z < f; z *= 1.5 {
		s := clusterSlice(z, n, f)
		if s < prev {
			t.Errorf("slice(%v) = %d < previous %d", z, s, prev)
		}
		prev = s
	}
}

func TestVolumetricFogAccumulatesTransmittance(t *testing.T) {
	dev := soft.NewDevice()
	c, err := NewClustered(dev)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.OnResize(128, 128); err != nil {
		t.Fatal(err)
	}

	lights := []scene.Light{{
		Type: scene.LightPoint, Position: math3.V3(0, 0, 10), Range: 20,
		Color: math3.V3(1, 1, 1), Intensity: 5,
	}}
	view := lightingTestView(128, 128, lights)

	pool := graph.NewPool(dev)
	g := graph.New(dev, pool)
	out := c.Execute(g, view, true)
	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if out.FogVolume == nil {
		t.Fatal("fog enabled but no volume produced")
	}

	final := c.fog.finalFog.(*soft.Texture)
	_, _, depth := final.Dims(0)

	// Transmittance decreases monotonically front to back.
	prev := float32(1)
	for z := uint32(0); z < depth; z++ {
		tr := final.Load(0, 8, 8, z)[3]
		if tr > prev+1e-6 {
			t.Fatalf("transmittance increased at slice %d: %v > %v", z, tr, prev)
		}
		prev = tr
	}
	if prev >= 1 {
		t.Error("fog accumulated no extinction")
	}
}

func TestTiledLightCulling(t *testing.T) {
	dev := soft.NewDevice()
	tiled, err := NewTiled(dev)
	if err != nil {
		t.Fatal(err)
	}

	view := lightingTestView(256, 256, uniformPointLights(50))

	pool := graph.NewPool(dev)
	g := graph.New(dev, pool)

	depth := g.Create("Depth", rhi.CreateDepth(256, 256, gputypes.TextureFormatR32Float, 1))
	seed := g.AddPass("Seed Depth", graph.Compute).
		Write(depth).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			tex := res.Get(depth).(*soft.Texture)
			for y := uint32(0); y < 256; y++ {
				for x := uint32(0); x < 256; x++ {
					tex.Store(0, x, y, 0, [4]float32{0.05}) // far-ish geometry everywhere
				}
			}
		})
	_ = seed

	out := tiled.Execute(g, view, depth)

	// Root the tiled pass for this test.
	g.AddPass("Consume", graph.Compute|graph.NeverCull).
		Read(out.LightGridOpaque, out.LightGridTransparent, out.LightIndexList).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {})

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}

	tx, ty := TileCounts(256, 256)
	if tx != 16 || ty != 16 {
		t.Fatalf("tile counts = (%d, %d)", tx, ty)
	}

	grid := out.LightGridOpaque.Physical().(*soft.Texture)
	var assigned float32
	for y := uint32(0); y < ty; y++ {
		for x := uint32(0); x < tx; x++ {
			assigned += grid.Load(0, x, y, 0)[1]
		}
	}
	if assigned == 0 {
		t.Error("no lights assigned to any tile")
	}

	// Transparent lists see at least as much as opaque ones: their depth
	// range extends to the near plane.
	gridT := out.LightGridTransparent.Physical().(*soft.Texture)
	var assignedT float32
	for y := uint32(0); y < ty; y++ {
		for x := uint32(0); x < tx; x++ {
			assignedT += gridT.Load(0, x, y, 0)[1]
		}
	}
	if assignedT < assigned {
		t.Errorf("transparent assignments %v < opaque %v", assignedT, assigned)
	}
}
