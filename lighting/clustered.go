package lighting

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/internal/blob"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

// Cluster grid configuration.
const (
	// ClusterTexelSize is the screen-space footprint of one cluster.
	ClusterTexelSize = 64

	// ClustersZ is the fixed depth slice count; 32 fits one wavefront.
	ClustersZ = 32

	// MaxLightsPerCluster bounds each cluster's index window; excess
	// lights are dropped.
	MaxLightsPerCluster = 32
)

// ClusterCounts returns the cluster grid dimensions for a viewport.
func ClusterCounts(width, height uint32) (cx, cy uint32) {
	return math3.DivideAndRoundUp(width, ClusterTexelSize),
		math3.DivideAndRoundUp(height, ClusterTexelSize)
}

// VolumeGridParams returns the two constants shading uses to map view
// depth to a cluster slice: (N/ln(f/n), N*ln(n)/ln(f/n)).
func VolumeGridParams(nearZ, farZ float32, slices int) (a, b float32) {
	n := math32.Min(nearZ, farZ)
	f := math32.Max(nearZ, farZ)
	lg := math32.Log(f / n)
	return float32(slices) / lg, float32(slices) * math32.Log(n) / lg
}

// Clustered owns the clustered-lighting pipelines and the persistent
// cluster storage, rebuilt on viewport change and imported into each
// frame's graph.
type Clustered struct {
	device rhi.Device
	sig    *rhi.RootSignature

	aabbPSO      rhi.Pipeline
	cullPSO      rhi.Pipeline
	visualizePSO rhi.Pipeline

	clusterX, clusterY uint32
	viewportDirty      bool

	// Persistent storage, owned here and imported into graphs.
	aabbs          rhi.Resource // 2 x Vec4 per cluster
	lightIndexGrid rhi.Resource // MaxLightsPerCluster entries per cluster
	lightGrid      rhi.Resource // (offset, count) per cluster

	fog *Fog

	// frame is the view bound by the executing pass closure; graph
	// execution is serial.
	frame *scene.View
}

// NewClustered creates the clustered-lighting pipelines. Call OnResize
// before the first Execute.
func NewClustered(device rhi.Device) (*Clustered, error) {
	c := &Clustered{
		device: device,
		sig:    &rhi.RootSignature{Name: "Common", NumRootConstants: rhi.MaxRootConstants},
	}

	mk := func(name, entry string, k rhi.ComputeKernel) (rhi.Pipeline, error) {
		return device.CreateComputePipeline(rhi.ComputePipelineDesc{Name: name, EntryPoint: entry, Kernel: k})
	}
	var err error
	if c.aabbPSO, err = mk("Cluster AABBs", "GenerateAABBs", c.kernelClusterAABBs); err != nil {
		return nil, fmt.Errorf("lighting: %w", err)
	}
	if c.cullPSO, err = mk("Clustered Light Culling", "LightCulling", c.kernelLightCulling); err != nil {
		return nil, fmt.Errorf("lighting: %w", err)
	}
	if c.visualizePSO, err = mk("Light Density Visualization", "DebugLightDensityCS", c.kernelVisualizeDensity); err != nil {
		return nil, fmt.Errorf("lighting: %w", err)
	}

	fog, err := NewFog(device, c.sig)
	if err != nil {
		return nil, err
	}
	c.fog = fog
	return c, nil
}

// ClusterTotal returns the cluster count of the current viewport.
func (c *Clustered) ClusterTotal() uint32 { return c.clusterX * c.clusterY * ClustersZ }

// OnResize recreates the cluster storage for a new viewport and marks the
// AABBs for rebuild.
func (c *Clustered) OnResize(width, height uint32) error {
	c.clusterX, c.clusterY = ClusterCounts(width, height)
	total := c.ClusterTotal()

	release := func(r rhi.Resource) {
		if r != nil {
			r.Release()
		}
	}
	release(c.aabbs)
	release(c.lightIndexGrid)
	release(c.lightGrid)

	var err error
	if c.aabbs, err = c.device.CreateBuffer(rhi.CreateStructured(total, 32, 0), "Cluster AABBs"); err != nil {
		return fmt.Errorf("lighting: %w", err)
	}
	if c.lightIndexGrid, err = c.device.CreateBuffer(rhi.CreateStructured(MaxLightsPerCluster*total, 4, 0), "Light Index Grid"); err != nil {
		return fmt.Errorf("lighting: %w", err)
	}
	if c.lightGrid, err = c.device.CreateBuffer(rhi.CreateStructured(2*total, 4, 0), "Light Grid"); err != nil {
		return fmt.Errorf("lighting: %w", err)
	}

	if err := c.fog.OnResize(width, height); err != nil {
		return err
	}
	c.viewportDirty = true
	return nil
}

// Output exposes the frame's light-culling products to shading passes.
type Output struct {
	LightGrid      *graph.Resource
	LightIndexGrid *graph.Resource
	FogVolume      *graph.Resource // nil when fog is disabled
}

// clusterConstants is the root-constant blob of the cluster passes.
type clusterConstants struct {
	ClusterX uint32
	ClusterY uint32
	ClusterZ uint32
	Padding  uint32
}

// Execute schedules cluster AABB generation (on viewport change), light
// culling, and optionally the volumetric fog chain. The returned output is
// also published to the graph blackboard.
func (c *Clustered) Execute(g *graph.Graph, view *scene.View, enableFog bool) Output {
	g.PushScope("Clustered Lighting")
	defer g.PopScope()

	aabbs := g.Import("Cluster.AABBs", c.aabbs)
	lightGrid := g.Import("Cluster.LightGrid", c.lightGrid)
	lightIndexGrid := g.Import("Cluster.LightIndexGrid", c.lightIndexGrid)

	consts := clusterConstants{ClusterX: c.clusterX, ClusterY: c.clusterY, ClusterZ: ClustersZ}

	if c.viewportDirty {
		g.AddPass("Cluster AABBs", graph.Compute).
			Write(aabbs).
			Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
				c.frame = view
				ctx.SetComputeRootSignature(c.sig)
				ctx.SetPipeline(c.aabbPSO)
				k := consts
				ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&k))
				ctx.SetRootCBV(rhi.SlotViewCBV, view.UniformBytes())
				ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAV(aabbs)})
				ctx.Dispatch(c.clusterX, c.clusterY, ClustersZ/32)
			})
		c.viewportDirty = false
	}

	g.AddPass("Light Culling", graph.Compute).
		Read(aabbs).
		Write(lightGrid, lightIndexGrid).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			c.frame = view
			ctx.SetComputeRootSignature(c.sig)
			ctx.SetPipeline(c.cullPSO)
			// The count accumulates in the shader, so start from zero.
			ctx.ClearUAVUint(res.Get(lightGrid))
			k := consts
			ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&k))
			ctx.SetRootCBV(rhi.SlotViewCBV, view.UniformBytes())
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{res.SRV(aabbs)})
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{
				res.UAV(lightIndexGrid), res.UAV(lightGrid),
			})
			ctx.Dispatch(
				math3.DivideAndRoundUp(c.clusterX, 4),
				math3.DivideAndRoundUp(c.clusterY, 4),
				math3.DivideAndRoundUp(ClustersZ, 4))
		})

	out := Output{LightGrid: lightGrid, LightIndexGrid: lightIndexGrid}
	if enableFog {
		out.FogVolume = c.fog.Execute(g, view, c, lightGrid, lightIndexGrid)
	}
	g.Blackboard().Put(out)
	return out
}

// clusterRay returns the world-space far-plane point of a pixel corner;
// points at intermediate view depth z lie at cam + (far-cam) * z/f.
func clusterRay(view *scene.View, px, py float32) math3.Vec3 {
	ndcX := px/float32(view.Width)*2 - 1
	ndcY := 1 - py/float32(view.Height)*2
	// Reverse-Z: the far plane is at depth 0.
	return view.ViewProjectionInv.TransformPoint(math3.V3(ndcX, ndcY, 0))
}

// kernelClusterAABBs emits one world-space AABB per cluster, intersecting
// the four corner rays with the cluster's exponential front and back slice
// depths.
func (c *Clustered) kernelClusterAABBs(d rhi.Dispatch) {
	var k clusterConstants
	copy(blob.StructToBytes(&k), d.Constants())

	view := c.frame
	out := blob.BytesToSlice[[8]float32](d.Buffer(rhi.SlotUAVs, 0))

	n := math32.Min(view.Near, view.Far)
	f := math32.Max(view.Near, view.Far)
	cam := view.CameraPosition

	for cz := uint32(0); cz < k.ClusterZ; cz++ {
		zFront := n * math32.Pow(f/n, float32(cz)/float32(k.ClusterZ))
		zBack := n * math32.Pow(f/n, float32(cz+1)/float32(k.ClusterZ))
		for cy := uint32(0); cy < k.ClusterY; cy++ {
			for cx := uint32(0); cx < k.ClusterX; cx++ {
				box := math3.EmptyAABB()
				for corner := 0; corner < 4; corner++ {
					px := float32((cx + uint32(corner&1)) * ClusterTexelSize)
					py := float32((cy + uint32(corner>>1)) * ClusterTexelSize)
					farPoint := clusterRay(view, px, py)
					dir := farPoint.Sub(cam)
					box = box.Extend(cam.Add(dir.Scale(zFront / f)))
					box = box.Extend(cam.Add(dir.Scale(zBack / f)))
				}
				idx := (cz*k.ClusterY+cy)*k.ClusterX + cx
				out[idx] = [8]float32{
					box.Min.X, box.Min.Y, box.Min.Z, 0,
					box.Max.X, box.Max.Y, box.Max.Z, 0,
				}
			}
		}
	}
}

// kernelLightCulling intersects every light's bounding sphere with each
// cluster AABB and fills the per-cluster index window.
func (c *Clustered) kernelLightCulling(d rhi.Dispatch) {
	var k clusterConstants
	copy(blob.StructToBytes(&k), d.Constants())

	view := c.frame
	aabbs := blob.BytesToSlice[[8]float32](d.Buffer(rhi.SlotSRVs, 0))
	indexGrid := blob.BytesToSlice[uint32](d.Buffer(rhi.SlotUAVs, 0))
	lightGrid := blob.BytesToSlice[uint32](d.Buffer(rhi.SlotUAVs, 1))

	total := k.ClusterX * k.ClusterY * k.ClusterZ
	for cluster := uint32(0); cluster < total; cluster++ {
		a := aabbs[cluster]
		box := math3.NewAABB(math3.V3(a[0], a[1], a[2]), math3.V3(a[4], a[5], a[6]))

		offset := cluster * MaxLightsPerCluster
		count := uint32(0)
		for li := range view.Lights {
			if count >= MaxLightsPerCluster {
				break
			}
			if box.IntersectsSphere(view.Lights[li].BoundingSphere()) {
				indexGrid[offset+count] = uint32(li)
				count++
			}
		}
		lightGrid[2*cluster] = offset
		lightGrid[2*cluster+1] = count
	}
}

// visualizeConstants parameterizes the density debug pass.
type visualizeConstants struct {
	ClusterX uint32
	ClusterY uint32
}

// VisualizeLightDensity schedules a heat-map of per-cluster light counts
// into target.
func (c *Clustered) VisualizeLightDensity(g *graph.Graph, view *scene.View, out Output, target *graph.Resource) {
	g.AddPass("Visualize Light Density", graph.Compute).
		Read(out.LightGrid).
		Write(target).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			c.frame = view
			ctx.SetComputeRootSignature(c.sig)
			ctx.SetPipeline(c.visualizePSO)
			k := visualizeConstants{ClusterX: c.clusterX, ClusterY: c.clusterY}
			ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&k))
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{res.SRV(out.LightGrid)})
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAV(target)})
			desc := target.Desc()
			ctx.Dispatch((desc.Width+15)/16, (desc.Height+15)/16, 1)
		})
}

// kernelVisualizeDensity writes a green-to-red ramp of the front-most
// cluster's light count per pixel.
func (c *Clustered) kernelVisualizeDensity(d rhi.Dispatch) {
	var k visualizeConstants
	copy(blob.StructToBytes(&k), d.Constants())

	lightGrid := blob.BytesToSlice[uint32](d.Buffer(rhi.SlotSRVs, 0))
	target := d.Texture(rhi.SlotUAVs, 0)
	w, h, _ := target.Dims(0)

	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			cx := min(x/ClusterTexelSize, k.ClusterX-1)
			cy := min(y/ClusterTexelSize, k.ClusterY-1)
			cluster := cy*k.ClusterX + cx
			count := float32(lightGrid[2*cluster+1]) / MaxLightsPerCluster
			target.Store(0, x, y, 0, [4]float32{count, 1 - count, 0, 1})
		}
	}
}
