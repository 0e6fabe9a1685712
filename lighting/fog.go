package lighting

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/internal/blob"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

// Froxel volume configuration: an 8x8 pixel footprint per froxel and 128
// exponential depth slices.
const (
	FroxelTexelSize = 8
	FroxelSlicesZ   = 128
)

// Fog implements volumetric fog over the clustered light grid: a froxel
// in-scattering injection pass blended with the previous frame's volume at
// the same froxel (no reprojection), then a
// front-to-back march accumulating transmittance into the final volume
// sampled at shading time.
type Fog struct {
	device rhi.Device
	sig    *rhi.RootSignature

	injectPSO     rhi.Pipeline
	accumulatePSO rhi.Pipeline

	// scatter ping-pongs across frames: the pass reads the previous
	// frame's volume and writes the other. Frame 0 reads the zeroed
	// initial contents.
	scatter  [2]rhi.Resource
	finalFog rhi.Resource

	frame *scene.View
}

// NewFog creates the fog pipelines.
func NewFog(device rhi.Device, sig *rhi.RootSignature) (*Fog, error) {
	f := &Fog{device: device, sig: sig}

	var err error
	f.injectPSO, err = device.CreateComputePipeline(rhi.ComputePipelineDesc{
		Name: "Inject Fog Lighting", EntryPoint: "InjectFogLightingCS", Kernel: f.kernelInject,
	})
	if err != nil {
		return nil, fmt.Errorf("lighting: %w", err)
	}
	f.accumulatePSO, err = device.CreateComputePipeline(rhi.ComputePipelineDesc{
		Name: "Accumulate Fog", EntryPoint: "AccumulateFogCS", Kernel: f.kernelAccumulate,
	})
	if err != nil {
		return nil, fmt.Errorf("lighting: %w", err)
	}
	return f, nil
}

// OnResize recreates the froxel volumes for a new viewport.
func (f *Fog) OnResize(width, height uint32) error {
	release := func(r rhi.Resource) {
		if r != nil {
			r.Release()
		}
	}
	release(f.scatter[0])
	release(f.scatter[1])
	release(f.finalFog)

	desc := rhi.Create3D(
		math3.DivideAndRoundUp(width, FroxelTexelSize),
		math3.DivideAndRoundUp(height, FroxelTexelSize),
		FroxelSlicesZ,
		gputypes.TextureFormatRGBA16Float)

	var err error
	if f.scatter[0], err = f.device.CreateTexture(desc, "Light Scattering Volume 0"); err != nil {
		return fmt.Errorf("lighting: %w", err)
	}
	if f.scatter[1], err = f.device.CreateTexture(desc, "Light Scattering Volume 1"); err != nil {
		return fmt.Errorf("lighting: %w", err)
	}
	if f.finalFog, err = f.device.CreateTexture(desc, "Final Light Scattering Volume"); err != nil {
		return fmt.Errorf("lighting: %w", err)
	}
	return nil
}

// fogConstants parameterizes both fog passes.
type fogConstants struct {
	VolumeX uint32
	VolumeY uint32
	VolumeZ uint32
	// SizeFactor converts a froxel coordinate to a light-cluster
	// coordinate (FroxelTexelSize / ClusterTexelSize).
	SizeFactor float32
	ClusterX   uint32
	ClusterY   uint32
	Jitter     float32
	Padding    uint32
}

// Execute schedules inject and accumulate and returns the final volume.
// The previous-frame scatter volume is chosen by frame parity; the first
// frame reads zeroes.
func (f *Fog) Execute(g *graph.Graph, view *scene.View, c *Clustered, lightGrid, lightIndexGrid *graph.Resource) *graph.Resource {
	g.PushScope("Volumetric Lighting")
	defer g.PopScope()

	src := g.Import("Fog.Scatter.Previous", f.scatter[view.FrameIndex%2])
	dst := g.Import("Fog.Scatter.Current", f.scatter[(view.FrameIndex+1)%2])
	final := g.Import("Fog.Final", f.finalFog)

	desc := f.finalFog.Desc()
	consts := fogConstants{
		VolumeX:    desc.Width,
		VolumeY:    desc.Height,
		VolumeZ:    desc.DepthOrArray,
		SizeFactor: float32(FroxelTexelSize) / ClusterTexelSize,
		ClusterX:   c.clusterX,
		ClusterY:   c.clusterY,
		Jitter:     halton(uint32(view.FrameIndex)&1023, 2),
	}

	g.AddPass("Inject Volume Lights", graph.Compute).
		Read(lightGrid, lightIndexGrid, src).
		Write(dst).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			f.frame = view
			ctx.SetComputeRootSignature(f.sig)
			ctx.SetPipeline(f.injectPSO)
			k := consts
			ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&k))
			ctx.SetRootCBV(rhi.SlotViewCBV, view.UniformBytes())
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAV(dst)})
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{
				res.SRV(lightGrid), res.SRV(lightIndexGrid), res.SRV(src),
			})
			ctx.Dispatch(
				math3.DivideAndRoundUp(consts.VolumeX, 8),
				math3.DivideAndRoundUp(consts.VolumeY, 8),
				math3.DivideAndRoundUp(consts.VolumeZ, 4))
		})

	g.AddPass("Accumulate Volume Fog", graph.Compute).
		Read(dst).
		Write(final).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			f.frame = view
			ctx.SetComputeRootSignature(f.sig)
			ctx.SetPipeline(f.accumulatePSO)
			k := consts
			ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&k))
			ctx.SetRootCBV(rhi.SlotViewCBV, view.UniformBytes())
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAV(final)})
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{res.SRV(dst)})
			ctx.Dispatch(
				math3.DivideAndRoundUp(consts.VolumeX, 8),
				math3.DivideAndRoundUp(consts.VolumeY, 8),
				1)
		})

	return final
}

// temporalBlend weights the history, read at the same froxel without
// reprojection, against the fresh sample.
const temporalBlend = 0.95

// kernelInject computes per-froxel in-scattered light from the cluster
// grid and blends it with last frame's volume.
func (f *Fog) kernelInject(d rhi.Dispatch) {
	var k fogConstants
	copy(blob.StructToBytes(&k), d.Constants())

	view := f.frame
	dst := d.Texture(rhi.SlotUAVs, 0)
	lightGrid := blob.BytesToSlice[uint32](d.Buffer(rhi.SlotSRVs, 0))
	indexGrid := blob.BytesToSlice[uint32](d.Buffer(rhi.SlotSRVs, 1))
	prev := d.Texture(rhi.SlotSRVs, 2)

	n := math32.Min(view.Near, view.Far)
	fz := math32.Max(view.Near, view.Far)
	cam := view.CameraPosition

	for z := uint32(0); z < k.VolumeZ; z++ {
		// Exponential slice distribution with the temporal jitter
		// nudging the sample point inside the slice.
		t := (float32(z) + 0.5 + k.Jitter - 0.5) / float32(k.VolumeZ)
		viewZ := n * math32.Pow(fz/n, t)
		for y := uint32(0); y < k.VolumeY; y++ {
			for x := uint32(0); x < k.VolumeX; x++ {
				px := (float32(x) + 0.5) * FroxelTexelSize
				py := (float32(y) + 0.5) * FroxelTexelSize
				farPoint := clusterRay(view, px, py)
				world := cam.Add(farPoint.Sub(cam).Scale(viewZ / fz))

				// Find the covering light cluster.
				cx := min(uint32(float32(x)*k.SizeFactor), k.ClusterX-1)
				cy := min(uint32(float32(y)*k.SizeFactor), k.ClusterY-1)
				cz := clusterSlice(viewZ, n, fz)
				cluster := (cz*k.ClusterY+cy)*k.ClusterX + cx

				var scatter math3.Vec3
				offset := lightGrid[2*cluster]
				count := lightGrid[2*cluster+1]
				for i := uint32(0); i < count; i++ {
					l := &view.Lights[indexGrid[offset+i]]
					scatter = scatter.Add(lightContribution(l, world))
				}

				p := prev.Load(0, x, y, z)
				blend := temporalBlend
				if view.FrameIndex == 0 {
					blend = 0
				}
				out := [4]float32{
					scatter.X*(1-blend) + p[0]*blend,
					scatter.Y*(1-blend) + p[1]*blend,
					scatter.Z*(1-blend) + p[2]*blend,
					1,
				}
				dst.Store(0, x, y, z, out)
			}
		}
	}
}

// fogDensity is the uniform participating-medium extinction per slice.
const fogDensity = 0.02

// kernelAccumulate marches each froxel column front to back, accumulating
// transmittance and in-scattering so shading can sample fog at any depth
// with one fetch.
func (f *Fog) kernelAccumulate(d rhi.Dispatch) {
	var k fogConstants
	copy(blob.StructToBytes(&k), d.Constants())

	final := d.Texture(rhi.SlotUAVs, 0)
	scatter := d.Texture(rhi.SlotSRVs, 0)

	for y := uint32(0); y < k.VolumeY; y++ {
		for x := uint32(0); x < k.VolumeX; x++ {
			var accum math3.Vec3
			transmittance := float32(1)
			for z := uint32(0); z < k.VolumeZ; z++ {
				s := scatter.Load(0, x, y, z)
				accum = accum.Add(math3.V3(s[0], s[1], s[2]).Scale(transmittance * fogDensity))
				transmittance *= 1 - fogDensity
				final.Store(0, x, y, z, [4]float32{accum.X, accum.Y, accum.Z, transmittance})
			}
		}
	}
}

// clusterSlice maps a view depth to its exponential cluster slice.
func clusterSlice(viewZ, n, f float32) uint32 {
	a, b := VolumeGridParams(n, f, ClustersZ)
	s := math32.Log(viewZ)*a - b
	if s < 0 {
		return 0
	}
	if s >= ClustersZ {
		return ClustersZ - 1
	}
	return uint32(s)
}

// lightContribution is the froxel's received radiance from one light with
// smooth distance falloff.
func lightContribution(l *scene.Light, world math3.Vec3) math3.Vec3 {
	if l.Type == scene.LightDirectional {
		return l.Color.Scale(l.Intensity)
	}
	dist := l.Position.Distance(world)
	if dist >= l.Range {
		return math3.Zero3
	}
	att := 1 - dist/l.Range
	return l.Color.Scale(l.Intensity * att * att)
}

// halton returns element i of the base-b Halton sequence.
func halton(i, b uint32) float32 {
	f := float32(1)
	var r float32
	for i > 0 {
		f /= float32(b)
		r += f * float32(i%b)
		i /= b
	}
	return r
}
