package render3

import (
	"fmt"
	"io"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/render3/capture"
	"github.com/gogpu/render3/console"
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/internal/blob"
	"github.com/gogpu/render3/lighting"
	"github.com/gogpu/render3/raster"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
	"github.com/gogpu/render3/shadows"
)

// Tweakables. Declared once at startup; UI and console drive them by name,
// render code reads the typed handles. Changes take effect the next frame.
var (
	varOcclusionCulling  = console.Register("r.OcclusionCulling", true)
	varWorkGraphs        = console.Register("r.Raster.WorkGraphs", false)
	varShadowCascades    = console.Register("r.Shadows.CascadeCount", 4)
	varStabilizeCascades = console.Register("r.Shadows.StabilizeCascades", true)
	varSDSM              = console.Register("r.Shadows.SDSM", false)
	varPSSMFactor        = console.Register("r.Shadow.PSSMFactor", float32(1))
	varVolumetricFog     = console.Register("r.VolumetricFog", true)
	varRaytracing        = console.Register("r.Raytracing", false)
	varTonemapper        = console.Register("r.Tonemapper", 2)
	varExposureMin       = console.Register("r.Exposure.Min", float32(-10))
	varExposureMax       = console.Register("r.Exposure.Max", float32(10))
	varBloomThreshold    = console.Register("r.Bloom.Threshold", float32(1))
	varBloomMaxBright    = console.Register("r.Bloom.MaxBrightness", float32(10))
	varSSRSamples        = console.Register("r.SSRSamples", 8)
)

// Options configures Renderer construction.
type Options struct {
	// Width and Height are the initial viewport dimensions.
	Width, Height uint32

	// ScreenshotDir receives captured PNGs; empty disables screenshots.
	ScreenshotDir string
}

// Renderer assembles the subsystems into a frame. Create one per device;
// RenderFrame is called once per frame from a single goroutine.
type Renderer struct {
	device rhi.Device
	pool   *graph.Pool

	rasterizer *raster.Rasterizer
	clustered  *lighting.Clustered
	reducer    *shadows.DepthReducer
	shots      *capture.Screenshotter

	composePSO rhi.Pipeline

	width, height uint32

	// previousHZB is the persistent depth pyramid slot handed to the
	// raster context; nil until the first occlusion-culled frame.
	previousHZB rhi.Resource

	screenshotRequested bool
	dumpWriter          io.Writer

	// LastResult exposes the most recent frame's raster products for
	// debug tooling.
	LastResult raster.Result
}

// New creates a renderer on the device. Capability-gated tweakables are
// clamped off on devices without support; later UI toggles stay pinned.
func New(device rhi.Device, opts Options) (*Renderer, error) {
	r := &Renderer{
		device: device,
		pool:   graph.NewPool(device),
		width:  opts.Width,
		height: opts.Height,
	}

	caps := device.Capabilities()
	if !caps.WorkGraphs {
		varWorkGraphs.Clamp(func(bool) bool { return false })
		Logger().Warn("capability clamped off", "tweakable", varWorkGraphs.Name())
	}
	if !caps.RayTracing {
		varRaytracing.Clamp(func(bool) bool { return false })
	}
	varShadowCascades.Clamp(func(v int) int { return clampInt(v, 1, shadows.MaxCascades) })
	varTonemapper.Clamp(func(v int) int { return clampInt(v, 0, 4) })

	var err error
	if r.rasterizer, err = raster.NewRasterizer(device); err != nil {
		return nil, err
	}
	if r.clustered, err = lighting.NewClustered(device); err != nil {
		return nil, err
	}
	if err = r.clustered.OnResize(opts.Width, opts.Height); err != nil {
		return nil, err
	}
	if r.reducer, err = shadows.NewDepthReducer(device); err != nil {
		return nil, err
	}
	if opts.ScreenshotDir != "" {
		if r.shots, err = capture.NewScreenshotter(device, opts.ScreenshotDir); err != nil {
			return nil, err
		}
	}

	r.composePSO, err = device.CreateComputePipeline(rhi.ComputePipelineDesc{
		Name: "Compose", EntryPoint: "ComposeCS", Kernel: r.kernelCompose,
	})
	if err != nil {
		return nil, fmt.Errorf("render3: %w", err)
	}
	return r, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Resize adapts the persistent per-viewport state to new dimensions. The
// previous HZB is dropped (its geometry no longer matches) and the pool is
// trimmed so stale descriptor classes free.
func (r *Renderer) Resize(width, height uint32) error {
	if width == r.width && height == r.height {
		return nil
	}
	Logger().Info("viewport resize", "width", width, "height", height)
	r.width, r.height = width, height

	if r.previousHZB != nil {
		r.previousHZB.Release()
		r.previousHZB = nil
	}
	r.pool.Trim()
	return r.clustered.OnResize(width, height)
}

// RequestScreenshot captures the next presented frame.
func (r *Renderer) RequestScreenshot() { r.screenshotRequested = true }

// DumpGraphOnce writes the next frame's graph as a node-link diagram.
func (r *Renderer) DumpGraphOnce(w io.Writer) { r.dumpWriter = w }

// RenderFrame builds, compiles and executes one frame's render graph for
// the view, returning the final RGBA8 color target's contents fence.
func (r *Renderer) RenderFrame(view *scene.View) (rhi.FenceValue, error) {
	view.Width, view.Height = r.width, r.height
	view.FrameIndex = r.device.FrameIndex()
	view.UpdateFrustumVisibility()

	// Shadow partitioning runs on the CPU before the graph records.
	shadowParams := shadows.Params{
		CascadeCount:  varShadowCascades.Get(),
		PSSMFactor:    varPSSMFactor.Get(),
		Stabilize:     varStabilizeCascades.Get(),
		SDSM:          varSDSM.Get(),
		ShadowMapSize: 2048,
	}
	if shadowParams.SDSM {
		if minD, maxD, ok := r.reducer.Read(); ok {
			shadowParams.MinDepth, shadowParams.MaxDepth = minD, maxD
		} else {
			shadowParams.MinDepth, shadowParams.MaxDepth = 0, 1
		}
	}
	shadows.Partition(view, shadowParams)

	g := graph.New(r.device, r.pool)

	depth := g.Create("Depth", rhi.CreateDepth(r.width, r.height, gputypes.TextureFormatR32Float, 1))

	r.reconcileHZBSlot()
	rc := raster.NewContext(g, depth, raster.ModeVisibilityBuffer, &r.previousHZB)
	rc.EnableOcclusionCulling = varOcclusionCulling.Get()
	rc.UseWorkGraph = varWorkGraphs.Get()

	var result raster.Result
	r.rasterizer.Render(g, view, rc, &result)
	r.LastResult = result

	lightOut := r.clustered.Execute(g, view, varVolumetricFog.Get())

	if varSDSM.Get() {
		r.reducer.Reduce(g, view, depth)
	}

	final := r.compose(g, &result, lightOut)

	if r.screenshotRequested && r.shots != nil {
		if err := r.shots.Capture(g, final); err != nil {
			Logger().Warn("screenshot capture failed", "err", err)
		}
		r.screenshotRequested = false
	}

	if err := g.Compile(); err != nil {
		return 0, err
	}
	if r.dumpWriter != nil {
		if err := g.Dump(r.dumpWriter); err != nil {
			Logger().Warn("graph dump failed", "err", err)
		}
		r.dumpWriter = nil
	}

	fence, err := g.Execute()
	if err != nil {
		return 0, err
	}

	if varSDSM.Get() {
		r.reducer.NotifySubmitted(fence)
	}
	if r.shots != nil {
		r.shots.NotifySubmitted(fence)
		if _, err := r.shots.Poll(); err != nil {
			Logger().Warn("screenshot encode failed", "err", err)
		}
	}

	r.device.TickFrame()
	return fence, nil
}

// reconcileHZBSlot drops a persistent pyramid whose geometry no longer
// matches the viewport; the frame then starts without occlusion history,
// exactly like a first frame.
func (r *Renderer) reconcileHZBSlot() {
	if r.previousHZB == nil {
		return
	}
	if r.previousHZB.Desc() != raster.HZBDesc(r.width, r.height) {
		r.previousHZB.Release()
		r.previousHZB = nil
	}
}

// composeConstants parameterizes the compose pass.
type composeConstants struct {
	Tonemapper  uint32
	ExposureMin float32
	ExposureMax float32
	Padding     uint32
}

// compose resolves the visibility buffer and fog into the final RGBA8
// target with the selected tonemap operator. It stands in for the full
// shading stack: per-pixel identity colors make culling results directly
// observable, which is what the renderer core is specified to produce.
func (r *Renderer) compose(g *graph.Graph, result *raster.Result, lightOut lighting.Output) *graph.Resource {
	final := g.Create("Final Target",
		rhi.Create2D(r.width, r.height, gputypes.TextureFormatRGBA8Unorm, 1))

	// The frame's presentable output: never culled even when no
	// downstream pass (screenshot) reads it.
	pass := g.AddPass("Compose", graph.Compute|graph.NeverCull).
		Read(result.VisibilityBuffer, result.VisibleMeshlets).
		Write(final).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			ctx.SetComputeRootSignature(&rhi.RootSignature{Name: "Common"})
			ctx.SetPipeline(r.composePSO)
			c := composeConstants{
				Tonemapper:  uint32(varTonemapper.Get()),
				ExposureMin: varExposureMin.Get(),
				ExposureMax: varExposureMax.Get(),
			}
			ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&c))
			fog := rhi.NullView()
			if lightOut.FogVolume != nil {
				fog = res.SRV(lightOut.FogVolume)
			}
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{
				res.SRV(result.VisibilityBuffer),
				fog,
			})
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAV(final)})
			ctx.Dispatch((r.width+7)/8, (r.height+7)/8, 1)
		})
	if lightOut.FogVolume != nil {
		pass.Read(lightOut.FogVolume)
	}
	return final
}

// kernelCompose shades each pixel from its visibility id, applies the fog
// volume's transmittance and the selected tonemap operator.
func (r *Renderer) kernelCompose(d rhi.Dispatch) {
	var c composeConstants
	copy(blob.StructToBytes(&c), d.Constants())

	visBuf := d.Texture(rhi.SlotSRVs, 0)
	fog := d.Texture(rhi.SlotSRVs, 1)
	out := d.Texture(rhi.SlotUAVs, 0)
	w, h, _ := out.Dims(0)

	var fw, fh, fd uint32
	if fog != nil {
		fw, fh, fd = fog.Dims(0)
	}

	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			packed := visBuf.LoadUint(0, x, y, 0)
			color := shadeVisibility(packed)

			if fog != nil {
				fx := min(x/lighting.FroxelTexelSize, fw-1)
				fy := min(y/lighting.FroxelTexelSize, fh-1)
				f := fog.Load(0, fx, fy, fd-1)
				t := f[3]
				color[0] = color[0]*t + f[0]
				color[1] = color[1]*t + f[1]
				color[2] = color[2]*t + f[2]
			}

			color = tonemap(color, c)
			out.Store(0, x, y, 0, [4]float32{color[0], color[1], color[2], 1})
		}
	}
}

// shadeVisibility maps a packed visibility id to a stable color; the clear
// value (0) shades to black.
func shadeVisibility(packed uint32) [3]float32 {
	if packed == 0 {
		return [3]float32{}
	}
	h := packed * 2654435761
	return [3]float32{
		float32(h&0xff) / 255,
		float32(h>>8&0xff) / 255,
		float32(h>>16&0xff) / 255,
	}
}

// Tonemap operator indices follow the tweakable: 0 clamp, 1 Reinhard,
// 2 ACES approximation, 3 Uncharted 2, 4 unreal.
func tonemap(c [3]float32, k composeConstants) [3]float32 {
	for i := 0; i < 3; i++ {
		v := math32.Min(math32.Max(c[i], 0), math32.Exp2(k.ExposureMax))
		switch k.Tonemapper {
		case 0:
			v = math32.Min(v, 1)
		case 1:
			v = v / (1 + v)
		case 2:
			v = math32.Min((v*(2.51*v+0.03))/(v*(2.43*v+0.59)+0.14), 1)
		case 3:
			a := func(x float32) float32 {
				return ((x*(0.15*x+0.05) + 0.004) / (x*(0.15*x+0.5) + 0.06)) - 0.0667
			}
			v = math32.Min(a(v)/a(11.2), 1)
		case 4:
			v = v / (v + 0.155) * 1.019
		}
		c[i] = v
	}
	return c
}
