package raster

import (
	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

// HZBDesc returns the pyramid descriptor for a viewport: base dimensions
// are the next power of two of the viewport halved, with mips down to a
// 1x1 top so the coarsest occlusion test covers the whole screen.
func HZBDesc(width, height uint32) rhi.ResourceDesc {
	w := max(math3.NextPow2(width)>>1, 1)
	h := max(math3.NextPow2(height)>>1, 1)
	mips := math3.Log2Floor(max(w, h)) + 1
	return rhi.Create2D(w, h, gputypes.TextureFormatR16Float, mips)
}

// InitHZB creates the frame's pyramid resource on the graph.
func (r *Rasterizer) InitHZB(g *graph.Graph, width, height uint32) *graph.Resource {
	return g.Create("HZB", HZBDesc(width, height))
}

// BuildHZB schedules the two reduction passes: the fetch-and-reduce pass
// producing mip 0 from the depth target, then the single-dispatch pyramid
// pass for the remaining mips.
//
// The depth target must be shader-readable on entry; every mip of the
// pyramid ends shader-readable for the cull passes that follow.
func (r *Rasterizer) BuildHZB(g *graph.Graph, view *scene.View, depth, hzb *graph.Resource) {
	g.PushScope("HZB")
	defer g.PopScope()

	hzbDesc := hzb.Desc()

	g.AddPass("HZB Create", graph.Compute).
		Read(depth).
		Write(hzb).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			r.bindFrame(view)
			ctx.SetComputeRootSignature(r.sig)
			ctx.SetPipeline(r.hzbInitPSO)
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAVMip(hzb, 0)})
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{res.SRV(depth)})
			ctx.Dispatch(math3.DivideAndRoundUp(hzbDesc.Width, 16), math3.DivideAndRoundUp(hzbDesc.Height, 16), 1)
		})

	spdCounter := g.Create("SPD.Counter", rhi.CreateStructured(1, 4, 0))

	g.AddPass("HZB Mips", graph.Compute).
		Write(hzb, spdCounter).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			r.bindFrame(view)
			ctx.ClearUAVUint(res.Get(spdCounter))
			ctx.SetComputeRootSignature(r.sig)
			ctx.SetPipeline(r.hzbMipsPSO)
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{
				res.UAV(spdCounter),
				res.UAV(hzb),
			})
			// One workgroup per 64x64 tile of mip 0; the last group of
			// each tile row carries the reduction down the pyramid.
			ctx.Dispatch(math3.DivideAndRoundUp(hzbDesc.Width, 64), math3.DivideAndRoundUp(hzbDesc.Height, 64), 1)
		})
}

// kernelHZBInit produces mip 0: every output texel reduces the covering
// 2x2 source block to the farther depth, which under reverse-Z is the
// minimum.
func (r *Rasterizer) kernelHZBInit(d rhi.Dispatch) {
	hzb := d.Texture(rhi.SlotUAVs, 0)
	src := d.Texture(rhi.SlotSRVs, 0)
	hw, hh, _ := hzb.Dims(0)
	sw, sh, _ := src.Dims(0)

	for y := uint32(0); y < hh; y++ {
		for x := uint32(0); x < hw; x++ {
			sx := clampU32(x*sw/hw, sw-1)
			sy := clampU32(y*sh/hh, sh-1)
			sx1 := clampU32(sx+1, sw-1)
			sy1 := clampU32(sy+1, sh-1)
			d0 := src.Load(0, sx, sy, 0)[0]
			d1 := src.Load(0, sx1, sy, 0)[0]
			d2 := src.Load(0, sx, sy1, 0)[0]
			d3 := src.Load(0, sx1, sy1, 0)[0]
			v := math32.Min(math32.Min(d0, d1), math32.Min(d2, d3))
			hzb.Store(0, x, y, 0, [4]float32{v})
		}
	}
}

// kernelHZBMips reduces mips 1..N, min of the 2x2 parent block. The counter
// buffer carries the finished-workgroup count of the single-pass
// downsampler; the serial reference completes every tile, so it simply
// records the full grid.
func (r *Rasterizer) kernelHZBMips(d rhi.Dispatch) {
	counter := u32s(d.Buffer(rhi.SlotUAVs, 0))
	hzb := d.Texture(rhi.SlotUAVs, 1)

	gx, gy, _ := d.Groups()
	counter[0] = gx * gy

	for m := 1; m < hzb.MipCount(); m++ {
		w, h, _ := hzb.Dims(m)
		pw, ph, _ := hzb.Dims(m - 1)
		for y := uint32(0); y < h; y++ {
			for x := uint32(0); x < w; x++ {
				x0, y0 := clampU32(x*2, pw-1), clampU32(y*2, ph-1)
				x1, y1 := clampU32(x*2+1, pw-1), clampU32(y*2+1, ph-1)
				v := math32.Min(
					math32.Min(hzb.Load(m-1, x0, y0, 0)[0], hzb.Load(m-1, x1, y0, 0)[0]),
					math32.Min(hzb.Load(m-1, x0, y1, 0)[0], hzb.Load(m-1, x1, y1, 0)[0]),
				)
				hzb.Store(m, x, y, 0, [4]float32{v})
			}
		}
	}
}
