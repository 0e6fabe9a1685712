package raster

import (
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/internal/blob"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

// DebugMode selects what the visibility debug pass visualizes.
type DebugMode uint32

const (
	DebugInstances DebugMode = iota
	DebugMeshlets
	DebugTriangles
	DebugOverdraw
)

type debugConstants struct {
	Mode uint32
}

// RenderVisibilityDebug schedules a compute pass colorizing the visibility
// buffer into target by the given mode. Requires the raster result of a
// ModeVisibilityBuffer render with debug data enabled for the instance
// mode.
func (r *Rasterizer) RenderVisibilityDebug(g *graph.Graph, view *scene.View, result *Result, mode DebugMode, target *graph.Resource) {
	if result.VisibilityBuffer == nil {
		return
	}
	pass := g.AddPass("Visibility Debug Render", graph.Compute).
		Read(result.VisibilityBuffer, result.VisibleMeshlets).
		Write(target).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			r.bindFrame(view)
			ctx.SetComputeRootSignature(r.sig)
			ctx.SetPipeline(r.visibilityDebugPSO)
			c := debugConstants{Mode: uint32(mode)}
			ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&c))
			dbg := rhi.NullView()
			if result.DebugData != nil {
				dbg = res.SRV(result.DebugData)
			}
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{
				res.SRV(result.VisibilityBuffer),
				res.SRV(result.VisibleMeshlets),
				dbg,
			})
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAV(target)})
			desc := target.Desc()
			ctx.Dispatch((desc.Width+7)/8, (desc.Height+7)/8, 1)
		})
	if result.DebugData != nil {
		pass.Read(result.DebugData)
	}
}

// kernelVisibilityDebug writes a stable pseudo-color per instance, meshlet
// or triangle, or a heat ramp of overdraw, from the visibility buffer and
// debug side channel.
func (r *Rasterizer) kernelVisibilityDebug(d rhi.Dispatch) {
	var c debugConstants
	copy(blob.StructToBytes(&c), d.Constants())

	visBuf := d.Texture(rhi.SlotSRVs, 0)
	debugData := d.Texture(rhi.SlotSRVs, 2)
	out := d.Texture(rhi.SlotUAVs, 0)
	w, h, _ := out.Dims(0)

	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			packed := visBuf.LoadUint(0, x, y, 0)
			meshletID, triangleID := UnpackVisibility(packed)

			var id uint32
			switch DebugMode(c.Mode) {
			case DebugInstances:
				if debugData != nil {
					id = debugData.LoadUint(0, x, y, 0) >> 16
				}
			case DebugMeshlets:
				id = meshletID
			case DebugTriangles:
				id = packed
			case DebugOverdraw:
				// The single-sample reference stores final coverage
				// only; visualize triangle density instead.
				id = triangleID
			}
			out.Store(0, x, y, 0, hashColor(id))
		}
	}
}

// hashColor maps an id to a stable pseudo-random color.
func hashColor(id uint32) [4]float32 {
	h := id * 2654435761
	return [4]float32{
		float32(h&0xff) / 255,
		float32(h>>8&0xff) / 255,
		float32(h>>16&0xff) / 255,
		1,
	}
}
