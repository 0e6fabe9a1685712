package raster

import (
	"github.com/chewxy/math32"
	"github.com/gogpu/render3/internal/blob"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/rhi"
)

// rasterConstants is the root-constant blob of the rasterize pass.
type rasterConstants struct {
	BinIndex uint32
}

// PackVisibility packs a visible-meshlet index and a triangle index into
// one visibility-buffer texel. Triangle ids fit 7 bits (at most 128
// triangles per meshlet).
func PackVisibility(visibleIndex, triangle uint32) uint32 {
	return visibleIndex<<7 | (triangle & 0x7f)
}

// UnpackVisibility splits a visibility texel back into meshlet and
// triangle ids.
func UnpackVisibility(v uint32) (visibleIndex, triangle uint32) {
	return v >> 7, v & 0x7f
}

// packDebug packs the debug side channel's {instance, meshlet} pair.
func packDebug(instanceID, meshletIndex uint32) uint32 {
	return instanceID<<16 | (meshletIndex & 0xffff)
}

// kernelRasterizeMeshlets is the reference mesh pipeline: one thread group
// per binned meshlet. It transforms the meshlet's triangles, performs the
// per-pixel reverse-Z depth test against the bound depth target, and writes
// the packed visibility id (and the debug pair when bound).
func (r *Rasterizer) kernelRasterizeMeshlets(d rhi.Dispatch, rt rhi.RenderTargets) {
	var c rasterConstants
	copy(blob.StructToBytes(&c), d.Constants())

	view := r.frame
	visible := candidates(d.Buffer(rhi.SlotSRVs, 0))
	binned := u32s(d.Buffer(rhi.SlotSRVs, 1))
	table := binRecords(d.Buffer(rhi.SlotSRVs, 2))
	debugData := d.Texture(rhi.SlotUAVs, 0)

	depth := rt.Depth()
	visTarget := rt.Color(0)
	if depth == nil {
		return
	}
	width, height, _ := depth.Dims(0)

	groups, _, _ := d.Groups()
	offset := table[c.BinIndex].Offset

	for g := uint32(0); g < groups; g++ {
		visibleIndex := binned[offset+g]
		cand := visible[visibleIndex]
		batch := &view.Batches[cand.InstanceID]
		mesh := view.Meshes[batch.MeshIndex]
		meshlet := &mesh.Meshlets[cand.MeshletIndex]

		wvp := view.ViewProjection.Mul(batch.World)

		for t := uint32(0); t < meshlet.TriangleCount; t++ {
			i0 := mesh.Indices[meshlet.TriangleOffset+t*3+0]
			i1 := mesh.Indices[meshlet.TriangleOffset+t*3+1]
			i2 := mesh.Indices[meshlet.TriangleOffset+t*3+2]
			r.rasterTriangle(rt, depth, visTarget, debugData, width, height,
				wvp, mesh.Positions[i0], mesh.Positions[i1], mesh.Positions[i2],
				PackVisibility(visibleIndex, t),
				packDebug(batch.InstanceID, cand.MeshletIndex))
		}
	}
}

// rasterTriangle edge-function rasterizes one triangle. Triangles with a
// vertex at or behind the eye plane (clip w <= 0) are dropped rather than
// clipped; the occlusion pipeline is conservative either way.
func (r *Rasterizer) rasterTriangle(rt rhi.RenderTargets, depth, visTarget, debugData rhi.KernelTexture,
	width, height uint32, wvp math3.Mat4, p0, p1, p2 math3.Vec3, visValue, debugValue uint32) {

	c0 := wvp.Transform(p0.Vec4(1))
	c1 := wvp.Transform(p1.Vec4(1))
	c2 := wvp.Transform(p2.Vec4(1))
	if c0.W <= 0 || c1.W <= 0 || c2.W <= 0 {
		return
	}
	n0 := c0.PerspectiveDivide()
	n1 := c1.PerspectiveDivide()
	n2 := c2.PerspectiveDivide()

	toScreen := func(n math3.Vec3) (float32, float32) {
		return (n.X*0.5 + 0.5) * float32(width), (1 - (n.Y*0.5 + 0.5)) * float32(height)
	}
	x0, y0 := toScreen(n0)
	x1, y1 := toScreen(n1)
	x2, y2 := toScreen(n2)

	area := (x1-x0)*(y2-y0) - (x2-x0)*(y1-y0)
	if area == 0 {
		return
	}

	minX := uint32(math32.Max(math32.Floor(math32.Min(x0, math32.Min(x1, x2))), 0))
	minY := uint32(math32.Max(math32.Floor(math32.Min(y0, math32.Min(y1, y2))), 0))
	maxX := math32.Ceil(math32.Max(x0, math32.Max(x1, x2)))
	maxY := math32.Ceil(math32.Max(y0, math32.Max(y1, y2)))
	if maxX <= 0 || maxY <= 0 || minX >= width || minY >= height {
		return
	}
	endX := clampU32(uint32(maxX), width)
	endY := clampU32(uint32(maxY), height)

	invArea := 1 / area
	for py := minY; py < endY; py++ {
		for px := minX; px < endX; px++ {
			cx := float32(px) + 0.5
			cy := float32(py) + 0.5
			w0 := ((x1-cx)*(y2-cy) - (x2-cx)*(y1-cy)) * invArea
			w1 := ((x2-cx)*(y0-cy) - (x0-cx)*(y2-cy)) * invArea
			w2 := 1 - w0 - w1
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*n0.Z + w1*n1.Z + w2*n2.Z

			stored := depth.Load(0, px, py, 0)[0]
			pass := false
			switch rt.DepthCompare() {
			case rhi.CompareGreater:
				pass = z > stored
			case rhi.CompareGreaterEqual:
				pass = z >= stored
			case rhi.CompareEqual:
				pass = z == stored
			case rhi.CompareAlways:
				pass = true
			}
			if !pass {
				continue
			}
			if rt.DepthWriteEnabled() {
				depth.Store(0, px, py, 0, [4]float32{z})
			}
			if visTarget != nil {
				visTarget.StoreUint(0, px, py, 0, visValue)
			}
			if debugData != nil {
				debugData.StoreUint(0, px, py, 0, debugValue)
			}
		}
	}
}
