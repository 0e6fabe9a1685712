package raster

import (
	"github.com/chewxy/math32"
	"github.com/gogpu/render3/internal/blob"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

// Reference kernels for the culling chain. Each mirrors one entry point of
// the culling shader; the bound slots are documented at the recording site
// in rasterizer.go.

func u32s(b []byte) []uint32 { return blob.BytesToSlice[uint32](b) }

func candidates(b []byte) []scene.MeshletCandidate {
	return blob.BytesToSlice[scene.MeshletCandidate](b)
}

// screenRect is a sphere's conservative NDC footprint plus its nearest
// reverse-Z depth.
type screenRect struct {
	minU, minV, maxU, maxV float32
	nearDepth              float32
	crossesNear            bool
}

// projectSphere computes the screen rect of a world-space sphere under the
// view-projection. Spheres whose bounding box reaches the eye plane (a
// corner with clip w <= 0) cannot be occlusion-tested and report
// crossesNear.
func projectSphere(vp math3.Mat4, s math3.Sphere) screenRect {
	r := screenRect{minU: 1, minV: 1, maxU: 0, maxV: 0}
	for i := 0; i < 8; i++ {
		corner := s.Center
		if i&1 != 0 {
			corner.X += s.Radius
		} else {
			corner.X -= s.Radius
		}
		if i&2 != 0 {
			corner.Y += s.Radius
		} else {
			corner.Y -= s.Radius
		}
		if i&4 != 0 {
			corner.Z += s.Radius
		} else {
			corner.Z -= s.Radius
		}
		clip := vp.Transform(corner.Vec4(1))
		if clip.W <= 0 {
			r.crossesNear = true
			return r
		}
		ndc := clip.PerspectiveDivide()
		u := ndc.X*0.5 + 0.5
		v := ndc.Y*0.5 + 0.5
		r.minU = math32.Min(r.minU, u)
		r.maxU = math32.Max(r.maxU, u)
		r.minV = math32.Min(r.minV, v)
		r.maxV = math32.Max(r.maxV, v)
		// Reverse-Z: larger depth is nearer.
		r.nearDepth = math32.Max(r.nearDepth, ndc.Z)
	}
	r.minU = math32.Max(r.minU, 0)
	r.minV = math32.Max(r.minV, 0)
	r.maxU = math32.Min(r.maxU, 1)
	r.maxV = math32.Min(r.maxV, 1)
	return r
}

// hzbOccluded samples the depth pyramid over the sphere's footprint and
// reports whether the sphere is conservatively occluded: every stored depth
// in the covered region is nearer than the sphere's nearest point.
func hzbOccluded(hzb rhi.KernelTexture, vp math3.Mat4, s math3.Sphere) bool {
	if hzb == nil {
		return false
	}
	rect := projectSphere(vp, s)
	if rect.crossesNear || rect.maxU <= rect.minU || rect.maxV <= rect.minV {
		return false
	}

	w0, h0, _ := hzb.Dims(0)
	extentW := (rect.maxU - rect.minU) * float32(w0)
	extentH := (rect.maxV - rect.minV) * float32(h0)
	extent := math32.Max(extentW, extentH)

	// Pick the mip where the rect covers at most 2x2 texels.
	mip := 0
	for float32(uint32(2)<<uint(mip)) < extent && mip < hzb.MipCount()-1 {
		mip++
	}
	mw, mh, _ := hzb.Dims(mip)

	x0 := clampU32(uint32(rect.minU*float32(mw)), mw-1)
	x1 := clampU32(uint32(rect.maxU*float32(mw)), mw-1)
	y0 := clampU32(uint32(rect.minV*float32(mh)), mh-1)
	y1 := clampU32(uint32(rect.maxV*float32(mh)), mh-1)

	minDepth := float32(math32.Inf(1))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			minDepth = math32.Min(minDepth, hzb.Load(mip, x, y, 0)[0])
		}
	}
	return minDepth > rect.nearDepth
}

func clampU32(v, max uint32) uint32 {
	if v > max {
		return max
	}
	return v
}

// coneCulled applies the meshlet normal-cone test: the cluster faces away
// from the camera when the view direction falls inside the anti-cone.
func coneCulled(m *scene.Meshlet, world math3.Mat4, center, camera math3.Vec3) bool {
	if m.ConeCutoff >= 1 {
		return false
	}
	axis := world.TransformDirection(m.ConeAxis).Normalized()
	view := center.Sub(camera).Normalized()
	return view.Dot(axis) >= m.ConeCutoff
}

// appendCandidates queues every meshlet of a batch into the candidate list
// for the given phase, dropping overflow beyond MaxNumMeshlets.
func appendCandidates(view *scene.View, batchIndex int, phaseSlot int, cand []scene.MeshletCandidate, counter []uint32) {
	mesh := view.Meshes[view.Batches[batchIndex].MeshIndex]
	for m := range mesh.Meshlets {
		idx := counter[candCounterTotal]
		if idx >= MaxNumMeshlets {
			return
		}
		counter[candCounterTotal]++
		counter[phaseSlot]++
		cand[idx] = scene.MeshletCandidate{
			InstanceID:   uint32(batchIndex),
			MeshletIndex: uint32(m),
		}
	}
}

// newCullInstancesKernel builds the instance-cull entry point for a phase.
//
// Phase 1 walks every batch: frustum-rejected batches drop entirely;
// batches occluded per last frame's HZB queue for phase-2 retest; the rest
// queue their meshlets as phase-1 candidates. Phase 2 walks the carried
// list against the fresh HZB and queues meshlets of anything that became
// visible.
func (r *Rasterizer) newCullInstancesKernel(phase Phase, occlusion bool) rhi.ComputeKernel {
	return func(d rhi.Dispatch) {
		view := r.frame
		cand := candidates(d.Buffer(rhi.SlotUAVs, 0))
		candCounter := u32s(d.Buffer(rhi.SlotUAVs, 1))
		occluded := u32s(d.Buffer(rhi.SlotUAVs, 2))
		occludedCounter := u32s(d.Buffer(rhi.SlotUAVs, 3))
		hzb := d.Texture(rhi.SlotSRVs, 0)

		phaseSlot := candCounterPhase1
		if phase == Phase2 {
			phaseSlot = candCounterPhase2
		}

		test := func(batchIndex int) {
			b := &view.Batches[batchIndex]
			if !view.Frustum.ContainsSphere(b.Bounds) {
				return
			}
			if occlusion && hzbOccluded(hzb, view.ViewProjection, b.Bounds) {
				if phase == Phase1 {
					n := occludedCounter[0]
					if n < MaxNumInstances {
						occluded[n] = uint32(batchIndex)
						occludedCounter[0] = n + 1
					}
				}
				return
			}
			appendCandidates(view, batchIndex, phaseSlot, cand, candCounter)
		}

		if phase == Phase1 {
			for i := range view.Batches {
				test(i)
			}
			return
		}
		for k := uint32(0); k < occludedCounter[0]; k++ {
			test(int(occluded[k]))
		}
	}
}

// newCullMeshletsKernel builds the meshlet-cull entry point for a phase:
// frustum plus cone cull, then the HZB test. Phase-1 meshlets that fail
// only the depth test are re-queued as phase-2 candidates; visible ones
// append to the shared visible list, counted per phase.
func (r *Rasterizer) newCullMeshletsKernel(phase Phase, occlusion bool) rhi.ComputeKernel {
	return func(d rhi.Dispatch) {
		view := r.frame
		cand := candidates(d.Buffer(rhi.SlotUAVs, 0))
		candCounter := u32s(d.Buffer(rhi.SlotUAVs, 1))
		visible := candidates(d.Buffer(rhi.SlotUAVs, 2))
		visCounter := u32s(d.Buffer(rhi.SlotUAVs, 3))
		hzb := d.Texture(rhi.SlotSRVs, 0)

		var start, count uint32
		visSlot := 0
		if phase == Phase1 {
			count = candCounter[candCounterPhase1]
		} else {
			count = candCounter[candCounterPhase2]
			start = candCounter[candCounterTotal] - count
			visSlot = 1
		}

		for k := start; k < start+count; k++ {
			c := cand[k]
			b := &view.Batches[c.InstanceID]
			m := &view.Meshes[b.MeshIndex].Meshlets[c.MeshletIndex]
			bounds := m.Bounds.Transformed(b.World)

			if !view.Frustum.ContainsSphere(bounds) {
				continue
			}
			if coneCulled(m, b.World, bounds.Center, view.CameraPosition) {
				continue
			}
			if occlusion && hzbOccluded(hzb, view.ViewProjection, bounds) {
				if phase == Phase1 {
					idx := candCounter[candCounterTotal]
					if idx < MaxNumMeshlets {
						candCounter[candCounterTotal]++
						candCounter[candCounterPhase2]++
						cand[idx] = c
					}
				}
				continue
			}

			total := visCounter[0] + visCounter[1]
			if total >= MaxNumMeshlets {
				return
			}
			visible[total] = c
			visCounter[visSlot]++
		}
	}
}

// kernelClearCounters zeroes the three counter buffers.
func (r *Rasterizer) kernelClearCounters(d rhi.Dispatch) {
	clear(d.Buffer(rhi.SlotUAVs, 0))
	clear(d.Buffer(rhi.SlotUAVs, 1))
	clear(d.Buffer(rhi.SlotUAVs, 2))
}

// kernelBuildInstanceCullArgs sizes the phase-2 instance cull dispatch from
// the carried-instance counter.
func (r *Rasterizer) kernelBuildInstanceCullArgs(d rhi.Dispatch) {
	counter := u32s(d.Buffer(rhi.SlotSRVs, 0))
	args := u32s(d.Buffer(rhi.SlotUAVs, 0))
	args[0] = (counter[0] + cullInstanceGroupSize - 1) / cullInstanceGroupSize
	args[1] = 1
	args[2] = 1
}

// newBuildMeshletCullArgsKernel sizes the meshlet cull dispatch from the
// phase's candidate counter slot.
func (r *Rasterizer) newBuildMeshletCullArgsKernel(phase Phase) rhi.ComputeKernel {
	slot := candCounterPhase1
	if phase == Phase2 {
		slot = candCounterPhase2
	}
	return func(d rhi.Dispatch) {
		counter := u32s(d.Buffer(rhi.SlotSRVs, 0))
		args := u32s(d.Buffer(rhi.SlotUAVs, 0))
		args[0] = (counter[slot] + cullMeshletGroupSize - 1) / cullMeshletGroupSize
		args[1] = 1
		args[2] = 1
	}
}
