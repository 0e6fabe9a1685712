package raster

import (
	"encoding/binary"

	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

// Work-graph backend: the whole cull-and-classify chain of a phase encoded
// as one dispatch-graph program. All nodes share a single binding layout:
//
//	UAVs: 0 candidates, 1 candidate counter, 2 occluded instances,
//	      3 occluded counter, 4 visible, 5 visible counter,
//	      6 bin table, 7 binned indirection
//	SRVs: 0 source HZB
const (
	wgCandidates = iota
	wgCandCounter
	wgOccluded
	wgOccludedCounter
	wgVisible
	wgVisCounter
	wgBinTable
	wgBinned
)

// initWorkGraphs builds the per-phase state objects and the bin-clear
// pipeline.
func (r *Rasterizer) initWorkGraphs(compute func(name, entry string, k rhi.ComputeKernel) rhi.Pipeline) {
	nodes := func(phase Phase, occlusion bool, entry string) []rhi.WorkGraphNode {
		return []rhi.WorkGraphNode{
			{Name: entry, Kernel: r.newWGCullInstancesNode(phase, occlusion)},
			{Name: "CullMeshletsCS", Kernel: r.newWGCullMeshletsNode(phase, occlusion)},
			{Name: "BinMeshletsCS", Kernel: r.newWGBinNode(phase)},
		}
	}
	mustSO := func(name string, n []rhi.WorkGraphNode) rhi.StateObject {
		so, err := r.device.CreateStateObject(rhi.StateObjectDesc{Name: name, Nodes: n})
		if err != nil {
			panic(err)
		}
		return so
	}
	r.workGraphSO[0] = mustSO("WG", nodes(Phase1, true, "CullInstancesCS"))
	r.workGraphSO[1] = mustSO("WG", nodes(Phase2, true, "KickPhase2NodesCS"))
	r.workGraphNoOcclusionSO = mustSO("WG", nodes(Phase1, false, "CullInstancesCS"))

	r.clearRasterBinsPSO = compute("Clear Raster Bins", "ClearRasterBins", func(d rhi.Dispatch) {
		clear(d.Buffer(rhi.SlotUAVs, 0))
	})
}

// cullWorkGraph schedules the clear-bins dispatch plus the dispatch-graph
// pass replacing the discrete culling chain of a phase.
func (r *Rasterizer) cullWorkGraph(g *graph.Graph, view *scene.View, phase Phase, rc *Context,
	sourceHZB, table, binned *graph.Resource) {

	phaseIndex := 0
	if phase == Phase2 {
		phaseIndex = 1
	}
	so := r.workGraphSO[phaseIndex]
	if !rc.EnableOcclusionCulling {
		so = r.workGraphNoOcclusionSO
	}

	g.AddPass("Clear Raster Bins", graph.Compute).
		Write(table).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			ctx.SetComputeRootSignature(r.sig)
			ctx.SetPipeline(r.clearRasterBinsPSO)
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAV(table)})
			ctx.Dispatch(1, 1, 1)
			ctx.UAVBarrier(nil)
		})

	backing := g.Create("Work Graph Buffer",
		rhi.CreateByteAddress(so.BackingSize(), rhi.UsageUnorderedAccess))

	wgPass := g.AddPass("Work Graph", graph.Compute).
		Write(backing).
		Write(binned, table).
		Write(rc.CandidateMeshlets, rc.CandidateMeshletsCounter).
		Write(rc.OccludedInstances, rc.OccludedInstancesCounter).
		Write(rc.VisibleMeshlets, rc.VisibleMeshletsCounter).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			r.bindFrame(view)
			ctx.SetComputeRootSignature(r.sig)
			bindViewUniforms(ctx, view)

			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{
				res.UAV(rc.CandidateMeshlets),
				res.UAV(rc.CandidateMeshletsCounter),
				res.UAV(rc.OccludedInstances),
				res.UAV(rc.OccludedInstancesCounter),
				res.UAV(rc.VisibleMeshlets),
				res.UAV(rc.VisibleMeshletsCounter),
				res.UAV(table),
				res.UAV(binned),
			})
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{hzbView(res, sourceHZB, rc)})

			// Reinitialize the program whenever the backing buffer's
			// physical identity changed (resize, pool churn).
			phys := res.Get(backing)
			initialize := phys != r.workGraphBacking[phaseIndex]
			r.workGraphBacking[phaseIndex] = phys

			entry := "CullInstancesCS"
			grid := math3.DivideAndRoundUp(uint32(len(view.Batches)), cullInstanceGroupSize)
			if phase == Phase2 {
				entry = "KickPhase2NodesCS"
				grid = 1
			}
			records := make([]byte, 4)
			binary.LittleEndian.PutUint32(records, max(grid, 1))

			ctx.DispatchGraph(rhi.GraphDispatchDesc{
				Object:     so,
				Backing:    phys,
				Initialize: initialize,
				EntryPoint: entry,
				Records:    records,
			})
			ctx.UAVBarrier(nil)
		})
	if sourceHZB != nil {
		wgPass.Read(sourceHZB)
	}
}

// newWGCullInstancesNode adapts the instance cull to the work-graph binding
// layout.
func (r *Rasterizer) newWGCullInstancesNode(phase Phase, occlusion bool) rhi.ComputeKernel {
	return func(d rhi.Dispatch) {
		view := r.frame
		cand := candidates(d.Buffer(rhi.SlotUAVs, wgCandidates))
		candCounter := u32s(d.Buffer(rhi.SlotUAVs, wgCandCounter))
		occluded := u32s(d.Buffer(rhi.SlotUAVs, wgOccluded))
		occludedCounter := u32s(d.Buffer(rhi.SlotUAVs, wgOccludedCounter))
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
					if n := occludedCounter[0]; n < MaxNumInstances {
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

// newWGCullMeshletsNode adapts the meshlet cull to the work-graph binding
// layout.
func (r *Rasterizer) newWGCullMeshletsNode(phase Phase, occlusion bool) rhi.ComputeKernel {
	return func(d rhi.Dispatch) {
		view := r.frame
		cand := candidates(d.Buffer(rhi.SlotUAVs, wgCandidates))
		candCounter := u32s(d.Buffer(rhi.SlotUAVs, wgCandCounter))
		visible := candidates(d.Buffer(rhi.SlotUAVs, wgVisible))
		visCounter := u32s(d.Buffer(rhi.SlotUAVs, wgVisCounter))
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
					if idx := candCounter[candCounterTotal]; idx < MaxNumMeshlets {
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

// newWGBinNode folds count, allocate and write into one serial node: the
// dispatch-graph runs after both cull nodes, so the visible segment is
// final.
func (r *Rasterizer) newWGBinNode(phase Phase) rhi.ComputeKernel {
	return func(d rhi.Dispatch) {
		visible := candidates(d.Buffer(rhi.SlotUAVs, wgVisible))
		visCounter := u32s(d.Buffer(rhi.SlotUAVs, wgVisCounter))
		table := binRecords(d.Buffer(rhi.SlotUAVs, wgBinTable))
		binned := u32s(d.Buffer(rhi.SlotUAVs, wgBinned))

		start, count := visibleSegment(visCounter, phase == Phase2)

		var counts [numBins]uint32
		for k := start; k < start+count; k++ {
			counts[r.binFor(visible[k].InstanceID)]++
		}
		offset := uint32(0)
		for i := 0; i < numBins; i++ {
			table[i] = binRecord{GroupsX: counts[i], GroupsY: 1, GroupsZ: 1, Offset: offset}
			offset += counts[i]
			counts[i] = 0
		}
		for k := start; k < start+count; k++ {
			bin := r.binFor(visible[k].InstanceID)
			binned[table[bin].Offset+counts[bin]] = k
			counts[bin]++
		}
	}
}
