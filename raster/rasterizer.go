package raster

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/internal/blob"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

// Rasterizer owns the culling and rasterization pipelines. Create one per
// device and reuse it across frames and views.
type Rasterizer struct {
	device rhi.Device
	sig    *rhi.RootSignature

	// frame is the scene view of the pass currently executing. Pass
	// closures bind it just before dispatching so the reference kernels
	// can read the CPU scene snapshot; graph execution is serial, which
	// makes the handoff safe.
	frame *scene.View

	clearCountersPSO rhi.Pipeline
	buildCullArgsPSO rhi.Pipeline

	buildMeshletCullArgsPSO [2]rhi.Pipeline
	cullInstancesPSO        [2]rhi.Pipeline
	cullMeshletsPSO         [2]rhi.Pipeline

	cullInstancesNoOcclusionPSO rhi.Pipeline
	cullMeshletsNoOcclusionPSO  rhi.Pipeline

	binPreparePSO  rhi.Pipeline
	binCountPSO    rhi.Pipeline
	binAllocatePSO rhi.Pipeline
	binWritePSO    rhi.Pipeline

	drawMeshletsPSO          [numBins]rhi.Pipeline
	drawMeshletsDepthOnlyPSO [numBins]rhi.Pipeline

	hzbInitPSO rhi.Pipeline
	hzbMipsPSO rhi.Pipeline

	statsPSO           rhi.Pipeline
	visibilityDebugPSO rhi.Pipeline

	workGraphSO            [2]rhi.StateObject
	workGraphNoOcclusionSO rhi.StateObject
	clearRasterBinsPSO     rhi.Pipeline

	// workGraphBacking tracks the backing buffer identity per phase; the
	// program re-initializes whenever it changes.
	workGraphBacking [2]rhi.Resource

	// fallbackHZB substitutes for the previous frame's pyramid on the
	// first frame: a 1x1 far-depth texture that occludes nothing.
	fallbackHZB rhi.Resource
}

// NewRasterizer creates the rasterizer's pipelines. The device must
// support mesh shading.
func NewRasterizer(device rhi.Device) (*Rasterizer, error) {
	if !device.Capabilities().MeshShading {
		return nil, fmt.Errorf("raster: %w: mesh shading", rhi.ErrUnsupported)
	}

	r := &Rasterizer{
		device: device,
		sig:    &rhi.RootSignature{Name: "Common", NumRootConstants: rhi.MaxRootConstants},
	}

	compute := func(name, entry string, k rhi.ComputeKernel) rhi.Pipeline {
		p, err := device.CreateComputePipeline(rhi.ComputePipelineDesc{
			Name: name, EntryPoint: entry, Kernel: k,
		})
		if err != nil {
			panic(err)
		}
		return p
	}

	r.clearCountersPSO = compute("Meshlet Clear Counters", "ClearCountersCS", r.kernelClearCounters)
	r.buildCullArgsPSO = compute("Build Instance Cull Args", "BuildInstanceCullIndirectArgs", r.kernelBuildInstanceCullArgs)

	for i, phase := range []Phase{Phase1, Phase2} {
		r.buildMeshletCullArgsPSO[i] = compute("Build Meshlet Cull Args", "BuildMeshletCullIndirectArgs", r.newBuildMeshletCullArgsKernel(phase))
		r.cullInstancesPSO[i] = compute("Cull Instances", "CullInstancesCS", r.newCullInstancesKernel(phase, true))
		r.cullMeshletsPSO[i] = compute("Cull Meshlets", "CullMeshletsCS", r.newCullMeshletsKernel(phase, true))
	}
	r.cullInstancesNoOcclusionPSO = compute("Cull Instances (No Occlusion)", "CullInstancesCS", r.newCullInstancesKernel(Phase1, false))
	r.cullMeshletsNoOcclusionPSO = compute("Cull Meshlets (No Occlusion)", "CullMeshletsCS", r.newCullMeshletsKernel(Phase1, false))

	r.binPreparePSO = compute("Meshlet Bin Prepare", "PrepareArgsCS", r.kernelBinPrepare)
	r.binCountPSO = compute("Meshlet Bin Count", "ClassifyMeshletsCS", r.kernelBinCount)
	r.binAllocatePSO = compute("Meshlet Bin Allocate", "AllocateBinRangesCS", r.kernelBinAllocate)
	r.binWritePSO = compute("Meshlet Bin Write", "WriteBinsCS", r.kernelBinWrite)

	r.hzbInitPSO = compute("HZB Init", "HZBInitCS", r.kernelHZBInit)
	r.hzbMipsPSO = compute("HZB Mips", "HZBCreateCS", r.kernelHZBMips)

	r.statsPSO = compute("Meshlet Stats", "PrintStatsCS", r.kernelStats)
	r.visibilityDebugPSO = compute("Visibility Debug", "DebugRenderCS", r.kernelVisibilityDebug)

	raster := func(name string, depthWrite bool, cmp rhi.CompareFunc) rhi.Pipeline {
		p, err := device.CreateRasterPipeline(rhi.RasterPipelineDesc{
			Name: name, MeshEntry: "MSMain", PixelEntry: "PSMain",
			DepthCompare: cmp, DepthWrite: depthWrite,
			Kernel: r.kernelRasterizeMeshlets,
		})
		if err != nil {
			panic(err)
		}
		return p
	}
	r.drawMeshletsPSO[binOpaque] = raster("Meshlet Rasterize (Visibility Buffer)", true, rhi.CompareGreater)
	r.drawMeshletsPSO[binAlphaMasked] = raster("Meshlet Rasterize (Visibility Buffer, Masked)", true, rhi.CompareGreater)
	r.drawMeshletsDepthOnlyPSO[binOpaque] = raster("Meshlet Rasterize (Depth Only)", true, rhi.CompareGreater)
	r.drawMeshletsDepthOnlyPSO[binAlphaMasked] = raster("Meshlet Rasterize (Depth Only, Masked)", true, rhi.CompareGreater)

	if device.Capabilities().WorkGraphs {
		r.initWorkGraphs(compute)
	}

	fallback, err := device.CreateTexture(rhi.Create2D(1, 1, gputypes.TextureFormatR16Float, 1), "HZB Fallback")
	if err != nil {
		return nil, fmt.Errorf("raster: fallback HZB: %w", err)
	}
	r.fallbackHZB = fallback

	return r, nil
}

func (r *Rasterizer) bindFrame(v *scene.View) { r.frame = v }

func bindViewUniforms(ctx rhi.CommandContext, view *scene.View) {
	ctx.SetRootCBV(rhi.SlotViewCBV, view.UniformBytes())
}

// Render schedules the full two-phase cull and rasterize chain for the
// view. With occlusion culling disabled, phase 1 already renders
// everything and phase 2 is skipped.
func (r *Rasterizer) Render(g *graph.Graph, view *scene.View, rc *Context, out *Result) {
	if rc.EnableOcclusionCulling && rc.PreviousHZB == nil {
		panic("raster: occlusion culling requires a previous-HZB slot")
	}
	if len(view.Batches) > MaxNumInstances || countMeshlets(view) > MaxNumMeshlets {
		logger().Warn("scene exceeds culling capacity",
			"instances", len(view.Batches), "meshlets", countMeshlets(view))
	}

	g.PushScope("Cull and Rasterize")
	defer g.PopScope()

	depthDesc := rc.Depth.Desc()
	width, height := depthDesc.Width, depthDesc.Height

	out.HZB = nil
	out.VisibilityBuffer = nil
	if rc.Mode == ModeVisibilityBuffer {
		out.VisibilityBuffer = g.Create("Visibility",
			rhi.CreateRenderTarget(width, height, gputypes.TextureFormatR32Uint, 1))
	}
	if rc.EnableOcclusionCulling {
		out.HZB = r.InitHZB(g, width, height)
		g.Export(out.HZB, rc.PreviousHZB)
	}
	if rc.EnableDebug {
		out.DebugData = g.Create("GPURender.DebugData",
			rhi.Create2D(width, height, gputypes.TextureFormatR32Uint, 1))
	}

	clearPass := g.AddPass("Clear UAVs", graph.Compute).
		Write(rc.CandidateMeshletsCounter, rc.OccludedInstancesCounter, rc.VisibleMeshletsCounter).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			if out.DebugData != nil {
				ctx.ClearUAVUint(res.Get(out.DebugData))
			}
			ctx.SetComputeRootSignature(r.sig)
			ctx.SetPipeline(r.clearCountersPSO)
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{
				res.UAV(rc.CandidateMeshletsCounter),
				res.UAV(rc.OccludedInstancesCounter),
				res.UAV(rc.VisibleMeshletsCounter),
			})
			ctx.Dispatch(1, 1, 1)
			ctx.UAVBarrier(nil)
		})
	if out.DebugData != nil {
		clearPass.Write(out.DebugData)
	}

	g.PushScope("Phase 1")
	r.cullAndRasterize(g, view, Phase1, rc, out)
	g.PopScope()

	if rc.EnableOcclusionCulling {
		g.PushScope("Phase 2")
		r.cullAndRasterize(g, view, Phase2, rc, out)
		g.PopScope()
	}

	out.VisibleMeshlets = rc.VisibleMeshlets
}

// cullAndRasterize schedules one phase: instance cull, meshlet cull,
// classification, the binned indirect rasterization, and the HZB rebuild.
func (r *Rasterizer) cullAndRasterize(g *graph.Graph, view *scene.View, phase Phase, rc *Context, out *Result) {
	// Phase 1 tests against the previous frame's pyramid, phase 2 against
	// the one phase 1 just built.
	var sourceHZB *graph.Resource
	if rc.EnableOcclusionCulling {
		if phase == Phase1 {
			sourceHZB = g.TryImport("HZB.Previous", *rc.PreviousHZB, r.fallbackHZB)
		} else {
			sourceHZB = out.HZB
		}
	}

	phaseIndex := 0
	if phase == Phase2 {
		phaseIndex = 1
	}

	cullInstancePSO := r.cullInstancesPSO[phaseIndex]
	cullMeshletPSO := r.cullMeshletsPSO[phaseIndex]
	rasterPSOs := &r.drawMeshletsPSO
	if !rc.EnableOcclusionCulling {
		cullInstancePSO = r.cullInstancesNoOcclusionPSO
		cullMeshletPSO = r.cullMeshletsNoOcclusionPSO
	}
	if rc.Mode == ModeShadows {
		rasterPSOs = &r.drawMeshletsDepthOnlyPSO
	}

	meshletOffsetAndCounts := g.Create("GPURender.Classify.MeshletOffsetAndCounts",
		rhi.CreateStructured(numBins, 16, rhi.UsageIndirectArgs|rhi.UsageUnorderedAccess|rhi.UsageShaderResource))
	binnedMeshlets := g.Create("GPURender.Classify.BinnedMeshlets",
		rhi.CreateStructured(MaxNumMeshlets, 4, 0))
	rc.BinnedMeshletOffsetAndCounts[phaseIndex] = meshletOffsetAndCounts

	if rc.UseWorkGraph && r.device.Capabilities().WorkGraphs {
		r.cullWorkGraph(g, view, phase, rc, sourceHZB, meshletOffsetAndCounts, binnedMeshlets)
	} else {
		g.PushScope("Instance/Meshlet Culling")

		// Phase 2 sizes its instance cull from phase 1's carry-over
		// counter.
		var instanceCullArgs *graph.Resource
		if phase == Phase2 {
			instanceCullArgs = g.Create("GPURender.InstanceCullArgs", rhi.CreateIndirectArguments(1))
			g.AddPass("Build Instance Cull Arguments", graph.Compute).
				Read(rc.OccludedInstancesCounter).
				Write(instanceCullArgs).
				Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
					ctx.SetComputeRootSignature(r.sig)
					ctx.SetPipeline(r.buildCullArgsPSO)
					ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{res.SRV(rc.OccludedInstancesCounter)})
					ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAV(instanceCullArgs)})
					ctx.Dispatch(1, 1, 1)
				})
		}

		cullInstancePass := g.AddPass("Cull Instances", graph.Compute).
			Write(rc.CandidateMeshlets, rc.CandidateMeshletsCounter, rc.OccludedInstances, rc.OccludedInstancesCounter).
			Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
				r.bindFrame(view)
				ctx.SetComputeRootSignature(r.sig)
				ctx.SetPipeline(cullInstancePSO)
				ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{
					res.UAV(rc.CandidateMeshlets),
					res.UAV(rc.CandidateMeshletsCounter),
					res.UAV(rc.OccludedInstances),
					res.UAV(rc.OccludedInstancesCounter),
				})
				ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{hzbView(res, sourceHZB, rc)})
				bindViewUniforms(ctx, view)
				if phase == Phase1 {
					groups := math3.DivideAndRoundUp(uint32(len(view.Batches)), cullInstanceGroupSize)
					ctx.Dispatch(max(groups, 1), 1, 1)
				} else {
					ctx.ExecuteIndirect(rhi.DispatchSignature, 1, res.Get(instanceCullArgs), 0)
				}
			})
		if phase == Phase2 {
			cullInstancePass.ReadIndirect(instanceCullArgs)
		}
		if sourceHZB != nil {
			cullInstancePass.Read(sourceHZB)
		}

		meshletCullArgs := g.Create("GPURender.MeshletCullArgs", rhi.CreateIndirectArguments(1))
		g.AddPass("Build Meshlet Cull Arguments", graph.Compute).
			Read(rc.CandidateMeshletsCounter).
			Write(meshletCullArgs).
			Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
				ctx.SetComputeRootSignature(r.sig)
				ctx.SetPipeline(r.buildMeshletCullArgsPSO[phaseIndex])
				ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{res.SRV(rc.CandidateMeshletsCounter)})
				ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAV(meshletCullArgs)})
				ctx.Dispatch(1, 1, 1)
			})

		meshletCullPass := g.AddPass("Cull Meshlets", graph.Compute).
			ReadIndirect(meshletCullArgs).
			Write(rc.CandidateMeshlets, rc.CandidateMeshletsCounter, rc.VisibleMeshlets, rc.VisibleMeshletsCounter).
			Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
				r.bindFrame(view)
				ctx.SetComputeRootSignature(r.sig)
				ctx.SetPipeline(cullMeshletPSO)
				ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{
					res.UAV(rc.CandidateMeshlets),
					res.UAV(rc.CandidateMeshletsCounter),
					res.UAV(rc.VisibleMeshlets),
					res.UAV(rc.VisibleMeshletsCounter),
				})
				ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{hzbView(res, sourceHZB, rc)})
				bindViewUniforms(ctx, view)
				ctx.ExecuteIndirect(rhi.DispatchSignature, 1, res.Get(meshletCullArgs), 0)
			})
		if sourceHZB != nil {
			meshletCullPass.Read(sourceHZB)
		}

		r.classify(g, view, phase, rc, meshletOffsetAndCounts, binnedMeshlets)
		g.PopScope()
	}

	// Rasterize each bin with its pipeline and one indirect
	// dispatch-mesh sourced from the bin table.
	depthAccess := rhi.AccessClearStore
	if phase == Phase2 {
		depthAccess = rhi.AccessLoadStore
	}
	drawPass := g.AddPass("Rasterize", graph.Raster).
		Read(rc.VisibleMeshlets, binnedMeshlets).
		ReadIndirect(meshletOffsetAndCounts).
		DepthStencil(rc.Depth, depthAccess, rhi.AccessDontCare, true).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			r.bindFrame(view)
			ctx.SetGraphicsRootSignature(r.sig)
			bindViewUniforms(ctx, view)

			for bin := uint32(0); bin < numBins; bin++ {
				c := rasterConstants{BinIndex: bin}
				ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&c))
				ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{
					res.SRV(rc.VisibleMeshlets),
					res.SRV(binnedMeshlets),
					res.SRV(meshletOffsetAndCounts),
				})
				debugView := rhi.NullView()
				if out.DebugData != nil {
					debugView = res.UAV(out.DebugData)
				}
				ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{debugView})
				ctx.SetPipeline(rasterPSOs[bin])
				ctx.ExecuteIndirect(rhi.DispatchMeshSignature, 1, res.Get(meshletOffsetAndCounts), uint64(bin)*16)
			}
		})
	if out.VisibilityBuffer != nil {
		colorAccess := rhi.AccessClearStore
		if phase == Phase2 {
			colorAccess = rhi.AccessLoadStore
		}
		drawPass.RenderTarget(out.VisibilityBuffer, colorAccess, nil)
	}
	if out.DebugData != nil {
		drawPass.Write(out.DebugData)
	}

	// The pyramid must persist: phase 1 builds it for phase 2, phase 2
	// rebuilds it for next frame's phase 1.
	if rc.EnableOcclusionCulling {
		r.BuildHZB(g, view, rc.Depth, out.HZB)
	}
}

// classify schedules the four binning passes of a phase.
func (r *Rasterizer) classify(g *graph.Graph, view *scene.View, phase Phase, rc *Context, table, binned *graph.Resource) {
	g.PushScope("Classify Shader Types")
	defer g.PopScope()

	consts := classifyConstants{NumBins: numBins}
	if phase == Phase2 {
		consts.IsSecondPhase = 1
	}

	binCounts := g.Create("GPURender.Classify.MeshletCounts", rhi.CreateStructured(numBins, 4, 0))
	globalCount := g.Create("GPURender.Classify.GlobalCount", rhi.CreateStructured(1, 4, 0))
	classifyArgs := g.Create("GPURender.Classify.Args", rhi.CreateIndirectArguments(1))

	g.AddPass("Prepare Classify", graph.Compute).
		Write(binCounts, globalCount, classifyArgs).
		Read(rc.VisibleMeshletsCounter).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			ctx.SetComputeRootSignature(r.sig)
			ctx.SetPipeline(r.binPreparePSO)
			c := consts
			ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&c))
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{
				res.UAV(binCounts), res.UAV(globalCount), res.UAV(classifyArgs),
			})
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{res.SRV(rc.VisibleMeshletsCounter)})
			ctx.Dispatch(1, 1, 1)
			ctx.UAVBarrier(nil)
		})

	g.AddPass("Count Meshlets", graph.Compute).
		ReadIndirect(classifyArgs).
		Read(rc.VisibleMeshlets, rc.VisibleMeshletsCounter).
		Write(binCounts).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			r.bindFrame(view)
			ctx.SetComputeRootSignature(r.sig)
			ctx.SetPipeline(r.binCountPSO)
			c := consts
			ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&c))
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAV(binCounts)})
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{
				res.SRV(rc.VisibleMeshlets), res.SRV(rc.VisibleMeshletsCounter),
			})
			bindViewUniforms(ctx, view)
			ctx.ExecuteIndirect(rhi.DispatchSignature, 1, res.Get(classifyArgs), 0)
		})

	g.AddPass("Compute Bin Offsets", graph.Compute).
		Write(binCounts, table, globalCount).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			ctx.SetComputeRootSignature(r.sig)
			ctx.SetPipeline(r.binAllocatePSO)
			c := consts
			ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&c))
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{
				res.UAV(binCounts), res.UAV(table), res.UAV(globalCount),
			})
			ctx.Dispatch(1, 1, 1)
			ctx.UAVBarrier(nil)
		})

	g.AddPass("Write Bins", graph.Compute).
		ReadIndirect(classifyArgs).
		Read(rc.VisibleMeshlets, rc.VisibleMeshletsCounter).
		Write(binCounts, table, binned).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			r.bindFrame(view)
			ctx.SetComputeRootSignature(r.sig)
			ctx.SetPipeline(r.binWritePSO)
			c := consts
			ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&c))
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{
				res.UAV(binCounts), res.UAV(table), res.UAV(binned),
			})
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{
				res.SRV(rc.VisibleMeshlets), res.SRV(rc.VisibleMeshletsCounter),
			})
			bindViewUniforms(ctx, view)
			ctx.ExecuteIndirect(rhi.DispatchSignature, 1, res.Get(classifyArgs), 0)
		})
}

// hzbView returns the source-HZB SRV, or a null view when occlusion
// culling is off.
func hzbView(res *graph.Resources, hzb *graph.Resource, rc *Context) rhi.ResourceView {
	if hzb == nil || !rc.EnableOcclusionCulling {
		return rhi.NullView()
	}
	return res.SRV(hzb)
}
