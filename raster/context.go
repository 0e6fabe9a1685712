package raster

import (
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

// Culling capacity. Candidate and visible lists are sized for the worst
// case; the cull kernels drop overflow rather than write past them.
const (
	// MaxNumMeshlets bounds the candidate and visible meshlet lists
	// (about one million meshlets, 8 bytes each).
	MaxNumMeshlets = 1 << 20

	// MaxNumInstances bounds the phase-2 instance carry-over list.
	MaxNumInstances = 1 << 14

	cullInstanceGroupSize = 64
	cullMeshletGroupSize  = 64
)

// Mode selects what the rasterizer produces.
type Mode uint8

const (
	// ModeVisibilityBuffer writes depth plus a packed
	// {meshlet, triangle} visibility target.
	ModeVisibilityBuffer Mode = iota

	// ModeShadows writes depth only.
	ModeShadows
)

// Phase identifies the two culling phases.
type Phase uint8

const (
	Phase1 Phase = iota
	Phase2
)

// candidateCounter slot layout: [0] total, [1] phase 1, [2] phase 2.
// visibleCounter slot layout: [0] phase 1, [1] phase 2. Keeping visible
// counts segmented lets binning treat both phases' output as one
// contiguous array.
const (
	candCounterTotal  = 0
	candCounterPhase1 = 1
	candCounterPhase2 = 2
)

// Context carries one cull-and-rasterize invocation's state: the culling
// queues, their counters, and the persistent previous-frame HZB slot.
type Context struct {
	Mode  Mode
	Depth *graph.Resource

	EnableOcclusionCulling bool
	EnableDebug            bool

	// UseWorkGraph encodes each phase's culling as a single
	// dispatch-graph program when the device supports it.
	UseWorkGraph bool

	// PreviousHZB points at the persistent HZB slot for this viewport.
	// The graph exports the freshly built pyramid back into it each
	// frame; nil contents mean "no history" (first frame or resize).
	PreviousHZB *rhi.Resource

	CandidateMeshlets        *graph.Resource
	CandidateMeshletsCounter *graph.Resource
	VisibleMeshlets          *graph.Resource
	VisibleMeshletsCounter   *graph.Resource
	OccludedInstances        *graph.Resource
	OccludedInstancesCounter *graph.Resource

	// BinnedMeshletOffsetAndCounts keeps each phase's bin table around
	// for the statistics pass.
	BinnedMeshletOffsetAndCounts [2]*graph.Resource
}

// NewContext creates the per-frame culling state on the graph. The buffers
// alias through the graph's pool, so steady-state frames allocate nothing.
func NewContext(g *graph.Graph, depth *graph.Resource, mode Mode, previousHZB *rhi.Resource) *Context {
	candStride := uint32(8) // sizeof MeshletCandidate
	return &Context{
		Mode:                   mode,
		Depth:                  depth,
		EnableOcclusionCulling: true,
		PreviousHZB:            previousHZB,

		CandidateMeshlets: g.Create("GPURender.CandidateMeshlets",
			rhi.CreateStructured(MaxNumMeshlets, candStride, 0)),
		VisibleMeshlets: g.Create("GPURender.VisibleMeshlets",
			rhi.CreateStructured(MaxNumMeshlets, candStride, 0)),
		OccludedInstances: g.Create("GPURender.OccludedInstances",
			rhi.CreateStructured(MaxNumInstances, 4, 0)),
		OccludedInstancesCounter: g.Create("GPURender.OccludedInstances.Counter",
			rhi.CreateStructured(1, 4, 0)),
		CandidateMeshletsCounter: g.Create("GPURender.CandidateMeshlets.Counter",
			rhi.CreateStructured(3, 4, 0)),
		VisibleMeshletsCounter: g.Create("GPURender.VisibleMeshlets.Counter",
			rhi.CreateStructured(2, 4, 0)),
	}
}

// Result collects the rasterizer's outputs for downstream passes.
type Result struct {
	// HZB is the freshly built pyramid; also exported to the context's
	// persistent slot for next frame.
	HZB *graph.Resource

	// VisibilityBuffer is the packed {meshlet, triangle} target, only in
	// ModeVisibilityBuffer.
	VisibilityBuffer *graph.Resource

	// DebugData is the per-pixel {instance, meshlet} side channel, only
	// with EnableDebug.
	DebugData *graph.Resource

	// VisibleMeshlets aliases the context's visible list for shading.
	VisibleMeshlets *graph.Resource
}

// countMeshlets returns the total meshlet count across all batches, used to
// validate the capacity assumptions.
func countMeshlets(view *scene.View) int {
	n := 0
	for i := range view.Batches {
		n += view.Meshes[view.Batches[i].MeshIndex].NumMeshlets()
	}
	return n
}
