package raster

import (
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/internal/blob"
	"github.com/gogpu/render3/rhi"
)

// Stats is the decoded per-frame culling statistics record. Must match the
// stats output layout of the stats kernel.
type Stats struct {
	TotalCandidates  uint32
	Phase1Candidates uint32
	Phase2Candidates uint32
	OccludedCarry    uint32
	Phase1Visible    uint32
	Phase2Visible    uint32
	BinCounts        [2 * numBins]uint32 // per phase, per bin
}

// PrintStats schedules a NeverCull compute pass decoding the counters and
// bin tables into a stats buffer, then copies it into the given readback
// buffer. Readers poll the fence of the graph's submission via the device
// before decoding.
func (r *Rasterizer) PrintStats(g *graph.Graph, rc *Context, readback rhi.Resource) {
	stats := g.Create("GPURender.Stats", rhi.CreateStructured(16, 4, 0))

	// Bins may be absent when a phase did not run; substitute an empty
	// table.
	dummy := g.Create("GPURender.Stats.Dummy", rhi.CreateStructured(numBins, 16, 0))
	bins0 := rc.BinnedMeshletOffsetAndCounts[0]
	bins1 := rc.BinnedMeshletOffsetAndCounts[1]
	if bins0 == nil {
		bins0 = dummy
	}
	if bins1 == nil {
		bins1 = dummy
	}

	g.AddPass("Print Stats", graph.Compute|graph.NeverCull).
		Read(rc.OccludedInstancesCounter, rc.CandidateMeshletsCounter, rc.VisibleMeshletsCounter).
		Read(bins0, bins1).
		Write(stats).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			ctx.SetComputeRootSignature(r.sig)
			ctx.SetPipeline(r.statsPSO)
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{
				res.SRV(rc.CandidateMeshletsCounter),
				res.SRV(rc.OccludedInstancesCounter),
				res.SRV(rc.VisibleMeshletsCounter),
				res.SRV(bins0),
				res.SRV(bins1),
			})
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAV(stats)})
			ctx.Dispatch(1, 1, 1)
		})

	if readback != nil {
		rb := g.Import("GPURender.Stats.Readback", readback)
		g.AddCopyPass(stats, rb)
	}
}

// kernelStats flattens the counters and bin tables into the stats record.
func (r *Rasterizer) kernelStats(d rhi.Dispatch) {
	cand := u32s(d.Buffer(rhi.SlotSRVs, 0))
	occluded := u32s(d.Buffer(rhi.SlotSRVs, 1))
	vis := u32s(d.Buffer(rhi.SlotSRVs, 2))
	bins0 := binRecords(d.Buffer(rhi.SlotSRVs, 3))
	bins1 := binRecords(d.Buffer(rhi.SlotSRVs, 4))
	out := u32s(d.Buffer(rhi.SlotUAVs, 0))

	out[0] = cand[candCounterTotal]
	out[1] = cand[candCounterPhase1]
	out[2] = cand[candCounterPhase2]
	out[3] = occluded[0]
	out[4] = vis[0]
	out[5] = vis[1]
	for i := 0; i < numBins; i++ {
		out[6+i] = bins0[i].GroupsX
		out[6+numBins+i] = bins1[i].GroupsX
	}
}

// DecodeStats interprets a completed stats readback.
func DecodeStats(data []byte) Stats {
	words := blob.BytesToSlice[uint32](data)
	var s Stats
	if len(words) < 6+2*numBins {
		return s
	}
	s.TotalCandidates = words[0]
	s.Phase1Candidates = words[1]
	s.Phase2Candidates = words[2]
	s.OccludedCarry = words[3]
	s.Phase1Visible = words[4]
	s.Phase2Visible = words[5]
	copy(s.BinCounts[:], words[6:6+2*numBins])
	return s
}
