package raster

import (
	"github.com/gogpu/render3/internal/blob"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

// Pipeline bins. Visible meshlets are unordered; classification buckets
// them per pipeline permutation so each bin draws with one indirect
// dispatch-mesh.
const (
	binOpaque      = 0
	binAlphaMasked = 1
	numBins        = 2
)

// binRecord is one entry of the bin table: an indirect dispatch-mesh record
// (group count in X) with the bin's start offset in W. Must match the
// offset-and-count layout in meshletbinning.wgsl.
type binRecord struct {
	GroupsX uint32
	GroupsY uint32
	GroupsZ uint32
	Offset  uint32
}

func binRecords(b []byte) []binRecord { return blob.BytesToSlice[binRecord](b) }

// classifyConstants is the root-constant blob of the binning passes.
type classifyConstants struct {
	NumBins       uint32
	IsSecondPhase uint32
}

// visibleSegment returns the half-open visible-list range a phase's binning
// works on.
func visibleSegment(visCounter []uint32, second bool) (start, count uint32) {
	if second {
		return visCounter[0], visCounter[1]
	}
	return 0, visCounter[0]
}

// kernelBinPrepare clears the per-bin counters and sizes the classify
// dispatch from the phase's visible count.
func (r *Rasterizer) kernelBinPrepare(d rhi.Dispatch) {
	var c classifyConstants
	copy(blob.StructToBytes(&c), d.Constants())

	binCounts := u32s(d.Buffer(rhi.SlotUAVs, 0))
	global := u32s(d.Buffer(rhi.SlotUAVs, 1))
	args := u32s(d.Buffer(rhi.SlotUAVs, 2))
	visCounter := u32s(d.Buffer(rhi.SlotSRVs, 0))

	for i := uint32(0); i < c.NumBins; i++ {
		binCounts[i] = 0
	}
	global[0] = 0
	_, count := visibleSegment(visCounter, c.IsSecondPhase != 0)
	args[0] = (count + cullMeshletGroupSize - 1) / cullMeshletGroupSize
	args[1] = 1
	args[2] = 1
}

// binFor classifies one visible meshlet by its batch's blend mode.
func (r *Rasterizer) binFor(instanceID uint32) uint32 {
	b := &r.frame.Batches[instanceID]
	if b.Blend == scene.BlendAlphaMask {
		return binAlphaMasked
	}
	return binOpaque
}

// kernelBinCount tallies how many of the phase's visible meshlets land in
// each bin.
func (r *Rasterizer) kernelBinCount(d rhi.Dispatch) {
	var c classifyConstants
	copy(blob.StructToBytes(&c), d.Constants())

	binCounts := u32s(d.Buffer(rhi.SlotUAVs, 0))
	visible := candidates(d.Buffer(rhi.SlotSRVs, 0))
	visCounter := u32s(d.Buffer(rhi.SlotSRVs, 1))

	start, count := visibleSegment(visCounter, c.IsSecondPhase != 0)
	for k := start; k < start+count; k++ {
		binCounts[r.binFor(visible[k].InstanceID)]++
	}
}

// kernelBinAllocate runs the exclusive prefix sum over bin counts into the
// bin table, then resets the counts for reuse as write cursors. Single
// workgroup; the bin count is tiny.
func (r *Rasterizer) kernelBinAllocate(d rhi.Dispatch) {
	var c classifyConstants
	copy(blob.StructToBytes(&c), d.Constants())

	binCounts := u32s(d.Buffer(rhi.SlotUAVs, 0))
	table := binRecords(d.Buffer(rhi.SlotUAVs, 1))
	global := u32s(d.Buffer(rhi.SlotUAVs, 2))

	offset := uint32(0)
	for i := uint32(0); i < c.NumBins; i++ {
		table[i] = binRecord{GroupsX: binCounts[i], GroupsY: 1, GroupsZ: 1, Offset: offset}
		offset += binCounts[i]
		binCounts[i] = 0
	}
	global[0] = offset
}

// kernelBinWrite scatters each visible meshlet's global index into its
// bin's range, producing the indirection list the raster pass consumes.
func (r *Rasterizer) kernelBinWrite(d rhi.Dispatch) {
	var c classifyConstants
	copy(blob.StructToBytes(&c), d.Constants())

	binCounts := u32s(d.Buffer(rhi.SlotUAVs, 0))
	table := binRecords(d.Buffer(rhi.SlotUAVs, 1))
	binned := u32s(d.Buffer(rhi.SlotUAVs, 2))
	visible := candidates(d.Buffer(rhi.SlotSRVs, 0))
	visCounter := u32s(d.Buffer(rhi.SlotSRVs, 1))

	start, count := visibleSegment(visCounter, c.IsSecondPhase != 0)
	for k := start; k < start+count; k++ {
		bin := r.binFor(visible[k].InstanceID)
		slot := table[bin].Offset + binCounts[bin]
		binCounts[bin]++
		binned[slot] = k
	}
}
