package shadows

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/internal/blob"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

// reductionFrames is the depth of the readback ring; matches the device's
// in-flight frame budget so a mapped buffer is never in use by the GPU.
const reductionFrames = 3

// DepthReducer produces the SDSM min/max depth readback: a compute
// reduction over the depth target into a two-float buffer, copied into a
// ring of readback buffers polled (never blocked on) by the partitioner.
type DepthReducer struct {
	device    rhi.Device
	reducePSO rhi.Pipeline

	readbacks [reductionFrames]rhi.Resource
	fences    [reductionFrames]rhi.FenceValue
	cursor    int
}

// NewDepthReducer creates the reduction pipeline and readback ring.
func NewDepthReducer(device rhi.Device) (*DepthReducer, error) {
	r := &DepthReducer{device: device}

	pso, err := device.CreateComputePipeline(rhi.ComputePipelineDesc{
		Name:       "SDSM Depth Reduce",
		EntryPoint: "ReduceDepthCS",
		Kernel:     kernelReduceDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("shadows: %w", err)
	}
	r.reducePSO = pso

	for i := range r.readbacks {
		rb, err := device.CreateBuffer(rhi.CreateReadback(8), "SDSM Readback")
		if err != nil {
			return nil, fmt.Errorf("shadows: readback ring: %w", err)
		}
		r.readbacks[i] = rb
	}
	return r, nil
}

// Reduce schedules the reduction for this frame's depth target. Call
// NotifySubmitted with the graph's fence after Execute.
func (r *DepthReducer) Reduce(g *graph.Graph, view *scene.View, depth *graph.Resource) {
	result := g.Create("SDSM.ReduceResult", rhi.CreateStructured(2, 4, 0))

	g.AddPass("Depth Reduce", graph.Compute).
		Read(depth).
		Write(result).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			ctx.SetComputeRootSignature(&rhi.RootSignature{Name: "Common"})
			ctx.SetPipeline(r.reducePSO)
			ctx.SetRootCBV(rhi.SlotViewCBV, view.UniformBytes())
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{res.SRV(depth)})
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{res.UAV(result)})
			ctx.Dispatch(1, 1, 1)
		})

	rb := g.Import("SDSM.Readback", r.readbacks[r.cursor%reductionFrames])
	g.AddCopyPass(result, rb)
}

// NotifySubmitted records the fence guarding this frame's readback and
// advances the ring.
func (r *DepthReducer) NotifySubmitted(fence rhi.FenceValue) {
	r.fences[r.cursor%reductionFrames] = fence
	r.cursor++
}

// Read returns a completed reduction as clip-range fractions, trying the
// slot submitted two frames ago first, then the most recent one, then the
// slot the next Reduce overwrites. ok is false until a readback has
// completed; callers then fall back to the full [0,1] range.
func (r *DepthReducer) Read() (minDepth, maxDepth float32, ok bool) {
	// Start one past the cursor: the slot submitted two frames ago.
	for i := 1; i <= reductionFrames; i++ {
		idx := (r.cursor + i) % reductionFrames
		if r.fences[idx] == 0 || !r.device.IsFenceComplete(r.fences[idx]) {
			continue
		}
		buf, okBuf := readbackBytes(r.readbacks[idx])
		if !okBuf {
			return 0, 1, false
		}
		vals := blob.BytesToSlice[float32](buf)
		if len(vals) < 2 {
			return 0, 1, false
		}
		return vals[0], vals[1], true
	}
	return 0, 1, false
}

// readbackBuffer is implemented by readback-capable buffer resources.
type readbackBuffer interface {
	Bytes() []byte
}

func readbackBytes(r rhi.Resource) ([]byte, bool) {
	b, ok := r.(readbackBuffer)
	if !ok {
		return nil, false
	}
	return b.Bytes(), true
}

// kernelReduceDepth computes the scene's depth extent as fractions of the
// clip range. Background texels (depth 0, the reverse-Z far plane) are
// excluded from the reduction so empty regions do not stretch the cascades.
func kernelReduceDepth(d rhi.Dispatch) {
	var u scene.ViewUniforms
	copy(blob.StructToBytes(&u), d.CBV(rhi.SlotViewCBV))

	depth := d.Texture(rhi.SlotSRVs, 0)
	out := blob.BytesToSlice[float32](d.Buffer(rhi.SlotUAVs, 0))

	w, h, _ := depth.Dims(0)
	n, f := u.NearPlane, u.FarPlane

	minFrac, maxFrac := float32(1), float32(0)
	found := false
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			dv := depth.Load(0, x, y, 0)[0]
			if dv <= 0 {
				continue
			}
			// Invert the reverse-Z projection to view-space z.
			linear := n * f / (n + dv*(f-n))
			frac := (linear - n) / (f - n)
			minFrac = math32.Min(minFrac, frac)
			maxFrac = math32.Max(maxFrac, frac)
			found = true
		}
	}
	if !found {
		minFrac, maxFrac = 0, 1
	}
	out[0] = minFrac
	out[1] = maxFrac
}
