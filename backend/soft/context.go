package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/render3/rhi"
)

// Context is the software command context. It executes eagerly: every
// recorded operation runs immediately on the calling goroutine, which gives
// the same strict program order a hardware command list has within one
// submission.
type Context struct {
	dev   *Device
	fence rhi.FenceValue

	pending map[rhi.Resource]rhi.ResourceState

	computeSig  *rhi.RootSignature
	graphicsSig *rhi.RootSignature
	pipe        *pipeline

	constants []byte
	cbvs      map[int][]byte
	tables    map[int][]rhi.ResourceView

	rp        *rhi.RenderPassInfo
	submitted bool
}

func (c *Context) check(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("soft: "+format, args...))
	}
}

// Transition implements rhi.CommandContext. Transitions coalesce until the
// next flush or GPU work.
func (c *Context) Transition(r rhi.Resource, state rhi.ResourceState) {
	c.check(!c.submitted, "recording on submitted context")
	if c.pending == nil {
		c.pending = map[rhi.Resource]rhi.ResourceState{}
	}
	c.pending[r] = state
}

// UAVBarrier implements rhi.CommandContext. Execution is synchronous, so
// the barrier is ordering-only bookkeeping.
func (c *Context) UAVBarrier(r rhi.Resource) {}

// FlushBarriers implements rhi.CommandContext.
func (c *Context) FlushBarriers() {
	for r, s := range c.pending {
		r.SetState(s)
		r.MarkUsed(c.fence)
	}
	clear(c.pending)
}

// BeginRenderPass implements rhi.CommandContext.
func (c *Context) BeginRenderPass(info rhi.RenderPassInfo) {
	c.check(c.rp == nil, "BeginRenderPass inside an open render pass")
	c.FlushBarriers()
	for _, t := range info.Targets {
		t.Target.MarkUsed(c.fence)
		if t.Access.ShouldClear() {
			clearTexture(t.Target, [4]float32{})
		}
	}
	if d := info.Depth; d.Target != nil {
		d.Target.MarkUsed(c.fence)
		// Reverse-Z: depth clears to 0 (far).
		if d.Write && d.DepthAccess.ShouldClear() {
			clearTexture(d.Target, [4]float32{})
		}
	}
	c.rp = &info
}

// EndRenderPass implements rhi.CommandContext.
func (c *Context) EndRenderPass() {
	c.check(c.rp != nil, "EndRenderPass without BeginRenderPass")
	for _, t := range c.rp.Targets {
		if t.Access.ShouldResolve() && t.Resolve != nil {
			c.CopyResource(t.Target, t.Resolve)
		}
	}
	c.rp = nil
}

// SetComputeRootSignature implements rhi.CommandContext.
func (c *Context) SetComputeRootSignature(sig *rhi.RootSignature) { c.computeSig = sig }

// SetGraphicsRootSignature implements rhi.CommandContext.
func (c *Context) SetGraphicsRootSignature(sig *rhi.RootSignature) { c.graphicsSig = sig }

// SetPipeline implements rhi.CommandContext.
func (c *Context) SetPipeline(p rhi.Pipeline) {
	sp, ok := p.(*pipeline)
	c.check(ok, "pipeline from another device")
	c.pipe = sp
}

// SetRootConstants implements rhi.CommandContext.
func (c *Context) SetRootConstants(slot int, blob []byte) {
	c.check(slot == rhi.SlotRootConstants, "root constants must bind slot %d", rhi.SlotRootConstants)
	c.check(len(blob) <= rhi.MaxRootConstants*4, "root constant blob exceeds %d dwords", rhi.MaxRootConstants)
	c.constants = append(c.constants[:0], blob...)
}

// SetRootCBV implements rhi.CommandContext.
func (c *Context) SetRootCBV(slot int, blob []byte) {
	if c.cbvs == nil {
		c.cbvs = map[int][]byte{}
	}
	c.cbvs[slot] = append([]byte(nil), blob...)
}

// BindResources implements rhi.CommandContext.
func (c *Context) BindResources(slot int, views []rhi.ResourceView) {
	if c.tables == nil {
		c.tables = map[int][]rhi.ResourceView{}
	}
	c.tables[slot] = append([]rhi.ResourceView(nil), views...)
	for _, v := range views {
		if v.Resource != nil {
			v.Resource.MarkUsed(c.fence)
		}
	}
}

// Dispatch implements rhi.CommandContext.
func (c *Context) Dispatch(x, y, z uint32) {
	c.check(c.pipe != nil && c.pipe.kind == rhi.PipelineCompute, "Dispatch without a compute pipeline")
	c.FlushBarriers()
	c.pipe.compute(&dispatchState{ctx: c, gx: x, gy: y, gz: z})
}

// DispatchMesh implements rhi.CommandContext.
func (c *Context) DispatchMesh(x, y, z uint32) {
	c.runMesh(x, y, z)
}

// Draw implements rhi.CommandContext. The reference mesh kernel receives
// (vertexCount, instanceCount, 1) as its grid.
func (c *Context) Draw(vertexStart, vertexCount, instanceCount uint32) {
	_ = vertexStart
	c.runMesh(vertexCount, instanceCount, 1)
}

// DrawIndexed implements rhi.CommandContext.
func (c *Context) DrawIndexed(indexStart, indexCount, instanceCount uint32) {
	_ = indexStart
	c.runMesh(indexCount, instanceCount, 1)
}

func (c *Context) runMesh(x, y, z uint32) {
	c.check(c.pipe != nil && c.pipe.kind == rhi.PipelineRaster, "draw without a raster pipeline")
	c.check(c.rp != nil, "draw outside a render pass")
	c.FlushBarriers()
	c.pipe.mesh(&dispatchState{ctx: c, gx: x, gy: y, gz: z}, &renderTargets{ctx: c})
}

// ExecuteIndirect implements rhi.CommandContext.
func (c *Context) ExecuteIndirect(sig *rhi.CommandSignature, maxCount uint32, args rhi.Resource, offset uint64) {
	buf, ok := args.(*Buffer)
	c.check(ok, "indirect arguments must be a buffer")
	c.FlushBarriers()
	args.MarkUsed(c.fence)

	for i := uint32(0); i < maxCount; i++ {
		base := offset + uint64(i)*uint64(sig.Stride)
		if base+12 > uint64(len(buf.data)) {
			break
		}
		x := binary.LittleEndian.Uint32(buf.data[base:])
		y := binary.LittleEndian.Uint32(buf.data[base+4:])
		z := binary.LittleEndian.Uint32(buf.data[base+8:])
		switch sig.Kind {
		case rhi.IndirectDispatch:
			c.Dispatch(x, y, z)
		case rhi.IndirectDispatchMesh:
			c.runMesh(x, y, z)
		case rhi.IndirectDraw:
			c.runMesh(x, y, z)
		}
	}
}

// DispatchGraph implements rhi.CommandContext: the program's nodes run
// serially starting at the entry node. The entry node's grid comes from the
// CPU input record; downstream nodes launch (1,1,1) and size their own work
// from the counter buffers, matching the GPU program's self-enqueue shape.
func (c *Context) DispatchGraph(desc rhi.GraphDispatchDesc) {
	so, ok := desc.Object.(*stateObject)
	c.check(ok, "state object from another device")
	c.check(desc.Backing != nil, "work graph requires a backing buffer")
	c.FlushBarriers()
	desc.Backing.MarkUsed(c.fence)

	if desc.Initialize {
		if b, ok := desc.Backing.(*Buffer); ok {
			clear(b.data)
		}
	}

	entry := -1
	for i, n := range so.nodes {
		if n.Name == desc.EntryPoint {
			entry = i
			break
		}
	}
	c.check(entry >= 0, "work graph %q has no entry %q", so.name, desc.EntryPoint)

	grid := uint32(1)
	if len(desc.Records) >= 4 {
		grid = binary.LittleEndian.Uint32(desc.Records)
	}
	for i := entry; i < len(so.nodes); i++ {
		g := uint32(1)
		if i == entry {
			g = grid
		}
		so.nodes[i].Kernel(&dispatchState{ctx: c, gx: g, gy: 1, gz: 1})
	}
}

// CopyResource implements rhi.CommandContext.
func (c *Context) CopyResource(src, dst rhi.Resource) {
	c.FlushBarriers()
	src.MarkUsed(c.fence)
	dst.MarkUsed(c.fence)

	switch s := src.(type) {
	case *Buffer:
		d, ok := dst.(*Buffer)
		c.check(ok, "buffer copies into a buffer")
		copy(d.data, s.data)
	case *Texture:
		switch d := dst.(type) {
		case *Texture:
			for m := range s.mips {
				if m < len(d.mips) {
					copy(d.mips[m], s.mips[m])
				}
			}
		case *Buffer:
			packTexture(s, d.data)
		}
	}
}

// CopyTexture implements rhi.CommandContext.
func (c *Context) CopyTexture(src, dst rhi.Resource, region rhi.Region) {
	s, ok := src.(*Texture)
	c.check(ok, "CopyTexture source must be a texture")
	d, ok := dst.(*Texture)
	c.check(ok, "CopyTexture destination must be a texture")
	c.FlushBarriers()
	s.MarkUsed(c.fence)
	d.MarkUsed(c.fence)
	for z := region.Z; z < region.Z+region.D; z++ {
		for y := region.Y; y < region.Y+region.H; y++ {
			for x := region.X; x < region.X+region.W; x++ {
				d.Store(0, x, y, z, s.Load(0, x, y, z))
			}
		}
	}
}

// Resolve implements rhi.CommandContext. The software device stores one
// sample per texel, so resolve degenerates to a copy.
func (c *Context) Resolve(src, dst rhi.Resource) { c.CopyResource(src, dst) }

// ClearUAVUint implements rhi.CommandContext.
func (c *Context) ClearUAVUint(r rhi.Resource) { c.clearUAV(r) }

// ClearUAVFloat implements rhi.CommandContext.
func (c *Context) ClearUAVFloat(r rhi.Resource) { c.clearUAV(r) }

func (c *Context) clearUAV(r rhi.Resource) {
	c.FlushBarriers()
	r.MarkUsed(c.fence)
	switch v := r.(type) {
	case *Buffer:
		clear(v.data)
	case *Texture:
		clearTexture(v, [4]float32{})
	}
}

// AllocateTransientMemory implements rhi.CommandContext.
func (c *Context) AllocateTransientMemory(size uint64) rhi.TransientAllocation {
	return rhi.TransientAllocation{CPU: make([]byte, size)}
}

// Execute implements rhi.CommandContext.
func (c *Context) Execute(wait bool) (rhi.FenceValue, error) {
	c.check(c.rp == nil, "Execute with an open render pass")
	c.check(!c.submitted, "double submission")
	c.FlushBarriers()
	c.submitted = true
	c.dev.completeSubmission(c.fence)
	_ = wait // synchronous: the fence is complete on return either way
	return c.fence, nil
}

func clearTexture(r rhi.Resource, v [4]float32) {
	t, ok := r.(*Texture)
	if !ok {
		return
	}
	for m := range t.mips {
		for i := range t.mips[m] {
			t.mips[m][i] = v
		}
	}
}

// packTexture serializes mip 0 of t into out, row-major, using the
// format's readback encoding.
func packTexture(t *Texture, out []byte) {
	w, h, d := t.mipDims(0)
	tb := texelBytes(t.desc.Format)
	i := 0
	for z := uint32(0); z < d; z++ {
		for y := uint32(0); y < h; y++ {
			for x := uint32(0); x < w; x++ {
				if i+tb > len(out) {
					return
				}
				v := t.Load(0, x, y, z)
				switch t.desc.Format {
				case gputypes.TextureFormatRGBA8Unorm:
					out[i+0] = unormByte(v[0])
					out[i+1] = unormByte(v[1])
					out[i+2] = unormByte(v[2])
					out[i+3] = unormByte(v[3])
				case gputypes.TextureFormatR32Float:
					binary.LittleEndian.PutUint32(out[i:], math.Float32bits(v[0]))
				case gputypes.TextureFormatR32Uint:
					binary.LittleEndian.PutUint32(out[i:], t.LoadUint(0, x, y, z))
				case gputypes.TextureFormatR16Float:
					binary.LittleEndian.PutUint16(out[i:], float16bits(v[0]))
				default:
					for ch := 0; ch < 4; ch++ {
						binary.LittleEndian.PutUint32(out[i+ch*4:], math.Float32bits(v[ch]))
					}
				}
				i += tb
			}
		}
	}
}

func unormByte(f float32) byte {
	if f <= 0 {
		return 0
	}
	if f >= 1 {
		return 255
	}
	return byte(f*255 + 0.5)
}

// float16bits converts a float32 to IEEE half-precision bits by truncating
// the mantissa (round toward zero), without denormal support.
func float16bits(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int32(b>>23&0xff) - 127 + 15
	mant := b & 0x7fffff
	if exp <= 0 {
		return sign
	}
	if exp >= 31 {
		return sign | 0x7c00
	}
	return sign | uint16(exp)<<10 | uint16(mant>>13)
}
