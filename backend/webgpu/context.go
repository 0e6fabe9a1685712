package webgpu

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/types"

	"github.com/gogpu/render3/rhi"
)

// Context is the webgpu command context. It records into a HAL command
// encoder; compute dispatches each open a compute pass, bind groups are
// assembled from the bound view tables, and Execute submits with a fence.
//
// The raster and work-graph entry points panic: callers gate on the
// device's capability set, which reports both off.
type Context struct {
	dev   *Device
	fence rhi.FenceValue

	encoder   hal.CommandEncoder
	recording bool
	submitted bool

	pending map[rhi.Resource]rhi.ResourceState

	pipe *pipeline

	constants []byte
	cbvs      map[int][]byte
	tables    map[int][]rhi.ResourceView

	// uploads holds the uniform staging buffers created for this
	// submission; they free once the fence completes.
	uploads []hal.Buffer
}

func (c *Context) check(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("webgpu: "+format, args...))
	}
}

func (c *Context) ensureEncoder() {
	if c.recording {
		return
	}
	enc, err := c.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "render3"})
	c.check(err == nil, "command encoder: %v", err)
	c.check(enc.BeginEncoding("render3") == nil, "begin encoding")
	c.encoder = enc
	c.recording = true
}

// Transition implements rhi.CommandContext. WebGPU tracks hazards
// implicitly; the context keeps the rhi-level state bookkeeping so the
// graph's planner sees consistent states.
func (c *Context) Transition(r rhi.Resource, state rhi.ResourceState) {
	if c.pending == nil {
		c.pending = map[rhi.Resource]rhi.ResourceState{}
	}
	c.pending[r] = state
}

// UAVBarrier implements rhi.CommandContext.
func (c *Context) UAVBarrier(r rhi.Resource) {}

// FlushBarriers implements rhi.CommandContext.
func (c *Context) FlushBarriers() {
	for r, s := range c.pending {
		r.SetState(s)
		r.MarkUsed(c.fence)
	}
	clear(c.pending)
}

// BeginRenderPass implements rhi.CommandContext; raster work requires mesh
// shading, which WebGPU lacks.
func (c *Context) BeginRenderPass(info rhi.RenderPassInfo) {
	panic("webgpu: raster passes are not supported; gate on Capabilities().MeshShading")
}

// EndRenderPass implements rhi.CommandContext.
func (c *Context) EndRenderPass() {
	panic("webgpu: raster passes are not supported")
}

// SetComputeRootSignature implements rhi.CommandContext.
func (c *Context) SetComputeRootSignature(sig *rhi.RootSignature) {}

// SetGraphicsRootSignature implements rhi.CommandContext.
func (c *Context) SetGraphicsRootSignature(sig *rhi.RootSignature) {}

// SetPipeline implements rhi.CommandContext.
func (c *Context) SetPipeline(p rhi.Pipeline) {
	wp, ok := p.(*pipeline)
	c.check(ok, "pipeline from another device")
	c.pipe = wp
}

// SetRootConstants implements rhi.CommandContext.
func (c *Context) SetRootConstants(slot int, blob []byte) {
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
	c.dispatch(func(pass hal.ComputePassEncoder) {
		pass.Dispatch(x, y, z)
	})
}

// DispatchMesh implements rhi.CommandContext.
func (c *Context) DispatchMesh(x, y, z uint32) {
	panic("webgpu: mesh shading is not supported; gate on Capabilities().MeshShading")
}

// Draw implements rhi.CommandContext.
func (c *Context) Draw(vertexStart, vertexCount, instanceCount uint32) {
	panic("webgpu: raster draws are not supported")
}

// DrawIndexed implements rhi.CommandContext.
func (c *Context) DrawIndexed(indexStart, indexCount, instanceCount uint32) {
	panic("webgpu: raster draws are not supported")
}

// ExecuteIndirect implements rhi.CommandContext.
func (c *Context) ExecuteIndirect(sig *rhi.CommandSignature, maxCount uint32, args rhi.Resource, offset uint64) {
	c.check(sig.Kind == rhi.IndirectDispatch, "only dispatch indirect is supported")
	res, ok := args.(*resource)
	c.check(ok && res.buffer != nil, "indirect arguments must be a buffer")
	args.MarkUsed(c.fence)
	c.dispatch(func(pass hal.ComputePassEncoder) {
		for i := uint32(0); i < maxCount; i++ {
			pass.DispatchIndirect(res.buffer, offset+uint64(i)*uint64(sig.Stride))
		}
	})
}

// DispatchGraph implements rhi.CommandContext.
func (c *Context) DispatchGraph(desc rhi.GraphDispatchDesc) {
	panic("webgpu: work graphs are not supported; gate on Capabilities().WorkGraphs")
}

// dispatch finalizes the pipeline against the current binding shape, opens
// a compute pass, binds and runs.
func (c *Context) dispatch(run func(hal.ComputePassEncoder)) {
	c.check(c.pipe != nil, "dispatch without a compute pipeline")
	c.check(!c.submitted, "recording on submitted context")
	c.FlushBarriers()
	c.ensureEncoder()

	groups := c.buildBindGroups()

	pass := c.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: c.pipe.name})
	pass.SetPipeline(c.pipe.finalized)
	for i, g := range groups {
		if g != nil {
			pass.SetBindGroup(uint32(i), g, nil)
		}
	}
	run(pass)
	pass.End()
}

// buildBindGroups assembles the three-group WebGPU binding set from the
// root model: group 0 uniforms (root constants + CBVs), group 1 the UAV
// table, group 2 the SRV table. The pipeline's HAL object finalizes
// against the first binding shape it sees.
func (c *Context) buildBindGroups() []hal.BindGroup {
	dev := c.dev

	var uniformEntries []types.BindGroupLayoutEntry
	var uniformBinds []types.BindGroupEntry
	addUniform := func(binding uint32, data []byte) {
		if len(data) == 0 {
			return
		}
		buf, err := dev.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "root-upload",
			Size:  uint64(len(data)),
			Usage: types.BufferUsageUniform | types.BufferUsageCopyDst,
		})
		c.check(err == nil, "upload buffer: %v", err)
		dev.queue.WriteBuffer(buf, 0, data)
		c.uploads = append(c.uploads, buf)

		dev.mu.Lock()
		h := dev.handle()
		dev.bufferHandles[h] = buf
		dev.mu.Unlock()

		uniformEntries = append(uniformEntries, types.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: types.ShaderStageCompute,
			Buffer:     &types.BufferBindingLayout{Type: types.BufferBindingTypeUniform},
		})
		uniformBinds = append(uniformBinds, types.BindGroupEntry{
			Binding:  binding,
			Resource: types.BufferBinding{Buffer: types.BufferHandle(h), Size: uint64(len(data))},
		})
	}
	addUniform(0, c.constants)
	for slot, blob := range c.cbvs {
		addUniform(uint32(slot), blob)
	}

	tableEntries := func(slot int, readOnly bool) ([]types.BindGroupLayoutEntry, []types.BindGroupEntry) {
		var layouts []types.BindGroupLayoutEntry
		var binds []types.BindGroupEntry
		for i, v := range c.tables[slot] {
			if v.Resource == nil {
				continue
			}
			res := v.Resource.(*resource)
			entry := types.BindGroupLayoutEntry{
				Binding:    uint32(i),
				Visibility: types.ShaderStageCompute,
			}
			if res.buffer != nil {
				bt := types.BufferBindingTypeStorage
				if readOnly {
					bt = types.BufferBindingTypeReadOnlyStorage
				}
				entry.Buffer = &types.BufferBindingLayout{Type: bt}
				binds = append(binds, types.BindGroupEntry{
					Binding:  uint32(i),
					Resource: types.BufferBinding{Buffer: types.BufferHandle(res.id), Size: res.desc.Size()},
				})
			} else {
				entry.Storage = &types.StorageTextureBindingLayout{
					Access:        types.StorageTextureAccessReadWrite,
					Format:        convertFormat(res.desc.Format),
					ViewDimension: types.TextureViewDimension2D,
				}
				binds = append(binds, types.BindGroupEntry{
					Binding:  uint32(i),
					Resource: types.TextureViewBinding{TextureView: types.TextureViewHandle(res.id)},
				})
			}
			layouts = append(layouts, entry)
		}
		return layouts, binds
	}
	uavLayouts, uavBinds := tableEntries(rhi.SlotUAVs, false)
	srvLayouts, srvBinds := tableEntries(rhi.SlotSRVs, true)

	c.pipe.mu.Lock()
	defer c.pipe.mu.Unlock()

	if c.pipe.finalized == nil {
		mkLayout := func(label string, entries []types.BindGroupLayoutEntry) hal.BindGroupLayout {
			l, err := dev.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
				Label: label, Entries: entries,
			})
			c.check(err == nil, "bind group layout: %v", err)
			return l
		}
		c.pipe.groups = []hal.BindGroupLayout{
			mkLayout("uniforms", uniformEntries),
			mkLayout("uavs", uavLayouts),
			mkLayout("srvs", srvLayouts),
		}
		layout, err := dev.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            c.pipe.name,
			BindGroupLayouts: c.pipe.groups,
		})
		c.check(err == nil, "pipeline layout: %v", err)
		c.pipe.layout = layout

		p, err := dev.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  c.pipe.name,
			Layout: layout,
			Compute: hal.ComputeState{
				Module:     c.pipe.module,
				EntryPoint: c.pipe.entry,
			},
		})
		c.check(err == nil, "compute pipeline %q: %v", c.pipe.name, err)
		c.pipe.finalized = p
	}

	mkGroup := func(layout hal.BindGroupLayout, entries []types.BindGroupEntry) hal.BindGroup {
		g, err := dev.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Layout:  layout,
			Entries: entries,
		})
		c.check(err == nil, "bind group: %v", err)
		dev.deferFree(c.fence, func() { dev.device.DestroyBindGroup(g) })
		return g
	}
	return []hal.BindGroup{
		mkGroup(c.pipe.groups[0], uniformBinds),
		mkGroup(c.pipe.groups[1], uavBinds),
		mkGroup(c.pipe.groups[2], srvBinds),
	}
}

// CopyResource implements rhi.CommandContext for buffer-to-buffer and
// texture-to-buffer (readback) copies.
func (c *Context) CopyResource(src, dst rhi.Resource) {
	s, okS := src.(*resource)
	d, okD := dst.(*resource)
	c.check(okS && okD, "resources from another device")
	c.FlushBarriers()
	c.ensureEncoder()
	src.MarkUsed(c.fence)
	dst.MarkUsed(c.fence)

	switch {
	case s.buffer != nil && d.buffer != nil:
		size := min(s.desc.Size(), d.desc.Size())
		c.encoder.CopyBufferToBuffer(s.buffer, d.buffer, []hal.BufferCopy{{Size: size}})
	case s.texture != nil && d.buffer != nil:
		c.encoder.CopyTextureToBuffer(
			&hal.ImageCopyTexture{Texture: s.texture},
			d.buffer,
			[]hal.BufferTextureCopy{{}})
	default:
		panic("webgpu: unsupported copy")
	}
}

// CopyTexture implements rhi.CommandContext.
func (c *Context) CopyTexture(src, dst rhi.Resource, region rhi.Region) {
	panic("webgpu: texture-to-texture copies are not supported")
}

// Resolve implements rhi.CommandContext.
func (c *Context) Resolve(src, dst rhi.Resource) {
	panic("webgpu: MSAA resolve is not supported")
}

// ClearUAVUint implements rhi.CommandContext by uploading zeroes.
func (c *Context) ClearUAVUint(r rhi.Resource) { c.clearBuffer(r) }

// ClearUAVFloat implements rhi.CommandContext.
func (c *Context) ClearUAVFloat(r rhi.Resource) { c.clearBuffer(r) }

func (c *Context) clearBuffer(r rhi.Resource) {
	res, ok := r.(*resource)
	c.check(ok, "resource from another device")
	if res.buffer == nil {
		return // texture clears happen through a clear dispatch
	}
	r.MarkUsed(c.fence)
	c.dev.queue.WriteBuffer(res.buffer, 0, make([]byte, res.desc.Size()))
}

// AllocateTransientMemory implements rhi.CommandContext.
func (c *Context) AllocateTransientMemory(size uint64) rhi.TransientAllocation {
	return rhi.TransientAllocation{CPU: make([]byte, size)}
}

// Execute implements rhi.CommandContext.
func (c *Context) Execute(wait bool) (rhi.FenceValue, error) {
	c.check(!c.submitted, "double submission")
	c.FlushBarriers()
	c.submitted = true

	if !c.recording {
		// Nothing recorded; the fence completes trivially.
		c.dev.mu.Lock()
		if c.fence > c.dev.completed {
			c.dev.completed = c.fence
		}
		c.dev.mu.Unlock()
		return c.fence, nil
	}

	cmd, err := c.encoder.EndEncoding()
	if err != nil {
		return 0, fmt.Errorf("webgpu: end encoding: %w", err)
	}
	for _, buf := range c.uploads {
		b := buf
		c.dev.deferFree(c.fence, func() { c.dev.device.DestroyBuffer(b) })
	}
	if err := c.dev.submit(cmd, c.fence, wait); err != nil {
		return 0, err
	}
	return c.fence, nil
}
