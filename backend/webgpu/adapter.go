// Package webgpu implements the rhi contract over gogpu/wgpu's HAL.
//
// The device receives its hal.Device and hal.Queue from the host
// application (for example through a gpucontext.DeviceProvider); it never
// creates one. WebGPU has no mesh shading or work graphs, so the device
// reports those capabilities off and callers clamp the GPU-driven paths;
// the compute side (HZB, clustering, fog, reductions) runs from the WGSL
// attached to the pipeline descriptors, compiled through naga.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/types"

	"github.com/gogpu/render3/rhi"
)

// Device is the WebGPU rhi device.
type Device struct {
	mu     sync.Mutex
	device hal.Device
	queue  hal.Queue

	nextFence      rhi.FenceValue
	completed      rhi.FenceValue
	inFlight       map[rhi.FenceValue]hal.Fence
	frame          uint64
	nextHandle     uint64
	deferredFrees  []deferredFree
	bufferHandles  map[uint64]hal.Buffer
	textureHandles map[uint64]hal.Texture
}

type deferredFree struct {
	fence rhi.FenceValue
	run   func()
}

// NewDevice wraps a HAL device and queue.
func NewDevice(device hal.Device, queue hal.Queue) *Device {
	return &Device{
		device:         device,
		queue:          queue,
		nextFence:      1,
		inFlight:       map[rhi.FenceValue]hal.Fence{},
		bufferHandles:  map[uint64]hal.Buffer{},
		textureHandles: map[uint64]hal.Texture{},
	}
}

// NewDeviceFromProvider wraps the device owned by a host application. The
// provider must also implement HalDevice() any and HalQueue() any returning
// wgpu/hal types.
func NewDeviceFromProvider(p gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := p.(halProvider)
	if !ok {
		return nil, fmt.Errorf("webgpu: provider does not expose HAL types")
	}
	dev, _ := hp.HalDevice().(hal.Device)
	queue, _ := hp.HalQueue().(hal.Queue)
	if dev == nil || queue == nil {
		return nil, fmt.Errorf("webgpu: provider returned no device")
	}
	return NewDevice(dev, queue), nil
}

// Capabilities implements rhi.Device. WebGPU lacks mesh shading and work
// graphs; the GPU-driven rasterizer is unavailable on this backend.
func (d *Device) Capabilities() rhi.Capabilities {
	return rhi.Capabilities{
		MeshShading: false,
		WorkGraphs:  false,
		WaveOps:     true,
		ShaderModel: "wgsl",
	}
}

func (d *Device) handle() uint64 {
	d.nextHandle++
	return d.nextHandle
}

// CreateBuffer implements rhi.Device.
func (d *Device) CreateBuffer(desc rhi.ResourceDesc, name string) (rhi.Resource, error) {
	if !desc.IsBuffer() {
		return nil, fmt.Errorf("webgpu: CreateBuffer with texture descriptor %q", name)
	}
	usage := types.BufferUsageCopySrc | types.BufferUsageCopyDst | types.BufferUsageStorage
	if desc.Usage&rhi.UsageIndirectArgs != 0 {
		usage |= types.BufferUsageIndirect
	}
	if desc.Usage&rhi.UsageReadback != 0 {
		usage = types.BufferUsageMapRead | types.BufferUsageCopyDst
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: name,
		Size:  desc.Size(),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: %q: %w", name, rhi.ErrOutOfMemory)
	}

	d.mu.Lock()
	h := d.handle()
	d.bufferHandles[h] = buf
	d.mu.Unlock()

	return &resource{dev: d, name: name, desc: desc, buffer: buf, id: h}, nil
}

// CreateTexture implements rhi.Device.
func (d *Device) CreateTexture(desc rhi.ResourceDesc, name string) (rhi.Resource, error) {
	if desc.IsBuffer() {
		return nil, fmt.Errorf("webgpu: CreateTexture with buffer descriptor %q", name)
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("webgpu: %q: %w", name, err)
	}
	dim := types.TextureDimension2D
	if desc.Kind == rhi.KindTexture3D {
		dim = types.TextureDimension3D
	}
	usage := types.TextureUsageCopySrc | types.TextureUsageCopyDst |
		types.TextureUsageTextureBinding | types.TextureUsageStorageBinding

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: name,
		Size: hal.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: max(desc.DepthOrArray, 1),
		},
		MipLevelCount: max(desc.Mips, 1),
		SampleCount:   max(desc.Samples, 1),
		Dimension:     dim,
		Format:        convertFormat(desc.Format),
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: %q: %w", name, rhi.ErrOutOfMemory)
	}

	d.mu.Lock()
	h := d.handle()
	d.textureHandles[h] = tex
	d.mu.Unlock()

	return &resource{dev: d, name: name, desc: desc, texture: tex, id: h}, nil
}

// CreateComputePipeline implements rhi.Device: the WGSL source compiles
// through naga; the HAL pipeline finalizes lazily at first dispatch, when
// the binding shape is known.
func (d *Device) CreateComputePipeline(desc rhi.ComputePipelineDesc) (rhi.Pipeline, error) {
	if desc.WGSL == "" {
		return nil, fmt.Errorf("webgpu: compute pipeline %q has no WGSL source", desc.Name)
	}
	spirv, err := compileWGSL(desc.WGSL, desc.Defines)
	if err != nil {
		return nil, err
	}
	module, err := createShaderModule(d.device, desc.Name, spirv)
	if err != nil {
		return nil, fmt.Errorf("webgpu: shader module %q: %w", desc.Name, err)
	}
	return &pipeline{name: desc.Name, entry: desc.EntryPoint, module: module}, nil
}

// ReloadShader recompiles a pipeline's WGSL in place. On a compile failure
// the pipeline keeps its previous module and the diagnostic is returned for
// logging; in-flight work is unaffected either way.
func (d *Device) ReloadShader(p rhi.Pipeline, wgsl string, defines map[string]string) error {
	wp, ok := p.(*pipeline)
	if !ok {
		return fmt.Errorf("webgpu: pipeline from another device")
	}
	spirv, err := compileWGSL(wgsl, defines)
	if err != nil {
		return err // previous pipeline stays bound
	}
	module, err := createShaderModule(d.device, wp.name, spirv)
	if err != nil {
		return fmt.Errorf("webgpu: shader module %q: %w", wp.name, err)
	}

	wp.mu.Lock()
	old := wp.module
	wp.module = module
	// Drop the finalized pipeline so the next dispatch rebuilds against
	// the new module.
	stale := wp.finalized
	wp.finalized = nil
	wp.mu.Unlock()

	if old != nil {
		d.device.DestroyShaderModule(old)
	}
	if stale != nil {
		d.device.DestroyComputePipeline(stale)
	}
	return nil
}

// CreateRasterPipeline implements rhi.Device. Mesh-shading pipelines are
// not expressible in WebGPU.
func (d *Device) CreateRasterPipeline(desc rhi.RasterPipelineDesc) (rhi.Pipeline, error) {
	return nil, fmt.Errorf("webgpu: raster pipeline %q: %w", desc.Name, rhi.ErrUnsupported)
}

// CreateStateObject implements rhi.Device.
func (d *Device) CreateStateObject(desc rhi.StateObjectDesc) (rhi.StateObject, error) {
	return nil, fmt.Errorf("webgpu: state object %q: %w", desc.Name, rhi.ErrUnsupported)
}

// AllocateContext implements rhi.Device.
func (d *Device) AllocateContext() rhi.CommandContext {
	d.mu.Lock()
	fence := d.nextFence
	d.nextFence++
	d.mu.Unlock()
	return &Context{dev: d, fence: fence}
}

// IsFenceComplete implements rhi.Device.
func (d *Device) IsFenceComplete(v rhi.FenceValue) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isFenceCompleteLocked(v)
}

func (d *Device) isFenceCompleteLocked(v rhi.FenceValue) bool {
	if v <= d.completed {
		return true
	}
	f, ok := d.inFlight[v]
	if !ok {
		return false
	}
	done, err := d.device.Wait(f, 1, 0)
	if err != nil || !done {
		return false
	}
	d.device.DestroyFence(f)
	delete(d.inFlight, v)
	if v > d.completed {
		d.completed = v
	}
	return true
}

// Idle implements rhi.Device.
func (d *Device) Idle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for v, f := range d.inFlight {
		_, _ = d.device.Wait(f, 1, 5_000_000_000)
		d.device.DestroyFence(f)
		delete(d.inFlight, v)
		if v > d.completed {
			d.completed = v
		}
	}
	d.drainLocked()
}

// TickFrame implements rhi.Device.
func (d *Device) TickFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame++
	for v := range d.inFlight {
		d.isFenceCompleteLocked(v)
	}
	d.drainLocked()
}

// FrameIndex implements rhi.Device.
func (d *Device) FrameIndex() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame
}

func (d *Device) drainLocked() {
	kept := d.deferredFrees[:0]
	for _, df := range d.deferredFrees {
		if df.fence <= d.completed {
			df.run()
		} else {
			kept = append(kept, df)
		}
	}
	d.deferredFrees = kept
}

func (d *Device) deferFree(fence rhi.FenceValue, run func()) {
	d.mu.Lock()
	d.deferredFrees = append(d.deferredFrees, deferredFree{fence: fence, run: run})
	d.mu.Unlock()
}

// submit signs off a command buffer with a fresh fence for the value.
func (d *Device) submit(cmd hal.CommandBuffer, value rhi.FenceValue, wait bool) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("webgpu: fence: %w", err)
	}
	if err := d.queue.Submit([]hal.CommandBuffer{cmd}, fence, 1); err != nil {
		d.device.DestroyFence(fence)
		return fmt.Errorf("webgpu: submit: %w", err)
	}
	cmd.Destroy()

	d.mu.Lock()
	d.inFlight[value] = fence
	d.mu.Unlock()

	if wait {
		if _, err := d.device.Wait(fence, 1, 5_000_000_000); err != nil {
			return fmt.Errorf("webgpu: wait: %w", err)
		}
		d.mu.Lock()
		d.isFenceCompleteLocked(value)
		d.mu.Unlock()
	}
	return nil
}

// pipeline is the webgpu pipeline object. The HAL pipeline finalizes at
// first dispatch against the binding shape in use.
type pipeline struct {
	name   string
	entry  string
	module hal.ShaderModule

	mu        sync.Mutex
	finalized hal.ComputePipeline
	layout    hal.PipelineLayout
	groups    []hal.BindGroupLayout
}

func (p *pipeline) Name() string           { return p.name }
func (p *pipeline) Kind() rhi.PipelineKind { return rhi.PipelineCompute }

// resource is a webgpu buffer or texture.
type resource struct {
	dev  *Device
	name string
	desc rhi.ResourceDesc
	id   uint64

	buffer  hal.Buffer
	texture hal.Texture

	mu        sync.Mutex
	state     rhi.ResourceState
	lastFence rhi.FenceValue
	released  bool
}

func (r *resource) Name() string           { return r.name }
func (r *resource) Desc() rhi.ResourceDesc { return r.desc }

func (r *resource) State() rhi.ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *resource) SetState(s rhi.ResourceState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *resource) LastUsedFence() rhi.FenceValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFence
}

func (r *resource) MarkUsed(v rhi.FenceValue) {
	r.mu.Lock()
	if v > r.lastFence {
		r.lastFence = v
	}
	r.mu.Unlock()
}

// Release implements rhi.Resource: the HAL object frees once the last-use
// fence completes.
func (r *resource) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	fence := r.lastFence
	r.mu.Unlock()

	dev := r.dev
	dev.deferFree(fence, func() {
		if r.buffer != nil {
			dev.device.DestroyBuffer(r.buffer)
			dev.mu.Lock()
			delete(dev.bufferHandles, r.id)
			dev.mu.Unlock()
		}
		if r.texture != nil {
			dev.device.DestroyTexture(r.texture)
			dev.mu.Lock()
			delete(dev.textureHandles, r.id)
			dev.mu.Unlock()
		}
	})
}

// convertFormat maps gputypes formats onto HAL formats for the subset the
// renderer creates.
func convertFormat(f gputypes.TextureFormat) types.TextureFormat {
	switch f {
	case gputypes.TextureFormatR32Float:
		return types.TextureFormatR32Float
	case gputypes.TextureFormatR16Float:
		return types.TextureFormatR16Float
	case gputypes.TextureFormatR32Uint:
		return types.TextureFormatR32Uint
	case gputypes.TextureFormatRG32Float:
		return types.TextureFormatRG32Float
	case gputypes.TextureFormatRGBA16Float:
		return types.TextureFormatRGBA16Float
	case gputypes.TextureFormatRGBA32Float:
		return types.TextureFormatRGBA32Float
	case gputypes.TextureFormatBGRA8Unorm:
		return types.TextureFormatBGRA8Unorm
	default:
		return types.TextureFormatRGBA8Unorm
	}
}
