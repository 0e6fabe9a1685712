package soft

import (
	"fmt"
	"sync"

	"github.com/gogpu/render3/rhi"
)

// maxFramesInFlight bounds how many frames TickFrame lets run ahead. The
// software device completes work synchronously, so the bound never stalls,
// but the deferred-free bookkeeping follows the same contract as a hardware
// backend.
const maxFramesInFlight = 3

// Device is the software rhi device.
type Device struct {
	mu sync.Mutex

	nextFence      rhi.FenceValue // next value a submission will signal
	completedFence rhi.FenceValue

	frame      uint64
	frameFence [maxFramesInFlight]rhi.FenceValue

	deferred []deferredFree

	caps rhi.Capabilities
}

type deferredFree struct {
	res   *resource
	fence rhi.FenceValue
}

// NewDevice creates a software device. It advertises every optional
// capability except ray tracing so GPU-driven paths can execute on the CPU.
func NewDevice() *Device {
	return &Device{
		nextFence: 1,
		caps: rhi.Capabilities{
			RayTracing:  false,
			MeshShading: true,
			WorkGraphs:  true,
			WaveOps:     true,
			ShaderModel: "soft",
		},
	}
}

// Capabilities implements rhi.Device.
func (d *Device) Capabilities() rhi.Capabilities { return d.caps }

// CreateTexture implements rhi.Device.
func (d *Device) CreateTexture(desc rhi.ResourceDesc, name string) (rhi.Resource, error) {
	if desc.IsBuffer() {
		return nil, fmt.Errorf("soft: CreateTexture with buffer descriptor %q", name)
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("soft: %q: %w", name, err)
	}
	return newTexture(d, desc, name), nil
}

// CreateBuffer implements rhi.Device.
func (d *Device) CreateBuffer(desc rhi.ResourceDesc, name string) (rhi.Resource, error) {
	if !desc.IsBuffer() {
		return nil, fmt.Errorf("soft: CreateBuffer with texture descriptor %q", name)
	}
	return &Buffer{
		resource: resource{dev: d, name: name, desc: desc},
		data:     make([]byte, desc.Size()),
	}, nil
}

// CreateComputePipeline implements rhi.Device. The descriptor must carry a
// reference kernel; the software device cannot run WGSL.
func (d *Device) CreateComputePipeline(desc rhi.ComputePipelineDesc) (rhi.Pipeline, error) {
	if desc.Kernel == nil {
		return nil, fmt.Errorf("soft: compute pipeline %q has no reference kernel", desc.Name)
	}
	return &pipeline{name: desc.Name, kind: rhi.PipelineCompute, compute: desc.Kernel}, nil
}

// CreateRasterPipeline implements rhi.Device.
func (d *Device) CreateRasterPipeline(desc rhi.RasterPipelineDesc) (rhi.Pipeline, error) {
	if desc.Kernel == nil {
		return nil, fmt.Errorf("soft: raster pipeline %q has no reference kernel", desc.Name)
	}
	return &pipeline{
		name:         desc.Name,
		kind:         rhi.PipelineRaster,
		mesh:         desc.Kernel,
		depthCompare: desc.DepthCompare,
		depthWrite:   desc.DepthWrite,
	}, nil
}

// CreateStateObject implements rhi.Device.
func (d *Device) CreateStateObject(desc rhi.StateObjectDesc) (rhi.StateObject, error) {
	if len(desc.Nodes) == 0 {
		return nil, fmt.Errorf("soft: state object %q has no nodes", desc.Name)
	}
	return &stateObject{name: desc.Name, nodes: desc.Nodes}, nil
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
	return v <= d.completedFence
}

// Idle implements rhi.Device. All work completes synchronously, so Idle
// only drains the deferred-free queue.
func (d *Device) Idle() {
	d.mu.Lock()
	d.drainLocked()
	d.mu.Unlock()
}

// TickFrame implements rhi.Device: it advances the frame fence, waits for
// frame N - maxFramesInFlight (a no-op here) and reclaims deferred frees.
func (d *Device) TickFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameFence[d.frame%maxFramesInFlight] = d.nextFence - 1
	d.frame++
	d.drainLocked()
}

// FrameIndex implements rhi.Device.
func (d *Device) FrameIndex() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame
}

// deferRelease queues a resource for reclamation once its last-use fence
// completes.
func (d *Device) deferRelease(r *resource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	d.deferred = append(d.deferred, deferredFree{res: r, fence: r.lastFence})
}

// drainLocked frees every deferred resource whose fence has completed.
func (d *Device) drainLocked() {
	kept := d.deferred[:0]
	for _, df := range d.deferred {
		if df.fence > d.completedFence {
			kept = append(kept, df)
		}
	}
	d.deferred = kept
}

// completeSubmission marks the context's fence signalled.
func (d *Device) completeSubmission(v rhi.FenceValue) {
	d.mu.Lock()
	if v > d.completedFence {
		d.completedFence = v
	}
	d.mu.Unlock()
}

// pipeline is the software pipeline-state object.
type pipeline struct {
	name string
	kind rhi.PipelineKind

	compute rhi.ComputeKernel
	mesh    rhi.MeshKernel

	depthCompare rhi.CompareFunc
	depthWrite   bool
}

func (p *pipeline) Name() string           { return p.name }
func (p *pipeline) Kind() rhi.PipelineKind { return p.kind }

// stateObject is the software work-graph program: its nodes run serially in
// declaration order, sharing the dispatch's bound state.
type stateObject struct {
	name  string
	nodes []rhi.WorkGraphNode
}

func (s *stateObject) Name() string { return s.name }

// BackingSize implements rhi.StateObject. The software program needs no
// real backing memory; the fixed size exercises the caller's persistence
// contract.
func (s *stateObject) BackingSize() uint64 { return 64 << 10 }
