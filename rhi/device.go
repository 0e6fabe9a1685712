package rhi

import (
	"errors"
	"fmt"
)

// FenceValue identifies a point in the GPU timeline. Values increase
// monotonically with each submission; zero means "never submitted".
type FenceValue uint64

// Capabilities describes the optional features a device supports.
type Capabilities struct {
	RayTracing  bool
	MeshShading bool
	WorkGraphs  bool
	WaveOps     bool

	// ShaderModel is the backend's shader model or language version,
	// e.g. "6.6" or "wgsl".
	ShaderModel string
}

// Resource is a GPU-backed allocation: a buffer or a texture. Resources are
// created by a Device and shared by handle; Release returns the resource to
// the device's deferred-free queue keyed by its last-use fence.
type Resource interface {
	// Name returns the debug name given at creation.
	Name() string

	// Desc returns the descriptor the resource was created from.
	Desc() ResourceDesc

	// State returns the resource's current state mask. State tracking
	// covers the whole resource; per-mip transitions are handled inside
	// a single graph pass and are not observable here.
	State() ResourceState

	// SetState records a completed transition. Called by command contexts
	// when barriers are flushed; applications should not call it.
	SetState(ResourceState)

	// LastUsedFence returns the highest fence value on which the resource
	// was referenced.
	LastUsedFence() FenceValue

	// MarkUsed raises the last-use fence to at least v.
	MarkUsed(v FenceValue)

	// Release hands the resource back to its device. The backing memory
	// is reclaimed once LastUsedFence completes.
	Release()
}

// Device is an opaque handle to a GPU device. Implementations live under
// backend/ and must be safe for concurrent resource creation and release;
// command contexts themselves are single-threaded recorders.
type Device interface {
	// AllocateContext returns a fresh command context bound to a single
	// future submission.
	AllocateContext() CommandContext

	// CreateTexture creates a texture from desc. The descriptor must
	// describe a texture kind.
	CreateTexture(desc ResourceDesc, name string) (Resource, error)

	// CreateBuffer creates a buffer from desc. The descriptor must
	// describe a buffer.
	CreateBuffer(desc ResourceDesc, name string) (Resource, error)

	// CreateComputePipeline builds a compute pipeline.
	CreateComputePipeline(desc ComputePipelineDesc) (Pipeline, error)

	// CreateRasterPipeline builds a raster (mesh) pipeline.
	CreateRasterPipeline(desc RasterPipelineDesc) (Pipeline, error)

	// CreateStateObject builds a work-graph state object. Devices without
	// work-graph support return ErrUnsupported.
	CreateStateObject(desc StateObjectDesc) (StateObject, error)

	// IsFenceComplete reports whether the given fence value has been
	// reached by the GPU.
	IsFenceComplete(v FenceValue) bool

	// Idle blocks until all submitted work has completed.
	Idle()

	// TickFrame advances the frame fence, waits until no more than the
	// device's in-flight frame budget is outstanding, and drains the
	// deferred-free queue for every fence that has completed.
	TickFrame()

	// FrameIndex returns the number of TickFrame calls since creation.
	FrameIndex() uint64

	// Capabilities returns the device's feature set.
	Capabilities() Capabilities
}

// Typed device failures. Transient failures are returned to the caller;
// fatal ones surface through ErrDeviceRemoved.
var (
	// ErrOutOfMemory is returned when a resource allocation fails;
	// the caller may retry after releasing resources.
	ErrOutOfMemory = errors.New("rhi: out of device memory")

	// ErrDeviceRemoved indicates a lost device; not recoverable.
	ErrDeviceRemoved = errors.New("rhi: device removed")

	// ErrUnsupported is returned when a requested capability is absent.
	ErrUnsupported = errors.New("rhi: capability not supported")
)

func errDesc(msg string) error {
	return fmt.Errorf("rhi: invalid descriptor: %s", msg)
}
