package rhi

// ViewKind discriminates how a bound resource is accessed.
type ViewKind uint8

const (
	ViewSRV ViewKind = iota
	ViewUAV
)

// ResourceView is a binding of a resource (or one of its mips) to a
// descriptor slot. A zero view (nil Resource) is a null binding; kernels
// receive nil for it.
type ResourceView struct {
	Resource Resource
	Kind     ViewKind

	// Mip selects a single mip for texture UAVs; -1 binds all mips.
	Mip int
}

// SRV returns a shader-resource view of r covering all mips.
func SRV(r Resource) ResourceView { return ResourceView{Resource: r, Kind: ViewSRV, Mip: -1} }

// UAV returns an unordered-access view of r covering all mips.
func UAV(r Resource) ResourceView { return ResourceView{Resource: r, Kind: ViewUAV, Mip: -1} }

// UAVMip returns an unordered-access view of a single texture mip.
func UAVMip(r Resource, mip int) ResourceView {
	return ResourceView{Resource: r, Kind: ViewUAV, Mip: mip}
}

// NullView returns an explicit null binding.
func NullView() ResourceView { return ResourceView{Mip: -1} }

// RenderPassAccess pairs a load and a store operation for an attachment.
type RenderPassAccess uint8

const (
	AccessDontCare RenderPassAccess = iota
	AccessClearStore
	AccessLoadStore
	AccessClearResolve
	AccessLoadResolve
	AccessClearDontCare
	AccessLoadDontCare
)

// ShouldClear reports whether the access begins with a clear.
func (a RenderPassAccess) ShouldClear() bool {
	return a == AccessClearStore || a == AccessClearResolve || a == AccessClearDontCare
}

// ShouldResolve reports whether the access ends with an MSAA resolve.
func (a RenderPassAccess) ShouldResolve() bool {
	return a == AccessClearResolve || a == AccessLoadResolve
}

// RenderPassTarget is one color attachment of a render pass.
type RenderPassTarget struct {
	Target  Resource
	Access  RenderPassAccess
	Resolve Resource // optional resolve destination
}

// RenderPassDepth is the depth-stencil attachment of a render pass.
type RenderPassDepth struct {
	Target        Resource
	DepthAccess   RenderPassAccess
	StencilAccess RenderPassAccess

	// Write enables depth writes; false binds the target read-only.
	Write bool
}

// RenderPassInfo describes the attachments of one render pass.
type RenderPassInfo struct {
	Targets []RenderPassTarget
	Depth   RenderPassDepth
}

// Region describes a texture copy region.
type Region struct {
	X, Y, Z uint32
	W, H, D uint32
}

// TransientAllocation is a one-frame upload allocation.
type TransientAllocation struct {
	// CPU is the writable mapped memory.
	CPU []byte

	// GPUAddress identifies the allocation to the backend.
	GPUAddress uint64
}

// GraphDispatchDesc launches a work-graph program.
type GraphDispatchDesc struct {
	Object StateObject

	// Backing is the program's backing buffer. Per the work-graph
	// contract it must be re-initialized whenever its identity changes;
	// set Initialize accordingly.
	Backing    Resource
	Initialize bool

	// EntryPoint selects the entry node by name.
	EntryPoint string

	// Records is the CPU input record blob handed to the entry node.
	Records []byte
}

// CommandContext records GPU work for a single submission. Contexts are
// stateful, single-threaded recorders: operations happen in program order
// within the submission. Misordered recording (a dispatch without a bound
// pipeline, ending a pass that was never begun) is a programmer error and
// panics.
type CommandContext interface {
	// Transition coalesces a state transition for r; it takes effect at
	// the next FlushBarriers or implicitly before any GPU work.
	Transition(r Resource, state ResourceState)

	// UAVBarrier orders prior UAV writes before subsequent accesses.
	// A nil resource inserts a global UAV barrier.
	UAVBarrier(r Resource)

	// FlushBarriers submits all pending transitions.
	FlushBarriers()

	// BeginRenderPass binds attachments and applies load operations.
	BeginRenderPass(info RenderPassInfo)

	// EndRenderPass applies store/resolve operations and unbinds.
	EndRenderPass()

	// SetComputeRootSignature and SetGraphicsRootSignature bind the
	// binding contract for subsequent compute / draw work.
	SetComputeRootSignature(sig *RootSignature)
	SetGraphicsRootSignature(sig *RootSignature)

	// SetPipeline binds a pipeline compiled by the same device.
	SetPipeline(p Pipeline)

	// SetRootConstants sets the inline constant blob for slot
	// SlotRootConstants.
	SetRootConstants(slot int, blob []byte)

	// SetRootCBV uploads blob to transient memory and binds it as the
	// constant buffer for slot.
	SetRootCBV(slot int, blob []byte)

	// BindResources binds a descriptor table of views starting at the
	// given slot.
	BindResources(slot int, views []ResourceView)

	// Dispatch issues compute work in thread groups.
	Dispatch(x, y, z uint32)

	// DispatchMesh issues mesh-shading work in thread groups.
	DispatchMesh(x, y, z uint32)

	// Draw and DrawIndexed issue direct draws.
	Draw(vertexStart, vertexCount, instanceCount uint32)
	DrawIndexed(indexStart, indexCount, instanceCount uint32)

	// ExecuteIndirect issues up to maxCount records from args at offset,
	// interpreted through sig.
	ExecuteIndirect(sig *CommandSignature, maxCount uint32, args Resource, offset uint64)

	// DispatchGraph launches a work-graph program. Devices without
	// work-graph support panic; callers gate on Capabilities.
	DispatchGraph(desc GraphDispatchDesc)

	// CopyResource copies src into dst; descriptors must match in size.
	CopyResource(src, dst Resource)

	// CopyTexture copies a region between textures.
	CopyTexture(src, dst Resource, region Region)

	// Resolve collapses an MSAA texture into a single-sample one.
	Resolve(src, dst Resource)

	// ClearUAVUint and ClearUAVFloat zero-fill a UAV resource.
	ClearUAVUint(r Resource)
	ClearUAVFloat(r Resource)

	// AllocateTransientMemory returns size bytes of upload memory valid
	// until the submission's fence completes.
	AllocateTransientMemory(size uint64) TransientAllocation

	// Execute submits the recorded work and returns its fence value.
	// With wait set it blocks until the fence completes.
	Execute(wait bool) (FenceValue, error)
}
