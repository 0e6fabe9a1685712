package rhi

// CompareFunc is a depth comparison function. Reverse-Z rendering uses
// CompareGreater / CompareGreaterEqual.
type CompareFunc uint8

const (
	CompareAlways CompareFunc = iota
	CompareGreater
	CompareGreaterEqual
	CompareEqual
	CompareNever
)

// CullMode selects triangle face culling.
type CullMode uint8

const (
	CullBack CullMode = iota
	CullNone
)

// RootSignature names the binding contract shared by pipelines. The slot
// layout is fixed (see the Slot* constants); the struct exists so backends
// can cache per-signature state.
type RootSignature struct {
	Name string

	// NumRootConstants is the number of 32-bit root constants available
	// in SlotRootConstants, at most MaxRootConstants.
	NumRootConstants uint32
}

// Root binding slots.
const (
	// SlotRootConstants holds inline 32-bit constants.
	SlotRootConstants = 0

	// SlotViewCBV holds the per-view uniform block.
	SlotViewCBV = 1

	// SlotUAVs is the unordered-access view table.
	SlotUAVs = 2

	// SlotSRVs is the shader-resource view table.
	SlotSRVs = 3

	// MaxRootConstants bounds SlotRootConstants, in 32-bit values.
	MaxRootConstants = 18
)

// PipelineKind discriminates pipeline flavors.
type PipelineKind uint8

const (
	PipelineCompute PipelineKind = iota
	PipelineRaster
)

// Pipeline is an opaque compiled pipeline-state object.
type Pipeline interface {
	Name() string
	Kind() PipelineKind
}

// ComputePipelineDesc describes a compute pipeline. WGSL carries the shader
// source for hardware backends; Kernel is the CPU reference implementation
// executed by backend/soft. Either may be empty when the corresponding
// backend is not used.
type ComputePipelineDesc struct {
	Name       string
	WGSL       string
	EntryPoint string

	// Defines are shader preprocessor-style switches compiled into the
	// pipeline permutation (backends fold them into the WGSL source).
	Defines map[string]string

	Kernel ComputeKernel
}

// RasterPipelineDesc describes a mesh-shading raster pipeline.
type RasterPipelineDesc struct {
	Name       string
	WGSL       string
	MeshEntry  string
	PixelEntry string
	Defines    map[string]string

	DepthCompare CompareFunc
	DepthWrite   bool
	Cull         CullMode

	// Kernel is the CPU reference rasterizer executed by backend/soft in
	// place of the mesh/pixel shader pair.
	Kernel MeshKernel
}

// StateObjectDesc describes a work-graph state object: a program of named
// compute nodes that feed records to one another on-GPU.
type StateObjectDesc struct {
	Name    string
	WGSL    string
	Defines map[string]string

	// Nodes lists the graph's node kernels for the software backend, in
	// launch order from each entry point.
	Nodes []WorkGraphNode
}

// WorkGraphNode is a single node of a work-graph program.
type WorkGraphNode struct {
	Name   string
	Kernel ComputeKernel
}

// StateObject is a compiled work-graph program.
type StateObject interface {
	Name() string

	// BackingSize returns the byte size the dispatch-time backing buffer
	// must have.
	BackingSize() uint64
}

// IndirectKind selects what an indirect command signature issues.
type IndirectKind uint8

const (
	IndirectDispatch IndirectKind = iota
	IndirectDispatchMesh
	IndirectDraw
)

// CommandSignature describes the record layout consumed by ExecuteIndirect.
type CommandSignature struct {
	Kind   IndirectKind
	Stride uint32
}

// Predefined indirect signatures matching DispatchArgsStride records.
var (
	DispatchSignature     = &CommandSignature{Kind: IndirectDispatch, Stride: DispatchArgsStride}
	DispatchMeshSignature = &CommandSignature{Kind: IndirectDispatchMesh, Stride: DispatchArgsStride}
)

// ComputeKernel is the CPU reference implementation of a compute pipeline,
// invoked by backend/soft with the full dispatch grid. Kernels loop over
// their logical threads; there is no workgroup-level concurrency to observe
// because the software device executes submissions serially.
type ComputeKernel func(d Dispatch)

// MeshKernel is the CPU reference implementation of a raster pipeline: it
// receives the dispatch-mesh grid plus the bound render targets.
type MeshKernel func(d Dispatch, rt RenderTargets)

// Dispatch gives a kernel access to its grid and bound resources. Slots
// follow the root signature layout (SlotUAVs, SlotSRVs).
type Dispatch interface {
	// Groups returns the dispatch grid in thread groups.
	Groups() (x, y, z uint32)

	// Constants returns the root-constant blob bound at SlotRootConstants.
	Constants() []byte

	// CBV returns the constant-buffer blob bound at the given slot.
	CBV(slot int) []byte

	// Buffer returns the backing bytes of the buffer bound at
	// (slot, index). UAV-slot buffers are writable in place.
	Buffer(slot, index int) []byte

	// Texture returns the texture bound at (slot, index), or nil when the
	// binding is an invalid/null view.
	Texture(slot, index int) KernelTexture
}

// KernelTexture is the software backend's texel-level texture access handed
// to reference kernels.
type KernelTexture interface {
	// Dims returns the dimensions of the given mip.
	Dims(mip int) (w, h, d uint32)

	// MipCount returns the number of mips.
	MipCount() int

	// Load returns the texel as four floats (un-normalized channels).
	Load(mip int, x, y, z uint32) [4]float32

	// Store writes the texel from four floats.
	Store(mip int, x, y, z uint32, v [4]float32)

	// LoadUint and StoreUint access single-channel integer formats.
	LoadUint(mip int, x, y, z uint32) uint32
	StoreUint(mip int, x, y, z uint32, v uint32)
}

// RenderTargets exposes the attachments of the active render pass to a
// software mesh kernel.
type RenderTargets interface {
	// Color returns the color attachment at index, or nil.
	Color(index int) KernelTexture

	// Depth returns the depth attachment, or nil.
	Depth() KernelTexture

	// DepthCompare returns the pipeline's depth comparison.
	DepthCompare() CompareFunc

	// DepthWriteEnabled reports whether depth writes are on.
	DepthWriteEnabled() bool
}
