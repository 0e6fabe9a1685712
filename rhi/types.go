package rhi

import (
	"github.com/gogpu/gputypes"
)

// ResourceKind discriminates the shape of a resource.
type ResourceKind uint8

const (
	KindBuffer ResourceKind = iota
	KindTexture1D
	KindTexture2D
	KindTexture3D
)

// UsageFlags is a bitmask describing how a resource may be used.
type UsageFlags uint16

const (
	// UsageShaderResource allows sampled / SRV reads.
	UsageShaderResource UsageFlags = 1 << iota

	// UsageUnorderedAccess allows UAV reads and writes.
	UsageUnorderedAccess

	// UsageRenderTarget allows use as a color attachment.
	UsageRenderTarget

	// UsageDepthStencil allows use as a depth-stencil attachment.
	UsageDepthStencil

	// UsageIndirectArgs allows use as an indirect argument buffer.
	UsageIndirectArgs

	// UsageReadback marks a CPU-readable staging resource.
	UsageReadback

	// UsageAccelerationStructure marks a ray-tracing acceleration structure.
	UsageAccelerationStructure
)

// ResourceDesc is a pure value fully describing a buffer or texture. Two
// resources with equal descriptors are interchangeable, which is what drives
// physical aliasing in the render graph: descriptor equality is plain
// structural equality (==).
type ResourceDesc struct {
	Kind ResourceKind

	// Width is the texel width for textures and the element count for
	// buffers.
	Width uint32

	// Height is the texel height for 2D/3D textures; 1 for 1D textures and
	// 0 for buffers.
	Height uint32

	// DepthOrArray is the depth for 3D textures or the array layer count
	// for 1D/2D textures; element stride is separate (see Stride).
	DepthOrArray uint32

	// Mips is the mip level count; at least 1 for textures, 0 for buffers.
	Mips uint32

	// Samples is the MSAA sample count; one of 1, 2, 4, 8.
	Samples uint32

	// Format is the texel format; TextureFormatUndefined for buffers.
	Format gputypes.TextureFormat

	// Stride is the per-element byte stride for buffers; 0 for textures.
	Stride uint32

	Usage UsageFlags
}

// IsBuffer reports whether the descriptor describes a buffer.
func (d ResourceDesc) IsBuffer() bool { return d.Kind == KindBuffer }

// Size returns the total byte size for buffer descriptors.
func (d ResourceDesc) Size() uint64 {
	if !d.IsBuffer() {
		return 0
	}
	return uint64(d.Width) * uint64(d.Stride)
}

// Validate reports descriptor invariant violations.
func (d ResourceDesc) Validate() error {
	if !d.IsBuffer() && d.Mips < 1 {
		return errDesc("texture must have at least one mip")
	}
	switch d.Samples {
	case 1, 2, 4, 8:
	default:
		if d.IsBuffer() && d.Samples == 0 {
			break
		}
		return errDesc("sample count must be 1, 2, 4 or 8")
	}
	if d.Usage&UsageDepthStencil != 0 && d.Kind == KindTexture3D && d.DepthOrArray > 1 {
		return errDesc("depth-stencil usage forbids 3D depth > 1")
	}
	return nil
}

// CreateDepth returns a 2D depth-stencil texture descriptor.
func CreateDepth(width, height uint32, format gputypes.TextureFormat, samples uint32) ResourceDesc {
	return ResourceDesc{
		Kind:         KindTexture2D,
		Width:        width,
		Height:       height,
		DepthOrArray: 1,
		Mips:         1,
		Samples:      samples,
		Format:       format,
		Usage:        UsageDepthStencil | UsageShaderResource,
	}
}

// CreateRenderTarget returns a 2D render-target texture descriptor.
func CreateRenderTarget(width, height uint32, format gputypes.TextureFormat, samples uint32) ResourceDesc {
	return ResourceDesc{
		Kind:         KindTexture2D,
		Width:        width,
		Height:       height,
		DepthOrArray: 1,
		Mips:         1,
		Samples:      samples,
		Format:       format,
		Usage:        UsageRenderTarget | UsageShaderResource,
	}
}

// Create2D returns a 2D texture descriptor readable and writable from
// shaders.
func Create2D(width, height uint32, format gputypes.TextureFormat, mips uint32) ResourceDesc {
	return ResourceDesc{
		Kind:         KindTexture2D,
		Width:        width,
		Height:       height,
		DepthOrArray: 1,
		Mips:         mips,
		Samples:      1,
		Format:       format,
		Usage:        UsageShaderResource | UsageUnorderedAccess,
	}
}

// Create3D returns a 3D texture descriptor readable and writable from
// shaders.
func Create3D(width, height, depth uint32, format gputypes.TextureFormat) ResourceDesc {
	return ResourceDesc{
		Kind:         KindTexture3D,
		Width:        width,
		Height:       height,
		DepthOrArray: depth,
		Mips:         1,
		Samples:      1,
		Format:       format,
		Usage:        UsageShaderResource | UsageUnorderedAccess,
	}
}

// CreateStructured returns a structured buffer descriptor of count elements
// with the given byte stride.
func CreateStructured(count, stride uint32, flags UsageFlags) ResourceDesc {
	if flags == 0 {
		flags = UsageShaderResource | UsageUnorderedAccess
	}
	return ResourceDesc{
		Kind:    KindBuffer,
		Width:   count,
		Stride:  stride,
		Samples: 1,
		Usage:   flags,
	}
}

// CreateByteAddress returns a raw byte-address buffer descriptor.
func CreateByteAddress(size uint64, flags UsageFlags) ResourceDesc {
	if flags == 0 {
		flags = UsageShaderResource | UsageUnorderedAccess
	}
	return ResourceDesc{
		Kind:    KindBuffer,
		Width:   uint32(size),
		Stride:  1,
		Samples: 1,
		Usage:   flags,
	}
}

// CreateIndirectArguments returns a buffer descriptor holding count indirect
// dispatch/draw argument records.
func CreateIndirectArguments(count uint32) ResourceDesc {
	return ResourceDesc{
		Kind:    KindBuffer,
		Width:   count,
		Stride:  DispatchArgsStride,
		Samples: 1,
		Usage:   UsageIndirectArgs | UsageUnorderedAccess | UsageShaderResource,
	}
}

// CreateReadback returns a CPU-readable staging buffer descriptor.
func CreateReadback(size uint64) ResourceDesc {
	return ResourceDesc{
		Kind:    KindBuffer,
		Width:   uint32(size),
		Stride:  1,
		Samples: 1,
		Usage:   UsageReadback,
	}
}

// DispatchArgsStride is the byte stride of one indirect dispatch record
// (three uint32 group counts, padded to four).
const DispatchArgsStride = 16
