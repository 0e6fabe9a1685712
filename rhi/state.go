package rhi

import "strings"

// ResourceState is a bitmask of the GPU states a resource currently
// satisfies. The render graph's barrier planner transitions resources
// between these states; a backend maps them onto its native barrier model.
type ResourceState uint16

const (
	// StateCommon is the creation state of every resource.
	StateCommon ResourceState = 0

	// StateShaderResource allows SRV reads from any shader stage.
	StateShaderResource ResourceState = 1 << iota

	// StateUnorderedAccess allows UAV reads and writes.
	StateUnorderedAccess

	// StateRenderTarget allows color attachment writes.
	StateRenderTarget

	// StateDepthWrite allows depth-stencil attachment writes.
	StateDepthWrite

	// StateDepthRead allows read-only depth-stencil attachment use.
	StateDepthRead

	// StateCopySrc allows use as a copy source.
	StateCopySrc

	// StateCopyDst allows use as a copy destination.
	StateCopyDst

	// StateIndirectArgument allows consumption as indirect arguments.
	StateIndirectArgument

	// StateReadback allows CPU mapping after fence completion.
	StateReadback
)

var stateNames = []struct {
	bit  ResourceState
	name string
}{
	{StateShaderResource, "SRV"},
	{StateUnorderedAccess, "UAV"},
	{StateRenderTarget, "RenderTarget"},
	{StateDepthWrite, "DepthWrite"},
	{StateDepthRead, "DepthRead"},
	{StateCopySrc, "CopySrc"},
	{StateCopyDst, "CopyDst"},
	{StateIndirectArgument, "IndirectArgs"},
	{StateReadback, "Readback"},
}

// String returns a pipe-separated name list for the state mask.
func (s ResourceState) String() string {
	if s == StateCommon {
		return "Common"
	}
	var parts []string
	for _, n := range stateNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// IsWriteState reports whether the state permits GPU writes.
func (s ResourceState) IsWriteState() bool {
	return s&(StateUnorderedAccess|StateRenderTarget|StateDepthWrite|StateCopyDst) != 0
}
