package rhi

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestDescriptorFactories(t *testing.T) {
	d := CreateDepth(1920, 1080, gputypes.TextureFormatR32Float, 1)
	if d.Kind != KindTexture2D || d.Usage&UsageDepthStencil == 0 {
		t.Errorf("CreateDepth produced %+v", d)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("CreateDepth invalid: %v", err)
	}

	b := CreateStructured(100, 8, 0)
	if !b.IsBuffer() || b.Size() != 800 {
		t.Errorf("CreateStructured size = %d, want 800", b.Size())
	}
	if b.Usage&UsageUnorderedAccess == 0 || b.Usage&UsageShaderResource == 0 {
		t.Errorf("CreateStructured default usage = %v", b.Usage)
	}

	ia := CreateIndirectArguments(2)
	if ia.Usage&UsageIndirectArgs == 0 {
		t.Error("CreateIndirectArguments missing indirect usage")
	}
	if ia.Size() != 2*DispatchArgsStride {
		t.Errorf("indirect args size = %d", ia.Size())
	}

	rb := CreateReadback(64)
	if rb.Usage != UsageReadback || rb.Size() != 64 {
		t.Errorf("CreateReadback produced %+v", rb)
	}
}

func TestDescriptorValidation(t *testing.T) {
	bad := Create2D(16, 16, gputypes.TextureFormatRGBA8Unorm, 0)
	if err := bad.Validate(); err == nil {
		t.Error("zero mips accepted")
	}

	bad = Create2D(16, 16, gputypes.TextureFormatRGBA8Unorm, 1)
	bad.Samples = 3
	if err := bad.Validate(); err == nil {
		t.Error("sample count 3 accepted")
	}

	bad = Create3D(8, 8, 8, gputypes.TextureFormatRGBA8Unorm)
	bad.Usage |= UsageDepthStencil
	if err := bad.Validate(); err == nil {
		t.Error("3D depth-stencil accepted")
	}
}

func TestDescriptorEqualityDrivesAliasing(t *testing.T) {
	a := Create2D(64, 64, gputypes.TextureFormatR32Float, 1)
	b := Create2D(64, 64, gputypes.TextureFormatR32Float, 1)
	if a != b {
		t.Error("identical descriptors compare unequal")
	}
	b.Width = 65
	if a == b {
		t.Error("differing descriptors compare equal")
	}
}

func TestResourceStateString(t *testing.T) {
	s := StateShaderResource | StateIndirectArgument
	if got := s.String(); got != "SRV|IndirectArgs" {
		t.Errorf("String() = %q", got)
	}
	if StateCommon.String() != "Common" {
		t.Errorf("common state = %q", StateCommon.String())
	}
	if !StateUnorderedAccess.IsWriteState() || StateShaderResource.IsWriteState() {
		t.Error("IsWriteState misclassified")
	}
}
