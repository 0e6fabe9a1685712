package webgpu

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// compileWGSL compiles WGSL source to SPIR-V words, folding the pipeline
// permutation defines in as WGSL const declarations ahead of the source.
func compileWGSL(source string, defines map[string]string) ([]uint32, error) {
	if len(defines) > 0 {
		names := make([]string, 0, len(defines))
		for n := range defines {
			names = append(names, n)
		}
		sort.Strings(names)
		var b strings.Builder
		for _, n := range names {
			fmt.Fprintf(&b, "const %s : u32 = %su;\n", n, defines[n])
		}
		b.WriteString(source)
		source = b.String()
	}

	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("webgpu: compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words.
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return spirv, nil
}

// createShaderModule builds a HAL shader module from compiled SPIR-V.
func createShaderModule(device hal.Device, label string, spirv []uint32) (hal.ShaderModule, error) {
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: spirv,
		},
	})
}
