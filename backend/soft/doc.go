// Package soft implements the rhi contract entirely on the CPU.
//
// The software device executes each pipeline's reference kernel (see
// rhi.ComputePipelineDesc.Kernel) in place of its shader, recording the same
// state, barrier and binding traffic a hardware backend would see. Command
// contexts execute eagerly in program order; Execute assigns the submission
// fence, which completes immediately because execution is synchronous.
//
// The device advertises every optional capability except ray tracing,
// including mesh shading and work graphs, so the GPU-driven paths can run and be tested without
// hardware. It is the renderer's test substrate and headless fallback, in
// the same role the CPU raster fallback plays for the 2D pipeline.
package soft
