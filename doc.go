// Package render3 is a real-time GPU-driven 3D renderer core.
//
// The renderer is built from three tightly coupled subsystems:
//
//   - graph: a transient-resource render graph that records passes
//     declaratively, plans barriers, aliases physical memory and executes
//     on a command-context abstraction (package rhi).
//   - raster: a two-phase occlusion-culling meshlet rasterizer producing a
//     visibility buffer and a persistent hierarchical depth pyramid.
//   - lighting and shadows: clustered light culling with volumetric fog,
//     and PSSM/SDSM cascade partitioning with texel-stabilized
//     projections.
//
// The Renderer type in this package assembles those subsystems into a
// frame. The application layer supplies a scene.View snapshot each frame
// (batches, lights, buffer handles); render3 does not load scenes, create
// windows or own the swapchain.
//
// Devices live under backend/: backend/soft executes reference kernels on
// the CPU (the test substrate), backend/webgpu drives gogpu/wgpu for the
// compute-capable subset. All depth handling is reverse-Z: the near plane
// maps to depth 1, clears are 0, and comparisons are greater / greater-
// equal.
package render3
