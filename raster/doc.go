// Package raster implements the GPU-driven meshlet rasterizer: two-phase
// occlusion culling, pipeline-bin classification, indirect rasterization
// into a visibility buffer, and the hierarchical depth pyramid (HZB) that
// drives the occlusion tests.
//
// The design lifts frustum culling, occlusion culling and draw recording
// off the CPU. Geometry is pre-split into meshlets, giving a two-level cull
// hierarchy of instances and meshlets, and culling runs in two phases:
//
// Phase 1 tests every instance against the current frustum and against the
// previous frame's HZB. Unoccluded instances queue their meshlets as
// candidates; instances that were occluded last frame queue for retest.
// Visible meshlets draw, and an HZB is built from the partial depth.
//
// Phase 2 retests the carried-over instances and meshlets against the
// fresh phase-1 HZB, draws whatever became visible, and rebuilds the HZB
// from the final depth for next frame's phase 1.
//
// Visible meshlets land in one unordered list, so each phase classifies
// them into pipeline bins (opaque / alpha-masked) and draws each bin with
// one indirect dispatch-mesh.
//
// On devices that support work graphs the whole cull-and-classify chain of
// a phase can instead run as a single dispatch-graph program.
package raster
