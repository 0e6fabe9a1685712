// Package rhi defines the render hardware interface: the contract between
// the renderer and a GPU backend.
//
// The package contains only value types and interfaces. Concrete devices live
// under backend/: backend/soft executes command lists on the CPU using the
// reference kernels attached to pipeline descriptors, and backend/webgpu
// drives gogpu/wgpu, compiling the WGSL source attached to the same
// descriptors.
//
// Resource lifetimes follow an explicit fence model. Every submission returns
// a monotonically increasing FenceValue; resources released while the GPU may
// still reference them enter the device's deferred-free queue and are
// reclaimed once their last-use fence completes (see Device.TickFrame).
//
// All depth handling in this module is reverse-Z: near maps to depth 1, far
// to depth 0, and depth comparisons are greater / greater-equal.
package rhi
