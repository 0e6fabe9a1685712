// Package scene defines the per-frame immutable snapshot the render passes
// consume: camera matrices, drawable batches, lights, shadow data and the
// handles to the global scene buffers.
//
// The renderer does not load or own scene content. The application layer
// builds a View each frame from whatever asset pipeline it uses and hands it
// to the technique packages (raster, shadows, lighting), which schedule
// passes against it. Views are passed by pointer and treated as read-only
// for the duration of the frame.
package scene
