// Package lighting implements light assignment for shading: a clustered
// (3D frustum-partitioned) light culling path with volumetric fog
// integration, and a simpler 16x16 screen-tile alternative.
//
// The view frustum divides into ceil(W/64) x ceil(H/64) x 32 clusters with
// exponentially spaced depth slices. A compute pass intersects every
// light's bounding sphere with the cluster AABBs and emits a per-cluster
// (offset, count) window into a flat light index list, which the shading
// and fog passes consume.
package lighting
