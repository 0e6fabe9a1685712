package scene

import (
	"github.com/gogpu/render3/math3"
)

// Meshlet size limits. Meshes are pre-split so every meshlet fits a single
// mesh-shader workgroup.
const (
	MaxMeshletTriangles = 128
	MaxMeshletVertices  = 64
)

// Meshlet is a pre-clustered subset of a mesh's triangles with precomputed
// bounds used for culling.
type Meshlet struct {
	// Bounds is the object-space bounding sphere.
	Bounds math3.Sphere

	// ConeAxis and ConeCutoff describe the normal cone for backface
	// cluster culling: the meshlet is invisible when
	// dot(view, ConeAxis) >= ConeCutoff. A cutoff of 1 disables the test
	// (degenerate cone).
	ConeAxis   math3.Vec3
	ConeCutoff float32

	// TriangleOffset and TriangleCount index into the mesh's triangle
	// list (three indices per triangle).
	TriangleOffset uint32
	TriangleCount  uint32
}

// Mesh is the CPU-resident geometry the reference kernels rasterize.
// Hardware backends consume the packed equivalents through the scene buffer
// handles instead.
type Mesh struct {
	Positions []math3.Vec3

	// Indices holds triangle vertex indices, three per triangle, grouped
	// by meshlet (TriangleOffset addresses this slice).
	Indices []uint32

	Meshlets []Meshlet

	// Bounds is the object-space bounding sphere of the whole mesh.
	Bounds math3.Sphere
}

// NumMeshlets returns the meshlet count.
func (m *Mesh) NumMeshlets() int { return len(m.Meshlets) }
