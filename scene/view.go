package scene

import (
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/rhi"
)

// View is the per-frame immutable snapshot consumed by render passes.
type View struct {
	// Camera transforms. ViewProjection applies View then Projection;
	// the inverse maps NDC back to world space.
	View              math3.Mat4
	Projection        math3.Mat4
	ViewProjection    math3.Mat4
	ViewProjectionInv math3.Mat4

	// PrevViewProjection is last frame's ViewProjection, used by temporal
	// passes and occlusion reprojection.
	PrevViewProjection math3.Mat4

	CameraPosition math3.Vec3

	// Near and Far are the clip planes; depth follows the reverse-Z
	// convention (near = depth 1, far = depth 0).
	Near, Far float32

	Frustum math3.Frustum

	// Viewport dimensions in pixels.
	Width, Height uint32

	FrameIndex uint64

	Batches []Batch

	// Visibility holds the CPU frustum-cull result per batch, indexed by
	// batch position.
	Visibility BitSet

	Lights []Light

	Shadow ShadowData

	// Meshes is the mesh registry batches index into. The reference
	// kernels read geometry from here; hardware backends use the mesh
	// buffer handles below.
	Meshes []*Mesh

	// Opaque handles to the global scene buffers. The renderer receives
	// these; it never creates or frees them.
	MeshBuffer      rhi.Resource
	MaterialBuffer  rhi.Resource
	InstanceBuffer  rhi.Resource
	TransformBuffer rhi.Resource
	LightBuffer     rhi.Resource
	TLAS            rhi.Resource
	SkyTexture      rhi.Resource
}

// BlendMode classifies a batch's material for pipeline binning.
type BlendMode uint8

const (
	BlendOpaque BlendMode = iota
	BlendAlphaMask
	BlendAlphaBlend
)

// Batch is one drawable instance: mesh + material + transform + bounds.
type Batch struct {
	InstanceID    uint32
	MeshIndex     uint32
	MaterialIndex uint32
	Blend         BlendMode

	World math3.Mat4

	// Bounds is the world-space bounding sphere of the instance.
	Bounds math3.Sphere

	// LocalBounds is the object-space box, kept for shadow casters.
	LocalBounds math3.AABB
}

// ShadowData is the per-frame shadow-map assignment produced by the shadow
// partitioner.
type ShadowData struct {
	CascadeCount int

	// CascadeDepths holds the view-space far split of each cascade.
	CascadeDepths [4]float32

	// LightViewProjections holds one matrix per shadow slot: one per
	// spot light, six per point light, CascadeCount per directional.
	LightViewProjections []math3.Mat4

	// ShadowMapSize is the texel size of the cascade maps.
	ShadowMapSize uint32
}

// UpdateFrustumVisibility recomputes the CPU visibility bitmap from the
// view frustum, and returns the merged world bounds of all batches.
func (v *View) UpdateFrustumVisibility() math3.AABB {
	bounds := math3.EmptyAABB()
	v.Visibility.Resize(len(v.Batches))
	for i := range v.Batches {
		b := &v.Batches[i]
		v.Visibility.Assign(i, v.Frustum.ContainsSphere(b.Bounds))
		r := math3.Splat3(b.Bounds.Radius)
		bounds = bounds.Union(math3.NewAABB(b.Bounds.Center.Sub(r), b.Bounds.Center.Add(r)))
	}
	return bounds
}

// BitSet is a fixed-size bitmap used for per-batch visibility.
type BitSet struct {
	words []uint64
	n     int
}

// Resize clears the set and sizes it for n bits.
func (s *BitSet) Resize(n int) {
	words := (n + 63) / 64
	if cap(s.words) < words {
		s.words = make([]uint64, words)
	} else {
		s.words = s.words[:words]
		clear(s.words)
	}
	s.n = n
}

// Assign sets bit i to v.
func (s *BitSet) Assign(i int, v bool) {
	if v {
		s.words[i/64] |= 1 << (i % 64)
	} else {
		s.words[i/64] &^= 1 << (i % 64)
	}
}

// Get reports bit i.
func (s *BitSet) Get(i int) bool {
	if i < 0 || i >= s.n {
		return false
	}
	return s.words[i/64]&(1<<(i%64)) != 0
}

// Len returns the bit count.
func (s *BitSet) Len() int { return s.n }
