package math3

import (
	"github.com/chewxy/math32"
)

// Sphere is a bounding sphere.
type Sphere struct {
	Center Vec3
	Radius float32
}

// Transformed returns the sphere transformed by m. The radius is scaled by
// the largest axis scale of m, keeping the result conservative for
// non-uniform scaling.
func (s Sphere) Transformed(m Mat4) Sphere {
	sx := V3(m[0], m[1], m[2]).Length()
	sy := V3(m[4], m[5], m[6]).Length()
	sz := V3(m[8], m[9], m[10]).Length()
	return Sphere{
		Center: m.TransformPoint(s.Center),
		Radius: s.Radius * math32.Max(sx, math32.Max(sy, sz)),
	}
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max Vec3
}

// NewAABB returns the AABB spanning min and max.
func NewAABB(min, max Vec3) AABB { return AABB{Min: min, Max: max} }

// EmptyAABB returns an inverted AABB suitable as the identity for Extend.
func EmptyAABB() AABB {
	inf := math32.Inf(1)
	return AABB{Min: Splat3(inf), Max: Splat3(-inf)}
}

// Extend grows the box to contain p.
func (b AABB) Extend(p Vec3) AABB {
	return AABB{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Union returns the smallest box containing both b and o.
func (b AABB) Union(o AABB) AABB {
	return AABB{Min: b.Min.Min(o.Min), Max: b.Max.Max(o.Max)}
}

// Center returns the box center.
func (b AABB) Center() Vec3 { return b.Min.Add(b.Max).Scale(0.5) }

// IntersectsSphere reports whether s overlaps the box.
func (b AABB) IntersectsSphere(s Sphere) bool {
	closest := s.Center.Max(b.Min).Min(b.Max)
	d := closest.Sub(s.Center)
	return d.Dot(d) <= s.Radius*s.Radius
}

// Plane is a plane in the form dot(Normal, p) + Distance = 0. The positive
// half-space is considered inside when used for frustum culling.
type Plane struct {
	Normal   Vec3
	Distance float32
}

// normalized returns the plane scaled so Normal has unit length.
func (p Plane) normalized() Plane {
	l := p.Normal.Length()
	if l == 0 {
		return p
	}
	inv := 1 / l
	return Plane{Normal: p.Normal.Scale(inv), Distance: p.Distance * inv}
}

// Frustum plane indices.
const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// Frustum holds the six planes of a view frustum, oriented so the positive
// half-space is inside.
type Frustum struct {
	Planes [6]Plane
}

// FrustumFromMatrix extracts frustum planes from a view-projection matrix
// using the Gribb/Hartmann method, assuming a 0..1 clip-space depth range.
func FrustumFromMatrix(vp Mat4) Frustum {
	row := func(i int) Vec4 {
		return Vec4{vp.At(i, 0), vp.At(i, 1), vp.At(i, 2), vp.At(i, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	plane := func(v Vec4) Plane {
		return Plane{Normal: v.Vec3(), Distance: v.W}.normalized()
	}

	var f Frustum
	f.Planes[FrustumLeft] = plane(r3.Add(r0))
	f.Planes[FrustumRight] = plane(r3.Sub(r0))
	f.Planes[FrustumBottom] = plane(r3.Add(r1))
	f.Planes[FrustumTop] = plane(r3.Sub(r1))
	// Reverse-Z: depth 0 is the far plane, so near comes from r3-r2.
	f.Planes[FrustumNear] = plane(r3.Sub(r2))
	f.Planes[FrustumFar] = plane(r2)
	return f
}

// ContainsSphere reports whether s is at least partially inside the frustum.
func (f *Frustum) ContainsSphere(s Sphere) bool {
	for i := range f.Planes {
		p := &f.Planes[i]
		if p.Normal.Dot(s.Center)+p.Distance < -s.Radius {
			return false
		}
	}
	return true
}

// ContainsAABB reports whether b is at least partially inside the frustum.
func (f *Frustum) ContainsAABB(b AABB) bool {
	for i := range f.Planes {
		p := &f.Planes[i]
		// Positive vertex: the box corner furthest along the plane normal.
		v := Vec3{b.Min.X, b.Min.Y, b.Min.Z}
		if p.Normal.X >= 0 {
			v.X = b.Max.X
		}
		if p.Normal.Y >= 0 {
			v.Y = b.Max.Y
		}
		if p.Normal.Z >= 0 {
			v.Z = b.Max.Z
		}
		if p.Normal.Dot(v)+p.Distance < 0 {
			return false
		}
	}
	return true
}

// NextPow2 returns the smallest power of two greater than or equal to v.
// NextPow2(0) is 1.
func NextPow2(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}

// DivideAndRoundUp returns ceil(value / divisor) for positive divisors.
func DivideAndRoundUp(value, divisor uint32) uint32 {
	return (value + divisor - 1) / divisor
}

// Log2Floor returns floor(log2(v)) for v >= 1.
func Log2Floor(v uint32) uint32 {
	var r uint32
	for v > 1 {
		v >>= 1
		r++
	}
	return r
}
