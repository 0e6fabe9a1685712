// Package math3 provides the float32 linear algebra used by the renderer:
// vectors, 4x4 matrices, planes, frustums and bounding volumes.
//
// Conventions:
//   - Matrices are column-major, matching the GPU-side layout.
//   - Points transform as column vectors: p' = M * p.
//   - The renderer uses reverse-Z: the near plane maps to depth 1 and the
//     far plane to depth 0 (PerspectiveReverseZ, or Perspective and
//     OrthoOffCenter with the planes passed swapped).
package math3

import (
	"github.com/chewxy/math32"
)

// Vec2 is a 2D float32 vector.
type Vec2 struct {
	X, Y float32
}

// Vec3 is a 3D float32 vector.
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 is a 4D float32 vector.
type Vec4 struct {
	X, Y, Z, W float32
}

// V2 returns a Vec2 from its components.
func V2(x, y float32) Vec2 { return Vec2{x, y} }

// V3 returns a Vec3 from its components.
func V3(x, y, z float32) Vec3 { return Vec3{x, y, z} }

// V4 returns a Vec4 from its components.
func V4(x, y, z, w float32) Vec4 { return Vec4{x, y, z, w} }

// Splat3 returns a Vec3 with all components set to s.
func Splat3(s float32) Vec3 { return Vec3{s, s, s} }

// Add returns v + u.
func (v Vec3) Add(u Vec3) Vec3 { return Vec3{v.X + u.X, v.Y + u.Y, v.Z + u.Z} }

// Sub returns v - u.
func (v Vec3) Sub(u Vec3) Vec3 { return Vec3{v.X - u.X, v.Y - u.Y, v.Z - u.Z} }

// Scale returns v * s.
func (v Vec3) Scale(s float32) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Neg returns -v.
func (v Vec3) Neg() Vec3 { return Vec3{-v.X, -v.Y, -v.Z} }

// Dot returns the dot product of v and u.
func (v Vec3) Dot(u Vec3) float32 { return v.X*u.X + v.Y*u.Y + v.Z*u.Z }

// Cross returns the cross product of v and u.
func (v Vec3) Cross(u Vec3) Vec3 {
	return Vec3{
		v.Y*u.Z - v.Z*u.Y,
		v.Z*u.X - v.X*u.Z,
		v.X*u.Y - v.Y*u.X,
	}
}

// Length returns the euclidean length of v.
func (v Vec3) Length() float32 { return math32.Sqrt(v.Dot(v)) }

// Distance returns the distance between v and u.
func (v Vec3) Distance(u Vec3) float32 { return v.Sub(u).Length() }

// Normalized returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Min returns the component-wise minimum of v and u.
func (v Vec3) Min(u Vec3) Vec3 {
	return Vec3{math32.Min(v.X, u.X), math32.Min(v.Y, u.Y), math32.Min(v.Z, u.Z)}
}

// Max returns the component-wise maximum of v and u.
func (v Vec3) Max(u Vec3) Vec3 {
	return Vec3{math32.Max(v.X, u.X), math32.Max(v.Y, u.Y), math32.Max(v.Z, u.Z)}
}

// Vec4 returns v extended with the given w component.
func (v Vec3) Vec4(w float32) Vec4 { return Vec4{v.X, v.Y, v.Z, w} }

// Add returns v + u.
func (v Vec4) Add(u Vec4) Vec4 { return Vec4{v.X + u.X, v.Y + u.Y, v.Z + u.Z, v.W + u.W} }

// Sub returns v - u.
func (v Vec4) Sub(u Vec4) Vec4 { return Vec4{v.X - u.X, v.Y - u.Y, v.Z - u.Z, v.W - u.W} }

// Scale returns v * s.
func (v Vec4) Scale(s float32) Vec4 { return Vec4{v.X * s, v.Y * s, v.Z * s, v.W * s} }

// Dot returns the dot product of v and u.
func (v Vec4) Dot(u Vec4) float32 { return v.X*u.X + v.Y*u.Y + v.Z*u.Z + v.W*u.W }

// Vec3 returns the xyz components of v.
func (v Vec4) Vec3() Vec3 { return Vec3{v.X, v.Y, v.Z} }

// PerspectiveDivide returns the xyz components divided by w.
// A w of zero yields the xyz components unchanged.
func (v Vec4) PerspectiveDivide() Vec3 {
	if v.W == 0 {
		return v.Vec3()
	}
	inv := 1 / v.W
	return Vec3{v.X * inv, v.Y * inv, v.Z * inv}
}

// Round returns v with each component rounded to the nearest integer.
func (v Vec4) Round() Vec4 {
	return Vec4{math32.Round(v.X), math32.Round(v.Y), math32.Round(v.Z), math32.Round(v.W)}
}

// Common axis vectors.
var (
	Zero3    = Vec3{0, 0, 0}
	Right    = Vec3{1, 0, 0}
	Left     = Vec3{-1, 0, 0}
	Up       = Vec3{0, 1, 0}
	Down     = Vec3{0, -1, 0}
	Forward  = Vec3{0, 0, 1}
	Backward = Vec3{0, 0, -1}
)
