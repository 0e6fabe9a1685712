package math3

import (
	"github.com/chewxy/math32"
)

// Mat4 is a 4x4 float32 matrix stored column-major: element (row, col) lives
// at index col*4+row. Points transform as column vectors, p' = M * p, so the
// product A.Mul(B) applies B first.
type Mat4 [16]float32

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns the element at the given row and column.
func (m *Mat4) At(row, col int) float32 { return m[col*4+row] }

// Set assigns the element at the given row and column.
func (m *Mat4) Set(row, col int, v float32) { m[col*4+row] = v }

// Mul returns m * n. The combined transform applies n first.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * n[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

// Transform returns m * v.
func (m Mat4) Transform(v Vec4) Vec4 {
	return Vec4{
		m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12]*v.W,
		m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13]*v.W,
		m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14]*v.W,
		m[3]*v.X + m[7]*v.Y + m[11]*v.Z + m[15]*v.W,
	}
}

// TransformPoint transforms v as a position (w=1) and applies the
// perspective divide.
func (m Mat4) TransformPoint(v Vec3) Vec3 {
	return m.Transform(v.Vec4(1)).PerspectiveDivide()
}

// TransformDirection transforms v as a direction (w=0), ignoring translation.
func (m Mat4) TransformDirection(v Vec3) Vec3 {
	return m.Transform(v.Vec4(0)).Vec3()
}

// Transposed returns the transpose of m.
func (m Mat4) Transposed() Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			out[row*4+col] = m[col*4+row]
		}
	}
	return out
}

// Translation returns a matrix translating by t.
func Translation(t Vec3) Mat4 {
	m := Identity()
	m[12] = t.X
	m[13] = t.Y
	m[14] = t.Z
	return m
}

// Scaling returns a matrix scaling by s.
func Scaling(s Vec3) Mat4 {
	var m Mat4
	m[0] = s.X
	m[5] = s.Y
	m[10] = s.Z
	m[15] = 1
	return m
}

// LookTo builds a left-handed view matrix for an eye at the given position
// looking along dir.
func LookTo(eye, dir, up Vec3) Mat4 {
	z := dir.Normalized()
	x := up.Cross(z).Normalized()
	y := z.Cross(x)

	var m Mat4
	m.Set(0, 0, x.X)
	m.Set(0, 1, x.Y)
	m.Set(0, 2, x.Z)
	m.Set(1, 0, y.X)
	m.Set(1, 1, y.Y)
	m.Set(1, 2, y.Z)
	m.Set(2, 0, z.X)
	m.Set(2, 1, z.Y)
	m.Set(2, 2, z.Z)
	m.Set(0, 3, -x.Dot(eye))
	m.Set(1, 3, -y.Dot(eye))
	m.Set(2, 3, -z.Dot(eye))
	m.Set(3, 3, 1)
	return m
}

// LookAt builds a left-handed view matrix for an eye looking at target.
func LookAt(eye, target, up Vec3) Mat4 {
	return LookTo(eye, target.Sub(eye), up)
}

// Perspective builds a left-handed perspective projection mapping view-space
// z=near to depth 0 and z=far to depth 1. Pass the planes swapped
// (near > far) to obtain the reverse-Z mapping used throughout the renderer.
func Perspective(fovY, aspect, near, far float32) Mat4 {
	h := 1 / math32.Tan(fovY*0.5)
	w := h / aspect

	var m Mat4
	m.Set(0, 0, w)
	m.Set(1, 1, h)
	m.Set(2, 2, far/(far-near))
	m.Set(2, 3, -near*far/(far-near))
	m.Set(3, 2, 1)
	return m
}

// PerspectiveReverseZ builds a left-handed reverse-Z perspective projection:
// z=near maps to depth 1 and z=far to depth 0.
func PerspectiveReverseZ(fovY, aspect, near, far float32) Mat4 {
	return Perspective(fovY, aspect, far, near)
}

// OrthoOffCenter builds an off-center orthographic projection mapping
// view-space z=near to depth 0 and z=far to depth 1. The shadow partitioner
// passes near > far to obtain reverse-Z depth.
func OrthoOffCenter(left, right, bottom, top, near, far float32) Mat4 {
	var m Mat4
	m.Set(0, 0, 2/(right-left))
	m.Set(1, 1, 2/(top-bottom))
	m.Set(2, 2, 1/(far-near))
	m.Set(0, 3, (left+right)/(left-right))
	m.Set(1, 3, (top+bottom)/(bottom-top))
	m.Set(2, 3, near/(near-far))
	m.Set(3, 3, 1)
	return m
}

// Inverted returns the inverse of m. The second return value is false if m
// is singular, in which case the identity is returned.
func (m Mat4) Inverted() (Mat4, bool) {
	var inv Mat4

	inv[0] = m[5]*m[10]*m[15] - m[5]*m[11]*m[14] - m[9]*m[6]*m[15] +
		m[9]*m[7]*m[14] + m[13]*m[6]*m[11] - m[13]*m[7]*m[10]
	inv[4] = -m[4]*m[10]*m[15] + m[4]*m[11]*m[14] + m[8]*m[6]*m[15] -
		m[8]*m[7]*m[14] - m[12]*m[6]*m[11] + m[12]*m[7]*m[10]
	inv[8] = m[4]*m[9]*m[15] - m[4]*m[11]*m[13] - m[8]*m[5]*m[15] +
		m[8]*m[7]*m[13] + m[12]*m[5]*m[11] - m[12]*m[7]*m[9]
	inv[12] = -m[4]*m[9]*m[14] + m[4]*m[10]*m[13] + m[8]*m[5]*m[14] -
		m[8]*m[6]*m[13] - m[12]*m[5]*m[10] + m[12]*m[6]*m[9]
	inv[1] = -m[1]*m[10]*m[15] + m[1]*m[11]*m[14] + m[9]*m[2]*m[15] -
		m[9]*m[3]*m[14] - m[13]*m[2]*m[11] + m[13]*m[3]*m[10]
	inv[5] = m[0]*m[10]*m[15] - m[0]*m[11]*m[14] - m[8]*m[2]*m[15] +
		m[8]*m[3]*m[14] + m[12]*m[2]*m[11] - m[12]*m[3]*m[10]
	inv[9] = -m[0]*m[9]*m[15] + m[0]*m[11]*m[13] + m[8]*m[1]*m[15] -
		m[8]*m[3]*m[13] - m[12]*m[1]*m[11] + m[12]*m[3]*m[9]
	inv[13] = m[0]*m[9]*m[14] - m[0]*m[10]*m[13] - m[8]*m[1]*m[14] +
		m[8]*m[2]*m[13] + m[12]*m[1]*m[10] - m[12]*m[2]*m[9]
	inv[2] = m[1]*m[6]*m[15] - m[1]*m[7]*m[14] - m[5]*m[2]*m[15] +
		m[5]*m[3]*m[14] + m[13]*m[2]*m[7] - m[13]*m[3]*m[6]
	inv[6] = -m[0]*m[6]*m[15] + m[0]*m[7]*m[14] + m[4]*m[2]*m[15] -
		m[4]*m[3]*m[14] - m[12]*m[2]*m[7] + m[12]*m[3]*m[6]
	inv[10] = m[0]*m[5]*m[15] - m[0]*m[7]*m[13] - m[4]*m[1]*m[15] +
		m[4]*m[3]*m[13] + m[12]*m[1]*m[7] - m[12]*m[3]*m[5]
	inv[14] = -m[0]*m[5]*m[14] + m[0]*m[6]*m[13] + m[4]*m[1]*m[14] -
		m[4]*m[2]*m[13] - m[12]*m[1]*m[6] + m[12]*m[2]*m[5]
	inv[3] = -m[1]*m[6]*m[11] + m[1]*m[7]*m[10] + m[5]*m[2]*m[11] -
		m[5]*m[3]*m[10] - m[9]*m[2]*m[7] + m[9]*m[3]*m[6]
	inv[7] = m[0]*m[6]*m[11] - m[0]*m[7]*m[10] - m[4]*m[2]*m[11] +
		m[4]*m[3]*m[10] + m[8]*m[2]*m[7] - m[8]*m[3]*m[6]
	inv[11] = -m[0]*m[5]*m[11] + m[0]*m[7]*m[9] + m[4]*m[1]*m[11] -
		m[4]*m[3]*m[9] - m[8]*m[1]*m[7] + m[8]*m[3]*m[5]
	inv[15] = m[0]*m[5]*m[10] - m[0]*m[6]*m[9] - m[4]*m[1]*m[10] +
		m[4]*m[2]*m[9] + m[8]*m[1]*m[6] - m[8]*m[2]*m[5]

	det := m[0]*inv[0] + m[1]*inv[4] + m[2]*inv[8] + m[3]*inv[12]
	if det == 0 {
		return Identity(), false
	}
	det = 1 / det
	for i := range inv {
		inv[i] *= det
	}
	return inv, true
}
