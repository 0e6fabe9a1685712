package scene

import (
	"github.com/gogpu/render3/math3"
)

// LightType discriminates light sources.
type LightType uint32

const (
	LightDirectional LightType = iota
	LightPoint
	LightSpot
)

// Light is a scene light source.
type Light struct {
	Type      LightType
	Position  math3.Vec3
	Direction math3.Vec3
	Color     math3.Vec3
	Intensity float32

	// Range bounds the light's influence; the culling sphere radius for
	// point and spot lights.
	Range float32

	// UmbraAngle is the spot light's full cone angle in radians.
	UmbraAngle float32

	CastShadows bool

	// ShadowIndex is the first shadow-map slot assigned by the
	// partitioner this frame, or -1.
	ShadowIndex int32

	// ShadowMapSize is the texel size of the assigned map, set by the
	// partitioner.
	ShadowMapSize uint32
}

// ShadowSlots returns how many shadow-map slots the light occupies when it
// casts shadows: cascadeCount for directional, six faces for point, one for
// spot.
func (l *Light) ShadowSlots(cascadeCount int) int {
	if !l.CastShadows {
		return 0
	}
	switch l.Type {
	case LightDirectional:
		return cascadeCount
	case LightPoint:
		return 6
	default:
		return 1
	}
}

// BoundingSphere returns the world-space sphere enclosing the light's
// influence. Directional lights return an unbounded sphere.
func (l *Light) BoundingSphere() math3.Sphere {
	if l.Type == LightDirectional {
		return math3.Sphere{Radius: float32(1e30)}
	}
	return math3.Sphere{Center: l.Position, Radius: l.Range}
}
