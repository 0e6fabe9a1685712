package shadows

import (
	"github.com/chewxy/math32"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/scene"
)

// MaxCascades bounds the directional cascade count.
const MaxCascades = 4

// Params configures the partitioner.
type Params struct {
	// CascadeCount is clamped to [1, MaxCascades].
	CascadeCount int

	// PSSMFactor blends logarithmic (1) and uniform (0) splits.
	PSSMFactor float32

	// Stabilize bounds each cascade with a sphere and snaps the
	// projection to shadow-map texels, trading tightness for a jitter-
	// free result under camera rotation.
	Stabilize bool

	// SDSM narrows the split range to the scene's observed depth
	// extent. MinDepth and MaxDepth come from the depth-reduction
	// readback as fractions of the clip range; without SDSM use 0 and 1.
	SDSM     bool
	MinDepth float32
	MaxDepth float32

	// ShadowMapSize is the cascade map resolution used for texel
	// snapping.
	ShadowMapSize uint32
}

func (p *Params) normalize() {
	if p.CascadeCount < 1 {
		p.CascadeCount = 1
	}
	if p.CascadeCount > MaxCascades {
		p.CascadeCount = MaxCascades
	}
	if p.ShadowMapSize == 0 {
		p.ShadowMapSize = 2048
	}
	if !p.SDSM || p.MaxDepth <= p.MinDepth {
		p.MinDepth, p.MaxDepth = 0, 1
	}
}

// ComputeSplits returns the view-space cascade split distances (relative to
// the near plane), blending logarithmic and uniform partitions by the PSSM
// factor over the SDSM-narrowed depth range.
func ComputeSplits(near, far float32, p Params) []float32 {
	p.normalize()
	nearPlane := math32.Min(near, far)
	farPlane := math32.Max(near, far)
	clipRange := farPlane - nearPlane

	minZ := nearPlane + p.MinDepth*clipRange
	maxZ := nearPlane + p.MaxDepth*clipRange

	splits := make([]float32, p.CascadeCount)
	for i := 0; i < p.CascadeCount; i++ {
		f := float32(i+1) / float32(p.CascadeCount)
		logSplit := minZ * math32.Pow(maxZ/minZ, f)
		uniSplit := minZ + (maxZ-minZ)*f
		d := p.PSSMFactor*(logSplit-uniSplit) + uniSplit
		splits[i] = d - nearPlane
	}
	return splits
}

// Partition assigns shadow-map slots to every shadow-casting light in the
// view and fills view.Shadow. Directional lights receive CascadeCount
// stabilized cascades; spot lights one perspective slot; point lights six
// cube faces. Lights' ShadowIndex and ShadowMapSize fields are updated in
// place.
func Partition(view *scene.View, p Params) {
	p.normalize()

	splits := ComputeSplits(view.Near, view.Far, p)

	data := scene.ShadowData{
		CascadeCount:  p.CascadeCount,
		ShadowMapSize: p.ShadowMapSize,
	}

	slot := 0
	for i := range view.Lights {
		l := &view.Lights[i]
		if !l.CastShadows {
			l.ShadowIndex = -1
			continue
		}
		l.ShadowIndex = int32(slot)
		l.ShadowMapSize = p.ShadowMapSize

		switch l.Type {
		case scene.LightDirectional:
			for c := 0; c < p.CascadeCount; c++ {
				prev := p.MinDepth
				if c > 0 {
					prev = splits[c-1]
				}
				vp := directionalCascade(view, l.Direction, prev, splits[c], p)
				if slot < MaxCascades {
					data.CascadeDepths[slot] = splits[c]
				}
				data.LightViewProjections = append(data.LightViewProjections, vp)
				slot++
			}
		case scene.LightSpot:
			proj := math3.Perspective(l.UmbraAngle, 1, l.Range, 1)
			up := math3.Up
			if l.Direction == math3.Up {
				up = math3.Right
			}
			vp := proj.Mul(math3.LookTo(l.Position, l.Direction, up))
			data.LightViewProjections = append(data.LightViewProjections, vp)
			slot++
		case scene.LightPoint:
			proj := math3.Perspective(math32.Pi/2, 1, l.Range, 1)
			faces := [6]struct{ dir, up math3.Vec3 }{
				{math3.Left, math3.Up},
				{math3.Right, math3.Up},
				{math3.Down, math3.Backward},
				{math3.Up, math3.Forward},
				{math3.Backward, math3.Up},
				{math3.Forward, math3.Up},
			}
			for _, f := range faces {
				vp := proj.Mul(math3.LookTo(l.Position, f.dir, f.up))
				data.LightViewProjections = append(data.LightViewProjections, vp)
				slot++
			}
		}
	}

	view.Shadow = data
}

// directionalCascade builds one cascade's light view-projection.
func directionalCascade(view *scene.View, lightDir math3.Vec3, prevSplit, split float32, p Params) math3.Mat4 {
	// Frustum corners in NDC: reverse-Z puts the near plane at depth 1.
	corners := [8]math3.Vec3{
		{-1, -1, 1}, {-1, 1, 1}, {1, 1, 1}, {1, -1, 1}, // near
		{-1, -1, 0}, {-1, 1, 0}, {1, 1, 0}, {1, -1, 0}, // far
	}
	for i := range corners {
		corners[i] = view.ViewProjectionInv.TransformPoint(corners[i])
	}

	// Slide each near/far corner pair along its ray to the cascade's
	// split band.
	for j := 0; j < 4; j++ {
		ray := corners[j+4].Sub(corners[j]).Normalized()
		far := corners[j].Add(ray.Scale(split))
		corners[j] = corners[j].Add(ray.Scale(prevSplit))
		corners[j+4] = far
	}

	center := math3.Zero3
	for _, c := range corners {
		center = center.Add(c)
	}
	center = center.Scale(1.0 / 8)

	var minExtents, maxExtents math3.Vec3
	if p.Stabilize {
		// A bounding sphere keeps the projection's aspect constant, so
		// rotating the camera cannot change the texel footprint.
		var radius float32
		for _, c := range corners {
			radius = math32.Max(radius, center.Distance(c))
		}
		maxExtents = math3.Splat3(radius)
		minExtents = maxExtents.Neg()
	} else {
		lightView := math3.LookTo(center, lightDir, math3.Up)
		minExtents = math3.Splat3(math32.Inf(1))
		maxExtents = math3.Splat3(math32.Inf(-1))
		for _, c := range corners {
			pLight := lightView.TransformPoint(c)
			minExtents = minExtents.Min(pLight)
			maxExtents = maxExtents.Max(pLight)
		}
	}

	shadowView := math3.LookTo(center.Sub(lightDir.Scale(100)), lightDir, math3.Up)
	proj := math3.OrthoOffCenter(
		minExtents.X, maxExtents.X,
		minExtents.Y, maxExtents.Y,
		maxExtents.Z+200, 0)
	lightVP := proj.Mul(shadowView)

	if p.Stabilize {
		lightVP = snapToTexels(shadowView, proj, lightVP, p.ShadowMapSize)
	}
	return lightVP
}

// snapToTexels translates the projection so the world origin lands on a
// shadow-map texel center, eliminating edge shimmer during rotation.
func snapToTexels(shadowView, proj, lightVP math3.Mat4, mapSize uint32) math3.Mat4 {
	size := float32(mapSize)
	origin := lightVP.Transform(math3.V4(0, 0, 0, 1)).Scale(size / 2)
	offset := origin.Round().Sub(origin).Scale(2 / size)
	offset.Z = 0
	offset.W = 0
	proj = math3.Translation(math3.V3(offset.X, offset.Y, 0)).Mul(proj)
	return proj.Mul(shadowView)
}
