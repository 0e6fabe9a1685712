package scene

import (
	"github.com/gogpu/render3/internal/blob"
)

// GPU-mirror structs. Layouts are fixed and padded to 16-byte alignment
// rules; hardware backends upload them verbatim.

// MeshletCandidate pairs an instance with one of its meshlets in the
// culling queues. Must match MeshletCandidate in meshletcull.wgsl.
type MeshletCandidate struct {
	InstanceID   uint32
	MeshletIndex uint32
}

// MeshData is the packed per-mesh record. Must match MeshData in the scene
// buffer layout.
type MeshData struct {
	PositionOffset uint32
	IndexOffset    uint32
	MeshletOffset  uint32
	MeshletCount   uint32
	BoundsCenter   [3]float32
	BoundsRadius   float32
}

// MaterialData is the packed per-material record. Must match MaterialData
// in the scene buffer layout.
type MaterialData struct {
	BaseColor  [4]float32
	Emissive   [3]float32
	Metalness  float32
	Roughness  float32
	AlphaMask  uint32
	TextureIdx uint32
	Padding    uint32
}

// MeshInstance is the packed per-instance record. Must match MeshInstance
// in the scene buffer layout.
type MeshInstance struct {
	World         [16]float32
	MeshIndex     uint32
	MaterialIndex uint32
	Padding0      uint32
	Padding1      uint32
}

// LightData is the packed light record. Must match Light in the scene
// buffer layout.
type LightData struct {
	Position    [3]float32
	Range       float32
	Direction   [3]float32
	Type        uint32
	Color       [3]float32
	Intensity   float32
	UmbraAngle  float32
	ShadowIndex int32
	ShadowSize  uint32
	Padding     uint32
}

// ViewUniforms is the per-view constant block bound at the view CBV slot.
// Must match ViewUniforms in view.wgsl.
type ViewUniforms struct {
	ViewProjection     [16]float32
	ViewProjectionInv  [16]float32
	PrevViewProjection [16]float32
	CameraPosition     [3]float32
	NearPlane          float32
	ViewportSize       [2]float32
	FarPlane           float32
	FrameIndex         uint32
	NumInstances       uint32
	NumLights          uint32
	Padding0           uint32
	Padding1           uint32
}

// Uniforms assembles the packed view constants for the frame.
func (v *View) Uniforms() ViewUniforms {
	return ViewUniforms{
		ViewProjection:     [16]float32(v.ViewProjection),
		ViewProjectionInv:  [16]float32(v.ViewProjectionInv),
		PrevViewProjection: [16]float32(v.PrevViewProjection),
		CameraPosition:     [3]float32{v.CameraPosition.X, v.CameraPosition.Y, v.CameraPosition.Z},
		NearPlane:          v.Near,
		ViewportSize:       [2]float32{float32(v.Width), float32(v.Height)},
		FarPlane:           v.Far,
		FrameIndex:         uint32(v.FrameIndex),
		NumInstances:       uint32(len(v.Batches)),
		NumLights:          uint32(len(v.Lights)),
	}
}

// UniformBytes returns the packed view constants as an uploadable blob.
func (v *View) UniformBytes() []byte {
	u := v.Uniforms()
	return append([]byte(nil), blob.StructToBytes(&u)...)
}

// PackLights returns the packed light records for the frame's light list.
func (v *View) PackLights() []LightData {
	out := make([]LightData, len(v.Lights))
	for i := range v.Lights {
		l := &v.Lights[i]
		out[i] = LightData{
			Position:    [3]float32{l.Position.X, l.Position.Y, l.Position.Z},
			Range:       l.Range,
			Direction:   [3]float32{l.Direction.X, l.Direction.Y, l.Direction.Z},
			Type:        uint32(l.Type),
			Color:       [3]float32{l.Color.X, l.Color.Y, l.Color.Z},
			Intensity:   l.Intensity,
			UmbraAngle:  l.UmbraAngle,
			ShadowIndex: l.ShadowIndex,
			ShadowSize:  l.ShadowMapSize,
		}
	}
	return out
}
