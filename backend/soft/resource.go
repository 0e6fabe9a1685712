package soft

import (
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/render3/rhi"
)

// resource is the shared half of buffers and textures.
type resource struct {
	dev  *Device
	name string
	desc rhi.ResourceDesc

	mu        sync.Mutex
	state     rhi.ResourceState
	lastFence rhi.FenceValue
	released  bool
}

func (r *resource) Name() string           { return r.name }
func (r *resource) Desc() rhi.ResourceDesc { return r.desc }

func (r *resource) State() rhi.ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *resource) SetState(s rhi.ResourceState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *resource) LastUsedFence() rhi.FenceValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFence
}

func (r *resource) MarkUsed(v rhi.FenceValue) {
	r.mu.Lock()
	if v > r.lastFence {
		r.lastFence = v
	}
	r.mu.Unlock()
}

// Buffer is a CPU-backed buffer resource.
type Buffer struct {
	resource
	data []byte
}

// Release hands the buffer to the deferred-free queue.
func (b *Buffer) Release() { b.dev.deferRelease(&b.resource) }

// Bytes returns the buffer's backing storage. Intended for kernels and for
// readback after the buffer's fence completed.
func (b *Buffer) Bytes() []byte { return b.data }

// Texture is a CPU-backed texture resource. Texels are stored as four
// float32 channels per mip; integer formats round-trip through the float
// bit pattern.
type Texture struct {
	resource
	mips [][][4]float32 // mips[m][idx]
}

// Release hands the texture to the deferred-free queue.
func (t *Texture) Release() { t.dev.deferRelease(&t.resource) }

// mipDims returns the dimensions of mip m.
func (t *Texture) mipDims(m int) (w, h, d uint32) {
	w = max32(t.desc.Width>>uint(m), 1)
	h = max32(t.desc.Height>>uint(m), 1)
	d = t.desc.DepthOrArray
	if t.desc.Kind == rhi.KindTexture3D {
		d = max32(d>>uint(m), 1)
	}
	return
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// Dims implements rhi.KernelTexture.
func (t *Texture) Dims(mip int) (w, h, d uint32) { return t.mipDims(mip) }

// MipCount implements rhi.KernelTexture.
func (t *Texture) MipCount() int { return len(t.mips) }

func (t *Texture) index(mip int, x, y, z uint32) int {
	w, h, _ := t.mipDims(mip)
	return int(z)*int(w*h) + int(y)*int(w) + int(x)
}

// Load implements rhi.KernelTexture.
func (t *Texture) Load(mip int, x, y, z uint32) [4]float32 {
	return t.mips[mip][t.index(mip, x, y, z)]
}

// Store implements rhi.KernelTexture.
func (t *Texture) Store(mip int, x, y, z uint32, v [4]float32) {
	t.mips[mip][t.index(mip, x, y, z)] = v
}

// LoadUint implements rhi.KernelTexture.
func (t *Texture) LoadUint(mip int, x, y, z uint32) uint32 {
	return math.Float32bits(t.mips[mip][t.index(mip, x, y, z)][0])
}

// StoreUint implements rhi.KernelTexture.
func (t *Texture) StoreUint(mip int, x, y, z uint32, v uint32) {
	t.mips[mip][t.index(mip, x, y, z)][0] = math.Float32frombits(v)
}

// newTexture allocates storage for every mip.
func newTexture(dev *Device, desc rhi.ResourceDesc, name string) *Texture {
	t := &Texture{resource: resource{dev: dev, name: name, desc: desc}}
	mips := int(desc.Mips)
	if mips < 1 {
		mips = 1
	}
	t.mips = make([][][4]float32, mips)
	for m := 0; m < mips; m++ {
		w, h, d := t.mipDims(m)
		t.mips[m] = make([][4]float32, int(w)*int(h)*int(d))
	}
	return t
}

// texelBytes returns the byte size of one texel when serialized for copies
// into readback buffers.
func texelBytes(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return 4
	case gputypes.TextureFormatR32Float:
		return 4
	case gputypes.TextureFormatR32Uint:
		return 4
	case gputypes.TextureFormatR16Float:
		return 2
	default:
		return 16 // raw four-float fallback
	}
}
