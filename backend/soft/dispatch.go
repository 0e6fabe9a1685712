package soft

import (
	"github.com/gogpu/render3/rhi"
)

// dispatchState implements rhi.Dispatch for one kernel invocation.
type dispatchState struct {
	ctx        *Context
	gx, gy, gz uint32
}

// Groups implements rhi.Dispatch.
func (d *dispatchState) Groups() (x, y, z uint32) { return d.gx, d.gy, d.gz }

// Constants implements rhi.Dispatch.
func (d *dispatchState) Constants() []byte { return d.ctx.constants }

// CBV implements rhi.Dispatch.
func (d *dispatchState) CBV(slot int) []byte { return d.ctx.cbvs[slot] }

// Buffer implements rhi.Dispatch.
func (d *dispatchState) Buffer(slot, index int) []byte {
	v := d.view(slot, index)
	if v.Resource == nil {
		return nil
	}
	b, ok := v.Resource.(*Buffer)
	if !ok {
		panic("soft: buffer access on a texture binding")
	}
	return b.data
}

// Texture implements rhi.Dispatch.
func (d *dispatchState) Texture(slot, index int) rhi.KernelTexture {
	v := d.view(slot, index)
	if v.Resource == nil {
		return nil
	}
	t, ok := v.Resource.(*Texture)
	if !ok {
		panic("soft: texture access on a buffer binding")
	}
	if v.Mip >= 0 {
		return &mipView{t: t, mip: v.Mip}
	}
	return t
}

func (d *dispatchState) view(slot, index int) rhi.ResourceView {
	table := d.ctx.tables[slot]
	if index < 0 || index >= len(table) {
		return rhi.ResourceView{}
	}
	return table[index]
}

// mipView restricts kernel access to a single mip, presented as mip 0.
type mipView struct {
	t   *Texture
	mip int
}

func (m *mipView) Dims(mip int) (w, h, d uint32) { return m.t.Dims(m.mip + mip) }
func (m *mipView) MipCount() int                 { return 1 }

func (m *mipView) Load(mip int, x, y, z uint32) [4]float32 {
	return m.t.Load(m.mip+mip, x, y, z)
}

func (m *mipView) Store(mip int, x, y, z uint32, v [4]float32) {
	m.t.Store(m.mip+mip, x, y, z, v)
}

func (m *mipView) LoadUint(mip int, x, y, z uint32) uint32 {
	return m.t.LoadUint(m.mip+mip, x, y, z)
}

func (m *mipView) StoreUint(mip int, x, y, z uint32, v uint32) {
	m.t.StoreUint(m.mip+mip, x, y, z, v)
}

// renderTargets implements rhi.RenderTargets over the context's active
// render pass.
type renderTargets struct {
	ctx *Context
}

// Color implements rhi.RenderTargets.
func (r *renderTargets) Color(index int) rhi.KernelTexture {
	rp := r.ctx.rp
	if index < 0 || index >= len(rp.Targets) {
		return nil
	}
	t, _ := rp.Targets[index].Target.(*Texture)
	if t == nil {
		return nil
	}
	return t
}

// Depth implements rhi.RenderTargets.
func (r *renderTargets) Depth() rhi.KernelTexture {
	rp := r.ctx.rp
	if rp.Depth.Target == nil {
		return nil
	}
	t, _ := rp.Depth.Target.(*Texture)
	if t == nil {
		return nil
	}
	return t
}

// DepthCompare implements rhi.RenderTargets.
func (r *renderTargets) DepthCompare() rhi.CompareFunc { return r.ctx.pipe.depthCompare }

// DepthWriteEnabled implements rhi.RenderTargets.
func (r *renderTargets) DepthWriteEnabled() bool {
	return r.ctx.pipe.depthWrite && r.ctx.rp.Depth.Write
}
