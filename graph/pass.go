package graph

import (
	"github.com/gogpu/render3/rhi"
)

// PassFlag describes a pass's execution class and scheduling behavior.
type PassFlag uint8

const (
	// Compute marks a compute-only pass; it must not declare render
	// targets.
	Compute PassFlag = 1 << iota

	// Raster marks a pass that draws; it must declare its attachments.
	Raster

	// Copy marks a transfer-only pass.
	Copy

	// NeverCull keeps the pass scheduled even when nothing reads its
	// outputs.
	NeverCull
)

// access is one declared resource access of a pass.
type access struct {
	res     *Resource
	version int
	state   rhi.ResourceState
}

// renderTarget is one declared color attachment.
type renderTarget struct {
	res     *Resource
	access  rhi.RenderPassAccess
	resolve *Resource
}

// depthTarget is the declared depth-stencil attachment.
type depthTarget struct {
	res           *Resource
	depthAccess   rhi.RenderPassAccess
	stencilAccess rhi.RenderPassAccess
	write         bool
}

// Pass is a recorded graph node. Passes are built fluently:
//
//	g.AddPass("Cull Instances", graph.Compute).
//		Read(hzb).
//		Write(candidates, counters).
//		Bind(func(ctx rhi.CommandContext, res *graph.Resources) { ... })
type Pass struct {
	graph *Graph
	name  string
	flags PassFlag
	index int

	reads  []access
	writes []access

	targets []renderTarget
	depth   *depthTarget

	execute func(ctx rhi.CommandContext, res *Resources)

	culled  bool
	invalid bool

	// appliedBarriers records the transitions flushed immediately before
	// this pass, for dump output and tests.
	appliedBarriers []barrierRecord
}

type barrierRecord struct {
	resource string
	from, to rhi.ResourceState
	uav      bool
}

// AddPass records a new pass with the given flags.
func (g *Graph) AddPass(name string, flags PassFlag) *Pass {
	p := &Pass{
		graph: g,
		name:  g.scopedName(name),
		flags: flags,
		index: len(g.passes),
	}
	g.passes = append(g.passes, p)
	return p
}

// Read declares shader-resource reads of the current version of each
// resource.
func (p *Pass) Read(rs ...*Resource) *Pass {
	for _, r := range rs {
		p.addRead(r, rhi.StateShaderResource)
	}
	return p
}

// ReadIndirect declares a read of r as an indirect-argument buffer. The
// state also includes shader reads, because indirect tables are commonly
// consulted by the very shader they launch.
func (p *Pass) ReadIndirect(rs ...*Resource) *Pass {
	for _, r := range rs {
		p.addRead(r, rhi.StateIndirectArgument|rhi.StateShaderResource)
	}
	return p
}

// ReadCopySrc declares a read of r as a copy source.
func (p *Pass) ReadCopySrc(r *Resource) *Pass {
	p.addRead(r, rhi.StateCopySrc)
	return p
}

// Write declares unordered-access writes, advancing each resource's
// version.
func (p *Pass) Write(rs ...*Resource) *Pass {
	for _, r := range rs {
		p.addWrite(r, rhi.StateUnorderedAccess)
	}
	return p
}

// WriteCopyDst declares a write of r as a copy destination.
func (p *Pass) WriteCopyDst(r *Resource) *Pass {
	p.addWrite(r, rhi.StateCopyDst)
	return p
}

// RenderTarget declares a color attachment with an optional resolve
// destination. Declaring an attachment is a write.
func (p *Pass) RenderTarget(r *Resource, acc rhi.RenderPassAccess, resolve *Resource) *Pass {
	p.targets = append(p.targets, renderTarget{res: r, access: acc, resolve: resolve})
	p.addWrite(r, rhi.StateRenderTarget)
	if resolve != nil {
		p.addWrite(resolve, rhi.StateRenderTarget)
	}
	return p
}

// DepthStencil declares the depth attachment. With write set the pass
// writes depth (a write access); otherwise depth is bound read-only.
func (p *Pass) DepthStencil(r *Resource, depthAcc, stencilAcc rhi.RenderPassAccess, write bool) *Pass {
	p.depth = &depthTarget{res: r, depthAccess: depthAcc, stencilAccess: stencilAcc, write: write}
	if write {
		p.addWrite(r, rhi.StateDepthWrite)
	} else {
		p.addRead(r, rhi.StateDepthRead)
	}
	return p
}

// Bind attaches the pass's execute closure. The closure runs during
// Execute, serially with all other passes, and receives the resolved
// resource view.
func (p *Pass) Bind(fn func(ctx rhi.CommandContext, res *Resources)) *Pass {
	p.execute = fn
	return p
}

func (p *Pass) addRead(r *Resource, state rhi.ResourceState) {
	p.reads = append(p.reads, access{res: r, version: r.version, state: state})
}

func (p *Pass) addWrite(r *Resource, state rhi.ResourceState) {
	r.version++
	p.writes = append(p.writes, access{res: r, version: r.version, state: state})
}

// reading reports whether the pass reads r, and at which version.
func (p *Pass) reading(r *Resource) (int, bool) {
	for _, a := range p.reads {
		if a.res == r {
			return a.version, true
		}
	}
	return 0, false
}

// writing reports whether the pass writes r.
func (p *Pass) writing(r *Resource) (int, bool) {
	for _, a := range p.writes {
		if a.res == r {
			return a.version, true
		}
	}
	return 0, false
}

// AddCopyPass records a single Copy pass transferring src into dst.
func (g *Graph) AddCopyPass(src, dst *Resource) *Pass {
	return g.AddPass("Copy "+src.name+" -> "+dst.name, Copy).
		ReadCopySrc(src).
		WriteCopyDst(dst).
		Bind(func(ctx rhi.CommandContext, res *Resources) {
			ctx.CopyResource(res.Get(src), res.Get(dst))
		})
}
