package graph

import (
	"github.com/gogpu/render3/rhi"
)

// Resources is the read-only view handed to pass closures, mapping virtual
// resources to their physical backing for the duration of the pass.
type Resources struct {
	graph *Graph
	pass  *Pass
}

// Get returns the physical resource backing r. It panics if r is not
// declared by the pass — undeclared access would bypass the barrier
// planner.
func (rs *Resources) Get(r *Resource) rhi.Resource {
	if _, ok := rs.pass.reading(r); !ok {
		if _, ok := rs.pass.writing(r); !ok {
			panic("graph: pass " + rs.pass.name + " accesses undeclared resource " + r.name)
		}
	}
	return r.physical
}

// SRV returns a shader-resource view of r.
func (rs *Resources) SRV(r *Resource) rhi.ResourceView { return rhi.SRV(rs.Get(r)) }

// UAV returns an unordered-access view of r.
func (rs *Resources) UAV(r *Resource) rhi.ResourceView { return rhi.UAV(rs.Get(r)) }

// UAVMip returns an unordered-access view of a single mip of r.
func (rs *Resources) UAVMip(r *Resource, mip int) rhi.ResourceView {
	return rhi.UAVMip(rs.Get(r), mip)
}

// Execute runs every scheduled pass in order on a fresh command context and
// submits the result. It returns the submission's fence value.
//
// Execution allocates physical resources lazily at each resource's first
// use and returns them to the pool after the last use, which is what
// aliases non-overlapping transients onto the same memory.
func (g *Graph) Execute() (rhi.FenceValue, error) {
	if !g.compiled {
		return 0, errGraph("execute before compile")
	}
	if g.err != nil {
		return 0, g.err
	}

	ctx := g.device.AllocateContext()

	// lastUAVWriter tracks the previous UAV-writing pass per resource so
	// back-to-back writers get a UAV barrier; any read in between clears
	// the hazard because the transition out of UAV state orders it.
	lastUAVWriter := map[*Resource]int{}

	for _, p := range g.passes {
		if p.culled || p.invalid {
			continue
		}

		if err := g.realize(p); err != nil {
			return 0, err
		}

		g.planBarriers(ctx, p, lastUAVWriter)

		if p.flags&Raster != 0 {
			ctx.BeginRenderPass(g.renderPassInfo(p))
		}
		if p.execute != nil {
			p.execute(ctx, &Resources{graph: g, pass: p})
		}
		if p.flags&Raster != 0 {
			ctx.EndRenderPass()
		}

		g.recycle(p)
	}

	for _, r := range g.resources {
		if r.export != nil && r.physical != nil {
			// Replacing a previous export releases the old resource; the
			// deferred-free queue holds it until its fence completes.
			if old := *r.export; old != nil && old != r.physical {
				old.Release()
			}
			*r.export = r.physical
			g.pool.forget(r.physical)
		}
	}

	fence, err := ctx.Execute(false)
	if err != nil {
		return 0, errGraph("execute: %w", err)
	}
	return fence, nil
}

// realize acquires physical backing for every resource first used by p.
func (g *Graph) realize(p *Pass) error {
	for _, r := range g.resources {
		if r.physical != nil || r.firstUse != p.index {
			continue
		}
		phys, err := g.pool.acquire(r.desc, r.name)
		if err != nil {
			return errGraph("allocating %q: %w", r.name, err)
		}
		r.physical = phys
	}
	return nil
}

// recycle returns transients whose last use was p to the pool. Imported and
// exported resources never recycle.
func (g *Graph) recycle(p *Pass) {
	for _, r := range g.resources {
		if r.physical == nil || r.imported || r.export != nil {
			continue
		}
		if r.lastUse == p.index {
			g.pool.release(r.physical)
		}
	}
}

// planBarriers emits the transitions bringing every accessed resource into
// the state the pass declared, plus UAV barriers between back-to-back UAV
// writers.
func (g *Graph) planBarriers(ctx rhi.CommandContext, p *Pass, lastUAVWriter map[*Resource]int) {
	p.appliedBarriers = p.appliedBarriers[:0]

	emit := func(a access) {
		phys := a.res.physical
		if phys.State() != a.state {
			p.appliedBarriers = append(p.appliedBarriers, barrierRecord{
				resource: a.res.name, from: phys.State(), to: a.state,
			})
			ctx.Transition(phys, a.state)
		}
	}

	for _, a := range p.reads {
		emit(a)
		delete(lastUAVWriter, a.res)
	}
	for _, a := range p.writes {
		if a.state == rhi.StateUnorderedAccess {
			if prev, ok := lastUAVWriter[a.res]; ok && prev < p.index {
				p.appliedBarriers = append(p.appliedBarriers, barrierRecord{
					resource: a.res.name, uav: true,
				})
				ctx.UAVBarrier(a.res.physical)
			}
			lastUAVWriter[a.res] = p.index
		} else {
			delete(lastUAVWriter, a.res)
		}
		emit(a)
	}
	ctx.FlushBarriers()
}

// renderPassInfo assembles the rhi render-pass description from the pass's
// declared attachments.
func (g *Graph) renderPassInfo(p *Pass) rhi.RenderPassInfo {
	var info rhi.RenderPassInfo
	for _, t := range p.targets {
		rt := rhi.RenderPassTarget{Target: t.res.physical, Access: t.access}
		if t.resolve != nil {
			rt.Resolve = t.resolve.physical
		}
		info.Targets = append(info.Targets, rt)
	}
	if p.depth != nil {
		info.Depth = rhi.RenderPassDepth{
			Target:        p.depth.res.physical,
			DepthAccess:   p.depth.depthAccess,
			StencilAccess: p.depth.stencilAccess,
			Write:         p.depth.write,
		}
	}
	return info
}

// Culled reports whether the named pass was culled. Intended for tests and
// debug tooling.
func (g *Graph) Culled(name string) bool {
	for _, p := range g.passes {
		if p.name == name {
			return p.culled
		}
	}
	return false
}

// Barriers returns a description of the transitions applied immediately
// before the named pass during Execute, as "resource: from -> to" strings.
func (g *Graph) Barriers(name string) []string {
	for _, p := range g.passes {
		if p.name != name {
			continue
		}
		out := make([]string, 0, len(p.appliedBarriers))
		for _, b := range p.appliedBarriers {
			if b.uav {
				out = append(out, b.resource+": uav")
				continue
			}
			out = append(out, b.resource+": "+b.from.String()+" -> "+b.to.String())
		}
		return out
	}
	return nil
}
