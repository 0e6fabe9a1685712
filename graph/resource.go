package graph

import (
	"github.com/gogpu/render3/rhi"
)

// Resource is a graph-scoped virtual resource handle. It pairs a descriptor
// with a version counter; the physical backing is assigned during execution
// and only valid inside pass closures (via Resources).
type Resource struct {
	name string
	desc rhi.ResourceDesc
	id   int

	// version counts declared writes; reads recorded after a write depend
	// on that write's output version.
	version int

	imported bool

	// physical is pre-set for imported resources and assigned during
	// Execute for created ones.
	physical rhi.Resource

	// export receives the physical resource after execution, making the
	// resource persistent beyond the graph.
	export *rhi.Resource

	// lifetime in pass indices, computed by Compile. -1 means unused.
	firstUse, lastUse int

	// exported resources (imported or explicitly exported) root the
	// cull pass.
	rooted bool
}

// Name returns the debug name.
func (r *Resource) Name() string { return r.name }

// Desc returns the resource descriptor.
func (r *Resource) Desc() rhi.ResourceDesc { return r.desc }

// Version returns the current write version.
func (r *Resource) Version() int { return r.version }

// IsImported reports whether the resource wraps an externally owned
// physical resource.
func (r *Resource) IsImported() bool { return r.imported }

// Physical returns the resource's physical backing. Only assigned once the
// graph executed the resource's first use; intended for debug tooling and
// tests, not for pass closures (use Resources.Get there).
func (r *Resource) Physical() rhi.Resource { return r.physical }

// Create registers a transient virtual resource. The physical backing is
// allocated (or aliased from the pool) when the first pass that uses it
// executes, and returns to the pool after its last use.
func (g *Graph) Create(name string, desc rhi.ResourceDesc) *Resource {
	if err := desc.Validate(); err != nil {
		g.fail(err)
	}
	r := &Resource{
		name:     name,
		desc:     desc,
		id:       len(g.resources),
		firstUse: -1,
		lastUse:  -1,
	}
	g.resources = append(g.resources, r)
	return r
}

// Import wraps an externally owned physical resource. The graph never frees
// an import and never returns it to the pool.
func (g *Graph) Import(name string, physical rhi.Resource) *Resource {
	r := &Resource{
		name:     name,
		desc:     physical.Desc(),
		id:       len(g.resources),
		imported: true,
		physical: physical,
		rooted:   true,
		firstUse: -1,
		lastUse:  -1,
	}
	g.resources = append(g.resources, r)
	return r
}

// TryImport imports physical if it is non-nil, else imports the fallback.
// Used for resources that only exist from the second frame on, such as the
// previous frame's HZB.
func (g *Graph) TryImport(name string, physical, fallback rhi.Resource) *Resource {
	if physical != nil {
		return g.Import(name, physical)
	}
	return g.Import(name, fallback)
}

// Export marks a created resource persistent: after Execute, *out receives
// the physical resource and the pool releases ownership of it. Exported
// resources root pass culling.
func (g *Graph) Export(r *Resource, out *rhi.Resource) {
	if r.imported {
		g.fail(errGraph("cannot export imported resource %q", r.name))
		return
	}
	r.export = out
	r.rooted = true
}
