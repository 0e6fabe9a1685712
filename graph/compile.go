package graph

import (
	"fmt"

	"github.com/gogpu/render3/rhi"
)

// Compile validates the recorded passes, builds the dependency DAG, culls
// unreachable passes and computes resource lifetimes. It must be called
// exactly once, after all passes are recorded and before Execute.
func (g *Graph) Compile() error {
	if g.compiled {
		return errGraph("graph already compiled")
	}
	g.compiled = true
	if g.err != nil {
		return g.err
	}

	for _, p := range g.passes {
		g.validatePass(p)
	}

	writers := g.buildWriterTable()
	g.cullPasses(writers)
	g.computeLifetimes()

	scheduled := 0
	for _, p := range g.passes {
		if !p.culled && !p.invalid {
			scheduled++
		}
	}
	logger().Debug("graph compiled",
		"passes", len(g.passes), "scheduled", scheduled, "resources", len(g.resources))
	return nil
}

// validatePass checks the per-pass invariants. A violating pass is marked
// invalid: it is refused at execution and reported by name (or panics in
// strict mode).
func (g *Graph) validatePass(p *Pass) {
	refuse := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		if strict.Load() {
			panic(fmt.Sprintf("graph: pass %q: %s", p.name, msg))
		}
		logger().Error("refusing pass", "pass", p.name, "reason", msg)
		p.invalid = true
	}

	// Same resource at the same version on both sides means the closure
	// would observe its own output.
	for _, r := range p.reads {
		for _, w := range p.writes {
			if r.res == w.res && r.version == w.version {
				refuse("resource %q read and written at version %d", r.res.name, r.version)
			}
		}
	}

	if p.flags&Raster != 0 && len(p.targets) == 0 && p.depth == nil {
		refuse("raster pass declares no render targets")
	}
	if p.flags&Compute != 0 && (len(p.targets) > 0 || p.depth != nil) {
		refuse("compute pass declares render targets")
	}

	// Indirect arguments must have a producer inside this graph.
	for _, r := range p.reads {
		if r.state&rhi.StateIndirectArgument != 0 && r.version == 0 {
			refuse("indirect argument buffer %q consumed before any pass wrote it", r.res.name)
		}
	}

	if len(p.targets) > 0 || p.depth != nil {
		g.validateRenderPass(p, refuse)
	}

	if p.execute == nil && p.flags&Copy == 0 {
		refuse("pass has no execute closure")
	}
}

// validateRenderPass checks attachment compatibility: all color targets
// share dimensions and sample count, and the depth target matches.
func (g *Graph) validateRenderPass(p *Pass, refuse func(string, ...any)) {
	var w, h, samples uint32
	for _, t := range p.targets {
		d := t.res.desc
		if w == 0 {
			w, h, samples = d.Width, d.Height, d.Samples
			continue
		}
		if d.Width != w || d.Height != h {
			refuse("render target %q dimensions %dx%d mismatch %dx%d",
				t.res.name, d.Width, d.Height, w, h)
		}
		if d.Samples != samples {
			refuse("render target %q sample count %d mismatch %d", t.res.name, d.Samples, samples)
		}
	}
	if p.depth != nil {
		d := p.depth.res.desc
		if w != 0 && d.Samples != samples {
			refuse("depth target %q sample count %d mismatch %d", p.depth.res.name, d.Samples, samples)
		}
		if w != 0 && (d.Width != w || d.Height != h) {
			refuse("depth target %q dimensions mismatch", p.depth.res.name)
		}
	}
}

// buildWriterTable maps (resource, version) to the writing pass. Each write
// advances the version at record time, so a version has exactly one writer.
func (g *Graph) buildWriterTable() map[*Resource]map[int]*Pass {
	writers := make(map[*Resource]map[int]*Pass, len(g.resources))
	for _, p := range g.passes {
		for _, w := range p.writes {
			m := writers[w.res]
			if m == nil {
				m = map[int]*Pass{}
				writers[w.res] = m
			}
			m[w.version] = p
		}
	}
	return writers
}

// cullPasses removes passes whose outputs nothing observes. Roots are
// NeverCull passes and passes writing rooted (imported or exported)
// resources; liveness then flows backwards along read edges.
func (g *Graph) cullPasses(writers map[*Resource]map[int]*Pass) {
	alive := make([]bool, len(g.passes))
	var work []*Pass

	for _, p := range g.passes {
		if p.invalid {
			continue
		}
		root := p.flags&NeverCull != 0
		for _, w := range p.writes {
			if w.res.rooted {
				root = true
			}
		}
		if root {
			alive[p.index] = true
			work = append(work, p)
		}
	}

	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]
		for _, r := range p.reads {
			w := writers[r.res][r.version]
			if w == nil || alive[w.index] || w.invalid {
				continue
			}
			alive[w.index] = true
			work = append(work, w)
		}
		// A reader of version v also depends on every earlier writer of
		// the same resource: version v is the cumulative result of
		// writes 1..v.
		for _, r := range p.reads {
			for v := r.version - 1; v >= 1; v-- {
				w := writers[r.res][v]
				if w == nil || alive[w.index] || w.invalid {
					continue
				}
				alive[w.index] = true
				work = append(work, w)
			}
		}
	}

	for _, p := range g.passes {
		if !alive[p.index] && p.flags&NeverCull == 0 {
			p.culled = true
		}
	}
}

// computeLifetimes records the first and last scheduled pass touching each
// resource, driving physical aliasing during Execute.
func (g *Graph) computeLifetimes() {
	touch := func(r *Resource, idx int) {
		if r.firstUse < 0 || idx < r.firstUse {
			r.firstUse = idx
		}
		if idx > r.lastUse {
			r.lastUse = idx
		}
	}
	for _, p := range g.passes {
		if p.culled || p.invalid {
			continue
		}
		for _, a := range p.reads {
			touch(a.res, p.index)
		}
		for _, a := range p.writes {
			touch(a.res, p.index)
		}
	}
}
