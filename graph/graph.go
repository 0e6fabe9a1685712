package graph

import (
	"fmt"

	"github.com/gogpu/render3/rhi"
)

// Graph is a single-frame render graph. It is not safe for concurrent use;
// record, compile and execute happen on one goroutine per frame.
type Graph struct {
	device rhi.Device
	pool   *Pool

	resources []*Resource
	passes    []*Pass

	scopes []string

	blackboard Blackboard

	compiled bool
	err      error
}

// New creates an empty graph drawing physical allocations from pool.
func New(device rhi.Device, pool *Pool) *Graph {
	return &Graph{
		device:     device,
		pool:       pool,
		blackboard: Blackboard{},
	}
}

// Blackboard returns the graph's typed key-value store used to hand data
// between the subsystems that schedule passes.
func (g *Graph) Blackboard() *Blackboard { return &g.blackboard }

// PushScope prefixes subsequently recorded pass names with name, mirroring
// the profiler scope hierarchy. Scopes nest.
func (g *Graph) PushScope(name string) { g.scopes = append(g.scopes, name) }

// PopScope ends the innermost scope.
func (g *Graph) PopScope() {
	if len(g.scopes) > 0 {
		g.scopes = g.scopes[:len(g.scopes)-1]
	}
}

func (g *Graph) scopedName(name string) string {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		name = g.scopes[i] + "/" + name
	}
	return name
}

// fail records a graph-construction error. The first error wins and causes
// Compile to fail; construction continues so all errors get logged.
func (g *Graph) fail(err error) {
	logger().Error("render graph error", "err", err)
	if g.err == nil {
		g.err = err
	}
}

func errGraph(format string, args ...any) error {
	return fmt.Errorf("graph: "+format, args...)
}
