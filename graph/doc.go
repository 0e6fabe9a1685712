// Package graph implements a transient-resource render graph: passes are
// recorded declaratively with their resource accesses, then the graph culls
// unreferenced work, plans state transitions, schedules physical-resource
// aliasing and executes the surviving passes on a command context.
//
// A graph lives for exactly one frame. Callers create virtual resources with
// Create, wrap pre-existing GPU resources with Import, record passes through
// AddPass, then call Compile followed by Execute. Physical allocations are
// served from a Pool that persists across frames so aliasing does not churn
// device memory.
//
// Virtual resources are versioned: every declared write advances the
// version, which is what turns the pass list into a dependency DAG
// (write v -> read v -> write v+1). The graph guarantees a happens-before
// relation between the writer of a version and every reader of it.
package graph
