package graph

import (
	"fmt"
	"io"
)

// Dump writes a Graphviz dot description of the compiled graph: pass nodes,
// resource nodes and access edges, with culled passes greyed out. Purely a
// debugging aid.
func (g *Graph) Dump(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph rendergraph {"); err != nil {
		return err
	}
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [fontsize=10];")

	for _, p := range g.passes {
		attrs := "shape=box, style=filled, fillcolor=lightsteelblue"
		if p.culled {
			attrs = "shape=box, style=filled, fillcolor=grey85, fontcolor=grey50"
		}
		if p.invalid {
			attrs = "shape=box, style=filled, fillcolor=lightcoral"
		}
		fmt.Fprintf(w, "  pass%d [label=%q, %s];\n", p.index, p.name, attrs)
	}

	for _, r := range g.resources {
		label := r.name
		if r.imported {
			label += " (imported)"
		}
		fmt.Fprintf(w, "  res%d [label=%q, shape=ellipse];\n", r.id, label)
	}

	for _, p := range g.passes {
		for _, a := range p.reads {
			fmt.Fprintf(w, "  res%d -> pass%d [label=\"v%d\"];\n", a.res.id, p.index, a.version)
		}
		for _, a := range p.writes {
			fmt.Fprintf(w, "  pass%d -> res%d [label=\"v%d\"];\n", p.index, a.res.id, a.version)
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}
