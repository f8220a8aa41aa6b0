package repro

import (
	"fmt"
	"io"

	"triage/internal/backend"
	"triage/internal/graph"
)

// WriteScript emits a self-contained reproducer: the minimal graph with
// every runtime input inlined as a captured constant, runnable standalone
// with `triage run`. Output is deterministic.
func WriteScript(w io.Writer, g *graph.Graph, inputs backend.Inputs, signal string) error {
	if _, err := fmt.Fprintf(w, "# triage reproducer\n"); err != nil {
		return err
	}
	if signal != "" {
		if _, err := fmt.Fprintf(w, "# signal: %s\n", signal); err != nil {
			return err
		}
	}

	inlined := g.Clone()
	for i := range inlined.Inputs {
		in := &inlined.Inputs[i]
		if in.Value != nil {
			continue
		}
		v, ok := inputs[in.Name]
		if !ok {
			return fmt.Errorf("reproducer: no captured value for input %q", in.Name)
		}
		c := v.Clone()
		in.Value = &c
	}
	return graph.Print(w, inlined)
}
