package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"triage/internal/graph"
)

// CheckGraphInvariants runs a minimal set of invariants on a graph used by
// tests across packages:
// 1) node IDs are unique and op IDs ascend
// 2) every op argument resolves to an earlier node
// 3) every output resolves to some node
// 4) input value payloads match their declared shapes
func CheckGraphInvariants(g *graph.Graph) error {
	if g == nil {
		return fmt.Errorf("nil graph")
	}
	if err := graph.Validate(g); err != nil {
		return err
	}

	for i := range g.Inputs {
		in := &g.Inputs[i]
		if in.Value == nil {
			continue
		}
		want, err := safecast.Conv[uint32](in.Shape.Elems())
		if err != nil {
			return fmt.Errorf("input %q: shape element count overflow: %w", in.Name, err)
		}
		got, err := safecast.Conv[uint32](len(in.Value.Data))
		if err != nil {
			return fmt.Errorf("input %q: value length overflow: %w", in.Name, err)
		}
		if got != want {
			return fmt.Errorf("input %q: %d elements, shape %s wants %d", in.Name, got, in.Shape, want)
		}
	}

	// a reduced graph must never orphan an operand reference
	for i := range g.Ops {
		op := &g.Ops[i]
		for _, a := range op.Args {
			if _, ok := g.Op(a); ok {
				continue
			}
			if _, ok := g.InputByID(a); ok {
				continue
			}
			return fmt.Errorf("op %%%d (%s): dangling operand %%%d", op.ID, op.Sym, a)
		}
	}
	return nil
}

// MustBuild builds a graph and panics on error; for test fixtures only.
func MustBuild(b *graph.Builder) *graph.Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
