package graph

import (
	"errors"
	"fmt"
)

// Validate checks graph invariants.
// Returns a joined error if any invariant is violated.
//
// Invariants:
//  1. input and op IDs are unique
//  2. ops are sorted by ID in ascending order
//  3. every op arg references an input or an op with a smaller ID
//  4. every output references an existing node
//  5. input shapes have no negative dimensions
func Validate(g *Graph) error {
	if g == nil {
		return nil
	}
	var errs []error

	seen := make(map[NodeID]struct{}, len(g.Inputs)+len(g.Ops))
	for i := range g.Inputs {
		in := &g.Inputs[i]
		if _, dup := seen[in.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate node id %%%d (input %q)", in.ID, in.Name))
		}
		seen[in.ID] = struct{}{}
		for _, d := range in.Shape {
			if d < 0 {
				errs = append(errs, fmt.Errorf("input %q: negative dimension %d", in.Name, d))
				break
			}
		}
		if in.Value != nil && len(in.Value.Data) != in.Shape.Elems() {
			errs = append(errs, fmt.Errorf("input %q: value has %d elements, shape %s wants %d",
				in.Name, len(in.Value.Data), in.Shape, in.Shape.Elems()))
		}
	}

	var prev NodeID
	for i := range g.Ops {
		op := &g.Ops[i]
		if i > 0 && op.ID <= prev {
			errs = append(errs, fmt.Errorf("op %%%d out of order after %%%d", op.ID, prev))
		}
		prev = op.ID
		if _, dup := seen[op.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate node id %%%d (op %s)", op.ID, op.Sym))
		}
		for _, a := range op.Args {
			if a >= op.ID {
				errs = append(errs, fmt.Errorf("op %%%d (%s): arg %%%d is not an earlier node", op.ID, op.Sym, a))
				continue
			}
			if _, ok := seen[a]; !ok {
				errs = append(errs, fmt.Errorf("op %%%d (%s): arg %%%d does not exist", op.ID, op.Sym, a))
			}
		}
		seen[op.ID] = struct{}{}
	}

	for _, out := range g.Outputs {
		if _, ok := seen[out]; !ok {
			errs = append(errs, fmt.Errorf("output %%%d does not exist", out))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("graph %q: %w", g.Name, errors.Join(errs...))
	}
	return nil
}
