package graph

import "fmt"

// GradPrefix marks backward-pass operations.
const GradPrefix = "grad."

// Backward constructs the backward graph for g: the forward ops plus, for
// each differentiable op in reverse order, a grad node consuming the op's
// result, its arguments, and the seed gradient of the graph output.
//
// Construction honors injected failures: an op tagged with StageBackward
// fails here with a FailError, before any backend runs. The result is a
// valid SSA graph (re-validated before return).
func Backward(g *Graph) (*Graph, error) {
	out := g.Clone()

	next := NodeID(0)
	for i := range out.Inputs {
		if out.Inputs[i].ID >= next {
			next = out.Inputs[i].ID + 1
		}
	}
	for i := range out.Ops {
		if out.Ops[i].ID >= next {
			next = out.Ops[i].ID + 1
		}
	}

	// Seed gradient, one per forward output.
	seeds := make(map[NodeID]NodeID, len(out.Outputs))
	firstSeed := NoNode
	for _, o := range g.Outputs {
		id := next
		next++
		name := fmt.Sprintf("grad_seed_%d", o)
		var sh Shape
		dt := DtypeF32
		if op, ok := g.Op(o); ok {
			_ = op // shape of op results is runtime-only; seed stays scalar
		} else if in, ok := g.InputByID(o); ok {
			sh = append(Shape(nil), in.Shape...)
			dt = in.Dtype
		}
		out.Inputs = append(out.Inputs, Input{ID: id, Name: name, Shape: sh, Dtype: dt})
		seeds[o] = id
		if firstSeed == NoNode {
			firstSeed = id
		}
	}

	var gradOut []NodeID
	for i := len(g.Ops) - 1; i >= 0; i-- {
		op := &g.Ops[i]
		if op.Fail == StageBackward {
			return nil, &FailError{Op: op.ID, Sym: op.Sym, Stage: StageBackward, Line: op.Line}
		}
		seed, ok := seeds[op.ID]
		if !ok && firstSeed != NoNode {
			// ops off the output path take the first seed
			seed, ok = firstSeed, true
		}
		args := append([]NodeID{op.ID}, op.Args...)
		if ok {
			args = append(args, seed)
		}
		id := next
		next++
		out.Ops = append(out.Ops, Operation{
			ID:   id,
			Sym:  GradPrefix + op.Sym,
			Args: args,
			Fail: StageNone,
			Line: op.Line,
		})
		gradOut = append(gradOut, id)
	}
	out.Outputs = append(out.Outputs, gradOut...)

	if err := Validate(out); err != nil {
		return nil, fmt.Errorf("backward construction: %w", err)
	}
	return out, nil
}
