package backend

import (
	"context"
	"fmt"

	"triage/internal/graph"
	"triage/internal/trace"
)

// TraceAndLowerID names the backend that lowers the graph to primitive ops
// before evaluating it. Failing here while identity passes isolates the
// fault to the lowering stage.
const TraceAndLowerID = "trace-and-lower"

type lowerBackend struct {
	tr trace.Tracer
}

func (b *lowerBackend) ID() string { return TraceAndLowerID }

func (b *lowerBackend) Run(ctx context.Context, g *graph.Graph, inputs Inputs) (Result, error) {
	sp := trace.Begin(b.tr, trace.ScopePhase, "backend:"+TraceAndLowerID, 0)
	if err := graph.Validate(g); err != nil {
		sp.End("invalid graph")
		return Result{}, err
	}
	lowered, err := Lower(g)
	if err != nil {
		sp.End("lowering failed")
		return Result{}, err
	}
	sp.SetExtra("lowered_ops", fmt.Sprintf("%d", lowered.OpCount()))
	res, err := eval(ctx, TraceAndLowerID, lowered, inputs, evalMask)
	if err != nil {
		sp.End("failed")
		return Result{}, err
	}
	sp.End("ok")
	return res, nil
}

// Lower decomposes composite ops into primitives:
//
//	relu x  ->  max x 0
//	sub a b ->  add a (neg b)
//	abs x   ->  max x (neg x)
//
// Everything else passes through. Ops tagged !fail(lower) fail here, before
// any evaluation. Node IDs are re-assigned densely; outputs are remapped.
func Lower(g *graph.Graph) (*graph.Graph, error) {
	b := graph.NewBuilder(g.Name)
	remap := make(map[graph.NodeID]graph.NodeID, len(g.Inputs)+len(g.Ops))

	for i := range g.Inputs {
		in := &g.Inputs[i]
		var id graph.NodeID
		if in.Value != nil {
			id = b.Const(in.Name, in.Value.Clone())
		} else {
			id = b.Input(in.Name, append(graph.Shape(nil), in.Shape...), in.Dtype)
		}
		remap[in.ID] = id
	}

	for i := range g.Ops {
		op := &g.Ops[i]
		if op.Fail == graph.StageLower {
			return nil, &ExecError{
				Backend: TraceAndLowerID, Stage: graph.StageLower, Op: op.ID, Sym: op.Sym,
				Err: &graph.FailError{Op: op.ID, Sym: op.Sym, Stage: graph.StageLower, Line: op.Line},
			}
		}
		args := make([]graph.NodeID, len(op.Args))
		for j, a := range op.Args {
			na, ok := remap[a]
			if !ok {
				return nil, fmt.Errorf("lower: op %%%d references unmapped node %%%d", op.ID, a)
			}
			args[j] = na
		}

		// malformed arities pass through; the evaluator reports them
		var id graph.NodeID
		switch {
		case op.Sym == "relu" && len(args) == 1:
			zero := b.Const(fmt.Sprintf("lower_zero_%d", op.ID), graph.Scalar(graph.DtypeF32, 0))
			id = b.OpAt(op.Line, "max", op.Fail, args[0], zero)
		case op.Sym == "sub" && len(args) == 2:
			negated := b.OpAt(op.Line, "neg", graph.StageNone, args[1])
			id = b.OpAt(op.Line, "add", op.Fail, args[0], negated)
		case op.Sym == "abs" && len(args) == 1:
			negated := b.OpAt(op.Line, "neg", graph.StageNone, args[0])
			id = b.OpAt(op.Line, "max", op.Fail, args[0], negated)
		default:
			id = b.OpAt(op.Line, op.Sym, op.Fail, args...)
		}
		remap[op.ID] = id
	}

	for _, o := range g.Outputs {
		no, ok := remap[o]
		if !ok {
			return nil, fmt.Errorf("lower: output %%%d references unmapped node", o)
		}
		b.Output(no)
	}
	return b.Build()
}
