package backend

import (
	"context"
	"fmt"
	"math"
	"strings"

	"triage/internal/graph"
)

// failMask selects which injected-failure stages fire during evaluation.
// Identity and trace-and-lower both replay faults poisoned at trace or
// backward-construction time, plus genuine run-stage faults; only
// trace-and-lower additionally hits lower-stage faults (in its lowering
// pass, before evaluation).
type failMask uint8

const (
	maskTrace failMask = 1 << iota
	maskBackward
	maskRun
)

const evalMask = maskTrace | maskBackward | maskRun

func (m failMask) hits(s graph.Stage) bool {
	switch s {
	case graph.StageTrace:
		return m&maskTrace != 0
	case graph.StageBackward:
		return m&maskBackward != 0
	case graph.StageRun:
		return m&maskRun != 0
	}
	return false
}

// eval executes g over concrete inputs, in op order. backendID is only
// used to tag errors.
func eval(ctx context.Context, backendID string, g *graph.Graph, inputs Inputs, mask failMask) (Result, error) {
	env := make(map[graph.NodeID]graph.Value, len(g.Inputs)+len(g.Ops))

	for i := range g.Inputs {
		in := &g.Inputs[i]
		if in.Value != nil {
			env[in.ID] = *in.Value
			continue
		}
		v, ok := inputs[in.Name]
		if !ok {
			return Result{}, fmt.Errorf("%s: missing input %q", backendID, in.Name)
		}
		if !v.Shape.Equal(in.Shape) {
			return Result{}, fmt.Errorf("%s: input %q: got shape %s, want %s", backendID, in.Name, v.Shape, in.Shape)
		}
		env[in.ID] = v
	}

	for i := range g.Ops {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		op := &g.Ops[i]
		if mask.hits(op.Fail) {
			stage := op.Fail
			return Result{}, &ExecError{
				Backend: backendID, Stage: stage, Op: op.ID, Sym: op.Sym,
				Err: &graph.FailError{Op: op.ID, Sym: op.Sym, Stage: stage, Line: op.Line},
			}
		}
		args := make([]graph.Value, len(op.Args))
		for j, a := range op.Args {
			v, ok := env[a]
			if !ok {
				return Result{}, &ExecError{Backend: backendID, Stage: graph.StageRun, Op: op.ID, Sym: op.Sym,
					Err: fmt.Errorf("operand %%%d has no value", a)}
			}
			args[j] = v
		}
		out, err := apply(op.Sym, args)
		if err != nil {
			return Result{}, &ExecError{Backend: backendID, Stage: graph.StageRun, Op: op.ID, Sym: op.Sym, Err: err}
		}
		env[op.ID] = out
	}

	res := Result{Outputs: make([]graph.Value, len(g.Outputs))}
	for i, o := range g.Outputs {
		v, ok := env[o]
		if !ok {
			return Result{}, fmt.Errorf("%s: output %%%d has no value", backendID, o)
		}
		res.Outputs[i] = v
	}
	return res, nil
}

// apply computes one operation over concrete values.
func apply(sym string, args []graph.Value) (graph.Value, error) {
	if strings.HasPrefix(sym, graph.GradPrefix) {
		// backward stub: zeros shaped like the forward result
		if len(args) == 0 {
			return graph.Value{}, fmt.Errorf("grad op wants at least one operand")
		}
		fw := args[0]
		return graph.Value{
			Shape: append(graph.Shape(nil), fw.Shape...),
			Dtype: fw.Dtype,
			Data:  make([]float64, len(fw.Data)),
		}, nil
	}

	switch sym {
	case "add":
		return zip(sym, args, func(a, b float64) float64 { return a + b })
	case "sub":
		return zip(sym, args, func(a, b float64) float64 { return a - b })
	case "mul":
		return zip(sym, args, func(a, b float64) float64 { return a * b })
	case "div":
		return zip(sym, args, func(a, b float64) float64 { return a / b })
	case "max":
		return zip(sym, args, math.Max)
	case "min":
		return zip(sym, args, math.Min)
	case "neg":
		return unary(sym, args, func(a float64) float64 { return -a })
	case "abs":
		return unary(sym, args, math.Abs)
	case "exp":
		return unary(sym, args, math.Exp)
	case "relu":
		return unary(sym, args, func(a float64) float64 { return math.Max(a, 0) })
	case "sum":
		if len(args) != 1 {
			return graph.Value{}, fmt.Errorf("sum wants 1 operand, got %d", len(args))
		}
		total := 0.0
		for _, v := range args[0].Data {
			total += v
		}
		return graph.Scalar(args[0].Dtype, total), nil
	case "matmul":
		return matmul(args)
	default:
		return graph.Value{}, fmt.Errorf("unknown op %q", sym)
	}
}

func unary(sym string, args []graph.Value, f func(float64) float64) (graph.Value, error) {
	if len(args) != 1 {
		return graph.Value{}, fmt.Errorf("%s wants 1 operand, got %d", sym, len(args))
	}
	in := args[0]
	out := graph.Value{Shape: append(graph.Shape(nil), in.Shape...), Dtype: in.Dtype, Data: make([]float64, len(in.Data))}
	for i, v := range in.Data {
		out.Data[i] = f(v)
	}
	return out, nil
}

// zip applies f elementwise. A scalar operand broadcasts against any shape.
func zip(sym string, args []graph.Value, f func(a, b float64) float64) (graph.Value, error) {
	if len(args) != 2 {
		return graph.Value{}, fmt.Errorf("%s wants 2 operands, got %d", sym, len(args))
	}
	a, b := args[0], args[1]
	switch {
	case a.Shape.Equal(b.Shape):
		out := graph.Value{Shape: append(graph.Shape(nil), a.Shape...), Dtype: a.Dtype, Data: make([]float64, len(a.Data))}
		for i := range a.Data {
			out.Data[i] = f(a.Data[i], b.Data[i])
		}
		return out, nil
	case len(b.Data) == 1:
		out := graph.Value{Shape: append(graph.Shape(nil), a.Shape...), Dtype: a.Dtype, Data: make([]float64, len(a.Data))}
		for i := range a.Data {
			out.Data[i] = f(a.Data[i], b.Data[0])
		}
		return out, nil
	case len(a.Data) == 1:
		out := graph.Value{Shape: append(graph.Shape(nil), b.Shape...), Dtype: b.Dtype, Data: make([]float64, len(b.Data))}
		for i := range b.Data {
			out.Data[i] = f(a.Data[0], b.Data[i])
		}
		return out, nil
	default:
		return graph.Value{}, fmt.Errorf("%s: shape mismatch %s vs %s", sym, a.Shape, b.Shape)
	}
}

func matmul(args []graph.Value) (graph.Value, error) {
	if len(args) != 2 {
		return graph.Value{}, fmt.Errorf("matmul wants 2 operands, got %d", len(args))
	}
	a, b := args[0], args[1]
	if len(a.Shape) != 2 || len(b.Shape) != 2 || a.Shape[1] != b.Shape[0] {
		return graph.Value{}, fmt.Errorf("matmul: incompatible shapes %s x %s", a.Shape, b.Shape)
	}
	m, k, n := a.Shape[0], a.Shape[1], b.Shape[1]
	out := graph.Value{Shape: graph.Shape{m, n}, Dtype: a.Dtype, Data: make([]float64, m*n)}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			acc := 0.0
			for t := 0; t < k; t++ {
				acc += a.Data[i*k+t] * b.Data[t*n+j]
			}
			out.Data[i*n+j] = acc
		}
	}
	return out, nil
}
