package backend

import (
	"context"
	"math"

	"triage/internal/graph"
	"triage/internal/trace"
)

// Verdict is the outcome of two-probe fault isolation.
type Verdict struct {
	// Stage is where the fault originates. StageNone means both probes
	// passed; StageTrace/StageBackward mean the fault is upstream of
	// lowering; StageLower means the lowering pass introduced it;
	// StageRun means the graph itself fails to execute.
	Stage graph.Stage

	IdentityErr error
	LowerErr    error
}

// Failed reports whether either probe failed.
func (v Verdict) Failed() bool { return v.Stage != graph.StageNone }

// Isolate runs the identical graph under the identity backend and the
// trace-and-lower backend and classifies the failure origin with a single
// comparison of the two outcomes:
//
//   - identity fails: the fault is upstream of lowering; the error's stage
//     tag (trace or backward) pins it down.
//   - identity passes, trace-and-lower fails: the fault is in lowering.
//   - both pass: no fault.
func Isolate(ctx context.Context, reg *Registry, g *graph.Graph, inputs Inputs, tr trace.Tracer) (Verdict, error) {
	ident, err := reg.New(IdentityID, tr)
	if err != nil {
		return Verdict{}, err
	}
	lower, err := reg.New(TraceAndLowerID, tr)
	if err != nil {
		return Verdict{}, err
	}

	var v Verdict
	_, v.IdentityErr = ident.Run(ctx, g, inputs)
	_, v.LowerErr = lower.Run(ctx, g, inputs)

	switch {
	case v.IdentityErr != nil:
		stage := StageOf(v.IdentityErr)
		if stage == graph.StageNone || stage == graph.StageLower {
			stage = graph.StageTrace
		}
		v.Stage = stage
	case v.LowerErr != nil:
		v.Stage = graph.StageLower
	default:
		v.Stage = graph.StageNone
	}

	trace.Point(tr, trace.ScopePhase, "isolate", "stage="+v.Stage.String())
	return v, nil
}

// Diverged compares two result sets numerically. Used by full-depth
// accuracy minification: a lowering that silently produces different
// numbers is a failure even when it does not raise.
func Diverged(a, b Result, tol float64) bool {
	if len(a.Outputs) != len(b.Outputs) {
		return true
	}
	for i := range a.Outputs {
		av, bv := a.Outputs[i], b.Outputs[i]
		if !av.Shape.Equal(bv.Shape) || len(av.Data) != len(bv.Data) {
			return true
		}
		for j := range av.Data {
			if math.Abs(av.Data[j]-bv.Data[j]) > tol {
				return true
			}
		}
	}
	return false
}
