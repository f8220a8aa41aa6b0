package backend

import (
	"context"
	"errors"
	"testing"

	"triage/internal/graph"
)

func value(t *testing.T, shape graph.Shape, data ...float64) graph.Value {
	t.Helper()
	if shape.Elems() != len(data) {
		t.Fatalf("bad test value: shape %s wants %d elems, got %d", shape, shape.Elems(), len(data))
	}
	return graph.Value{Shape: shape, Dtype: graph.DtypeF32, Data: data}
}

func buildArith(t *testing.T, fail graph.Stage, failSym string) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder("arith")
	x := b.Input("x", graph.Shape{2}, graph.DtypeF32)
	y := b.Input("y", graph.Shape{2}, graph.DtypeF32)
	sum := b.Op("add", x, y)
	var act graph.NodeID
	if failSym == "relu" {
		act = b.OpAt(3, "relu", fail, sum)
	} else {
		act = b.Op("relu", sum)
	}
	b.Output(act)
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestIdentityEvaluates(t *testing.T) {
	g := buildArith(t, graph.StageNone, "")
	reg := NewRegistry()
	b, err := reg.New(IdentityID, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	inputs := Inputs{
		"x": value(t, graph.Shape{2}, -3, 2),
		"y": value(t, graph.Shape{2}, 1, 1),
	}
	res, err := b.Run(context.Background(), g, inputs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := res.Outputs[0].Data
	if got[0] != 0 || got[1] != 3 {
		t.Fatalf("relu(add): want [0 3], got %v", got)
	}
}

func TestEvalRejectsShapeMismatch(t *testing.T) {
	g := buildArith(t, graph.StageNone, "")
	reg := NewRegistry()
	b, _ := reg.New(IdentityID, nil)
	inputs := Inputs{
		"x": value(t, graph.Shape{3}, 1, 2, 3),
		"y": value(t, graph.Shape{2}, 1, 1),
	}
	if _, err := b.Run(context.Background(), g, inputs); err == nil {
		t.Fatalf("expected shape mismatch error")
	}
}

func TestLowerDecomposes(t *testing.T) {
	cases := []struct {
		sym     string
		arity   int
		lowered []string
	}{
		{"relu", 1, []string{"max"}},
		{"sub", 2, []string{"neg", "add"}},
		{"abs", 1, []string{"neg", "max"}},
		{"mul", 2, []string{"mul"}},
	}
	for _, tc := range cases {
		t.Run(tc.sym, func(t *testing.T) {
			b := graph.NewBuilder("l")
			x := b.Input("x", graph.Shape{2}, graph.DtypeF32)
			args := []graph.NodeID{x}
			if tc.arity == 2 {
				args = append(args, b.Input("y", graph.Shape{2}, graph.DtypeF32))
			}
			b.Output(b.Op(tc.sym, args...))
			g, err := b.Build()
			if err != nil {
				t.Fatalf("Build: %v", err)
			}

			lowered, err := Lower(g)
			if err != nil {
				t.Fatalf("Lower: %v", err)
			}
			var syms []string
			for _, op := range lowered.Ops {
				syms = append(syms, op.Sym)
			}
			if len(syms) != len(tc.lowered) {
				t.Fatalf("lowered ops: want %v, got %v", tc.lowered, syms)
			}
			for i := range syms {
				if syms[i] != tc.lowered[i] {
					t.Fatalf("lowered ops: want %v, got %v", tc.lowered, syms)
				}
			}
		})
	}
}

func TestLoweredSemanticsMatchIdentity(t *testing.T) {
	b := graph.NewBuilder("semantics")
	x := b.Input("x", graph.Shape{4}, graph.DtypeF32)
	y := b.Input("y", graph.Shape{4}, graph.DtypeF32)
	d := b.Op("sub", x, y)
	a := b.Op("abs", d)
	r := b.Op("relu", d)
	s := b.Op("add", a, r)
	b.Output(s)
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	inputs := Inputs{
		"x": value(t, graph.Shape{4}, 1, -2, 3, 0),
		"y": value(t, graph.Shape{4}, 2, 2, -1, 0),
	}
	reg := NewRegistry()
	ident, _ := reg.New(IdentityID, nil)
	lower, _ := reg.New(TraceAndLowerID, nil)

	want, err := ident.Run(context.Background(), g, inputs)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	got, err := lower.Run(context.Background(), g, inputs)
	if err != nil {
		t.Fatalf("trace-and-lower: %v", err)
	}
	if Diverged(got, want, 1e-12) {
		t.Fatalf("lowering changed semantics: %v vs %v", got.Outputs[0].Data, want.Outputs[0].Data)
	}
}

func TestIsolateClassifiesStages(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	inputs := Inputs{
		"x": value(t, graph.Shape{2}, 1, 2),
		"y": value(t, graph.Shape{2}, 3, 4),
	}

	cases := []struct {
		name string
		fail graph.Stage
		want graph.Stage
	}{
		{"healthy", graph.StageNone, graph.StageNone},
		{"trace fault", graph.StageTrace, graph.StageTrace},
		{"backward fault", graph.StageBackward, graph.StageBackward},
		{"lower fault", graph.StageLower, graph.StageLower},
		{"run fault", graph.StageRun, graph.StageRun},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := buildArith(t, tc.fail, "relu")
			v, err := Isolate(ctx, reg, g, inputs, nil)
			if err != nil {
				t.Fatalf("Isolate: %v", err)
			}
			if v.Stage != tc.want {
				t.Fatalf("stage: want %s, got %s", tc.want, v.Stage)
			}
			if tc.fail == graph.StageLower {
				if v.IdentityErr != nil {
					t.Fatalf("identity must pass on a lower-only fault: %v", v.IdentityErr)
				}
				if v.LowerErr == nil {
					t.Fatalf("trace-and-lower must fail on a lower fault")
				}
			}
		})
	}
}

func TestStageOf(t *testing.T) {
	xe := &ExecError{Backend: IdentityID, Stage: graph.StageBackward, Op: 2, Sym: "add", Err: errors.New("x")}
	if got := StageOf(xe); got != graph.StageBackward {
		t.Fatalf("StageOf(ExecError): %s", got)
	}
	fe := &graph.FailError{Op: 1, Sym: "neg", Stage: graph.StageTrace}
	if got := StageOf(fe); got != graph.StageTrace {
		t.Fatalf("StageOf(FailError): %s", got)
	}
	if got := StageOf(errors.New("plain")); got != graph.StageNone {
		t.Fatalf("StageOf(plain): %s", got)
	}
}

func TestDiverged(t *testing.T) {
	a := Result{Outputs: []graph.Value{value(t, graph.Shape{2}, 1, 2)}}
	b := Result{Outputs: []graph.Value{value(t, graph.Shape{2}, 1, 2.0000000001)}}
	if Diverged(a, b, 1e-6) {
		t.Fatalf("within tolerance must not diverge")
	}
	if !Diverged(a, b, 1e-12) {
		t.Fatalf("beyond tolerance must diverge")
	}
	c := Result{Outputs: []graph.Value{value(t, graph.Shape{3}, 1, 2, 3)}}
	if !Diverged(a, c, 1) {
		t.Fatalf("shape mismatch must diverge")
	}
}
