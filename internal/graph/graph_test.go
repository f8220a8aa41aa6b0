package graph

import (
	"strings"
	"testing"
)

func buildDiamond(t *testing.T) *Graph {
	t.Helper()
	// x, y -> add -> relu -> mul(x) -> out
	b := NewBuilder("diamond")
	x := b.Input("x", Shape{2, 2}, DtypeF32)
	y := b.Input("y", Shape{2, 2}, DtypeF32)
	sum := b.Op("add", x, y)
	act := b.Op("relu", sum)
	prod := b.Op("mul", act, x)
	b.Output(prod)
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestBuilderAssignsDenseIDs(t *testing.T) {
	g := buildDiamond(t)
	if got := g.OpCount(); got != 3 {
		t.Fatalf("OpCount: want 3, got %d", got)
	}
	for i, op := range g.Ops {
		want := NodeID(len(g.Inputs) + i)
		if op.ID != want {
			t.Fatalf("op %d: want ID %d, got %d", i, want, op.ID)
		}
	}
}

func TestBuilderRejectsDuplicateInput(t *testing.T) {
	b := NewBuilder("dup")
	b.Input("x", Shape{1}, DtypeF32)
	b.Input("x", Shape{1}, DtypeF32)
	if _, err := b.Build(); err == nil {
		t.Fatalf("expected error for duplicate input name")
	}
}

func TestOpLookup(t *testing.T) {
	g := buildDiamond(t)
	op, ok := g.Op(2)
	if !ok || op.Sym != "add" {
		t.Fatalf("Op(2): want add, got %v ok=%t", op, ok)
	}
	if _, ok := g.Op(0); ok {
		t.Fatalf("Op(0) resolved an input as an operation")
	}
	if _, ok := g.Op(99); ok {
		t.Fatalf("Op(99) resolved a missing node")
	}
	in, ok := g.InputByID(1)
	if !ok || in.Name != "y" {
		t.Fatalf("InputByID(1): want y, got %v ok=%t", in, ok)
	}
}

func TestValidateCatchesBrokenGraphs(t *testing.T) {
	cases := []struct {
		name  string
		wreck func(g *Graph)
	}{
		{"forward reference", func(g *Graph) { g.Ops[0].Args[0] = g.Ops[2].ID }},
		{"missing arg", func(g *Graph) { g.Ops[0].Args[0] = 99 }},
		{"missing output", func(g *Graph) { g.Outputs[0] = 99 }},
		{"negative dim", func(g *Graph) { g.Inputs[0].Shape[0] = -1 }},
		{"descending op IDs", func(g *Graph) { g.Ops[0].ID, g.Ops[1].ID = g.Ops[1].ID, g.Ops[0].ID }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := buildDiamond(t)
			tc.wreck(g)
			if err := Validate(g); err == nil {
				t.Fatalf("Validate accepted a broken graph")
			}
		})
	}
}

func TestValidateConstDataLength(t *testing.T) {
	b := NewBuilder("c")
	c := b.Const("w", Value{Shape: Shape{2}, Dtype: DtypeF32, Data: []float64{1, 2, 3}})
	b.Output(c)
	if _, err := b.Build(); err == nil {
		t.Fatalf("expected error for const data length mismatch")
	}
}

func TestCloneIsDeep(t *testing.T) {
	g := buildDiamond(t)
	c := g.Clone()
	c.Ops[0].Args[0] = 99
	c.Inputs[0].Shape[0] = 7
	if g.Ops[0].Args[0] == 99 {
		t.Fatalf("clone shares op args with original")
	}
	if g.Inputs[0].Shape[0] == 7 {
		t.Fatalf("clone shares input shape with original")
	}
}

func TestShapeElems(t *testing.T) {
	cases := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{3}, 3},
		{Shape{2, 3}, 6},
		{Shape{2, 0}, 0},
	}
	for _, tc := range cases {
		if got := tc.shape.Elems(); got != tc.want {
			t.Fatalf("%s.Elems(): want %d, got %d", tc.shape, tc.want, got)
		}
	}
}

func TestFailErrorMessage(t *testing.T) {
	err := &FailError{Op: 3, Sym: "relu", Stage: StageLower, Line: 7}
	if !strings.Contains(err.Error(), "stage lower") {
		t.Fatalf("FailError message missing stage: %q", err.Error())
	}
}
