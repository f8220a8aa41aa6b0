package guard

import (
	"testing"

	"triage/internal/graph"
)

func sig(name string, shape graph.Shape, dt graph.Dtype) Signature {
	return Signature{Name: name, Shape: shape, Dtype: dt}
}

func TestEvaluateAllPass(t *testing.T) {
	guards := FromSignatures([]Signature{
		sig("x", graph.Shape{2, 2}, graph.DtypeF32),
		sig("y", graph.Shape{}, graph.DtypeF64),
	})
	v := Evaluate(guards, NewContext([]Signature{
		sig("x", graph.Shape{2, 2}, graph.DtypeF32),
		sig("y", graph.Shape{}, graph.DtypeF64),
	}))
	if !v.OK || v.Index != -1 || v.Failed != nil {
		t.Fatalf("want pass, got %+v", v)
	}
}

func TestEvaluateReturnsFirstFailureInOrder(t *testing.T) {
	// два guard'а нарушены одновременно; победить должен первый по списку
	guards := []Guard{
		{ID: "shape(x)", Kind: KindShape, Target: "x", WantShape: graph.Shape{2}},
		{ID: "dtype(x)", Kind: KindDtype, Target: "x", WantDtype: graph.DtypeF32},
	}
	ctx := NewContext([]Signature{sig("x", graph.Shape{4}, graph.DtypeI64)})

	v := Evaluate(guards, ctx)
	if v.OK {
		t.Fatalf("want failure")
	}
	if v.Index != 0 || v.Failed.ID != "shape(x)" {
		t.Fatalf("want first failing guard shape(x), got index %d (%+v)", v.Index, v.Failed)
	}

	// перестановка списка меняет победителя
	rev := []Guard{guards[1], guards[0]}
	v = Evaluate(rev, ctx)
	if v.Index != 0 || v.Failed.ID != "dtype(x)" {
		t.Fatalf("want dtype(x) after reorder, got %+v", v.Failed)
	}
}

func TestEvaluateMissingTarget(t *testing.T) {
	guards := []Guard{{ID: "shape(w)", Kind: KindShape, Target: "w", WantShape: graph.Shape{1}}}
	v := Evaluate(guards, NewContext(nil))
	if v.OK || v.Failed == nil {
		t.Fatalf("missing target must fail: %+v", v)
	}
}

func TestConstantGuard(t *testing.T) {
	c := 3.5
	guards := FromSignatures([]Signature{{Name: "w", Shape: graph.Shape{}, Dtype: graph.DtypeF32, Const: &c}})

	// same constant passes
	v := Evaluate(guards, NewContext([]Signature{{Name: "w", Shape: graph.Shape{}, Dtype: graph.DtypeF32, Const: &c}}))
	if !v.OK {
		t.Fatalf("same constant must pass: %+v", v)
	}

	// changed constant fails on the constant guard
	c2 := 4.0
	v = Evaluate(guards, NewContext([]Signature{{Name: "w", Shape: graph.Shape{}, Dtype: graph.DtypeF32, Const: &c2}}))
	if v.OK || v.Failed.Kind != KindConstant {
		t.Fatalf("want constant guard failure, got %+v", v)
	}

	// value no longer constant also fails
	v = Evaluate(guards, NewContext([]Signature{sig("w", graph.Shape{}, graph.DtypeF32)}))
	if v.OK || v.Failed.Kind != KindConstant {
		t.Fatalf("want constant guard failure for non-constant, got %+v", v)
	}
}

func TestIdentityGuardNormalizes(t *testing.T) {
	// "é" as a single codepoint vs "e" plus combining accent
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	guards := FromSignatures([]Signature{{Name: "f", Sym: decomposed}})
	v := Evaluate(guards, NewContext([]Signature{{Name: "f", Sym: composed}}))
	if !v.OK {
		t.Fatalf("NFC-equal identities must pass: %+v", v)
	}

	v = Evaluate(guards, NewContext([]Signature{{Name: "f", Sym: "other"}}))
	if v.OK || v.Failed.Kind != KindIdentity {
		t.Fatalf("want identity failure, got %+v", v)
	}
}

func TestFromSignaturesShape(t *testing.T) {
	c := 1.0
	guards := FromSignatures([]Signature{{Name: "x", Shape: graph.Shape{2}, Dtype: graph.DtypeF32, Sym: "f", Const: &c}})
	if len(guards) != 4 {
		t.Fatalf("want shape+dtype+identity+constant, got %d guards", len(guards))
	}
	wantKinds := []Kind{KindShape, KindDtype, KindIdentity, KindConstant}
	for i, k := range wantKinds {
		if guards[i].Kind != k {
			t.Fatalf("guard %d: want kind %s, got %s", i, k, guards[i].Kind)
		}
	}
}

func TestSignatureString(t *testing.T) {
	c := 3.5
	s := Signature{Name: "w", Shape: graph.Shape{2, 3}, Dtype: graph.DtypeF32, Const: &c}
	if got := s.String(); got != "w=f32(2,3)!3.5" {
		t.Fatalf("Signature.String: got %q", got)
	}
}
