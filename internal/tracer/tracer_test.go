package tracer

import (
	"testing"

	"triage/internal/diag"
)

const sampleTrace = `# two fragments split by a break
input %0 x shape=(2,2) dtype=f32
input %1 y shape=(2,2) dtype=f32
%2 = add %0 %1
break builtin "print"
input %0 z shape=(2,2) dtype=f32
%1 = relu %0
output %1
`

func mustTrace(t *testing.T, src string, opts Options) *Result {
	t.Helper()
	res, err := Trace("test.trc", []byte(src), opts)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	return res
}

func TestTraceSplitsOnBreak(t *testing.T) {
	res := mustTrace(t, sampleTrace, Options{})
	if len(res.Fragments) != 2 {
		t.Fatalf("want 2 fragments, got %d", len(res.Fragments))
	}
	if res.Fragments[0].Name != "main" || res.Fragments[1].Name != "main#1" {
		t.Fatalf("fragment names: got %q, %q", res.Fragments[0].Name, res.Fragments[1].Name)
	}
	if len(res.Breaks) != 1 {
		t.Fatalf("want 1 break, got %d", len(res.Breaks))
	}
	br := res.Breaks[0]
	if br.Reason != BreakBuiltin || br.Detail != "print" || br.Line != 5 {
		t.Fatalf("break record: %+v", br)
	}
	if res.Stats.Fragments != 2 || res.Stats.Breaks != 1 || res.Stats.Ops != 2 {
		t.Fatalf("stats: %+v", res.Stats)
	}
}

func TestTraceUnknownOpBecomesBreak(t *testing.T) {
	src := `input %0 x shape=(2) dtype=f32
%1 = frobnicate %0
input %0 y shape=(2) dtype=f32
%1 = neg %0
output %1
`
	res := mustTrace(t, src, Options{})
	if res.Diags.HasErrors() {
		t.Fatalf("unknown op must not be an error: %v", res.Diags.Items())
	}
	if len(res.Breaks) != 1 || res.Breaks[0].Detail != "frobnicate" {
		t.Fatalf("breaks: %+v", res.Breaks)
	}
	// the pre-break fragment has no ops but carries an input; it still
	// validates and survives
	if len(res.Fragments) != 2 {
		t.Fatalf("want 2 fragments, got %d", len(res.Fragments))
	}
}

func TestTraceFuncSections(t *testing.T) {
	src := `func f
input %0 x shape=(2) dtype=f32
%1 = neg %0
output %1
func g
input %0 x shape=(2) dtype=f32
%1 = abs %0
output %1
`
	res := mustTrace(t, src, Options{})
	if len(res.Fragments) != 2 {
		t.Fatalf("want 2 fragments, got %d", len(res.Fragments))
	}
	if res.Fragments[0].Name != "f" || res.Fragments[1].Name != "g" {
		t.Fatalf("fragment names: %q, %q", res.Fragments[0].Name, res.Fragments[1].Name)
	}
}

func TestTraceFilter(t *testing.T) {
	src := `func f
input %0 x shape=(2) dtype=f32
%1 = neg %0
output %1
func g
input %0 x shape=(2) dtype=f32
%1 = abs %0
output %1
`
	res := mustTrace(t, src, Options{Filter: "g"})
	if len(res.Fragments) != 1 || res.Fragments[0].Name != "g" {
		t.Fatalf("filter leaked fragments: %+v", res.Fragments)
	}
}

func TestTraceCrossFragmentRefIsError(t *testing.T) {
	src := `input %0 x shape=(2) dtype=f32
%1 = neg %0
break branch "loop header"
%2 = abs %1
output %2
`
	res := mustTrace(t, src, Options{})
	if !res.Diags.HasErrors() {
		t.Fatalf("expected a cross-fragment reference error")
	}
	found := false
	for _, d := range res.Diags.Items() {
		if d.Code == diag.TraceBadRef {
			found = true
		}
	}
	if !found {
		t.Fatalf("want %s, got %+v", diag.TraceBadRef, res.Diags.Items())
	}
}

func TestTraceSyntaxErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		code diag.Code
	}{
		{"garbage op line", "%0 relu\n", diag.TraceBadSyntax},
		{"duplicate node", "input %0 x shape=(1) dtype=f32\ninput %0 y shape=(1) dtype=f32\n", diag.TraceDupNode},
		{"descending id", "input %5 x shape=(1) dtype=f32\n%2 = neg %5\n", diag.TraceBadSyntax},
		{"bad dtype", "input %0 x shape=(1) dtype=f99\n", diag.TraceBadValue},
		{"const without value", "const %0 w shape=(1) dtype=f32\n", diag.TraceBadValue},
		{"bad break reason", "break sometimes \"eh\"\n", diag.TraceBadSyntax},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := mustTrace(t, tc.src, Options{})
			found := false
			for _, d := range res.Diags.Items() {
				if d.Code == tc.code {
					found = true
				}
			}
			if !found {
				t.Fatalf("want %s, got %+v", tc.code, res.Diags.Items())
			}
		})
	}
}

func TestTraceConstCapture(t *testing.T) {
	src := `const %0 w dtype=f32 shape=(2) value=[0.5,-1.5]
input %1 x shape=(2) dtype=f32
%2 = mul %1 %0
output %2
`
	res := mustTrace(t, src, Options{})
	if res.Diags.HasErrors() {
		t.Fatalf("diags: %+v", res.Diags.Items())
	}
	g := res.Fragments[0]
	in, ok := g.InputByID(0)
	if !ok || in.Value == nil {
		t.Fatalf("const not captured: %+v", in)
	}
	if in.Value.Data[1] != -1.5 {
		t.Fatalf("const data: %v", in.Value.Data)
	}
}

func TestTraceScalarConst(t *testing.T) {
	// scalar consts may omit the brackets and the shape
	src := `const %0 c dtype=f32 value=1.5
input %1 x shape=() dtype=f32
%2 = mul %1 %0
output %2
`
	res := mustTrace(t, src, Options{})
	if res.Diags.HasErrors() {
		t.Fatalf("diags: %+v", res.Diags.Items())
	}
	in, ok := res.Fragments[0].InputByID(0)
	if !ok || in.Value == nil {
		t.Fatalf("const not captured: %+v", in)
	}
	if len(in.Value.Data) != 1 || in.Value.Data[0] != 1.5 {
		t.Fatalf("scalar const data: %v", in.Value.Data)
	}
	if in.Shape.Elems() != 1 {
		t.Fatalf("scalar const shape: %s", in.Shape)
	}
}

func TestTraceFailInjection(t *testing.T) {
	src := `input %0 x shape=(2) dtype=f32
%1 = relu %0 !fail(lower)
output %1
`
	res := mustTrace(t, src, Options{})
	op, ok := res.Fragments[0].Op(1)
	if !ok {
		t.Fatalf("op %%1 missing")
	}
	if op.Fail.String() != "lower" {
		t.Fatalf("fail stage: %s", op.Fail)
	}
}

func TestTraceSessionCalls(t *testing.T) {
	src := `func f
input %0 x shape=(2,2) dtype=f32
%1 = neg %0
output %1

call f x=f32(2,2)
call f x=f32(4,2) w=f32()!3.5
`
	res := mustTrace(t, src, Options{})
	if len(res.Calls) != 2 {
		t.Fatalf("want 2 calls, got %d", len(res.Calls))
	}
	second := res.Calls[1]
	if second.Site != "f" || len(second.Sigs) != 2 {
		t.Fatalf("call record: %+v", second)
	}
	w := second.Sigs[1]
	if w.Name != "w" || w.Const == nil || *w.Const != 3.5 {
		t.Fatalf("const signature: %+v", w)
	}
}

func TestTraceNilSource(t *testing.T) {
	if _, err := Trace("x.trc", nil, Options{}); err == nil {
		t.Fatalf("expected error for nil source")
	}
}
