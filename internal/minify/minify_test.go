package minify

import (
	"context"
	"strings"
	"testing"

	"triage/internal/backend"
	"triage/internal/graph"
	"triage/internal/testkit"
)

// buildWide builds two independent branches joined by nothing: the failing
// op sits on the y-branch, the x-branch is removable noise.
//
//	%2 = add %0 %1
//	%3 = neg %2
//	%4 = exp %1
//	%5 = relu %4 !fail(run)
func buildWide(t *testing.T) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder("wide")
	x := b.Input("x", graph.Shape{2}, graph.DtypeF32)
	y := b.Input("y", graph.Shape{2}, graph.DtypeF32)
	sum := b.Op("add", x, y)
	neg := b.Op("neg", sum)
	ex := b.Op("exp", y)
	bad := b.OpAt(5, "relu", graph.StageRun, ex)
	b.Output(neg)
	b.Output(bad)
	return testkit.MustBuild(b)
}

func wideInputs() backend.Inputs {
	return backend.Inputs{
		"x": {Shape: graph.Shape{2}, Dtype: graph.DtypeF32, Data: []float64{1, 2}},
		"y": {Shape: graph.Shape{2}, Dtype: graph.DtypeF32, Data: []float64{3, 4}},
	}
}

func TestMinimizeShrinksToFailingClosure(t *testing.T) {
	g := buildWide(t)
	reg := backend.NewRegistry()
	pred, err := FailurePredicate(reg, backend.IdentityID, wideInputs())
	if err != nil {
		t.Fatalf("FailurePredicate: %v", err)
	}

	out, err := Minimize(context.Background(), g, pred, Options{})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if out.Status != StatusMinimized {
		t.Fatalf("want minimized, got %s", out.Status)
	}
	if err := testkit.CheckGraphInvariants(out.Graph); err != nil {
		t.Fatalf("minimal graph invalid: %v", err)
	}
	// operand closure of the failing relu: exp + relu, nothing else
	if out.Graph.OpCount() != 2 {
		t.Fatalf("want 2 ops, got %d:\n%s", out.Graph.OpCount(), graph.Text(out.Graph))
	}
	syms := []string{out.Graph.Ops[0].Sym, out.Graph.Ops[1].Sym}
	if syms[0] != "exp" || syms[1] != "relu" {
		t.Fatalf("want [exp relu], got %v", syms)
	}
	// IDs are preserved from the original graph
	if out.Graph.Ops[0].ID != 4 || out.Graph.Ops[1].ID != 5 {
		t.Fatalf("IDs renumbered: %d, %d", out.Graph.Ops[0].ID, out.Graph.Ops[1].ID)
	}
	if out.Signal == "" || !strings.Contains(out.Signal, "relu") {
		t.Fatalf("signal: %q", out.Signal)
	}
}

func TestMinimizeKeepsOnlyOperandClosure(t *testing.T) {
	// Ten ops, the seventh one failing. The minimal graph is the operand
	// closure of the failing op: the neg/abs/exp chain feeding it, nothing
	// from the add/mul/sub noise or from its own dependents.
	b := graph.NewBuilder("deep")
	x := b.Input("x", graph.Shape{2}, graph.DtypeF32)
	y := b.Input("y", graph.Shape{2}, graph.DtypeF32)
	n1 := b.Op("neg", x)     // %2
	s1 := b.Op("add", x, y)  // %3
	a1 := b.Op("abs", n1)    // %4
	m1 := b.Op("mul", s1, y) // %5
	e1 := b.Op("exp", a1)    // %6
	n2 := b.Op("neg", s1)    // %7
	bad := b.OpAt(7, "relu", graph.StageRun, e1)
	d1 := b.Op("add", bad, m1)
	d2 := b.Op("sub", n2, m1)
	b.Output(b.Op("max", d1, d2))
	g := testkit.MustBuild(b)

	reg := backend.NewRegistry()
	pred, err := FailurePredicate(reg, backend.IdentityID, wideInputs())
	if err != nil {
		t.Fatalf("FailurePredicate: %v", err)
	}
	out, err := Minimize(context.Background(), g, pred, Options{})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if out.Status != StatusMinimized {
		t.Fatalf("want minimized, got %s", out.Status)
	}
	if err := testkit.CheckGraphInvariants(out.Graph); err != nil {
		t.Fatalf("minimal graph invalid: %v", err)
	}
	var syms []string
	for i := range out.Graph.Ops {
		syms = append(syms, out.Graph.Ops[i].Sym)
	}
	want := []string{"neg", "abs", "exp", "relu"}
	if len(syms) != len(want) {
		t.Fatalf("want %v, got %v:\n%s", want, syms, graph.Text(out.Graph))
	}
	for i := range want {
		if syms[i] != want[i] {
			t.Fatalf("want %v, got %v", want, syms)
		}
	}
	if out.Graph.Ops[3].ID != bad {
		t.Fatalf("failing op renumbered: %%%d", out.Graph.Ops[3].ID)
	}
}

func TestMinimizeResultIsOneMinimal(t *testing.T) {
	g := buildWide(t)
	reg := backend.NewRegistry()
	pred, err := FailurePredicate(reg, backend.IdentityID, wideInputs())
	if err != nil {
		t.Fatalf("FailurePredicate: %v", err)
	}
	out, err := Minimize(context.Background(), g, pred, Options{})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}

	// removing any single op (with its dependents) breaks reproduction
	minimal := out.Graph
	for _, id := range graph.OpIDs(minimal) {
		removal := graph.Dependents(minimal, map[graph.NodeID]struct{}{id: {}})
		keep := make(map[graph.NodeID]struct{})
		for _, k := range graph.OpIDs(minimal) {
			if _, gone := removal[k]; !gone {
				keep[k] = struct{}{}
			}
		}
		if len(keep) == 0 {
			continue
		}
		sub := graph.Extract(minimal, keep)
		failed, _ := pred(context.Background(), sub)
		if failed {
			t.Fatalf("removing %%%d still reproduces; result is not 1-minimal", id)
		}
	}
}

func TestMinimizeIsDeterministic(t *testing.T) {
	reg := backend.NewRegistry()
	var texts []string
	for i := 0; i < 3; i++ {
		g := buildWide(t)
		pred, err := FailurePredicate(reg, backend.IdentityID, wideInputs())
		if err != nil {
			t.Fatalf("FailurePredicate: %v", err)
		}
		out, err := Minimize(context.Background(), g, pred, Options{})
		if err != nil {
			t.Fatalf("Minimize: %v", err)
		}
		texts = append(texts, graph.Text(out.Graph))
	}
	if texts[0] != texts[1] || texts[1] != texts[2] {
		t.Fatalf("repeated runs differ:\n%s\nvs\n%s", texts[0], texts[1])
	}
}

func TestMinimizeParallelMatchesSerial(t *testing.T) {
	reg := backend.NewRegistry()
	run := func(jobs int) string {
		g := buildWide(t)
		pred, err := FailurePredicate(reg, backend.IdentityID, wideInputs())
		if err != nil {
			t.Fatalf("FailurePredicate: %v", err)
		}
		out, err := Minimize(context.Background(), g, pred, Options{Jobs: jobs})
		if err != nil {
			t.Fatalf("Minimize(jobs=%d): %v", jobs, err)
		}
		return graph.Text(out.Graph)
	}
	serial := run(0)
	for _, jobs := range []int{2, 4, 8} {
		if got := run(jobs); got != serial {
			t.Fatalf("jobs=%d diverged from serial:\n%s\nvs\n%s", jobs, got, serial)
		}
	}
}

func TestMinimizeNonReproducible(t *testing.T) {
	b := graph.NewBuilder("healthy")
	x := b.Input("x", graph.Shape{2}, graph.DtypeF32)
	b.Output(b.Op("neg", x))
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	pred := func(ctx context.Context, g *graph.Graph) (bool, string) { return false, "" }
	out, err := Minimize(context.Background(), g, pred, Options{})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if out.Status != StatusNonReproducible {
		t.Fatalf("want non-reproducible, got %s", out.Status)
	}
	if out.Graph != nil {
		t.Fatalf("non-reproducible outcome must carry no graph")
	}
	if out.Evals != 1 {
		t.Fatalf("want exactly 1 eval, got %d", out.Evals)
	}
}

func TestMinimizeRespectsBudget(t *testing.T) {
	g := buildWide(t)
	reg := backend.NewRegistry()
	pred, err := FailurePredicate(reg, backend.IdentityID, wideInputs())
	if err != nil {
		t.Fatalf("FailurePredicate: %v", err)
	}

	budget := 2
	out, err := Minimize(context.Background(), g, pred, Options{Budget: budget})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if out.Evals > budget {
		t.Fatalf("budget %d exceeded: %d evals", budget, out.Evals)
	}
	if out.Status != StatusMinimized {
		t.Fatalf("failing graph must still be reported minimized, got %s", out.Status)
	}
	if !out.Exhausted {
		t.Fatalf("truncated run must report exhaustion")
	}
}

// buildSplit puts the failing op behind a neg on the x-branch and removable
// noise on the y-branch, so the first chunk-removal trial passes.
//
//	%2 = neg %0
//	%3 = relu %2 !fail(run)
//	%4 = abs %1
//	%5 = exp %4
func buildSplit(t *testing.T) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder("split")
	x := b.Input("x", graph.Shape{2}, graph.DtypeF32)
	y := b.Input("y", graph.Shape{2}, graph.DtypeF32)
	n := b.Op("neg", x)
	bad := b.OpAt(3, "relu", graph.StageRun, n)
	a := b.Op("abs", y)
	b.Output(bad)
	b.Output(b.Op("exp", a))
	return testkit.MustBuild(b)
}

func TestMinimizeTruncatedScanReportsExhaustion(t *testing.T) {
	// budget 2 covers the initial evaluation plus one passing trial; the
	// scan stops before any reduction is found, so the unreduced graph
	// must carry the exhaustion mark
	g := buildSplit(t)
	reg := backend.NewRegistry()
	pred, err := FailurePredicate(reg, backend.IdentityID, wideInputs())
	if err != nil {
		t.Fatalf("FailurePredicate: %v", err)
	}
	out, err := Minimize(context.Background(), g, pred, Options{Budget: 2})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if out.Status != StatusMinimized {
		t.Fatalf("want minimized, got %s", out.Status)
	}
	if out.Graph.OpCount() != 4 {
		t.Fatalf("want the unreduced 4 ops, got %d", out.Graph.OpCount())
	}
	if out.Evals != 2 {
		t.Fatalf("want 2 evals, got %d", out.Evals)
	}
	if !out.Exhausted {
		t.Fatalf("non-minimal result reported as a clean fixed point")
	}
}

func TestMinimizeParallelBudgetMatchesSerial(t *testing.T) {
	// under a binding budget the parallel path must charge exactly like
	// the serial one, so the whole outcome stays identical
	reg := backend.NewRegistry()
	run := func(jobs int) Outcome {
		g := buildSplit(t)
		pred, err := FailurePredicate(reg, backend.IdentityID, wideInputs())
		if err != nil {
			t.Fatalf("FailurePredicate: %v", err)
		}
		out, err := Minimize(context.Background(), g, pred, Options{Budget: 4, Jobs: jobs})
		if err != nil {
			t.Fatalf("Minimize(jobs=%d): %v", jobs, err)
		}
		return out
	}
	serial := run(0)
	for _, jobs := range []int{2, 4} {
		got := run(jobs)
		if got.Status != serial.Status || got.Evals != serial.Evals || got.Exhausted != serial.Exhausted {
			t.Fatalf("jobs=%d outcome diverged: got status=%s evals=%d exhausted=%t, serial status=%s evals=%d exhausted=%t",
				jobs, got.Status, got.Evals, got.Exhausted, serial.Status, serial.Evals, serial.Exhausted)
		}
		if graph.Text(got.Graph) != graph.Text(serial.Graph) {
			t.Fatalf("jobs=%d graph diverged:\n%s\nvs\n%s", jobs, graph.Text(got.Graph), graph.Text(serial.Graph))
		}
	}
}

func TestMinimizeHonorsCancellation(t *testing.T) {
	g := buildWide(t)
	ctx, cancel := context.WithCancel(context.Background())
	evals := 0
	pred := func(ctx context.Context, g *graph.Graph) (bool, string) {
		evals++
		if evals > 1 {
			cancel()
		}
		return true, "always"
	}
	if _, err := Minimize(ctx, g, pred, Options{}); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestMinimizeReportsProgress(t *testing.T) {
	g := buildWide(t)
	reg := backend.NewRegistry()
	pred, err := FailurePredicate(reg, backend.IdentityID, wideInputs())
	if err != nil {
		t.Fatalf("FailurePredicate: %v", err)
	}
	var events []Event
	out, err := Minimize(context.Background(), g, pred, Options{
		Progress: func(ev Event) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatalf("Minimize: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("no progress events")
	}
	last := events[len(events)-1]
	if !last.Done || last.Status != StatusMinimized || last.Evals != out.Evals {
		t.Fatalf("final event: %+v", last)
	}
	accepted := 0
	for _, ev := range events {
		if ev.Accepted {
			accepted++
		}
	}
	if accepted == 0 {
		t.Fatalf("no accepted reductions reported")
	}
}

func TestParseModeAndDepth(t *testing.T) {
	if m, err := ParseMode("after-backward-graph"); err != nil || m != ModeAfterBackward {
		t.Fatalf("ParseMode: %v %v", m, err)
	}
	if _, err := ParseMode("sideways"); err == nil {
		t.Fatalf("ParseMode accepted garbage")
	}
	if d, err := ParseDepth("full"); err != nil || d != DepthFull {
		t.Fatalf("ParseDepth: %v %v", d, err)
	}
	if _, err := ParseDepth("deep"); err == nil {
		t.Fatalf("ParseDepth accepted garbage")
	}
}
