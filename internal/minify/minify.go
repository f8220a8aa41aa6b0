// Package minify reduces a failing computation graph to a minimal
// reproducing subgraph.
//
// The search is delta-debugging style: remove large chunks of operations
// first, narrow on rejection, accept any reduction that still fails the
// predicate. The candidate order is fixed (largest-chunk-first, then
// left-to-right), so repeated runs over the same failing graph produce an
// identical minimal result. Removal always takes an operation together with
// its dependents, so every trial graph is well-formed by construction.
//
// Every predicate evaluation gets its own extracted graph and shares no
// mutable state with other evaluations, which is what makes speculative
// parallel evaluation safe.
package minify

import (
	"context"
	"fmt"

	"triage/internal/graph"
	"triage/internal/trace"
)

// DefaultBudget bounds total predicate evaluations per Minimize call.
const DefaultBudget = 1024

// Status is the terminal outcome of a minification run.
type Status uint8

const (
	// StatusMinimized: a failing subgraph was found and reduced until no
	// single-node removal preserves the failure.
	StatusMinimized Status = iota
	// StatusNonReproducible: the predicate never failed on any subgraph,
	// including the original. The caller must not treat this as success.
	StatusNonReproducible
)

func (s Status) String() string {
	switch s {
	case StatusMinimized:
		return "minimized"
	case StatusNonReproducible:
		return "non-reproducible"
	}
	return "unknown"
}

// Mode selects the minification activation point.
type Mode uint8

const (
	// ModeAfterTrace starts from the traced graph.
	ModeAfterTrace Mode = iota
	// ModeAfterBackward starts from the traced graph plus its constructed
	// backward graph. The reduction algorithm is identical.
	ModeAfterBackward
)

func (m Mode) String() string {
	switch m {
	case ModeAfterTrace:
		return "after-trace"
	case ModeAfterBackward:
		return "after-backward-graph"
	}
	return "unknown"
}

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "trace", "after-trace":
		return ModeAfterTrace, nil
	case "backward", "after-backward", "after-backward-graph":
		return ModeAfterBackward, nil
	default:
		return ModeAfterTrace, fmt.Errorf("invalid minify mode: %q (expected: after-trace|after-backward-graph)", s)
	}
}

// Predicate reports whether a candidate graph still reproduces the failure
// under investigation, plus the observed error signal. Implementations must
// be pure with respect to the graph: no retained references, no shared
// mutable state between evaluations.
type Predicate func(ctx context.Context, g *graph.Graph) (failed bool, signal string)

// Event reports minification progress, one per predicate evaluation.
type Event struct {
	Evals     int
	Budget    int
	ChunkSize int
	OpsLeft   int
	TrialOps  int
	Accepted  bool
	Done      bool
	Status    Status
}

// Options controls a Minimize run.
type Options struct {
	// Budget caps total predicate evaluations (default DefaultBudget).
	Budget int
	// Jobs enables speculative parallel evaluation when > 1. The outcome
	// is identical to the serial run; only wall time changes.
	Jobs int
	// Progress, if set, receives one Event per evaluation batch.
	Progress func(Event)
	// Tracer receives per-attempt events at debug level.
	Tracer trace.Tracer
}

// Outcome of a Minimize run.
type Outcome struct {
	Status    Status
	Graph     *graph.Graph // minimal failing graph, nil if non-reproducible
	Signal    string       // error signal of the original failure
	Evals     int          // predicate evaluations spent
	Exhausted bool         // budget ran out before reaching a fixed point
}

// Minimize reduces g to a minimal subgraph on which pred still fails.
// Returns an error only for context cancellation or nil arguments; the
// non-reproducible case is an Outcome, not an error.
func Minimize(ctx context.Context, g *graph.Graph, pred Predicate, opts Options) (Outcome, error) {
	if g == nil || pred == nil {
		return Outcome{}, fmt.Errorf("minify: nil graph or predicate")
	}
	budget := opts.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	tr := opts.Tracer
	if tr == nil {
		tr = trace.FromContext(ctx)
	}

	run := &runner{ctx: ctx, pred: pred, budget: budget, jobs: opts.Jobs, progress: opts.Progress, tr: tr}

	sp := trace.Begin(tr, trace.ScopePhase, "minify", 0)
	failed, signal := run.evalOne(g)
	if !failed {
		sp.End("non-reproducible")
		run.report(Event{Evals: run.evals, Budget: budget, Done: true, Status: StatusNonReproducible})
		return Outcome{Status: StatusNonReproducible, Evals: run.evals, Signal: signal}, nil
	}

	cur := g
	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		next, ok, err := run.reduceOnce(cur)
		if err != nil {
			return Outcome{}, err
		}
		if !ok {
			break
		}
		cur = next
		if run.exhausted() {
			sp.End("budget exhausted")
			run.report(Event{Evals: run.evals, Budget: budget, OpsLeft: cur.OpCount(), Done: true, Status: StatusMinimized})
			return Outcome{Status: StatusMinimized, Graph: cur, Signal: signal, Evals: run.evals, Exhausted: true}, nil
		}
	}

	if run.truncated {
		sp.End("budget exhausted")
	} else {
		sp.SetExtra("evals", fmt.Sprintf("%d", run.evals))
		sp.End(fmt.Sprintf("minimal graph: %d ops", cur.OpCount()))
	}
	run.report(Event{Evals: run.evals, Budget: budget, OpsLeft: cur.OpCount(), Done: true, Status: StatusMinimized})
	return Outcome{Status: StatusMinimized, Graph: cur, Signal: signal, Evals: run.evals, Exhausted: run.truncated}, nil
}

type runner struct {
	ctx      context.Context
	pred     Predicate
	budget   int
	jobs     int
	evals    int
	progress func(Event)
	tr       trace.Tracer

	// truncated records that a scan stopped on budget exhaustion while
	// candidates were still pending, so the result may not be 1-minimal.
	truncated bool
}

func (r *runner) exhausted() bool { return r.evals >= r.budget }

func (r *runner) report(ev Event) {
	if r.progress != nil {
		r.progress(ev)
	}
}

func (r *runner) evalOne(g *graph.Graph) (bool, string) {
	r.evals++
	failed, signal := r.pred(r.ctx, g)
	trace.Point(r.tr, trace.ScopeAttempt, "minify:eval",
		fmt.Sprintf("ops=%d failed=%t", g.OpCount(), failed))
	return failed, signal
}

// reduceOnce makes one reduction pass: it scans chunk sizes from half the
// op count down to 1, left-to-right within each size, and accepts the first
// candidate removal that still fails the predicate. Returns ok=false when
// no removal of any size preserves the failure (fixed point: 1-minimal).
func (r *runner) reduceOnce(cur *graph.Graph) (*graph.Graph, bool, error) {
	ops := graph.OpIDs(cur)
	if len(ops) <= 1 {
		return nil, false, nil
	}

	for chunk := (len(ops) + 1) / 2; chunk >= 1; chunk /= 2 {
		trials := buildTrials(cur, ops, chunk)
		if len(trials) == 0 {
			continue
		}
		idx, err := r.firstFailing(trials)
		if err != nil {
			return nil, false, err
		}
		if idx >= 0 {
			t := trials[idx]
			r.report(Event{
				Evals: r.evals, Budget: r.budget, ChunkSize: chunk,
				OpsLeft: t.g.OpCount(), TrialOps: t.g.OpCount(), Accepted: true,
			})
			return t.g, true, nil
		}
		if r.exhausted() {
			// smaller chunk sizes were never scanned
			if chunk > 1 {
				r.truncated = true
			}
			return nil, false, nil
		}
	}
	return nil, false, nil
}

type trial struct {
	g *graph.Graph
}

// buildTrials enumerates candidate reductions for one chunk size, in fixed
// left-to-right order. Each candidate removes ops[start:start+chunk] plus
// every dependent, keeping the operand closure intact.
func buildTrials(cur *graph.Graph, ops []graph.NodeID, chunk int) []trial {
	var out []trial
	for start := 0; start < len(ops); start += chunk {
		end := start + chunk
		if end > len(ops) {
			end = len(ops)
		}
		seed := make(map[graph.NodeID]struct{}, end-start)
		for _, id := range ops[start:end] {
			seed[id] = struct{}{}
		}
		removal := graph.Dependents(cur, seed)
		if len(removal) >= len(ops) {
			continue // would empty the graph
		}
		keep := make(map[graph.NodeID]struct{}, len(ops)-len(removal))
		for _, id := range ops {
			if _, gone := removal[id]; !gone {
				keep[id] = struct{}{}
			}
		}
		g := graph.Extract(cur, keep)
		if g.OpCount() == 0 {
			continue
		}
		out = append(out, trial{g: g})
	}
	return out
}
