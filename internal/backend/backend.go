// Package backend executes computation graphs under pluggable stages.
//
// Two variants are registered by default: identity, which evaluates the
// graph directly and isolates tracer-side faults, and trace-and-lower,
// which applies a lowering pass before evaluation and isolates lowering
// faults. Isolate runs both over the same graph; the comparison of the two
// outcomes classifies where a failure originates.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"triage/internal/graph"
	"triage/internal/trace"
)

// Inputs binds runtime values to graph input names.
type Inputs map[string]graph.Value

// Result of one backend execution.
type Result struct {
	// Outputs holds one value per graph output, in output order.
	Outputs []graph.Value
}

// Backend consumes a Graph and produces outputs or a failure.
// Implementations are stateless; the same Backend value may run
// concurrently over different graphs.
type Backend interface {
	ID() string
	Run(ctx context.Context, g *graph.Graph, inputs Inputs) (Result, error)
}

// ExecError is a failure raised during a backend stage, tagged with the
// stage and the operation it originated from.
type ExecError struct {
	Backend string
	Stage   graph.Stage
	Op      graph.NodeID
	Sym     string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: stage %s: op %%%d (%s): %v", e.Backend, e.Stage, e.Op, e.Sym, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Registry maps backend IDs to constructors.
type Registry struct {
	byID map[string]func(tr trace.Tracer) Backend
}

// NewRegistry returns a registry with the built-in backends registered.
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[string]func(trace.Tracer) Backend)}
	r.Register(IdentityID, func(tr trace.Tracer) Backend { return &identityBackend{tr: tr} })
	r.Register(TraceAndLowerID, func(tr trace.Tracer) Backend { return &lowerBackend{tr: tr} })
	return r
}

// Register adds a backend constructor under id.
func (r *Registry) Register(id string, ctor func(trace.Tracer) Backend) {
	r.byID[id] = ctor
}

// New constructs the backend registered under id.
func (r *Registry) New(id string, tr trace.Tracer) (Backend, error) {
	ctor, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (known: %v)", id, r.IDs())
	}
	if tr == nil {
		tr = trace.Nop
	}
	return ctor(tr), nil
}

// IDs returns the registered backend IDs in sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// StageOf extracts the originating stage from a backend error.
// Returns StageNone if the error carries no stage tag.
func StageOf(err error) graph.Stage {
	var xe *ExecError
	if errors.As(err, &xe) {
		return xe.Stage
	}
	var fe *graph.FailError
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return graph.StageNone
}
