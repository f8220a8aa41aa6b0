package backend

import (
	"context"

	"triage/internal/graph"
	"triage/internal/trace"
)

// IdentityID names the backend that executes a graph directly, with no
// lowering. A failure here means the fault is upstream of lowering.
const IdentityID = "identity"

type identityBackend struct {
	tr trace.Tracer
}

func (b *identityBackend) ID() string { return IdentityID }

func (b *identityBackend) Run(ctx context.Context, g *graph.Graph, inputs Inputs) (Result, error) {
	sp := trace.Begin(b.tr, trace.ScopePhase, "backend:"+IdentityID, 0)
	if err := graph.Validate(g); err != nil {
		sp.End("invalid graph")
		return Result{}, err
	}
	res, err := eval(ctx, IdentityID, g, inputs, evalMask)
	if err != nil {
		sp.End("failed")
		return Result{}, err
	}
	sp.End("ok")
	return res, nil
}
