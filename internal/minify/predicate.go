package minify

import (
	"context"
	"fmt"

	"triage/internal/backend"
	"triage/internal/graph"
)

// Depth selects how deep accuracy comparison runs during minification.
type Depth uint8

const (
	// DepthOff: only the raised error signal counts as a failure.
	DepthOff Depth = iota
	// DepthFull: numeric divergence between the candidate backend and the
	// identity baseline also counts as a failure.
	DepthFull
)

// ParseDepth converts a string to a Depth.
func ParseDepth(s string) (Depth, error) {
	switch s {
	case "off":
		return DepthOff, nil
	case "full":
		return DepthFull, nil
	default:
		return DepthOff, fmt.Errorf("invalid repro depth: %q (expected: off|full)", s)
	}
}

// DivergenceTolerance is the default numeric comparison tolerance for
// full-depth minification.
const DivergenceTolerance = 1e-9

// FailurePredicate builds a Predicate that reproduces a raised failure:
// the candidate fails iff running it under the named backend returns an
// error. The signal is the error text.
func FailurePredicate(reg *backend.Registry, backendID string, inputs backend.Inputs) (Predicate, error) {
	// construct once to validate the ID; backends are stateless, so the
	// same instance may run concurrently over different candidates
	b, err := reg.New(backendID, nil)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, g *graph.Graph) (bool, string) {
		_, runErr := b.Run(ctx, g, inputs)
		if runErr == nil || ctx.Err() != nil {
			return false, ""
		}
		return true, runErr.Error()
	}, nil
}

// AccuracyPredicate builds a full-depth Predicate: the candidate fails if
// the backend raises, or if its outputs diverge numerically from the
// identity baseline beyond tol.
func AccuracyPredicate(reg *backend.Registry, backendID string, inputs backend.Inputs, tol float64) (Predicate, error) {
	if tol <= 0 {
		tol = DivergenceTolerance
	}
	cand, err := reg.New(backendID, nil)
	if err != nil {
		return nil, err
	}
	base, err := reg.New(backend.IdentityID, nil)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, g *graph.Graph) (bool, string) {
		got, runErr := cand.Run(ctx, g, inputs)
		if ctx.Err() != nil {
			return false, ""
		}
		if runErr != nil {
			return true, runErr.Error()
		}
		want, baseErr := base.Run(ctx, g, inputs)
		if baseErr != nil {
			// baseline itself broken: upstream fault, still a reproduction
			return true, baseErr.Error()
		}
		if backend.Diverged(got, want, tol) {
			return true, fmt.Sprintf("numeric divergence beyond %g", tol)
		}
		return false, ""
	}, nil
}
