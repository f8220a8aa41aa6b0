// Package profiler observes repeated compilation of the same call site and
// records the guard-failure cause of each recompilation.
//
// Per call site the profiler runs the state machine
// UNCOMPILED -> COMPILED -> (guard failure) RECOMPILING -> COMPILED, and
// transitions to CAPPED once the recompilation count exceeds the configured
// limit; a capped site falls back to direct execution instead of
// recompiling unboundedly.
package profiler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"triage/internal/graph"
	"triage/internal/guard"
	"triage/internal/trace"
)

// DefaultLimit is the default recompilation budget per call site.
const DefaultLimit = 8

// CompiledUnit is a compiled graph plus the guard set required for reuse.
// Owned by the profiler's cache, keyed by originating call site.
type CompiledUnit struct {
	Site       string
	Graph      *graph.Graph
	Guards     []guard.Guard
	Generation int
	CompiledAt time.Time
}

// CompileFunc compiles a call site for the observed input signatures.
// The returned unit must carry the guards that gate its reuse.
type CompileFunc func(ctx context.Context, site string, sigs []guard.Signature) (*CompiledUnit, error)

// Trigger records one recompilation cause: the guard that failed and the
// input signature that broke it.
type Trigger struct {
	Guard     guard.Guard
	Reason    string
	Signature string
}

// Config holds profiler configuration.
type Config struct {
	// Limit is the recompilation budget per call site (default DefaultLimit).
	Limit int
	// Tracer receives per-call events.
	Tracer trace.Tracer
}

// Profiler wraps a compilation entry point with guard-gated caching and
// recompilation accounting. Safe for concurrent use: different call sites
// proceed in parallel; mutation of one site's cache entry is exclusive.
type Profiler struct {
	mu      sync.RWMutex
	sites   map[string]*siteState
	order   []string // first-seen order, for deterministic reports
	compile CompileFunc
	limit   int
	tr      trace.Tracer
}

type siteState struct {
	mu         sync.Mutex
	state      State
	unit       *CompiledUnit
	recompiles int
	triggers   []Trigger
}

// New creates a Profiler around compile.
func New(compile CompileFunc, cfg Config) *Profiler {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	tr := cfg.Tracer
	if tr == nil {
		tr = trace.Nop
	}
	return &Profiler{
		sites:   make(map[string]*siteState),
		compile: compile,
		limit:   limit,
		tr:      tr,
	}
}

// Limit returns the configured recompilation budget.
func (p *Profiler) Limit() int { return p.limit }

func (p *Profiler) site(id string) *siteState {
	p.mu.RLock()
	s, ok := p.sites[id]
	p.mu.RUnlock()
	if ok {
		return s
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok = p.sites[id]; ok {
		return s
	}
	s = &siteState{}
	p.sites[id] = s
	p.order = append(p.order, id)
	return s
}

// Call routes one invocation of a call site. It evaluates the cached
// unit's guards against the observed signatures; on pass it reuses the
// unit, on failure it records the cause and recompiles, and once the
// recompilation budget is exceeded it caps the site.
func (p *Profiler) Call(ctx context.Context, siteID string, sigs []guard.Signature) (Path, *CompiledUnit, error) {
	s := p.site(siteID)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCapped:
		trace.Point(p.tr, trace.ScopeAttempt, "profiler:direct", siteID)
		return PathDirect, nil, nil

	case StateUncompiled:
		unit, err := p.compileLocked(ctx, s, siteID, sigs)
		if err != nil {
			return PathDirect, nil, err
		}
		return PathCompiled, unit, nil

	default: // StateCompiled (RECOMPILING is never observable across calls)
		v := guard.Evaluate(s.unit.Guards, guard.NewContext(sigs))
		if v.OK {
			trace.Point(p.tr, trace.ScopeAttempt, "profiler:hit", siteID)
			return PathHit, s.unit, nil
		}

		s.triggers = append(s.triggers, Trigger{
			Guard:     *v.Failed,
			Reason:    v.Reason,
			Signature: sigString(sigs),
		})
		s.recompiles++
		if s.recompiles > p.limit {
			s.state = StateCapped
			s.unit = nil
			trace.Point(p.tr, trace.ScopeDriver, "profiler:capped",
				fmt.Sprintf("%s after %d recompilations", siteID, s.recompiles-1))
			return PathDirect, nil, nil
		}

		s.state = StateRecompiling
		trace.Point(p.tr, trace.ScopeAttempt, "profiler:recompile",
			fmt.Sprintf("%s guard=%s", siteID, v.Failed.ID))
		unit, err := p.compileLocked(ctx, s, siteID, sigs)
		if err != nil {
			return PathDirect, nil, err
		}
		return PathCompiled, unit, nil
	}
}

// compileLocked runs the compile function and installs the unit.
// The caller holds the site lock.
func (p *Profiler) compileLocked(ctx context.Context, s *siteState, siteID string, sigs []guard.Signature) (*CompiledUnit, error) {
	unit, err := p.compile(ctx, siteID, sigs)
	if err != nil {
		s.state = StateUncompiled
		s.unit = nil
		return nil, fmt.Errorf("compile %s: %w", siteID, err)
	}
	unit.Generation = s.recompiles
	if unit.CompiledAt.IsZero() {
		unit.CompiledAt = time.Now()
	}
	s.unit = unit
	s.state = StateCompiled
	return unit, nil
}

// UnitFor returns the currently cached unit for a site, if any.
// Read-only; safe to call concurrently with Call on other sites.
func (p *Profiler) UnitFor(siteID string) (*CompiledUnit, bool) {
	p.mu.RLock()
	s, ok := p.sites[siteID]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unit == nil {
		return nil, false
	}
	return s.unit, true
}

func sigString(sigs []guard.Signature) string {
	parts := make([]string, len(sigs))
	for i, s := range sigs {
		parts[i] = s.String()
	}
	return strings.Join(parts, " ")
}
