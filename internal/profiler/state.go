package profiler

// State is the per-call-site compilation state.
type State uint8

const (
	// StateUncompiled: no compiled unit exists yet.
	StateUncompiled State = iota
	// StateCompiled: a unit exists and its guards held on the last call.
	StateCompiled
	// StateRecompiling: a guard failed and a recompile is in flight.
	StateRecompiling
	// StateCapped: the recompilation budget is spent; the site falls back
	// to direct execution and is never recompiled again.
	StateCapped
)

func (s State) String() string {
	switch s {
	case StateUncompiled:
		return "UNCOMPILED"
	case StateCompiled:
		return "COMPILED"
	case StateRecompiling:
		return "RECOMPILING"
	case StateCapped:
		return "CAPPED"
	}
	return "UNKNOWN"
}

// Path reports which execution path a call took.
type Path uint8

const (
	// PathHit: the cached unit was reused, all guards passed.
	PathHit Path = iota
	// PathCompiled: a fresh unit was compiled (first call or after a
	// guard failure).
	PathCompiled
	// PathDirect: the site is capped; the call bypassed compilation.
	PathDirect
)

func (p Path) String() string {
	switch p {
	case PathHit:
		return "hit"
	case PathCompiled:
		return "compiled"
	case PathDirect:
		return "direct"
	}
	return "unknown"
}
