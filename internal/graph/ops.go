package graph

import (
	"sort"
	"strings"
)

// knownOps is the symbol set the evaluator can execute. The tracer treats
// anything outside this set as a representability boundary and records a
// trace break instead of failing.
var knownOps = map[string]struct{}{
	"add":    {},
	"sub":    {},
	"mul":    {},
	"div":    {},
	"neg":    {},
	"abs":    {},
	"exp":    {},
	"relu":   {},
	"max":    {},
	"min":    {},
	"sum":    {},
	"matmul": {},
}

// KnownOp reports whether sym is executable. grad.* symbols are known iff
// their forward symbol is.
func KnownOp(sym string) bool {
	if rest, ok := strings.CutPrefix(sym, GradPrefix); ok {
		sym = rest
	}
	_, ok := knownOps[sym]
	return ok
}

// OpSyms returns the executable symbol set in sorted order.
func OpSyms() []string {
	out := make([]string, 0, len(knownOps))
	for s := range knownOps {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
