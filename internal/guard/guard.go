// Package guard implements runtime preconditions attached to compiled units.
//
// A Guard is a predicate over one named runtime value: its shape, dtype,
// symbol identity, or captured constant. Evaluation is a pure read and is
// safe to run concurrently from multiple call sites.
package guard

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"triage/internal/graph"
)

// Kind is the guard predicate kind.
type Kind uint8

const (
	KindShape Kind = iota
	KindDtype
	KindIdentity
	KindConstant
)

func (k Kind) String() string {
	switch k {
	case KindShape:
		return "shape"
	case KindDtype:
		return "dtype"
	case KindIdentity:
		return "identity"
	case KindConstant:
		return "constant"
	}
	return "unknown"
}

// Guard is a single precondition: the named value must match the expectation.
type Guard struct {
	ID     string // stable identity, e.g. "shape(x)"
	Kind   Kind
	Target string // value name in the runtime context

	WantShape graph.Shape
	WantDtype graph.Dtype
	WantSym   string // identity guards, NFC-normalized
	WantConst float64
}

func (g Guard) String() string {
	switch g.Kind {
	case KindShape:
		return fmt.Sprintf("shape(%s)=%s", g.Target, g.WantShape)
	case KindDtype:
		return fmt.Sprintf("dtype(%s)=%s", g.Target, g.WantDtype)
	case KindIdentity:
		return fmt.Sprintf("identity(%s)=%s", g.Target, g.WantSym)
	case KindConstant:
		return fmt.Sprintf("constant(%s)=%s", g.Target, strconv.FormatFloat(g.WantConst, 'g', -1, 64))
	}
	return "guard(?)"
}

// Signature is the observed shape/type/value fingerprint of one runtime value.
type Signature struct {
	Name  string
	Shape graph.Shape
	Dtype graph.Dtype
	Sym   string   // optional symbol identity
	Const *float64 // set when the value was captured as a constant
}

func (s Signature) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('=')
	b.WriteString(s.Dtype.String())
	b.WriteString(s.Shape.String())
	if s.Const != nil {
		b.WriteByte('!')
		b.WriteString(strconv.FormatFloat(*s.Const, 'g', -1, 64))
	}
	return b.String()
}

// Context is the live execution context guards are evaluated against.
type Context struct {
	vals map[string]Signature
}

// NewContext builds a context from observed signatures.
func NewContext(sigs []Signature) *Context {
	c := &Context{vals: make(map[string]Signature, len(sigs))}
	for _, s := range sigs {
		c.vals[s.Name] = s
	}
	return c
}

// Lookup returns the signature bound to name.
func (c *Context) Lookup(name string) (Signature, bool) {
	if c == nil {
		return Signature{}, false
	}
	s, ok := c.vals[name]
	return s, ok
}

// Verdict is the result of evaluating a guard list.
type Verdict struct {
	OK     bool
	Index  int    // index of the first failing guard, -1 on pass
	Failed *Guard // nil on pass
	Reason string
}

// Evaluate checks every guard in declaration order against ctx.
// Returns OK only if all pass; otherwise the first failing guard's identity,
// deterministically in guard-list order. Pure read, no side effects.
func Evaluate(guards []Guard, ctx *Context) Verdict {
	for i := range guards {
		g := &guards[i]
		sig, ok := ctx.Lookup(g.Target)
		if !ok {
			return Verdict{Index: i, Failed: g, Reason: fmt.Sprintf("value %q missing from context", g.Target)}
		}
		if reason := g.check(sig); reason != "" {
			return Verdict{Index: i, Failed: g, Reason: reason}
		}
	}
	return Verdict{OK: true, Index: -1}
}

func (g *Guard) check(sig Signature) string {
	switch g.Kind {
	case KindShape:
		if !sig.Shape.Equal(g.WantShape) {
			return fmt.Sprintf("shape %s, want %s", sig.Shape, g.WantShape)
		}
	case KindDtype:
		if sig.Dtype != g.WantDtype {
			return fmt.Sprintf("dtype %s, want %s", sig.Dtype, g.WantDtype)
		}
	case KindIdentity:
		if norm.NFC.String(sig.Sym) != g.WantSym {
			return fmt.Sprintf("identity %q, want %q", sig.Sym, g.WantSym)
		}
	case KindConstant:
		if sig.Const == nil {
			return "value is no longer constant"
		}
		if *sig.Const != g.WantConst {
			return fmt.Sprintf("constant %v, want %v", *sig.Const, g.WantConst)
		}
	}
	return ""
}

// FromSignatures derives the guard set a compile installs: a shape and dtype
// guard per value, an identity guard when a symbol was observed, and a
// constant guard when the value was captured as a constant.
func FromSignatures(sigs []Signature) []Guard {
	var out []Guard
	for _, s := range sigs {
		out = append(out,
			Guard{ID: "shape(" + s.Name + ")", Kind: KindShape, Target: s.Name, WantShape: append(graph.Shape(nil), s.Shape...)},
			Guard{ID: "dtype(" + s.Name + ")", Kind: KindDtype, Target: s.Name, WantDtype: s.Dtype},
		)
		if s.Sym != "" {
			out = append(out, Guard{ID: "identity(" + s.Name + ")", Kind: KindIdentity, Target: s.Name, WantSym: norm.NFC.String(s.Sym)})
		}
		if s.Const != nil {
			out = append(out, Guard{ID: "constant(" + s.Name + ")", Kind: KindConstant, Target: s.Name, WantConst: *s.Const})
		}
	}
	return out
}
