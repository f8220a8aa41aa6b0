package graph

import (
	"fmt"
	"strings"
)

// NodeID identifies a node (input or operation result) within a Graph.
// IDs are assigned densely at build time and stay stable across subgraph
// extraction, so a reduced graph keeps the original identities.
type NodeID uint32

// NoNode is the invalid node ID.
const NoNode NodeID = ^NodeID(0)

// Dtype is the element type carried by a traced value.
type Dtype uint8

const (
	DtypeF32 Dtype = iota
	DtypeF64
	DtypeI64
	DtypeBool
)

func (d Dtype) String() string {
	switch d {
	case DtypeF32:
		return "f32"
	case DtypeF64:
		return "f64"
	case DtypeI64:
		return "i64"
	case DtypeBool:
		return "bool"
	}
	return "unknown"
}

// ParseDtype converts a string to a Dtype.
func ParseDtype(s string) (Dtype, error) {
	switch s {
	case "f32":
		return DtypeF32, nil
	case "f64":
		return DtypeF64, nil
	case "i64":
		return DtypeI64, nil
	case "bool":
		return DtypeBool, nil
	default:
		return DtypeF32, fmt.Errorf("invalid dtype: %q (expected: f32|f64|i64|bool)", s)
	}
}

// Shape is the dimension list of a value. Empty shape means scalar.
type Shape []int

// Elems returns the total element count of the shape.
func (s Shape) Elems() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether two shapes have identical rank and dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, d := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", d)
	}
	b.WriteByte(')')
	return b.String()
}

// Value is a concrete runtime tensor: flat float64 data plus shape metadata.
// Dtype is metadata only; guards compare it, the evaluator does not convert.
type Value struct {
	Shape Shape
	Dtype Dtype
	Data  []float64
}

// Scalar builds a rank-0 value holding a single element.
func Scalar(dt Dtype, v float64) Value {
	return Value{Shape: Shape{}, Dtype: dt, Data: []float64{v}}
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	out := Value{Shape: append(Shape(nil), v.Shape...), Dtype: v.Dtype}
	out.Data = append([]float64(nil), v.Data...)
	return out
}

// Stage tags the pipeline stage a diagnostic or an injected failure belongs to.
type Stage uint8

const (
	StageNone Stage = iota
	StageTrace
	StageBackward
	StageLower
	StageRun
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageTrace:
		return "trace"
	case StageBackward:
		return "backward"
	case StageLower:
		return "lower"
	case StageRun:
		return "run"
	}
	return "unknown"
}

// ParseStage converts a string to a Stage.
func ParseStage(s string) (Stage, error) {
	switch s {
	case "trace":
		return StageTrace, nil
	case "backward":
		return StageBackward, nil
	case "lower":
		return StageLower, nil
	case "run":
		return StageRun, nil
	default:
		return StageNone, fmt.Errorf("invalid stage: %q (expected: trace|backward|lower|run)", s)
	}
}

// Input is a graph boundary node. A non-nil Value makes it a captured
// constant; otherwise the caller supplies the value at execution time.
type Input struct {
	ID    NodeID
	Name  string
	Shape Shape
	Dtype Dtype
	Value *Value
}

// Operation is a single traced node: a named function symbol applied to
// earlier nodes. Immutable once built.
type Operation struct {
	ID   NodeID
	Sym  string
	Args []NodeID
	Fail Stage // injected failure stage, StageNone for healthy ops
	Line int   // source line in the trace file, 0 if synthetic
}

// Graph is an ordered sequence of operations plus input/output boundary
// nodes. Invariant (checked by Validate): every operation's args reference
// only inputs or operations with a smaller ID.
type Graph struct {
	Name    string
	Inputs  []Input
	Ops     []Operation
	Outputs []NodeID
}

// OpCount returns the number of operations (boundary nodes excluded).
func (g *Graph) OpCount() int { return len(g.Ops) }

// Op returns the operation with the given ID, or false if the ID belongs
// to an input or does not exist. Ops are sorted by ID, binary search.
func (g *Graph) Op(id NodeID) (*Operation, bool) {
	lo, hi := 0, len(g.Ops)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case g.Ops[mid].ID < id:
			lo = mid + 1
		case g.Ops[mid].ID > id:
			hi = mid
		default:
			return &g.Ops[mid], true
		}
	}
	return nil, false
}

// InputByID returns the input with the given ID, or false.
func (g *Graph) InputByID(id NodeID) (*Input, bool) {
	for i := range g.Inputs {
		if g.Inputs[i].ID == id {
			return &g.Inputs[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Name:    g.Name,
		Inputs:  make([]Input, len(g.Inputs)),
		Ops:     make([]Operation, len(g.Ops)),
		Outputs: append([]NodeID(nil), g.Outputs...),
	}
	for i, in := range g.Inputs {
		c := in
		c.Shape = append(Shape(nil), in.Shape...)
		if in.Value != nil {
			v := in.Value.Clone()
			c.Value = &v
		}
		out.Inputs[i] = c
	}
	for i, op := range g.Ops {
		c := op
		c.Args = append([]NodeID(nil), op.Args...)
		out.Ops[i] = c
	}
	return out
}

// FailError is an injected failure surfacing from a pipeline stage.
// It carries the op identity so reports and reproducers can point at it.
type FailError struct {
	Op    NodeID
	Sym   string
	Stage Stage
	Line  int
}

func (e *FailError) Error() string {
	return fmt.Sprintf("op %%%d (%s) failed at stage %s", e.Op, e.Sym, e.Stage)
}
