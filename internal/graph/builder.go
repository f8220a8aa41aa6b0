package graph

import "fmt"

// Builder assembles a Graph node by node. Instrumentation points emit nodes
// explicitly through the builder instead of the tool introspecting a running
// program; this keeps the representability boundary explicit.
//
// IDs are handed out in construction order, so the resulting op sequence is
// topological by construction. Build validates before returning.
type Builder struct {
	g      Graph
	next   NodeID
	byName map[string]NodeID
	errs   []error
}

// NewBuilder creates a builder for a graph with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		g:      Graph{Name: name},
		byName: make(map[string]NodeID),
	}
}

// Input declares a boundary value supplied at execution time.
func (b *Builder) Input(name string, shape Shape, dt Dtype) NodeID {
	if _, dup := b.byName[name]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate input name %q", name))
	}
	id := b.next
	b.next++
	b.g.Inputs = append(b.g.Inputs, Input{ID: id, Name: name, Shape: shape, Dtype: dt})
	b.byName[name] = id
	return id
}

// Const declares a boundary value captured at trace time.
func (b *Builder) Const(name string, v Value) NodeID {
	id := b.Input(name, v.Shape, v.Dtype)
	b.g.Inputs[len(b.g.Inputs)-1].Value = &v
	return id
}

// Op appends an operation applying sym to the given argument nodes.
func (b *Builder) Op(sym string, args ...NodeID) NodeID {
	return b.OpAt(0, sym, StageNone, args...)
}

// OpAt appends an operation with a source line and an injected failure stage.
func (b *Builder) OpAt(line int, sym string, fail Stage, args ...NodeID) NodeID {
	id := b.next
	b.next++
	b.g.Ops = append(b.g.Ops, Operation{
		ID:   id,
		Sym:  sym,
		Args: append([]NodeID(nil), args...),
		Fail: fail,
		Line: line,
	})
	return id
}

// Output marks a node as a graph output.
func (b *Builder) Output(id NodeID) {
	b.g.Outputs = append(b.g.Outputs, id)
}

// Named returns the node previously declared under name, or NoNode.
func (b *Builder) Named(name string) NodeID {
	if id, ok := b.byName[name]; ok {
		return id
	}
	return NoNode
}

// Build finalizes and validates the graph.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("graph %q: %w", b.g.Name, b.errs[0])
	}
	g := b.g
	if err := Validate(&g); err != nil {
		return nil, err
	}
	return &g, nil
}
