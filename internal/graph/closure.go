package graph

import "sort"

// Closure returns the transitive operand closure of the given roots:
// the roots themselves plus every node they reach through op arguments.
// Inputs are included. Grounds the minimal-reproducer guarantee: a reduced
// graph keeps exactly what the failing op depends on.
func Closure(g *Graph, roots ...NodeID) map[NodeID]struct{} {
	reach := make(map[NodeID]struct{}, len(roots))
	work := append([]NodeID(nil), roots...)
	for len(work) > 0 {
		last := len(work) - 1
		id := work[last]
		work = work[:last]
		if _, ok := reach[id]; ok {
			continue
		}
		reach[id] = struct{}{}
		if op, ok := g.Op(id); ok {
			work = append(work, op.Args...)
		}
	}
	return reach
}

// Dependents returns the forward closure of seed within g: every op whose
// argument chain touches a node in seed. The seed itself is included.
// Removing the result of Dependents from a graph never orphans a reference.
func Dependents(g *Graph, seed map[NodeID]struct{}) map[NodeID]struct{} {
	out := make(map[NodeID]struct{}, len(seed))
	for id := range seed {
		out[id] = struct{}{}
	}
	// Ops идут в топологическом порядке, одного прохода достаточно.
	for i := range g.Ops {
		op := &g.Ops[i]
		if _, ok := out[op.ID]; ok {
			continue
		}
		for _, a := range op.Args {
			if _, hit := out[a]; hit {
				out[op.ID] = struct{}{}
				break
			}
		}
	}
	return out
}

// Extract builds a well-formed subgraph containing exactly the ops whose IDs
// are in keep, the inputs they (or surviving outputs) reference, and the
// surviving outputs. If no original output survives, the last remaining op
// becomes the output so the subgraph stays executable. Node IDs are
// preserved; op order is preserved; the result is deterministic.
func Extract(g *Graph, keep map[NodeID]struct{}) *Graph {
	out := &Graph{Name: g.Name}

	needed := make(map[NodeID]struct{})
	for i := range g.Ops {
		op := &g.Ops[i]
		if _, ok := keep[op.ID]; !ok {
			continue
		}
		c := op.clone()
		out.Ops = append(out.Ops, c)
		for _, a := range c.Args {
			needed[a] = struct{}{}
		}
	}

	for _, o := range g.Outputs {
		if _, ok := keep[o]; ok {
			out.Outputs = append(out.Outputs, o)
			needed[o] = struct{}{}
			continue
		}
		if _, isIn := g.InputByID(o); isIn {
			out.Outputs = append(out.Outputs, o)
			needed[o] = struct{}{}
		}
	}
	if len(out.Outputs) == 0 && len(out.Ops) > 0 {
		out.Outputs = []NodeID{out.Ops[len(out.Ops)-1].ID}
	}

	for i := range g.Inputs {
		in := g.Inputs[i]
		if _, ok := needed[in.ID]; !ok {
			continue
		}
		c := in
		c.Shape = append(Shape(nil), in.Shape...)
		if in.Value != nil {
			v := in.Value.Clone()
			c.Value = &v
		}
		out.Inputs = append(out.Inputs, c)
	}

	sort.Slice(out.Outputs, func(i, j int) bool { return out.Outputs[i] < out.Outputs[j] })
	return out
}

func (op *Operation) clone() Operation {
	c := *op
	c.Args = append([]NodeID(nil), op.Args...)
	return c
}

// OpIDs returns the IDs of all operations in order.
func OpIDs(g *Graph) []NodeID {
	ids := make([]NodeID, len(g.Ops))
	for i := range g.Ops {
		ids[i] = g.Ops[i].ID
	}
	return ids
}
