package graph

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Print writes g in the textual trace format. The output is canonical:
// printing the same graph twice yields byte-identical text, and the tracer
// parses it back into an equal graph. Reproducer scripts are emitted
// through this path.
func Print(w io.Writer, g *Graph) error {
	if g.Name != "" && g.Name != "main" {
		if _, err := fmt.Fprintf(w, "func %s\n", g.Name); err != nil {
			return err
		}
	}
	for i := range g.Inputs {
		in := &g.Inputs[i]
		if in.Value != nil {
			if _, err := fmt.Fprintf(w, "const %%%d %s dtype=%s shape=%s value=%s\n",
				in.ID, in.Name, in.Dtype, in.Shape, formatData(in.Value.Data)); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "input %%%d %s shape=%s dtype=%s\n",
			in.ID, in.Name, in.Shape, in.Dtype); err != nil {
			return err
		}
	}
	for i := range g.Ops {
		op := &g.Ops[i]
		args := make([]string, len(op.Args))
		for j, a := range op.Args {
			args[j] = "%" + strconv.FormatUint(uint64(a), 10)
		}
		line := fmt.Sprintf("%%%d = %s %s", op.ID, op.Sym, strings.Join(args, " "))
		if op.Fail != StageNone {
			line += " !fail(" + op.Fail.String() + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	for _, o := range g.Outputs {
		if _, err := fmt.Fprintf(w, "output %%%d\n", o); err != nil {
			return err
		}
	}
	return nil
}

// Text returns the canonical textual form of g.
func Text(g *Graph) string {
	var b strings.Builder
	_ = Print(&b, g)
	return b.String()
}

func formatData(data []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range data {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}
