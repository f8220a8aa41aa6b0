package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"triage/internal/backend"
	"triage/internal/diag"
	"triage/internal/graph"
	"triage/internal/observ"
	"triage/internal/tracer"
)

var (
	errColor    = color.New(color.FgRed, color.Bold)
	warnColor   = color.New(color.FgYellow)
	okColor     = color.New(color.FgGreen, color.Bold)
	stageColor  = color.New(color.FgCyan, color.Bold)
	verdictTint = color.New(color.FgMagenta, color.Bold)
)

// phaseTimer returns a timer when --timings asked for one, nil otherwise.
// A nil timer is inert.
func phaseTimer(cmd *cobra.Command) *observ.Timer {
	on, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil || !on {
		return nil
	}
	return observ.NewTimer()
}

// loadTrace reads and traces one file, printing diagnostics as it goes.
// Returns an error when the trace contains syntax errors.
func loadTrace(cmd *cobra.Command, path, filter string) (*tracer.Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return nil, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}

	res, err := tracer.Trace(path, src, tracer.Options{
		Filter:         filter,
		MaxDiagnostics: maxDiagnostics,
	})
	if err != nil {
		return nil, err
	}

	res.Diags.Sort()
	if !quiet || res.Diags.HasErrors() {
		printDiags(cmd.OutOrStdout(), res.Diags, quiet)
	}
	if res.Diags.HasErrors() {
		return nil, fmt.Errorf("%s: trace has %d error(s)", path, res.Diags.CountBySeverity(diag.SevError))
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "traced %d graph(s), %d break(s), %d op(s)\n",
			res.Stats.Fragments, res.Stats.Breaks, res.Stats.Ops)
	}
	return res, nil
}

func printDiags(w io.Writer, bag *diag.Bag, quiet bool) {
	for _, d := range bag.Items() {
		if quiet && d.Severity < diag.SevError {
			continue
		}
		tint := warnColor
		switch d.Severity {
		case diag.SevError:
			tint = errColor
		case diag.SevInfo:
			tint = color.New(color.Faint)
		}
		fmt.Fprintf(w, "%s %s %s:%d: %s\n",
			tint.Sprint(d.Severity.String()), d.Code, d.File, d.Line, d.Message)
	}
}

// sampleInputs synthesizes deterministic runtime values (all ones) for
// every unbound graph input. Captured constants keep their own values.
func sampleInputs(g *graph.Graph) backend.Inputs {
	inputs := make(backend.Inputs)
	for i := range g.Inputs {
		in := &g.Inputs[i]
		if in.Value != nil {
			continue
		}
		data := make([]float64, in.Shape.Elems())
		for j := range data {
			data[j] = 1
		}
		inputs[in.Name] = graph.Value{
			Shape: append(graph.Shape(nil), in.Shape...),
			Dtype: in.Dtype,
			Data:  data,
		}
	}
	return inputs
}

// printVerdict renders a two-probe isolation verdict.
func printVerdict(w io.Writer, v backend.Verdict) {
	if !v.Failed() {
		fmt.Fprintf(w, "%s both probes passed\n", okColor.Sprint("OK"))
		return
	}
	fmt.Fprintf(w, "%s failure isolated to stage %s\n",
		verdictTint.Sprint("FAULT"), stageColor.Sprint(v.Stage.String()))
	if v.IdentityErr != nil {
		fmt.Fprintf(w, "  identity:        %v\n", v.IdentityErr)
	} else {
		fmt.Fprintf(w, "  identity:        ok\n")
	}
	if v.LowerErr != nil {
		fmt.Fprintf(w, "  trace-and-lower: %v\n", v.LowerErr)
	} else {
		fmt.Fprintf(w, "  trace-and-lower: ok\n")
	}
}
