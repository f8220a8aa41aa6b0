package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"triage/internal/backend"
	"triage/internal/diag"
	"triage/internal/graph"
	"triage/internal/minify"
	"triage/internal/repro"
	"triage/internal/trace"
)

var minifyCmd = &cobra.Command{
	Use:   "minify <file.trc>",
	Short: "Reduce a failing trace to a minimal reproducer",
	Long: `Minify traces the given file, finds the first fragment that fails under the
selected backend, and delta-debugs it down to a minimal failing subgraph.
The result is written as a self-contained reproducer script and stored in
the local reproducer cache`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		colorMode, err := cmd.Root().PersistentFlags().GetString("color")
		if err != nil {
			return fmt.Errorf("failed to get color flag: %w", err)
		}
		applyColorMode(colorMode)

		tracer, cleanup, err := setupLogging(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		defer dumpRingOnPanic(tracer)

		opts, err := collectMinifyOptions(cmd)
		if err != nil {
			return err
		}
		return runMinify(cmd, args[0], opts, tracer)
	},
}

type minifyOptions struct {
	backendID string
	filter    string
	mode      minify.Mode
	depth     minify.Depth
	budget    int
	jobs      int
	outPath   string
	ui        bool
	noStore   bool
}

func init() {
	minifyCmd.Flags().String("backend", backend.TraceAndLowerID, "backend to reproduce under (identity|trace-and-lower)")
	minifyCmd.Flags().String("filter", "", "only capture func sections with this name")
	minifyCmd.Flags().String("after", "", "activation point (after-trace|after-backward-graph)")
	minifyCmd.Flags().String("depth", "", "reproduction depth (off|full)")
	minifyCmd.Flags().Int("budget", 0, "maximum predicate evaluations (0 = default)")
	minifyCmd.Flags().Int("jobs", 0, "parallel speculative evaluations (0 = serial)")
	minifyCmd.Flags().StringP("out", "o", "", "write the reproducer script here (\"-\" for stdout)")
	minifyCmd.Flags().Bool("ui", false, "render live progress")
	minifyCmd.Flags().Bool("no-store", false, "do not persist the reproducer in the cache")
}

// collectMinifyOptions merges flags with the project manifest.
// Флаги всегда побеждают значения из triage.toml.
func collectMinifyOptions(cmd *cobra.Command) (minifyOptions, error) {
	var o minifyOptions
	var err error

	if o.backendID, err = cmd.Flags().GetString("backend"); err != nil {
		return o, fmt.Errorf("failed to get backend flag: %w", err)
	}
	if o.filter, err = cmd.Flags().GetString("filter"); err != nil {
		return o, fmt.Errorf("failed to get filter flag: %w", err)
	}
	afterStr, err := cmd.Flags().GetString("after")
	if err != nil {
		return o, fmt.Errorf("failed to get after flag: %w", err)
	}
	depthStr, err := cmd.Flags().GetString("depth")
	if err != nil {
		return o, fmt.Errorf("failed to get depth flag: %w", err)
	}
	if o.budget, err = cmd.Flags().GetInt("budget"); err != nil {
		return o, fmt.Errorf("failed to get budget flag: %w", err)
	}
	if o.jobs, err = cmd.Flags().GetInt("jobs"); err != nil {
		return o, fmt.Errorf("failed to get jobs flag: %w", err)
	}
	if o.outPath, err = cmd.Flags().GetString("out"); err != nil {
		return o, fmt.Errorf("failed to get out flag: %w", err)
	}
	if o.ui, err = cmd.Flags().GetBool("ui"); err != nil {
		return o, fmt.Errorf("failed to get ui flag: %w", err)
	}
	if o.noStore, err = cmd.Flags().GetBool("no-store"); err != nil {
		return o, fmt.Errorf("failed to get no-store flag: %w", err)
	}

	manifest, found, err := loadProjectManifest(".")
	if err != nil {
		return o, err
	}
	if found {
		mc := manifest.Config.Minify
		if afterStr == "" {
			afterStr = mc.After
		}
		if depthStr == "" {
			depthStr = mc.Depth
		}
		if o.budget == 0 {
			o.budget = mc.Budget
		}
		if o.jobs == 0 {
			o.jobs = mc.Jobs
		}
		if o.filter == "" {
			o.filter = manifest.Config.Filter.Function
		}
	}

	o.mode = minify.ModeAfterTrace
	if afterStr != "" {
		if o.mode, err = minify.ParseMode(afterStr); err != nil {
			return o, err
		}
	}
	o.depth = minify.DepthOff
	if depthStr != "" {
		if o.depth, err = minify.ParseDepth(depthStr); err != nil {
			return o, err
		}
	}
	return o, nil
}

func runMinify(cmd *cobra.Command, path string, o minifyOptions, tracer trace.Tracer) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	timer := phaseTimer(cmd)

	tp := timer.Begin("trace")
	res, err := loadTrace(cmd, path, o.filter)
	if err != nil {
		return err
	}
	timer.End(tp, fmt.Sprintf("%d fragment(s)", len(res.Fragments)))
	if len(res.Fragments) == 0 {
		return fmt.Errorf("%s: no graph fragments captured", path)
	}

	reg := backend.NewRegistry()

	sp := trace.Begin(tracer, trace.ScopeDriver, "minify", 0)
	defer sp.End("")

	// Ищем первый падающий фрагмент в порядке трассировки.
	for _, frag := range res.Fragments {
		start, inputs, pred, err := preparePredicate(reg, frag, o)
		if err != nil {
			return err
		}

		mp := timer.Begin("minify " + frag.Name)
		outcome, err := minimizeWithProgress(ctx, start, pred, o, tracer)
		if err != nil {
			return err
		}
		timer.End(mp, fmt.Sprintf("%d eval(s)", outcome.Evals))
		if outcome.Status == minify.StatusNonReproducible {
			continue
		}

		fmt.Fprintf(out, "minimized %s: %d -> %d op(s) in %d eval(s)\n",
			frag.Name, start.OpCount(), outcome.Graph.OpCount(), outcome.Evals)
		if outcome.Exhausted {
			fmt.Fprintf(out, "%s evaluation budget exhausted; result may not be 1-minimal\n",
				warnColor.Sprint("note:"))
		}
		fmt.Fprintf(out, "signal: %s\n", outcome.Signal)
		if err := emitReproducer(cmd, frag.Name, outcome, inputs, o); err != nil {
			return err
		}
		if s := timer.Summary(); s != "" {
			fmt.Fprint(out, s)
		}
		return nil
	}

	// Ни один фрагмент не воспроизвёл падение.
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s %s: predicate did not fail on any traced fragment\n",
		errColor.Sprint("NON_REPRODUCIBLE"), diag.MinifyNonReproducible, path)
	return exitError{code: 2}
}

// preparePredicate builds the starting graph and failure predicate for one
// fragment. In after-backward mode the backward graph is the subject when
// it constructs; when construction itself fails, the forward graph is
// minimized against a construct-then-run predicate so the reported minimal
// graph stays meaningful.
func preparePredicate(reg *backend.Registry, frag *graph.Graph, o minifyOptions) (*graph.Graph, backend.Inputs, minify.Predicate, error) {
	start := frag
	if o.mode == minify.ModeAfterBackward {
		bg, err := graph.Backward(frag)
		if err == nil {
			start = bg
		} else {
			inputs := sampleInputs(frag)
			base, perr := basePredicate(reg, inputs, o)
			if perr != nil {
				return nil, nil, nil, perr
			}
			pred := func(ctx context.Context, g *graph.Graph) (bool, string) {
				bg, berr := graph.Backward(g)
				if berr != nil {
					return true, berr.Error()
				}
				return base(ctx, bg)
			}
			return frag, inputs, pred, nil
		}
	}

	inputs := sampleInputs(start)
	pred, err := basePredicate(reg, inputs, o)
	if err != nil {
		return nil, nil, nil, err
	}
	return start, inputs, pred, nil
}

func basePredicate(reg *backend.Registry, inputs backend.Inputs, o minifyOptions) (minify.Predicate, error) {
	if o.depth == minify.DepthFull {
		return minify.AccuracyPredicate(reg, o.backendID, inputs, minify.DivergenceTolerance)
	}
	return minify.FailurePredicate(reg, o.backendID, inputs)
}

func minimizeWithProgress(ctx context.Context, start *graph.Graph, pred minify.Predicate, o minifyOptions, tracer trace.Tracer) (minify.Outcome, error) {
	opts := minify.Options{Budget: o.budget, Jobs: o.jobs, Tracer: tracer}
	if o.ui && isTerminal(os.Stdout) {
		return minimizeWithUI(ctx, start, pred, opts)
	}
	return minify.Minimize(ctx, start, pred, opts)
}

func emitReproducer(cmd *cobra.Command, site string, outcome minify.Outcome, inputs backend.Inputs, o minifyOptions) error {
	out := cmd.OutOrStdout()
	minimal := outcome.Graph

	// Сигнал содержит стадию, извлекаем её для payload.
	stage := stageFromSignal(outcome.Signal)

	if o.outPath != "" {
		w := out
		if o.outPath != "-" {
			f, err := os.Create(o.outPath)
			if err != nil {
				return fmt.Errorf("failed to create %q: %w", o.outPath, err)
			}
			defer f.Close()
			w = f
		}
		if err := repro.WriteScript(w, minimal, inputs, outcome.Signal); err != nil {
			return err
		}
		if o.outPath != "-" {
			fmt.Fprintf(out, "reproducer written to %s\n", o.outPath)
		}
	}

	if o.noStore {
		return nil
	}
	store, err := repro.Open("triage")
	if err != nil {
		return err
	}
	key := repro.DigestOf(minimal)
	payload := repro.NewPayload(site, minimal, inputs, stage, o.backendID, outcome.Signal, outcome.Evals)
	if err := store.Put(key, payload); err != nil {
		return err
	}
	fmt.Fprintf(out, "stored reproducer %s\n", key)
	return nil
}

// stageFromSignal recovers the stage tag embedded in an execution error
// message. Best effort: unknown text maps to the run stage.
func stageFromSignal(signal string) graph.Stage {
	for _, s := range []graph.Stage{graph.StageTrace, graph.StageBackward, graph.StageLower, graph.StageRun} {
		if strings.Contains(signal, "stage "+s.String()) {
			return s
		}
	}
	return graph.StageRun
}
