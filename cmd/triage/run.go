package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"triage/internal/backend"
	"triage/internal/trace"
)

var runCmd = &cobra.Command{
	Use:   "run <file.trc>",
	Short: "Trace a file and execute its graphs under a backend",
	Long: `Run traces the given file into computation graph fragments, executes each
fragment under the selected backend with synthesized sample inputs, and on
failure isolates the faulting stage by comparing the identity and the
trace-and-lower probes`,
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

		backendID, err := cmd.Flags().GetString("backend")
		if err != nil {
			return fmt.Errorf("failed to get backend flag: %w", err)
		}
		filter, err := cmd.Flags().GetString("filter")
		if err != nil {
			return fmt.Errorf("failed to get filter flag: %w", err)
		}
		noIsolate, err := cmd.Flags().GetBool("no-isolate")
		if err != nil {
			return fmt.Errorf("failed to get no-isolate flag: %w", err)
		}

		// Манифест может задавать фильтр по умолчанию.
		manifest, found, err := loadProjectManifest(".")
		if err != nil {
			return err
		}
		if filter == "" && found && manifest.Config.Filter.Function != "" {
			filter = manifest.Config.Filter.Function
		}

		return runTrace(cmd, args[0], backendID, filter, noIsolate, tracer)
	},
}

func init() {
	runCmd.Flags().String("backend", backend.IdentityID, "backend to execute under (identity|trace-and-lower)")
	runCmd.Flags().String("filter", "", "only capture func sections with this name")
	runCmd.Flags().Bool("no-isolate", false, "skip two-probe fault isolation on failure")
}

func runTrace(cmd *cobra.Command, path, backendID, filter string, noIsolate bool, tracer trace.Tracer) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	timer := phaseTimer(cmd)

	tp := timer.Begin("trace")
	res, err := loadTrace(cmd, path, filter)
	if err != nil {
		return err
	}
	timer.End(tp, fmt.Sprintf("%d fragment(s)", len(res.Fragments)))
	if len(res.Fragments) == 0 {
		return fmt.Errorf("%s: no graph fragments captured", path)
	}

	reg := backend.NewRegistry()
	b, err := reg.New(backendID, tracer)
	if err != nil {
		return err
	}

	sp := trace.Begin(tracer, trace.ScopeDriver, "run", 0)
	defer sp.End("")

	ep := timer.Begin("execute")
	failures := 0
	for _, g := range res.Fragments {
		inputs := sampleInputs(g)
		_, runErr := b.Run(ctx, g, inputs)
		if runErr == nil {
			fmt.Fprintf(out, "%s %s: %d op(s)\n", okColor.Sprint("PASS"), g.Name, g.OpCount())
			continue
		}
		failures++
		fmt.Fprintf(out, "%s %s: %v\n", errColor.Sprint("FAIL"), g.Name, runErr)

		if noIsolate {
			continue
		}
		verdict, isoErr := backend.Isolate(ctx, reg, g, inputs, tracer)
		if isoErr != nil {
			return isoErr
		}
		printVerdict(out, verdict)
	}

	timer.End(ep, fmt.Sprintf("%d failure(s)", failures))
	if s := timer.Summary(); s != "" {
		fmt.Fprint(out, s)
	}

	if failures > 0 {
		sp.SetExtra("failures", fmt.Sprintf("%d", failures))
		cmd.SilenceUsage = true
		return fmt.Errorf("%d of %d fragment(s) failed", failures, len(res.Fragments))
	}
	return nil
}
