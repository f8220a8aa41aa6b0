package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"triage/internal/diag"
	"triage/internal/graph"
	"triage/internal/guard"
	"triage/internal/profiler"
	"triage/internal/trace"
)

var profileCmd = &cobra.Command{
	Use:   "profile <file.trc>",
	Short: "Replay a session trace and report recompilation causes",
	Long: `Profile replays the call directives of a trace through the guard-gated
compilation cache. Every call is routed through the per-site state machine;
the report lists each call site with its recompilation count and the guard
failure that triggered every recompilation`,
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

		flagLimit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return fmt.Errorf("failed to get limit flag: %w", err)
		}
		filter, err := cmd.Flags().GetString("filter")
		if err != nil {
			return fmt.Errorf("failed to get filter flag: %w", err)
		}

		manifest, found, err := loadProjectManifest(".")
		if err != nil {
			return err
		}
		if filter == "" && found {
			filter = manifest.Config.Filter.Function
		}

		return runProfile(cmd, args[0], filter, cacheLimit(flagLimit, manifest), tracer)
	},
}

func init() {
	profileCmd.Flags().Int("limit", 0, "recompilation budget per call site (0 = default)")
	profileCmd.Flags().String("filter", "", "only capture func sections with this name")
}

func runProfile(cmd *cobra.Command, path, filter string, limit int, tracer trace.Tracer) error {
	out := cmd.OutOrStdout()

	res, err := loadTrace(cmd, path, filter)
	if err != nil {
		return err
	}
	if len(res.Calls) == 0 {
		return fmt.Errorf("%s: no call directives in trace", path)
	}

	// Фрагменты по имени: call-директива ссылается на func-секцию.
	fragments := make(map[string]*graph.Graph, len(res.Fragments))
	for _, g := range res.Fragments {
		fragments[g.Name] = g
	}

	compile := func(ctx context.Context, site string, sigs []guard.Signature) (*profiler.CompiledUnit, error) {
		g, ok := fragments[site]
		if !ok {
			return nil, fmt.Errorf("%s: no traced graph for call site", diag.ProfileBadCall)
		}
		return &profiler.CompiledUnit{
			Site:   site,
			Graph:  g,
			Guards: guard.FromSignatures(sigs),
		}, nil
	}

	p := profiler.New(compile, profiler.Config{Limit: limit, Tracer: tracer})

	sp := trace.Begin(tracer, trace.ScopeDriver, "profile", 0)
	defer sp.End("")

	var hits, compiles, directs int
	for _, call := range res.Calls {
		route, _, err := p.Call(cmd.Context(), call.Site, call.Sigs)
		if err != nil {
			fmt.Fprintf(out, "%s call %s at line %d: %v\n",
				warnColor.Sprint("skip:"), call.Site, call.Line, err)
			continue
		}
		switch route {
		case profiler.PathHit:
			hits++
		case profiler.PathCompiled:
			compiles++
		case profiler.PathDirect:
			directs++
		}
	}

	fmt.Fprintf(out, "%d call(s): %d cache hit(s), %d compilation(s), %d direct\n\n",
		len(res.Calls), hits, compiles, directs)
	return profiler.WriteReport(out, p.Report(), p.Limit())
}
