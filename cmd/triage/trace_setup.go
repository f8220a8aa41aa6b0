package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"triage/internal/trace"
)

// setupLogging inspects log-related flags and initializes the tracer.
// It returns the tracer, a cleanup function, and an error if initialization
// fails. The tracer is also attached to the command context.
func setupLogging(cmd *cobra.Command) (trace.Tracer, func(), error) {
	root := cmd.Root()

	levelStr, err := root.PersistentFlags().GetString("log-level")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}
	outputPath, err := root.PersistentFlags().GetString("log-output")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get log-output flag: %w", err)
	}
	modeStr, err := root.PersistentFlags().GetString("log-mode")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get log-mode flag: %w", err)
	}
	formatStr, err := root.PersistentFlags().GetString("log-format")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get log-format flag: %w", err)
	}
	ringSize, err := root.PersistentFlags().GetInt("log-ring-size")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get log-ring-size flag: %w", err)
	}

	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, nil, err
	}
	if level == trace.LevelOff {
		ctx := trace.WithTracer(cmd.Context(), trace.Nop)
		cmd.SetContext(ctx)
		return trace.Nop, func() {}, nil
	}

	mode, err := trace.ParseMode(modeStr)
	if err != nil {
		return nil, nil, err
	}
	format, err := trace.ParseFormat(formatStr)
	if err != nil {
		return nil, nil, err
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: outputPath,
		RingSize:   ringSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	ctx := trace.WithTracer(cmd.Context(), tracer)
	cmd.SetContext(ctx)

	cleanup := func() {
		_ = tracer.Close()
	}
	return tracer, cleanup, nil
}

// dumpRingOnPanic replays the event ring to stderr if the command panics,
// so a crashing run keeps its tail of trace events. Call via defer.
func dumpRingOnPanic(tracer trace.Tracer) {
	r := recover()
	if r == nil {
		return
	}
	switch t := tracer.(type) {
	case *trace.RingTracer:
		_ = t.Dump(os.Stderr, trace.FormatText)
	case *trace.MultiTracer:
		if rt := t.Ring(); rt != nil {
			_ = rt.Dump(os.Stderr, trace.FormatText)
		}
	}
	panic(r)
}
