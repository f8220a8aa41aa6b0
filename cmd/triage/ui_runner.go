package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"triage/internal/graph"
	"triage/internal/minify"
	"triage/internal/ui"
)

// minimizeWithUI runs Minimize in a goroutine while the terminal renders a
// live progress view. Events flow over a buffered channel so the reduction
// never blocks on the renderer.
func minimizeWithUI(ctx context.Context, start *graph.Graph, pred minify.Predicate, opts minify.Options) (minify.Outcome, error) {
	events := make(chan minify.Event, 64)
	opts.Progress = func(ev minify.Event) {
		select {
		case events <- ev:
		default: // рендерер отстаёт, событие прогресса можно потерять
		}
	}

	type result struct {
		outcome minify.Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := minify.Minimize(ctx, start, pred, opts)
		close(events)
		done <- result{outcome, err}
	}()

	prog := tea.NewProgram(ui.NewProgressModel("minifying "+start.Name, events))
	if _, err := prog.Run(); err != nil {
		// Интерфейс упал, но редукция продолжает работать.
		r := <-done
		if r.err != nil {
			return minify.Outcome{}, r.err
		}
		return r.outcome, err
	}

	r := <-done
	return r.outcome, r.err
}
