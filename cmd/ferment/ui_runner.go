package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"ferment/internal/buildpipeline"
	"ferment/internal/driver"
	"ferment/internal/ui"
)

type runOutcome struct {
	result *driver.Result
	err    error
}

// runWithUI runs the pipeline in the background and renders its progress
// events until the run finishes.
func runWithUI(ctx context.Context, title string, opts driver.Options, mode driver.Mode) (*driver.Result, error) {
	events := make(chan buildpipeline.Event, 256)
	outcomeCh := make(chan runOutcome, 1)

	opts.Progress = buildpipeline.ChannelSink{Ch: events}
	go func() {
		res, err := driver.Run(ctx, opts, mode)
		outcomeCh <- runOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, opts.Units(), events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
