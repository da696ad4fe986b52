package buildpipeline

import (
	"slices"
	"time"
)

// Stage describes a generator pipeline stage.
type Stage string

const (
	StageParse    Stage = "parse"
	StageScope    Stage = "scope"
	StageResolve  Stage = "resolve"
	StageClassify Stage = "classify"
	StageCompose  Stage = "compose"
	StageWrite    Stage = "write"
	StageHeader   Stage = "header"
	StageFrontend Stage = "frontend"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageParse, StageScope, StageResolve, StageClassify, StageCompose, StageWrite, StageHeader, StageFrontend}

// Status captures progress state within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Event reports progress for one unit (a crate during parsing, otherwise
// empty for the pipeline as a whole).
type Event struct {
	Unit    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds stage durations.
type Timings struct {
	stages map[Stage]time.Duration
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
	t.stages[stage] = dur
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	return t.stages[stage]
}

// Sum returns the sum of durations across the provided stages.
func (t Timings) Sum(stages ...Stage) time.Duration {
	var total time.Duration
	for _, stage := range stages {
		total += t.stages[stage]
	}
	return total
}

// Recorded returns the stages with a duration, in pipeline order.
func (t Timings) Recorded() []Stage {
	out := make([]Stage, 0, len(t.stages))
	for _, s := range Stages {
		if t.Has(s) {
			out = append(out, s)
		}
	}
	return slices.Clip(out)
}
