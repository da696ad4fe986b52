package ui

import (
	"strings"
	"testing"

	"ferment/internal/buildpipeline"
)

func TestApplyEventUpdatesRows(t *testing.T) {
	m := NewProgressModel("ferment example", []string{"example", "dep"}, nil).(*progressModel)
	if got, want := len(m.rows), 2+len(buildpipeline.Stages)-1; got != want {
		t.Fatalf("rows = %d want %d", got, want)
	}

	m.applyEvent(buildpipeline.Event{Unit: "dep", Stage: buildpipeline.StageParse, Status: buildpipeline.StatusDone})
	m.applyEvent(buildpipeline.Event{Stage: buildpipeline.StageResolve, Status: buildpipeline.StatusWorking})
	m.applyEvent(buildpipeline.Event{Unit: "nope", Stage: buildpipeline.StageParse, Status: buildpipeline.StatusDone})

	if m.rows[1].status != "done" {
		t.Fatalf("dep row = %+v", m.rows[1])
	}
	resolve := m.index[rowKey("", buildpipeline.StageResolve)]
	if m.rows[resolve].status != "working" {
		t.Fatalf("resolve row = %+v", m.rows[resolve])
	}
	if !strings.Contains(m.View(), "parse example") {
		t.Fatalf("view misses crate row:\n%s", m.View())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("generics/mod.rs", 10); got != "generic..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}
