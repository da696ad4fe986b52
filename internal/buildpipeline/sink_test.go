package buildpipeline

import (
	"testing"
	"time"
)

func TestEmitQueuedAndTimings(t *testing.T) {
	var got []Event
	sink := FuncSink(func(e Event) { got = append(got, e) })
	EmitQueued(sink, []string{"example", "dep"})
	Emit(sink, "", StageResolve, StatusDone, nil, time.Millisecond)
	Emit(nil, "", StageResolve, StatusDone, nil, 0)

	if len(got) != 3 || got[0].Unit != "example" || got[0].Status != StatusQueued || got[2].Stage != StageResolve {
		t.Fatalf("unexpected events: %+v", got)
	}

	var tm Timings
	tm.Set(StageCompose, 3*time.Millisecond)
	tm.Set(StageParse, time.Millisecond)
	if tm.Sum(StageParse, StageCompose) != 4*time.Millisecond {
		t.Fatalf("sum = %v", tm.Sum(StageParse, StageCompose))
	}
	rec := tm.Recorded()
	if len(rec) != 2 || rec[0] != StageParse || rec[1] != StageCompose {
		t.Fatalf("recorded = %v", rec)
	}
}

func TestChannelSink(t *testing.T) {
	ch := make(chan Event, 1)
	ChannelSink{Ch: ch}.OnEvent(Event{Stage: StageWrite, Status: StatusWorking})
	if e := <-ch; e.Stage != StageWrite {
		t.Fatalf("got %+v", e)
	}
	ChannelSink{}.OnEvent(Event{})
}
