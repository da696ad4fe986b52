package buildpipeline

import "time"

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// FuncSink adapts a function to ProgressSink.
type FuncSink func(Event)

func (f FuncSink) OnEvent(evt Event) {
	if f != nil {
		f(evt)
	}
}

// Emit sends evt to sink when one is configured.
func Emit(sink ProgressSink, unit string, stage Stage, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{Unit: unit, Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}

// EmitQueued announces every unit before work starts so the UI can size itself.
func EmitQueued(sink ProgressSink, units []string) {
	for _, u := range units {
		Emit(sink, u, StageParse, StatusQueued, nil, 0)
	}
}
