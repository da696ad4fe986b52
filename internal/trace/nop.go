package trace

// Nop discards every event. It is installed when --trace is unset, so
// pipeline stages can call Start unconditionally.
var Nop Tracer = discard{}

type discard struct{}

func (discard) Emit(*Event)   {}
func (discard) Flush() error  { return nil }
func (discard) Close() error  { return nil }
func (discard) Level() Level  { return LevelOff }
func (discard) Enabled() bool { return false }
