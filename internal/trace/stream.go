package trace

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// StreamTracer writes every event as it happens. The first write error
// stops the stream; Flush and Close report it, the run itself carries on.
type StreamTracer struct {
	mu     sync.Mutex
	w      io.Writer
	level  Level
	format Format
	broken error
}

func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	return &StreamTracer{w: w, level: level, format: format}
}

func (t *StreamTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	ev.Seq = NextSeq()
	data := FormatEvent(ev, t.format)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.broken != nil {
		return
	}
	if _, err := t.w.Write(data); err != nil {
		t.broken = err
	}
}

func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.broken != nil {
		return fmt.Errorf("trace output: %w", t.broken)
	}
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close flushes and closes a trace file; stdout and stderr stay open.
func (t *StreamTracer) Close() error {
	err := t.Flush()
	if t.w == os.Stdout || t.w == os.Stderr {
		return err
	}
	if c, ok := t.w.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (t *StreamTracer) Level() Level { return t.level }

func (t *StreamTracer) Enabled() bool { return t.level > LevelOff }
