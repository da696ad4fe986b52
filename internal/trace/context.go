package trace

import "context"

type ctxKey struct{}

type spanKey struct{}

// FromContext extracts the Tracer from context, or Nop.
func FromContext(ctx context.Context) Tracer {
	if ctx == nil {
		return Nop
	}
	if t, ok := ctx.Value(ctxKey{}).(Tracer); ok {
		return t
	}
	return Nop
}

// WithTracer attaches a Tracer to context.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, ctxKey{}, t)
}

// CurrentSpan returns the innermost span ID stored by Start, or 0.
func CurrentSpan(ctx context.Context) uint64 {
	if ctx == nil {
		return 0
	}
	id, _ := ctx.Value(spanKey{}).(uint64)
	return id
}

// Start begins a span parented to the span in ctx and returns a context
// carrying the new span.
func Start(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	sp := Begin(FromContext(ctx), scope, name, CurrentSpan(ctx))
	if sp.ID() == 0 {
		return ctx, sp
	}
	return context.WithValue(ctx, spanKey{}, sp.ID()), sp
}

// Point emits an instant event under the span in ctx.
func Point(ctx context.Context, scope Scope, name, detail string) {
	t := FromContext(ctx)
	if !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return
	}
	t.Emit(&Event{
		Time:     now(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: CurrentSpan(ctx),
		Name:     name,
		Detail:   detail,
	})
}
