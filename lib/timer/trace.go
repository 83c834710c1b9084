package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type traceKey struct{}

type mark struct {
	event string
	at    time.Duration
}

// invocation collects the marks of one request, relative to its start.
type invocation struct {
	mu    sync.Mutex
	start time.Time
	marks []mark
}

// WithTracing attaches an invocation trace to ctx; Mark appends to it.
func WithTracing(ctx context.Context) context.Context {
	return context.WithValue(ctx, traceKey{}, &invocation{start: time.Now()})
}

// Mark is a no-op when ctx carries no trace.
func Mark(ctx context.Context, event string) {
	inv, ok := ctx.Value(traceKey{}).(*invocation)
	if !ok {
		return
	}
	at := time.Since(inv.start)
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.marks = append(inv.marks, mark{event: event, at: at})
}

// Marks returns the events recorded on ctx in the order they happened.
func Marks(ctx context.Context) []string {
	inv, ok := ctx.Value(traceKey{}).(*invocation)
	if !ok {
		return nil
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	events := make([]string, len(inv.marks))
	for i, m := range inv.marks {
		events[i] = m.event
	}
	return events
}

// LogTracingInfo writes one debug entry with the offset of every mark and the
// total time so far.
func LogTracingInfo(ctx context.Context, log *zap.Logger) error {
	v := ctx.Value(traceKey{})
	if v == nil {
		return nil
	}
	inv, ok := v.(*invocation)
	if !ok {
		return fmt.Errorf("expected invocation trace but got: %v", v)
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	fields := make([]zap.Field, 0, len(inv.marks)+1)
	for _, m := range inv.marks {
		fields = append(fields, zap.Duration(m.event, m.at))
	}
	fields = append(fields, zap.Duration("total", time.Since(inv.start)))
	log.Debug("invocation trace", fields...)
	return nil
}
