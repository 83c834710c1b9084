package pipeline

import (
	"context"
	"io"
	"sync"
)

// Lazy holds one pipeline for the lifetime of a function instance. The first
// Get loads it; a failed load is retried by the next Get.
type Lazy struct {
	mu   sync.Mutex
	load func(ctx context.Context) (Pipeline, error)
	p    Pipeline
}

func NewLazy(load func(ctx context.Context) (Pipeline, error)) *Lazy {
	return &Lazy{load: load}
}

func (l *Lazy) Get(ctx context.Context) (Pipeline, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.p != nil {
		return l.p, nil
	}
	p, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	l.p = p
	return p, nil
}

func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.p
	l.p = nil
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
