// Package handler holds the registry of inference handlers and the helpers
// they share for speaking the API Gateway proxy protocol.
package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"hfserverless/lib/service"
	"hfserverless/pipeline"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

// Func serves one proxied request.
type Func func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// Factory builds a Func once per function instance.
type Factory func(env *Env) (Func, error)

// Env is what a factory may capture. It lives as long as the instance does.
type Env struct {
	Logger *zap.Logger
	Loader pipeline.Loader

	mu      sync.Mutex
	closers []func() error
}

func NewEnv(logger *zap.Logger, loader pipeline.Loader) *Env {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Env{Logger: logger, Loader: loader}
}

// OnClose registers f to run when the instance shuts down.
func (e *Env) OnClose(f func() error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closers = append(e.closers, f)
}

// Close runs the registered closers in reverse order and returns the first error.
func (e *Env) Close() error {
	e.mu.Lock()
	closers := e.closers
	e.closers = nil
	e.mu.Unlock()
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var ErrNotRegistered = errors.New("handler not registered")

var (
	registryMu sync.RWMutex
	registry   = make(map[service.Name]Factory)
)

func Register(name service.Name, f Factory) error {
	if err := name.Valid(); err != nil {
		return fmt.Errorf("can not register handler: %w", err)
	}
	if f == nil {
		return fmt.Errorf("can not register handler %q: nil factory", name)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		return fmt.Errorf("can not register handler: name '%s' already taken", name)
	}
	registry[name] = f
	return nil
}

func MustRegister(name service.Name, f Factory) {
	if err := Register(name, f); err != nil {
		panic(err)
	}
}

func Lookup(name service.Name) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNotRegistered, name)
	}
	return f, nil
}

// Build looks up name and returns its Func wrapped with request logging and metrics.
func Build(name service.Name, env *Env) (Func, error) {
	f, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	fn, err := f(env)
	if err != nil {
		return nil, fmt.Errorf("failed to build handler '%s': %w", name, err)
	}
	return instrument(name, env.Logger, fn), nil
}

// Names returns every registered service name in sorted order.
func Names() []service.Name {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]service.Name, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func unregister(name service.Name) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}
