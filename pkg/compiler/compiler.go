package compiler

import (
	"context"

	"go.uber.org/zap"

	"github.com/goliatone/go-tplc/pkg/optimize"
	"github.com/goliatone/go-tplc/pkg/stream"
	"github.com/goliatone/go-tplc/pkg/validate"
)

// Frontend turns source text into instructions on s. It must finish with
// exactly one terminal operation, report its own failures through
// s.SignalError, and stop emitting once s.Closed() reports true.
type Frontend[T any] interface {
	Compile(ctx context.Context, s *stream.Stream[T], source string)
}

// FrontendFunc adapts a function into a Frontend.
type FrontendFunc[T any] func(ctx context.Context, s *stream.Stream[T], source string)

// Compile calls fn.
func (fn FrontendFunc[T]) Compile(ctx context.Context, s *stream.Stream[T], source string) {
	fn(ctx, s, source)
}

// Backend consumes the optimised stream. A non-nil Err after completion
// fails the compilation with a backend failure.
type Backend[T any] interface {
	stream.Handler[T]
	Err() error
}

// Compiler holds the configuration shared by sessions. It is safe for
// concurrent use; each Compile call builds its own stream graph.
type Compiler[T any] struct {
	frontend Frontend[T]
	passes   optimize.Chain[T]
	classify validate.Classifier[T]
	logger   *zap.Logger
	name     string
}

// New constructs a Compiler around frontend.
func New[T any](frontend Frontend[T], options ...Option[T]) *Compiler[T] {
	if frontend == nil {
		panic("compiler: frontend is nil")
	}
	c := &Compiler[T]{frontend: frontend}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(c)
	}
	c.applyDefaults()
	return c
}

func (c *Compiler[T]) applyDefaults() {
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.name == "" {
		c.name = defaultName
	}
}

// Passes returns the configured chain.
func (c *Compiler[T]) Passes() optimize.Chain[T] {
	return c.passes
}

// Validates reports whether sessions attach a validator.
func (c *Compiler[T]) Validates() bool {
	return c.classify != nil
}

// NewSession prepares a single-use session delivering to backend.
func (c *Compiler[T]) NewSession(backend Backend[T]) *Session[T] {
	if backend == nil {
		panic("compiler: backend is nil")
	}
	return &Session[T]{compiler: c, backend: backend}
}

// Compile runs one session over source.
func (c *Compiler[T]) Compile(ctx context.Context, source string, backend Backend[T]) (Result, error) {
	return c.NewSession(backend).Run(ctx, source)
}
